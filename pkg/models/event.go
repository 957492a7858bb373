package models

import (
	"time"

	"github.com/google/uuid"
)

// RawEvent is an untouched vendor activity record as received from an
// adapter or webhook. Raw events are retained so normalization can be
// re-run and audited.
type RawEvent struct {
	ID         uuid.UUID      `json:"id"`
	OrgID      uuid.UUID      `json:"org_id"`
	Source     Source         `json:"source"`
	Payload    map[string]any `json:"payload"`
	ReceivedAt time.Time      `json:"received_at"`
}

// UniversalEvent is one normalized activity occurrence in the unified
// per-org stream. Timestamp is the vendor-reported event time, not
// ingestion time. Immutable once created, except that an actor merge may
// reassign ActorID.
type UniversalEvent struct {
	ID         uuid.UUID      `json:"id"`
	OrgID      uuid.UUID      `json:"org_id"`
	Source     Source         `json:"source"`
	EventType  string         `json:"event_type"` // dot-namespaced, e.g. "pull_request.merged"
	ActorID    *uuid.UUID     `json:"actor_id,omitempty"`
	EntityType EntityType     `json:"entity_type"`
	EntityID   string         `json:"entity_id"` // source-scoped
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	RawEventID uuid.UUID      `json:"raw_event_id"`
}

// UniversalEventInput is an adapter's normalized view of a raw event,
// before actor resolution and persistence.
type UniversalEventInput struct {
	OrgID      uuid.UUID
	Source     Source
	EventType  string
	ActorHints ActorHints
	EntityType EntityType
	EntityID   string
	Timestamp  time.Time
	Metadata   map[string]any
	RawEventID uuid.UUID
}
