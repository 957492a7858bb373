// Package adapters translates vendor-specific activity records into the
// universal event model. Each adapter owns a static mapping table from
// vendor event types to canonical (eventType, entityType) pairs; vendor
// types absent from the table are dropped by normalization, not errors.
package adapters

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/assemblr-hq/assemblr-engine/pkg/models"
)

// RawExternalEvent is one vendor activity record as fetched from a source,
// before normalization. Data holds the opaque vendor payload.
type RawExternalEvent struct {
	ID        string
	Type      string
	Timestamp time.Time
	Data      map[string]any
	Actor     *RawActor
}

// RawActor is the vendor's view of who performed the event.
type RawActor struct {
	ID    string
	Email string
	Name  string
}

// EventMapping is one row of an adapter's vendor-type mapping table.
type EventMapping struct {
	EventType  string
	EntityType models.EntityType
}

// FetchPage is one page of fetched raw events plus pagination state.
type FetchPage struct {
	Events     []RawExternalEvent
	NextCursor string
	HasMore    bool
}

// IntegrationAdapter is the boundary between the core pipeline and one
// external tool. The core never calls vendor APIs directly.
type IntegrationAdapter interface {
	// Source identifies which tool this adapter serves.
	Source() models.Source

	// FetchBackfill retrieves one page of historical activity starting at
	// cursor (empty for the beginning).
	FetchBackfill(ctx context.Context, connectionID, cursor string) (*FetchPage, error)

	// FetchIncremental retrieves activity since the given time.
	FetchIncremental(ctx context.Context, connectionID string, since time.Time) (*FetchPage, error)

	// NormalizeRaw maps a raw event to universal form, or nil when the
	// vendor type has no canonical mapping (silent drop).
	NormalizeRaw(orgID uuid.UUID, raw RawExternalEvent, rawEventID uuid.UUID) *models.UniversalEventInput
}

// Registry holds one adapter per source.
type Registry map[models.Source]IntegrationAdapter

// NewRegistry constructs the full adapter set backed by one Composio client.
func NewRegistry(client *ComposioClient) Registry {
	adapters := []IntegrationAdapter{
		NewSlackAdapter(client),
		NewGitHubAdapter(client),
		NewHubSpotAdapter(client),
		NewJiraAdapter(client),
		NewNotionAdapter(client),
		NewGoogleAdapter(client),
	}
	registry := make(Registry, len(adapters))
	for _, a := range adapters {
		registry[a.Source()] = a
	}
	return registry
}

// Get returns the adapter for a source, or nil if unsupported.
func (r Registry) Get(source models.Source) IntegrationAdapter {
	return r[source]
}

// EncodeEnvelope flattens a raw event into the payload form stored in
// raw_events, preserving enough of the fetch-time envelope (vendor id,
// type, timestamp, actor) that normalization can be re-run from storage.
func EncodeEnvelope(raw RawExternalEvent) map[string]any {
	payload := map[string]any{
		"id":        raw.ID,
		"type":      raw.Type,
		"timestamp": raw.Timestamp.UTC().Format(time.RFC3339Nano),
		"data":      raw.Data,
	}
	if raw.Actor != nil {
		payload["actor"] = map[string]any{
			"id":    raw.Actor.ID,
			"email": raw.Actor.Email,
			"name":  raw.Actor.Name,
		}
	}
	return payload
}

// DecodeEnvelope restores a raw event from its stored payload form.
func DecodeEnvelope(payload map[string]any) RawExternalEvent {
	raw := RawExternalEvent{
		ID:   stringField(payload, "id"),
		Type: stringField(payload, "type"),
		Data: nestedMap(payload, "data"),
	}
	if ts, err := time.Parse(time.RFC3339Nano, stringField(payload, "timestamp")); err == nil {
		raw.Timestamp = ts
	}
	if actor := nestedMap(payload, "actor"); actor != nil {
		raw.Actor = &RawActor{
			ID:    stringField(actor, "id"),
			Email: stringField(actor, "email"),
			Name:  stringField(actor, "name"),
		}
	}
	return raw
}

// stringField reads a string value out of a vendor payload, tolerating
// absent keys and non-string values.
func stringField(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

// nestedMap reads a nested object out of a vendor payload.
func nestedMap(data map[string]any, key string) map[string]any {
	if v, ok := data[key].(map[string]any); ok {
		return v
	}
	return nil
}

// truncate caps free-text metadata values to keep event rows small.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
