package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WorkflowCluster status values. The transition is one-way:
// candidate -> compiled.
const (
	ClusterStatusCandidate = "candidate"
	ClusterStatusCompiled  = "compiled"
)

// SequenceStep is one step of a discovered workflow: a (source, eventType)
// pair observed in order after the anchor.
type SequenceStep struct {
	Source    Source `json:"source"`
	EventType string `json:"eventType"`
}

// Token returns the step's "SOURCE:eventType" form used for signatures,
// similarity, and entropy.
func (s SequenceStep) Token() string {
	return fmt.Sprintf("%s:%s", s.Source, s.EventType)
}

// WorkflowCluster is one discovered recurring behavioral pattern: a group
// of similar event sequences anchored on a notable trigger event. Created
// by the detector; only its status is ever mutated (by the compiler).
type WorkflowCluster struct {
	ID              uuid.UUID      `json:"id"`
	OrgID           uuid.UUID      `json:"org_id"`
	AnchorSource    Source         `json:"anchor_source"`
	AnchorEventType string         `json:"anchor_event_type"`
	EventSequence   []SequenceStep `json:"event_sequence"` // canonical sequence for the cluster
	Frequency       int            `json:"frequency"`
	EntropyScore    float64        `json:"entropy_score"`
	ConfidenceScore float64        `json:"confidence_score"`
	Status          string         `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
}
