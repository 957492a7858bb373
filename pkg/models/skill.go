package models

import (
	"time"

	"github.com/google/uuid"
)

// Skill status values.
const (
	SkillStatusDraft    = "draft"
	SkillStatusActive   = "active"
	SkillStatusArchived = "archived"
)

// Skill is the stable identity of a compiled workflow. The executable
// content lives in SkillVersions; the Skill row carries naming and
// provenance (the cluster it was compiled from).
type Skill struct {
	ID          uuid.UUID  `json:"id"`
	OrgID       uuid.UUID  `json:"org_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	ClusterID   *uuid.UUID `json:"cluster_id,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// SkillTrigger describes the anchor event that starts a skill.
type SkillTrigger struct {
	Source     Source         `json:"source"`
	EventType  string         `json:"eventType"`
	Conditions map[string]any `json:"conditions"`
}

// NodePosition is a node's layout coordinate in the graph editor.
type NodePosition struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// SkillNode is one step of a compiled skill graph. Nodes sharing a
// non-empty ParallelGroup are concurrently executable siblings rather
// than a strict chain.
type SkillNode struct {
	ID            uuid.UUID      `json:"id"`
	Label         string         `json:"label"`
	Source        Source         `json:"source"`
	EventType     string         `json:"eventType"`
	IsOptional    bool           `json:"isOptional"`
	ParallelGroup string         `json:"parallelGroup,omitempty"`
	Position      NodePosition   `json:"position"`
	Metadata      map[string]any `json:"metadata"`
}

// SkillEdge connects two nodes in execution order.
type SkillEdge struct {
	ID           uuid.UUID  `json:"id"`
	SourceNodeID uuid.UUID  `json:"sourceNodeId"`
	TargetNodeID uuid.UUID  `json:"targetNodeId"`
	ConditionID  *uuid.UUID `json:"conditionId,omitempty"`
}

// SkillCondition is an inferred guard on skill execution. Conditions are
// attached at the skill level, not wired to specific edges.
type SkillCondition struct {
	ID       uuid.UUID `json:"id"`
	Field    string    `json:"field"`
	Operator string    `json:"operator"`
	Value    any       `json:"value"`
}

// SkillVersion is an immutable snapshot of a skill's graph. Version
// numbers are contiguous from 1 and exactly one version per skill is
// flagged latest.
type SkillVersion struct {
	ID         uuid.UUID        `json:"id"`
	SkillID    uuid.UUID        `json:"skill_id"`
	Version    int              `json:"version"`
	IsLatest   bool             `json:"is_latest"`
	Trigger    SkillTrigger     `json:"trigger"`
	Nodes      []SkillNode      `json:"nodes"`
	Edges      []SkillEdge      `json:"edges"`
	Conditions []SkillCondition `json:"conditions"`
	Metadata   map[string]any   `json:"metadata,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// SkillExport is the flat JSON projection of one skill version for
// external tooling. Read-only; not a persisted format.
type SkillExport struct {
	SkillID    uuid.UUID        `json:"skillId"`
	Name       string           `json:"name"`
	Version    int              `json:"version"`
	Trigger    SkillTrigger     `json:"trigger"`
	Nodes      []SkillNode      `json:"nodes"`
	Edges      []SkillEdge      `json:"edges"`
	Conditions []SkillCondition `json:"conditions"`
	Metadata   map[string]any   `json:"metadata,omitempty"`
	ExportedAt time.Time        `json:"exportedAt"`
}
