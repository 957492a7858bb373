package models

import (
	"time"

	"github.com/google/uuid"
)

// Integration status values.
const (
	IntegrationStatusPending      = "pending"
	IntegrationStatusConnected    = "connected"
	IntegrationStatusDisconnected = "disconnected"
	IntegrationStatusError        = "error"
)

// Integration is an org's connection to one external source. ConnectionID
// references the Composio connected account used for vendor API calls.
// SyncCursor is the backfill resume point, persisted after every fetched
// page so an interrupted backfill restarts from the last saved position.
type Integration struct {
	ID                   uuid.UUID  `json:"id"`
	OrgID                uuid.UUID  `json:"org_id"`
	Source               Source     `json:"source"`
	Status               string     `json:"status"`
	ConnectionID         string     `json:"connection_id,omitempty"`
	CredentialsEncrypted string     `json:"-"`
	SyncCursor           string     `json:"sync_cursor,omitempty"`
	LastSyncAt           *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}
