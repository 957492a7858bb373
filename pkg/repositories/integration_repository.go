package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/assemblr-hq/assemblr-engine/pkg/apperrors"
	"github.com/assemblr-hq/assemblr-engine/pkg/database"
	"github.com/assemblr-hq/assemblr-engine/pkg/models"
)

// IntegrationRepository defines the interface for integration data access.
type IntegrationRepository interface {
	Upsert(ctx context.Context, integration *models.Integration) error
	// GetConnected returns the connected integration for (org, source), or
	// apperrors.ErrNotConnected if none is in the connected state.
	GetConnected(ctx context.Context, orgID uuid.UUID, source models.Source) (*models.Integration, error)
	// SaveCursor persists the backfill resume point. Called after every page
	// so a crashed backfill resumes instead of restarting.
	SaveCursor(ctx context.Context, integrationID uuid.UUID, cursor string, syncedAt time.Time) error
	UpdateStatus(ctx context.Context, integrationID uuid.UUID, status string) error
}

// integrationRepository implements IntegrationRepository using PostgreSQL.
type integrationRepository struct{}

// NewIntegrationRepository creates a new integration repository.
func NewIntegrationRepository() IntegrationRepository {
	return &integrationRepository{}
}

// Upsert creates or refreshes the org's integration for a source.
func (r *integrationRepository) Upsert(ctx context.Context, integration *models.Integration) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	now := time.Now()
	if integration.ID == uuid.Nil {
		integration.ID = uuid.New()
	}
	integration.CreatedAt = now
	integration.UpdatedAt = now

	_, err := scope.Conn.Exec(ctx, `
		INSERT INTO integrations (id, org_id, source, status, connection_id,
			credentials_encrypted, sync_cursor, last_sync_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (org_id, source) DO UPDATE
		SET status = EXCLUDED.status,
		    connection_id = EXCLUDED.connection_id,
		    credentials_encrypted = EXCLUDED.credentials_encrypted,
		    updated_at = EXCLUDED.updated_at`,
		integration.ID, integration.OrgID, integration.Source, integration.Status,
		nullIfEmpty(integration.ConnectionID), nullIfEmpty(integration.CredentialsEncrypted),
		nullIfEmpty(integration.SyncCursor), integration.LastSyncAt,
		integration.CreatedAt, integration.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert integration: %w", err)
	}
	return nil
}

// GetConnected retrieves the connected integration for a source.
func (r *integrationRepository) GetConnected(ctx context.Context, orgID uuid.UUID, source models.Source) (*models.Integration, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	var i models.Integration
	var connectionID, credentials, cursor *string
	err := scope.Conn.QueryRow(ctx, `
		SELECT id, org_id, source, status, connection_id, credentials_encrypted,
			sync_cursor, last_sync_at, created_at, updated_at
		FROM integrations
		WHERE org_id = $1 AND source = $2 AND status = $3`,
		orgID, source, models.IntegrationStatusConnected).Scan(
		&i.ID, &i.OrgID, &i.Source, &i.Status, &connectionID, &credentials,
		&cursor, &i.LastSyncAt, &i.CreatedAt, &i.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}

	i.ConnectionID = deref(connectionID)
	i.CredentialsEncrypted = deref(credentials)
	i.SyncCursor = deref(cursor)
	return &i, nil
}

// SaveCursor persists backfill progress.
func (r *integrationRepository) SaveCursor(ctx context.Context, integrationID uuid.UUID, cursor string, syncedAt time.Time) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	_, err := scope.Conn.Exec(ctx, `
		UPDATE integrations SET sync_cursor = $1, last_sync_at = $2, updated_at = $2
		WHERE id = $3`,
		nullIfEmpty(cursor), syncedAt, integrationID)
	if err != nil {
		return fmt.Errorf("failed to save sync cursor: %w", err)
	}
	return nil
}

// UpdateStatus moves an integration between connection states.
func (r *integrationRepository) UpdateStatus(ctx context.Context, integrationID uuid.UUID, status string) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	result, err := scope.Conn.Exec(ctx,
		`UPDATE integrations SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now(), integrationID)
	if err != nil {
		return fmt.Errorf("failed to update integration status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
