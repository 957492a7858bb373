//go:build integration

package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/assemblr-hq/assemblr-engine/pkg/apperrors"
	"github.com/assemblr-hq/assemblr-engine/pkg/models"
	"github.com/assemblr-hq/assemblr-engine/pkg/testhelpers"
)

func setupIntegrationTest(t *testing.T) (context.Context, uuid.UUID, IntegrationRepository) {
	t.Helper()
	db := testhelpers.GetTestDB(t)
	orgID := testhelpers.CreateOrg(t, db.DB, "integration-test-org")
	ctx := testhelpers.ScopedContext(t, db.DB, orgID)
	return ctx, orgID, NewIntegrationRepository()
}

func TestIntegrationRepository_UpsertAndGet(t *testing.T) {
	ctx, orgID, repo := setupIntegrationTest(t)

	integration := &models.Integration{
		OrgID:        orgID,
		Source:       models.SourceSlack,
		Status:       models.IntegrationStatusConnected,
		ConnectionID: "conn-1",
	}
	if err := repo.Upsert(ctx, integration); err != nil {
		t.Fatalf("failed to upsert integration: %v", err)
	}

	got, err := repo.GetConnected(ctx, orgID, models.SourceSlack)
	if err != nil {
		t.Fatalf("failed to get connected integration: %v", err)
	}
	if got.ConnectionID != "conn-1" {
		t.Errorf("expected connection id conn-1, got %q", got.ConnectionID)
	}
	if got.SyncCursor != "" {
		t.Errorf("expected empty cursor, got %q", got.SyncCursor)
	}
}

func TestIntegrationRepository_Upsert_ReplacesOnConflict(t *testing.T) {
	ctx, orgID, repo := setupIntegrationTest(t)

	first := &models.Integration{
		OrgID:        orgID,
		Source:       models.SourceGitHub,
		Status:       models.IntegrationStatusPending,
		ConnectionID: "conn-old",
	}
	if err := repo.Upsert(ctx, first); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}

	// Re-connecting the same source refreshes the row instead of adding one.
	second := &models.Integration{
		OrgID:        orgID,
		Source:       models.SourceGitHub,
		Status:       models.IntegrationStatusConnected,
		ConnectionID: "conn-new",
	}
	if err := repo.Upsert(ctx, second); err != nil {
		t.Fatalf("failed to re-upsert: %v", err)
	}

	got, err := repo.GetConnected(ctx, orgID, models.SourceGitHub)
	if err != nil {
		t.Fatalf("failed to get connected integration: %v", err)
	}
	if got.ID != first.ID {
		t.Errorf("expected upsert to keep the original row id")
	}
	if got.ConnectionID != "conn-new" {
		t.Errorf("expected refreshed connection id, got %q", got.ConnectionID)
	}
}

func TestIntegrationRepository_GetConnected_NotConnected(t *testing.T) {
	ctx, orgID, repo := setupIntegrationTest(t)

	// No row at all.
	_, err := repo.GetConnected(ctx, orgID, models.SourceJira)
	if !errors.Is(err, apperrors.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected for missing integration, got %v", err)
	}

	// A pending row is not connected either.
	pending := &models.Integration{
		OrgID:  orgID,
		Source: models.SourceJira,
		Status: models.IntegrationStatusPending,
	}
	if err := repo.Upsert(ctx, pending); err != nil {
		t.Fatalf("failed to upsert pending integration: %v", err)
	}
	_, err = repo.GetConnected(ctx, orgID, models.SourceJira)
	if !errors.Is(err, apperrors.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected for pending integration, got %v", err)
	}
}

func TestIntegrationRepository_SaveCursor(t *testing.T) {
	ctx, orgID, repo := setupIntegrationTest(t)

	integration := &models.Integration{
		OrgID:  orgID,
		Source: models.SourceHubSpot,
		Status: models.IntegrationStatusConnected,
	}
	if err := repo.Upsert(ctx, integration); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}

	syncedAt := time.Now().UTC().Truncate(time.Millisecond)
	if err := repo.SaveCursor(ctx, integration.ID, "page-3", syncedAt); err != nil {
		t.Fatalf("failed to save cursor: %v", err)
	}

	got, err := repo.GetConnected(ctx, orgID, models.SourceHubSpot)
	if err != nil {
		t.Fatalf("failed to get integration: %v", err)
	}
	if got.SyncCursor != "page-3" {
		t.Errorf("expected cursor page-3, got %q", got.SyncCursor)
	}
	if got.LastSyncAt == nil || !got.LastSyncAt.Equal(syncedAt) {
		t.Errorf("expected last sync at %v, got %v", syncedAt, got.LastSyncAt)
	}
}

func TestIntegrationRepository_UpdateStatus(t *testing.T) {
	ctx, orgID, repo := setupIntegrationTest(t)

	integration := &models.Integration{
		OrgID:  orgID,
		Source: models.SourceNotion,
		Status: models.IntegrationStatusConnected,
	}
	if err := repo.Upsert(ctx, integration); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}

	if err := repo.UpdateStatus(ctx, integration.ID, models.IntegrationStatusDisconnected); err != nil {
		t.Fatalf("failed to update status: %v", err)
	}

	_, err := repo.GetConnected(ctx, orgID, models.SourceNotion)
	if !errors.Is(err, apperrors.ErrNotConnected) {
		t.Errorf("expected disconnected integration to drop out of GetConnected, got %v", err)
	}
}

func TestIntegrationRepository_UpdateStatus_NotFound(t *testing.T) {
	ctx, _, repo := setupIntegrationTest(t)

	err := repo.UpdateStatus(ctx, uuid.New(), models.IntegrationStatusError)
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
