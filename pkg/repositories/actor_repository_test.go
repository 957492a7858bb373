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

// setupActorTest creates a fresh org and a scoped context for it. Each test
// gets its own org, so tests are isolated on the shared database.
func setupActorTest(t *testing.T) (context.Context, uuid.UUID, ActorRepository) {
	t.Helper()
	db := testhelpers.GetTestDB(t)
	orgID := testhelpers.CreateOrg(t, db.DB, "actor-test-org")
	ctx := testhelpers.ScopedContext(t, db.DB, orgID)
	return ctx, orgID, NewActorRepository()
}

// plantEvent inserts a raw event plus a universal event referencing the
// actor, returning the universal event ID.
func plantEvent(t *testing.T, ctx context.Context, orgID uuid.UUID, actorID uuid.UUID, at time.Time) uuid.UUID {
	t.Helper()
	events := NewEventRepository()

	raw := &models.RawEvent{
		OrgID:   orgID,
		Source:  models.SourceSlack,
		Payload: map[string]any{"type": "message"},
	}
	if err := events.CreateRaw(ctx, raw); err != nil {
		t.Fatalf("failed to create raw event: %v", err)
	}

	event := &models.UniversalEvent{
		OrgID:      orgID,
		Source:     models.SourceSlack,
		EventType:  "message.sent",
		ActorID:    &actorID,
		EntityType: models.EntityMessage,
		EntityID:   raw.ID.String(),
		Timestamp:  at,
		RawEventID: raw.ID,
	}
	inserted, err := events.CreateUniversal(ctx, event)
	if err != nil {
		t.Fatalf("failed to create universal event: %v", err)
	}
	if !inserted {
		t.Fatal("expected universal event to be inserted")
	}
	return event.ID
}

func TestActorRepository_CreateAndGet(t *testing.T) {
	ctx, orgID, repo := setupActorTest(t)

	actor := &models.Actor{
		OrgID:        orgID,
		PrimaryEmail: "maya@example.com",
		DisplayName:  "Maya",
		SlackID:      "U-MAYA",
	}
	if err := repo.Create(ctx, actor); err != nil {
		t.Fatalf("failed to create actor: %v", err)
	}
	if actor.ID == uuid.Nil {
		t.Fatal("expected actor ID to be assigned")
	}

	got, err := repo.GetByID(ctx, orgID, actor.ID)
	if err != nil {
		t.Fatalf("failed to get actor: %v", err)
	}
	if got.PrimaryEmail != "maya@example.com" {
		t.Errorf("expected email maya@example.com, got %q", got.PrimaryEmail)
	}
	if got.SlackID != "U-MAYA" {
		t.Errorf("expected slack id U-MAYA, got %q", got.SlackID)
	}
	if got.GitHubID != "" {
		t.Errorf("expected empty github id, got %q", got.GitHubID)
	}
}

func TestActorRepository_GetByID_WrongOrg(t *testing.T) {
	ctx, orgID, repo := setupActorTest(t)

	actor := &models.Actor{OrgID: orgID, SlackID: "U-HIDDEN"}
	if err := repo.Create(ctx, actor); err != nil {
		t.Fatalf("failed to create actor: %v", err)
	}

	db := testhelpers.GetTestDB(t)
	otherOrg := testhelpers.CreateOrg(t, db.DB, "actor-other-org")
	otherCtx := testhelpers.ScopedContext(t, db.DB, otherOrg)

	_, err := repo.GetByID(otherCtx, otherOrg, actor.ID)
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound for cross-org lookup, got %v", err)
	}
}

func TestActorRepository_Create_DuplicateSourceID(t *testing.T) {
	ctx, orgID, repo := setupActorTest(t)

	first := &models.Actor{OrgID: orgID, SlackID: "U-DUP"}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("failed to create first actor: %v", err)
	}

	second := &models.Actor{OrgID: orgID, SlackID: "U-DUP"}
	err := repo.Create(ctx, second)
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("expected ErrConflict for duplicate slack id, got %v", err)
	}
}

func TestActorRepository_Create_DuplicateEmail(t *testing.T) {
	ctx, orgID, repo := setupActorTest(t)

	first := &models.Actor{OrgID: orgID, PrimaryEmail: "dup@example.com"}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("failed to create first actor: %v", err)
	}

	second := &models.Actor{OrgID: orgID, PrimaryEmail: "dup@example.com"}
	err := repo.Create(ctx, second)
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("expected ErrConflict for duplicate email, got %v", err)
	}
}

func TestActorRepository_Create_SameIDAcrossOrgs(t *testing.T) {
	ctx, orgID, repo := setupActorTest(t)

	if err := repo.Create(ctx, &models.Actor{OrgID: orgID, SlackID: "U-SHARED"}); err != nil {
		t.Fatalf("failed to create actor in first org: %v", err)
	}

	db := testhelpers.GetTestDB(t)
	otherOrg := testhelpers.CreateOrg(t, db.DB, "actor-second-org")
	otherCtx := testhelpers.ScopedContext(t, db.DB, otherOrg)

	// Uniqueness is per org: the same external ID may exist in another org.
	if err := repo.Create(otherCtx, &models.Actor{OrgID: otherOrg, SlackID: "U-SHARED"}); err != nil {
		t.Fatalf("expected create in second org to succeed, got %v", err)
	}
}

func TestActorRepository_FindBySourceID(t *testing.T) {
	ctx, orgID, repo := setupActorTest(t)

	actor := &models.Actor{OrgID: orgID, GitHubID: "octocat"}
	if err := repo.Create(ctx, actor); err != nil {
		t.Fatalf("failed to create actor: %v", err)
	}

	found, err := repo.FindBySourceID(ctx, orgID, models.SourceGitHub, "octocat")
	if err != nil {
		t.Fatalf("failed to find actor: %v", err)
	}
	if found == nil || found.ID != actor.ID {
		t.Errorf("expected actor %s, got %+v", actor.ID, found)
	}

	missing, err := repo.FindBySourceID(ctx, orgID, models.SourceGitHub, "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown external id, got %+v", missing)
	}
}

func TestActorRepository_FindBySourceID_InvalidSource(t *testing.T) {
	ctx, orgID, repo := setupActorTest(t)

	_, err := repo.FindBySourceID(ctx, orgID, models.Source("LINEAR"), "x")
	if !errors.Is(err, apperrors.ErrInvalidSource) {
		t.Errorf("expected ErrInvalidSource, got %v", err)
	}
}

func TestActorRepository_FindByEmail(t *testing.T) {
	ctx, orgID, repo := setupActorTest(t)

	actor := &models.Actor{OrgID: orgID, PrimaryEmail: "finn@example.com"}
	if err := repo.Create(ctx, actor); err != nil {
		t.Fatalf("failed to create actor: %v", err)
	}

	found, err := repo.FindByEmail(ctx, orgID, "finn@example.com")
	if err != nil {
		t.Fatalf("failed to find actor by email: %v", err)
	}
	if found == nil || found.ID != actor.ID {
		t.Errorf("expected actor %s, got %+v", actor.ID, found)
	}

	missing, err := repo.FindByEmail(ctx, orgID, "ghost@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown email, got %+v", missing)
	}
}

func TestActorRepository_FillMissingFields(t *testing.T) {
	ctx, orgID, repo := setupActorTest(t)

	actor := &models.Actor{OrgID: orgID, SlackID: "U-FILL", DisplayName: "Original Name"}
	if err := repo.Create(ctx, actor); err != nil {
		t.Fatalf("failed to create actor: %v", err)
	}

	hints := models.ActorHints{
		Email:       "fill@example.com",
		DisplayName: "Different Name",
		ExternalID:  "gh-fill",
	}
	if err := repo.FillMissingFields(ctx, actor.ID, models.SourceGitHub, hints); err != nil {
		t.Fatalf("failed to fill fields: %v", err)
	}

	got, err := repo.GetByID(ctx, orgID, actor.ID)
	if err != nil {
		t.Fatalf("failed to get actor: %v", err)
	}
	if got.PrimaryEmail != "fill@example.com" {
		t.Errorf("expected empty email slot to be filled, got %q", got.PrimaryEmail)
	}
	if got.GitHubID != "gh-fill" {
		t.Errorf("expected empty github slot to be filled, got %q", got.GitHubID)
	}
	// Populated slots are never overwritten.
	if got.DisplayName != "Original Name" {
		t.Errorf("expected display name to survive, got %q", got.DisplayName)
	}
	if got.SlackID != "U-FILL" {
		t.Errorf("expected slack id to survive, got %q", got.SlackID)
	}
}

func TestActorRepository_Merge(t *testing.T) {
	ctx, orgID, repo := setupActorTest(t)

	primary := &models.Actor{OrgID: orgID, PrimaryEmail: "merge@example.com", SlackID: "U-PRIMARY"}
	if err := repo.Create(ctx, primary); err != nil {
		t.Fatalf("failed to create primary: %v", err)
	}
	secondary := &models.Actor{OrgID: orgID, GitHubID: "merge-gh", DisplayName: "Second Self"}
	if err := repo.Create(ctx, secondary); err != nil {
		t.Fatalf("failed to create secondary: %v", err)
	}

	now := time.Now().UTC()
	plantEvent(t, ctx, orgID, primary.ID, now)
	plantEvent(t, ctx, orgID, secondary.ID, now.Add(time.Minute))
	plantEvent(t, ctx, orgID, secondary.ID, now.Add(2*time.Minute))

	if err := repo.Merge(ctx, primary.ID, secondary.ID); err != nil {
		t.Fatalf("failed to merge: %v", err)
	}

	merged, err := repo.GetByID(ctx, orgID, primary.ID)
	if err != nil {
		t.Fatalf("failed to get merged actor: %v", err)
	}
	if merged.SlackID != "U-PRIMARY" {
		t.Errorf("expected primary slack id to survive, got %q", merged.SlackID)
	}
	if merged.GitHubID != "merge-gh" {
		t.Errorf("expected secondary github id to be absorbed, got %q", merged.GitHubID)
	}
	if merged.DisplayName != "Second Self" {
		t.Errorf("expected empty display name to be filled from secondary, got %q", merged.DisplayName)
	}

	// All three events now belong to the primary; none are lost.
	count, err := repo.CountEvents(ctx, primary.ID)
	if err != nil {
		t.Fatalf("failed to count events: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 events on primary after merge, got %d", count)
	}

	_, err = repo.GetByID(ctx, orgID, secondary.ID)
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected secondary to be deleted, got %v", err)
	}
}

func TestActorRepository_CountEvents_NoEvents(t *testing.T) {
	ctx, orgID, repo := setupActorTest(t)

	actor := &models.Actor{OrgID: orgID, SlackID: "U-QUIET"}
	if err := repo.Create(ctx, actor); err != nil {
		t.Fatalf("failed to create actor: %v", err)
	}

	count, err := repo.CountEvents(ctx, actor.ID)
	if err != nil {
		t.Fatalf("failed to count events: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 events, got %d", count)
	}
}
