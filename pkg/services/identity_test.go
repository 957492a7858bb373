package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/assemblr-hq/assemblr-engine/pkg/apperrors"
	"github.com/assemblr-hq/assemblr-engine/pkg/models"
)

func setupIdentityTest(t *testing.T) (IdentityService, *mockActorRepository) {
	t.Helper()
	repo := newMockActorRepository()
	return NewIdentityService(repo, zap.NewNop()), repo
}

func TestResolveActor_CreatesNewActor(t *testing.T) {
	svc, repo := setupIdentityTest(t)
	orgID := uuid.New()

	actorID, err := svc.ResolveActor(context.Background(), orgID, models.SourceSlack, models.ActorHints{
		ExternalID:  "U123",
		Email:       "dana@example.com",
		DisplayName: "Dana",
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, actorID)

	actor := repo.actors[actorID]
	require.NotNil(t, actor)
	assert.Equal(t, "U123", actor.SlackID)
	assert.Equal(t, "dana@example.com", actor.PrimaryEmail)
	assert.Equal(t, "Dana", actor.DisplayName)
}

func TestResolveActor_MatchesBySourceID(t *testing.T) {
	svc, _ := setupIdentityTest(t)
	orgID := uuid.New()

	first, err := svc.ResolveActor(context.Background(), orgID, models.SourceSlack,
		models.ActorHints{ExternalID: "U123"})
	require.NoError(t, err)

	second, err := svc.ResolveActor(context.Background(), orgID, models.SourceSlack,
		models.ActorHints{ExternalID: "U123", Email: "dana@example.com"})
	require.NoError(t, err)

	assert.Equal(t, first, second, "same source id should resolve to the same actor")
}

func TestResolveActor_SourceIDTakesPriorityOverEmail(t *testing.T) {
	svc, _ := setupIdentityTest(t)
	orgID := uuid.New()

	bySource, err := svc.ResolveActor(context.Background(), orgID, models.SourceSlack,
		models.ActorHints{ExternalID: "U123"})
	require.NoError(t, err)

	byEmail, err := svc.ResolveActor(context.Background(), orgID, models.SourceGitHub,
		models.ActorHints{Email: "dana@example.com"})
	require.NoError(t, err)
	require.NotEqual(t, bySource, byEmail)

	// Hints carrying both identifiers must follow the source-id match even
	// though the email points at a different actor.
	resolved, err := svc.ResolveActor(context.Background(), orgID, models.SourceSlack,
		models.ActorHints{ExternalID: "U123", Email: "dana@example.com"})
	require.NoError(t, err)
	assert.Equal(t, bySource, resolved)
}

func TestResolveActor_FieldFillNeverOverwrites(t *testing.T) {
	svc, repo := setupIdentityTest(t)
	orgID := uuid.New()

	actorID, err := svc.ResolveActor(context.Background(), orgID, models.SourceSlack, models.ActorHints{
		ExternalID: "U123",
		Email:      "dana@example.com",
	})
	require.NoError(t, err)

	// A later sighting with a different email must not replace the first.
	_, err = svc.ResolveActor(context.Background(), orgID, models.SourceSlack, models.ActorHints{
		ExternalID:  "U123",
		Email:       "other@example.com",
		DisplayName: "Dana",
	})
	require.NoError(t, err)

	actor := repo.actors[actorID]
	assert.Equal(t, "dana@example.com", actor.PrimaryEmail, "populated email must be stable")
	assert.Equal(t, "Dana", actor.DisplayName, "empty display name should be filled")
}

func TestResolveActor_DistinctHintsCreateDistinctActors(t *testing.T) {
	svc, repo := setupIdentityTest(t)
	orgID := uuid.New()

	bySlack, err := svc.ResolveActor(context.Background(), orgID, models.SourceSlack,
		models.ActorHints{ExternalID: "U1"})
	require.NoError(t, err)

	byEmail, err := svc.ResolveActor(context.Background(), orgID, models.SourceGoogle,
		models.ActorHints{Email: "a@x.com"})
	require.NoError(t, err)

	assert.NotEqual(t, bySlack, byEmail, "no implicit merge across unrelated hints")
	assert.Len(t, repo.actors, 2)
}

func TestResolveActor_InvalidSource(t *testing.T) {
	svc, _ := setupIdentityTest(t)

	_, err := svc.ResolveActor(context.Background(), uuid.New(), models.Source("LINEAR"),
		models.ActorHints{ExternalID: "X"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidSource)
}

func TestResolveActor_CreationConflictReResolves(t *testing.T) {
	repo := newMockActorRepository()
	svc := NewIdentityService(repo, zap.NewNop())
	orgID := uuid.New()

	// Simulate losing the creation race: the winner's row exists but the
	// first Create call reports a conflict.
	winner := &models.Actor{OrgID: orgID, SlackID: "U123"}
	require.NoError(t, repo.Create(context.Background(), winner))
	repo.createErr = apperrors.ErrConflict

	actorID, err := svc.ResolveActor(context.Background(), orgID, models.SourceSlack,
		models.ActorHints{ExternalID: "U123"})
	require.NoError(t, err)
	assert.Equal(t, winner.ID, actorID, "conflict should resolve to the winning row")
}

func TestMergeActors_SelfMerge(t *testing.T) {
	svc, _ := setupIdentityTest(t)
	id := uuid.New()

	err := svc.MergeActors(context.Background(), uuid.New(), id, id)
	assert.ErrorIs(t, err, apperrors.ErrSelfMerge)
}

func TestMergeActors_NotFound(t *testing.T) {
	svc, _ := setupIdentityTest(t)

	err := svc.MergeActors(context.Background(), uuid.New(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMergeActors_CrossTenant(t *testing.T) {
	repo := newMockActorRepository()
	svc := NewIdentityService(repo, zap.NewNop())

	orgA := uuid.New()
	orgB := uuid.New()
	primary := &models.Actor{OrgID: orgA, SlackID: "U1"}
	secondary := &models.Actor{OrgID: orgB, SlackID: "U2"}
	require.NoError(t, repo.Create(context.Background(), primary))
	require.NoError(t, repo.Create(context.Background(), secondary))

	// Fetching secondary through orgA's scope fails before the tenancy
	// comparison is even reached.
	err := svc.MergeActors(context.Background(), orgA, primary.ID, secondary.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMergeActors_FillsAndDeletes(t *testing.T) {
	repo := newMockActorRepository()
	svc := NewIdentityService(repo, zap.NewNop())
	orgID := uuid.New()

	primary := &models.Actor{OrgID: orgID, SlackID: "U1", PrimaryEmail: "dana@example.com"}
	secondary := &models.Actor{OrgID: orgID, GitHubID: "gh-dana", DisplayName: "Dana"}
	require.NoError(t, repo.Create(context.Background(), primary))
	require.NoError(t, repo.Create(context.Background(), secondary))
	repo.eventCounts[primary.ID] = 3
	repo.eventCounts[secondary.ID] = 2

	require.NoError(t, svc.MergeActors(context.Background(), orgID, primary.ID, secondary.ID))

	merged := repo.actors[primary.ID]
	assert.Equal(t, "dana@example.com", merged.PrimaryEmail)
	assert.Equal(t, "gh-dana", merged.GitHubID, "empty slot filled from secondary")
	assert.Equal(t, "Dana", merged.DisplayName)
	assert.NotContains(t, repo.actors, secondary.ID, "secondary is deleted")
	assert.Equal(t, 5, repo.eventCounts[primary.ID], "event total is conserved")
}
