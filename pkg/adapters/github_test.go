package adapters

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assemblr-hq/assemblr-engine/pkg/models"
)

func TestGitHubNormalizeRaw_ActionReplacement(t *testing.T) {
	adapter := NewGitHubAdapter(nil)

	input := adapter.NormalizeRaw(uuid.New(), RawExternalEvent{
		ID:        "31415",
		Type:      "PullRequestEvent",
		Timestamp: time.Now(),
		Data: map[string]any{
			"payload": map[string]any{
				"action":       "merged",
				"pull_request": map[string]any{"id": float64(987654)},
			},
			"repo": map[string]any{"name": "assemblr-hq/assemblr-engine"},
		},
		Actor: &RawActor{ID: "octocat"},
	}, uuid.New())

	require.NotNil(t, input)
	assert.Equal(t, "pull_request.merged", input.EventType)
	assert.Equal(t, models.EntityPullRequest, input.EntityType)
	assert.Equal(t, "987654", input.EntityID, "nested object id wins over the feed event id")
	assert.Equal(t, "octocat", input.ActorHints.ExternalID)
	assert.Equal(t, "assemblr-hq/assemblr-engine", input.Metadata["repo"])
}

func TestGitHubNormalizeRaw_NoNestedObjectFallsBackToEventID(t *testing.T) {
	adapter := NewGitHubAdapter(nil)

	input := adapter.NormalizeRaw(uuid.New(), RawExternalEvent{
		ID:   "2718",
		Type: "PushEvent",
		Data: map[string]any{"payload": map[string]any{}},
	}, uuid.New())

	require.NotNil(t, input)
	assert.Equal(t, "push.created", input.EventType)
	assert.Equal(t, "2718", input.EntityID)
}

func TestGitHubNormalizeRaw_NoActionKeepsMappedType(t *testing.T) {
	adapter := NewGitHubAdapter(nil)

	input := adapter.NormalizeRaw(uuid.New(), RawExternalEvent{
		ID:   "1",
		Type: "ReleaseEvent",
		Data: map[string]any{
			"payload": map[string]any{"release": map[string]any{"id": float64(55)}},
		},
	}, uuid.New())

	require.NotNil(t, input)
	assert.Equal(t, "release.created", input.EventType)
	assert.Equal(t, "55", input.EntityID)
}

func TestGitHubNormalizeRaw_UnmappedType(t *testing.T) {
	adapter := NewGitHubAdapter(nil)

	input := adapter.NormalizeRaw(uuid.New(), RawExternalEvent{
		Type: "WatchEvent",
		Data: map[string]any{},
	}, uuid.New())
	assert.Nil(t, input)
}
