package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/assemblr-hq/assemblr-engine/pkg/models"
)

// githubEventMap maps GitHub activity event types to canonical event types.
// Types carrying a payload action (e.g. PullRequestEvent with "closed") get
// the ".action" suffix replaced with the concrete action at normalize time.
var githubEventMap = map[string]EventMapping{
	"PushEvent":              {EventType: "push.created", EntityType: models.EntityCommit},
	"PullRequestEvent":       {EventType: "pull_request.action", EntityType: models.EntityPullRequest},
	"PullRequestReviewEvent": {EventType: "pull_request.reviewed", EntityType: models.EntityPullRequest},
	"IssuesEvent":            {EventType: "issue.action", EntityType: models.EntityIssue},
	"IssueCommentEvent":      {EventType: "issue.commented", EntityType: models.EntityIssue},
	"ReleaseEvent":           {EventType: "release.created", EntityType: models.EntityRelease},
	"CreateEvent":            {EventType: "ref.created", EntityType: models.EntityRepository},
	"DeleteEvent":            {EventType: "ref.deleted", EntityType: models.EntityRepository},
}

const githubPageSize = 100

// GitHubAdapter ingests GitHub activity events.
type GitHubAdapter struct {
	client *ComposioClient
}

// NewGitHubAdapter creates a GitHub adapter backed by Composio.
func NewGitHubAdapter(client *ComposioClient) *GitHubAdapter {
	return &GitHubAdapter{client: client}
}

// Source implements IntegrationAdapter.
func (a *GitHubAdapter) Source() models.Source {
	return models.SourceGitHub
}

// FetchBackfill pages through the events feed; the cursor is a page number.
func (a *GitHubAdapter) FetchBackfill(ctx context.Context, connectionID, cursor string) (*FetchPage, error) {
	page := 1
	if cursor != "" {
		p, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, fmt.Errorf("invalid github cursor %q: %w", cursor, err)
		}
		page = p
	}

	events, err := a.fetchEvents(ctx, connectionID, map[string]any{
		"page":     page,
		"per_page": githubPageSize,
	})
	if err != nil {
		return nil, err
	}

	result := &FetchPage{Events: events}
	if len(events) == githubPageSize {
		result.NextCursor = strconv.Itoa(page + 1)
		result.HasMore = true
	}
	return result, nil
}

// FetchIncremental fetches the most recent events page. GitHub's feed has
// no time filter; since is handled by normalization idempotency.
func (a *GitHubAdapter) FetchIncremental(ctx context.Context, connectionID string, since time.Time) (*FetchPage, error) {
	events, err := a.fetchEvents(ctx, connectionID, map[string]any{"per_page": githubPageSize})
	if err != nil {
		return nil, err
	}
	return &FetchPage{Events: events}, nil
}

func (a *GitHubAdapter) fetchEvents(ctx context.Context, connectionID string, params map[string]any) ([]RawExternalEvent, error) {
	result, err := a.client.ExecuteAction(ctx, connectionID, "GITHUB_LIST_EVENTS", params)
	if err != nil {
		return nil, fmt.Errorf("github fetch failed: %w", err)
	}

	var items []map[string]any
	if err := json.Unmarshal(result.Data, &items); err != nil {
		return nil, fmt.Errorf("failed to decode github events: %w", err)
	}

	events := make([]RawExternalEvent, 0, len(items))
	for _, item := range items {
		created, _ := time.Parse(time.RFC3339, stringField(item, "created_at"))
		var actor *RawActor
		if login := stringField(nestedMap(item, "actor"), "login"); login != "" {
			actor = &RawActor{ID: login}
		}
		events = append(events, RawExternalEvent{
			ID:        stringField(item, "id"),
			Type:      stringField(item, "type"),
			Timestamp: created,
			Data:      item,
			Actor:     actor,
		})
	}
	return events, nil
}

// NormalizeRaw implements IntegrationAdapter. The entity ID prefers the
// nested object's own ID (pull request, issue, release) over the feed
// event's delivery ID.
func (a *GitHubAdapter) NormalizeRaw(orgID uuid.UUID, raw RawExternalEvent, rawEventID uuid.UUID) *models.UniversalEventInput {
	mapping, ok := githubEventMap[raw.Type]
	if !ok {
		return nil
	}

	payload := nestedMap(raw.Data, "payload")
	action := stringField(payload, "action")

	eventType := mapping.EventType
	if action != "" {
		eventType = strings.Replace(eventType, ".action", "."+action, 1)
	}

	entityID := raw.ID
	for _, key := range []string{"pull_request", "issue", "release"} {
		if obj := nestedMap(payload, key); obj != nil {
			if id, ok := obj["id"]; ok {
				entityID = fmt.Sprint(id)
				break
			}
		}
	}

	input := &models.UniversalEventInput{
		OrgID:      orgID,
		Source:     models.SourceGitHub,
		EventType:  eventType,
		EntityType: mapping.EntityType,
		EntityID:   entityID,
		Timestamp:  raw.Timestamp,
		Metadata: map[string]any{
			"repo":   stringField(nestedMap(raw.Data, "repo"), "name"),
			"action": action,
		},
		RawEventID: rawEventID,
	}
	if raw.Actor != nil {
		input.ActorHints = models.ActorHints{ExternalID: raw.Actor.ID}
	}
	return input
}
