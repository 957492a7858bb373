package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/assemblr-hq/assemblr-engine/pkg/models"
)

// jiraEventMap maps Jira webhook/event types to canonical event types.
var jiraEventMap = map[string]EventMapping{
	"jira:issue_created": {EventType: "issue.created", EntityType: models.EntityTask},
	"jira:issue_updated": {EventType: "issue.updated", EntityType: models.EntityTask},
	"jira:issue_deleted": {EventType: "issue.deleted", EntityType: models.EntityTask},
	"sprint_started":     {EventType: "sprint.started", EntityType: models.EntitySprint},
	"sprint_closed":      {EventType: "sprint.closed", EntityType: models.EntitySprint},
	"comment_created":    {EventType: "comment.created", EntityType: models.EntityTask},
}

// JiraAdapter ingests Jira issue activity.
type JiraAdapter struct {
	client *ComposioClient
}

// NewJiraAdapter creates a Jira adapter backed by Composio.
func NewJiraAdapter(client *ComposioClient) *JiraAdapter {
	return &JiraAdapter{client: client}
}

// Source implements IntegrationAdapter.
func (a *JiraAdapter) Source() models.Source {
	return models.SourceJira
}

type jiraSearchPage struct {
	Issues []map[string]any `json:"issues"`
	Total  int              `json:"total"`
}

// FetchBackfill pages through issue search; the cursor is a startAt offset.
func (a *JiraAdapter) FetchBackfill(ctx context.Context, connectionID, cursor string) (*FetchPage, error) {
	startAt := 0
	if cursor != "" {
		s, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, fmt.Errorf("invalid jira cursor %q: %w", cursor, err)
		}
		startAt = s
	}

	result, err := a.client.ExecuteAction(ctx, connectionID, "JIRA_SEARCH_ISSUES", map[string]any{
		"jql":        "ORDER BY created DESC",
		"startAt":    startAt,
		"maxResults": 100,
	})
	if err != nil {
		return nil, fmt.Errorf("jira fetch failed: %w", err)
	}

	var data jiraSearchPage
	if err := json.Unmarshal(result.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode jira issues: %w", err)
	}

	events := jiraIssueEvents(data.Issues)
	next := startAt + len(events)
	page := &FetchPage{Events: events}
	if next < data.Total {
		page.NextCursor = strconv.Itoa(next)
		page.HasMore = true
	}
	return page, nil
}

// FetchIncremental searches issues updated since the given date.
func (a *JiraAdapter) FetchIncremental(ctx context.Context, connectionID string, since time.Time) (*FetchPage, error) {
	jql := fmt.Sprintf("updated >= %q ORDER BY updated DESC", since.Format("2006-01-02"))
	result, err := a.client.ExecuteAction(ctx, connectionID, "JIRA_SEARCH_ISSUES", map[string]any{
		"jql":        jql,
		"maxResults": 100,
	})
	if err != nil {
		return nil, fmt.Errorf("jira fetch failed: %w", err)
	}

	var data jiraSearchPage
	if err := json.Unmarshal(result.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode jira issues: %w", err)
	}
	return &FetchPage{Events: jiraIssueEvents(data.Issues)}, nil
}

func jiraIssueEvents(issues []map[string]any) []RawExternalEvent {
	events := make([]RawExternalEvent, 0, len(issues))
	for _, issue := range issues {
		fields := nestedMap(issue, "fields")
		created, _ := time.Parse("2006-01-02T15:04:05.000-0700", stringField(fields, "created"))
		var actor *RawActor
		if creator := nestedMap(fields, "creator"); creator != nil {
			actor = &RawActor{
				ID:    stringField(creator, "accountId"),
				Email: stringField(creator, "emailAddress"),
			}
		}
		events = append(events, RawExternalEvent{
			ID:        stringField(issue, "id"),
			Type:      "jira:issue_created",
			Timestamp: created,
			Data:      issue,
			Actor:     actor,
		})
	}
	return events
}

// NormalizeRaw implements IntegrationAdapter. Entity ID prefers the issue
// key over the raw record ID.
func (a *JiraAdapter) NormalizeRaw(orgID uuid.UUID, raw RawExternalEvent, rawEventID uuid.UUID) *models.UniversalEventInput {
	mapping, ok := jiraEventMap[raw.Type]
	if !ok {
		return nil
	}

	fields := nestedMap(raw.Data, "fields")
	entityID := stringField(raw.Data, "key")
	if entityID == "" {
		entityID = raw.ID
	}

	input := &models.UniversalEventInput{
		OrgID:      orgID,
		Source:     models.SourceJira,
		EventType:  mapping.EventType,
		EntityType: mapping.EntityType,
		EntityID:   entityID,
		Timestamp:  raw.Timestamp,
		Metadata: map[string]any{
			"issueKey": raw.Data["key"],
			"priority": stringField(nestedMap(fields, "priority"), "name"),
			"status":   stringField(nestedMap(fields, "status"), "name"),
			"project":  stringField(nestedMap(fields, "project"), "key"),
		},
		RawEventID: rawEventID,
	}
	if raw.Actor != nil {
		input.ActorHints = models.ActorHints{
			ExternalID: raw.Actor.ID,
			Email:      raw.Actor.Email,
		}
	}
	return input
}
