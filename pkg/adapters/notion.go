package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/assemblr-hq/assemblr-engine/pkg/models"
)

// notionEventMap maps Notion object events to canonical event types.
var notionEventMap = map[string]EventMapping{
	"page.created":     {EventType: "page.created", EntityType: models.EntityPage},
	"page.updated":     {EventType: "page.updated", EntityType: models.EntityPage},
	"database.created": {EventType: "database.created", EntityType: models.EntityDatabase},
	"database.updated": {EventType: "database.updated", EntityType: models.EntityDatabase},
}

// NotionAdapter ingests Notion workspace activity.
type NotionAdapter struct {
	client *ComposioClient
}

// NewNotionAdapter creates a Notion adapter backed by Composio.
func NewNotionAdapter(client *ComposioClient) *NotionAdapter {
	return &NotionAdapter{client: client}
}

// Source implements IntegrationAdapter.
func (a *NotionAdapter) Source() models.Source {
	return models.SourceNotion
}

type notionSearchPage struct {
	Results    []map[string]any `json:"results"`
	NextCursor string           `json:"next_cursor"`
	HasMore    bool             `json:"has_more"`
}

// FetchBackfill pages through workspace search results.
func (a *NotionAdapter) FetchBackfill(ctx context.Context, connectionID, cursor string) (*FetchPage, error) {
	params := map[string]any{
		"page_size": 100,
		"sort":      map[string]any{"direction": "descending", "timestamp": "last_edited_time"},
	}
	if cursor != "" {
		params["start_cursor"] = cursor
	}

	data, err := a.search(ctx, connectionID, params)
	if err != nil {
		return nil, err
	}

	return &FetchPage{
		Events:     notionObjectEvents(data.Results, time.Time{}),
		NextCursor: data.NextCursor,
		HasMore:    data.HasMore,
	}, nil
}

// FetchIncremental fetches objects edited since the given time. Notion
// search has no time filter, so results are filtered client-side.
func (a *NotionAdapter) FetchIncremental(ctx context.Context, connectionID string, since time.Time) (*FetchPage, error) {
	data, err := a.search(ctx, connectionID, map[string]any{
		"page_size": 100,
		"sort":      map[string]any{"direction": "descending", "timestamp": "last_edited_time"},
	})
	if err != nil {
		return nil, err
	}
	return &FetchPage{Events: notionObjectEvents(data.Results, since)}, nil
}

func (a *NotionAdapter) search(ctx context.Context, connectionID string, params map[string]any) (*notionSearchPage, error) {
	result, err := a.client.ExecuteAction(ctx, connectionID, "NOTION_SEARCH", params)
	if err != nil {
		return nil, fmt.Errorf("notion fetch failed: %w", err)
	}

	var data notionSearchPage
	if err := json.Unmarshal(result.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode notion search results: %w", err)
	}
	return &data, nil
}

func notionObjectEvents(results []map[string]any, since time.Time) []RawExternalEvent {
	events := make([]RawExternalEvent, 0, len(results))
	for _, item := range results {
		edited, _ := time.Parse(time.RFC3339, stringField(item, "last_edited_time"))
		if !since.IsZero() && !edited.After(since) {
			continue
		}
		created, _ := time.Parse(time.RFC3339, stringField(item, "created_time"))
		var actor *RawActor
		if id := stringField(nestedMap(item, "created_by"), "id"); id != "" {
			actor = &RawActor{ID: id}
		}
		events = append(events, RawExternalEvent{
			ID:        stringField(item, "id"),
			Type:      fmt.Sprintf("%s.created", stringField(item, "object")),
			Timestamp: created,
			Data:      item,
			Actor:     actor,
		})
	}
	return events
}

// NormalizeRaw implements IntegrationAdapter.
func (a *NotionAdapter) NormalizeRaw(orgID uuid.UUID, raw RawExternalEvent, rawEventID uuid.UUID) *models.UniversalEventInput {
	mapping, ok := notionEventMap[raw.Type]
	if !ok {
		return nil
	}

	input := &models.UniversalEventInput{
		OrgID:      orgID,
		Source:     models.SourceNotion,
		EventType:  mapping.EventType,
		EntityType: mapping.EntityType,
		EntityID:   raw.ID,
		Timestamp:  raw.Timestamp,
		Metadata: map[string]any{
			"objectType": raw.Data["object"],
			"url":        raw.Data["url"],
		},
		RawEventID: rawEventID,
	}
	if raw.Actor != nil {
		input.ActorHints = models.ActorHints{ExternalID: raw.Actor.ID}
	}
	return input
}
