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

// googleEventMap maps Google Workspace activity to canonical event types.
var googleEventMap = map[string]EventMapping{
	"email.received":         {EventType: "email.received", EntityType: models.EntityEmail},
	"email.sent":             {EventType: "email.sent", EntityType: models.EntityEmail},
	"document.created":       {EventType: "document.created", EntityType: models.EntityDocument},
	"document.modified":      {EventType: "document.modified", EntityType: models.EntityDocument},
	"calendar.event_created": {EventType: "calendar.event_created", EntityType: models.EntityCalendarEvent},
	"file.created":           {EventType: "file.created", EntityType: models.EntityFile},
}

// GoogleAdapter ingests Google Workspace activity (Gmail-driven).
type GoogleAdapter struct {
	client *ComposioClient
}

// NewGoogleAdapter creates a Google Workspace adapter backed by Composio.
func NewGoogleAdapter(client *ComposioClient) *GoogleAdapter {
	return &GoogleAdapter{client: client}
}

// Source implements IntegrationAdapter.
func (a *GoogleAdapter) Source() models.Source {
	return models.SourceGoogle
}

type gmailMessagePage struct {
	Messages      []map[string]any `json:"messages"`
	NextPageToken string           `json:"nextPageToken"`
}

// FetchBackfill pages through the mailbox with Gmail's page token.
func (a *GoogleAdapter) FetchBackfill(ctx context.Context, connectionID, cursor string) (*FetchPage, error) {
	params := map[string]any{"maxResults": 100}
	if cursor != "" {
		params["pageToken"] = cursor
	}

	data, err := a.listMessages(ctx, connectionID, params)
	if err != nil {
		return nil, err
	}

	return &FetchPage{
		Events:     gmailEvents(data.Messages),
		NextCursor: data.NextPageToken,
		HasMore:    data.NextPageToken != "",
	}, nil
}

// FetchIncremental fetches messages after the given time via Gmail query.
func (a *GoogleAdapter) FetchIncremental(ctx context.Context, connectionID string, since time.Time) (*FetchPage, error) {
	data, err := a.listMessages(ctx, connectionID, map[string]any{
		"maxResults": 100,
		"q":          fmt.Sprintf("after:%d", since.Unix()),
	})
	if err != nil {
		return nil, err
	}
	return &FetchPage{Events: gmailEvents(data.Messages)}, nil
}

func (a *GoogleAdapter) listMessages(ctx context.Context, connectionID string, params map[string]any) (*gmailMessagePage, error) {
	result, err := a.client.ExecuteAction(ctx, connectionID, "GMAIL_LIST_MESSAGES", params)
	if err != nil {
		return nil, fmt.Errorf("gmail fetch failed: %w", err)
	}

	var data gmailMessagePage
	if err := json.Unmarshal(result.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode gmail messages: %w", err)
	}
	return &data, nil
}

func gmailEvents(messages []map[string]any) []RawExternalEvent {
	events := make([]RawExternalEvent, 0, len(messages))
	for _, msg := range messages {
		var actor *RawActor
		if from := stringField(msg, "from"); from != "" {
			actor = &RawActor{Email: from}
		}
		events = append(events, RawExternalEvent{
			ID:        stringField(msg, "id"),
			Type:      "email.received",
			Timestamp: gmailInternalDate(msg),
			Data: map[string]any{
				"id":       msg["id"],
				"threadId": msg["threadId"],
				"snippet":  msg["snippet"],
			},
			Actor: actor,
		})
	}
	return events
}

// gmailInternalDate parses Gmail's epoch-millisecond internalDate.
func gmailInternalDate(msg map[string]any) time.Time {
	raw := stringField(msg, "internalDate")
	if raw == "" {
		return time.Now()
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.UnixMilli(ms)
}

// NormalizeRaw implements IntegrationAdapter. Google identities resolve by
// email first; the external ID is secondary.
func (a *GoogleAdapter) NormalizeRaw(orgID uuid.UUID, raw RawExternalEvent, rawEventID uuid.UUID) *models.UniversalEventInput {
	mapping, ok := googleEventMap[raw.Type]
	if !ok {
		return nil
	}

	metadata := map[string]any{"threadId": raw.Data["threadId"]}
	if snippet := stringField(raw.Data, "snippet"); snippet != "" {
		metadata["snippet"] = truncate(snippet, 200)
	}

	input := &models.UniversalEventInput{
		OrgID:      orgID,
		Source:     models.SourceGoogle,
		EventType:  mapping.EventType,
		EntityType: mapping.EntityType,
		EntityID:   raw.ID,
		Timestamp:  raw.Timestamp,
		Metadata:   metadata,
		RawEventID: rawEventID,
	}
	if raw.Actor != nil {
		input.ActorHints = models.ActorHints{
			Email:      raw.Actor.Email,
			ExternalID: raw.Actor.ID,
		}
	}
	return input
}
