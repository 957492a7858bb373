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

// slackEventMap maps Slack event subtypes to canonical event types.
var slackEventMap = map[string]EventMapping{
	"message":               {EventType: "message.sent", EntityType: models.EntityMessage},
	"message_changed":       {EventType: "message.edited", EntityType: models.EntityMessage},
	"message_deleted":       {EventType: "message.deleted", EntityType: models.EntityMessage},
	"reaction_added":        {EventType: "reaction.added", EntityType: models.EntityReaction},
	"channel_created":       {EventType: "channel.created", EntityType: models.EntityChannel},
	"member_joined_channel": {EventType: "channel.member_joined", EntityType: models.EntityChannel},
	"file_shared":           {EventType: "file.shared", EntityType: models.EntityFile},
}

// SlackAdapter ingests Slack workspace activity.
type SlackAdapter struct {
	client *ComposioClient
}

// NewSlackAdapter creates a Slack adapter backed by Composio.
func NewSlackAdapter(client *ComposioClient) *SlackAdapter {
	return &SlackAdapter{client: client}
}

// Source implements IntegrationAdapter.
func (a *SlackAdapter) Source() models.Source {
	return models.SourceSlack
}

type slackMessagePage struct {
	Messages   []map[string]any `json:"messages"`
	NextCursor string           `json:"next_cursor"`
}

// FetchBackfill pages through message history.
func (a *SlackAdapter) FetchBackfill(ctx context.Context, connectionID, cursor string) (*FetchPage, error) {
	params := map[string]any{"limit": 200}
	if cursor != "" {
		params["cursor"] = cursor
	}
	return a.fetchMessages(ctx, connectionID, params)
}

// FetchIncremental fetches messages since the given time.
func (a *SlackAdapter) FetchIncremental(ctx context.Context, connectionID string, since time.Time) (*FetchPage, error) {
	params := map[string]any{
		"oldest": strconv.FormatInt(since.Unix(), 10),
		"limit":  200,
	}
	page, err := a.fetchMessages(ctx, connectionID, params)
	if err != nil {
		return nil, err
	}
	page.NextCursor = ""
	page.HasMore = false
	return page, nil
}

func (a *SlackAdapter) fetchMessages(ctx context.Context, connectionID string, params map[string]any) (*FetchPage, error) {
	result, err := a.client.ExecuteAction(ctx, connectionID, "SLACK_LIST_MESSAGES", params)
	if err != nil {
		return nil, fmt.Errorf("slack fetch failed: %w", err)
	}

	var data slackMessagePage
	if err := json.Unmarshal(result.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode slack messages: %w", err)
	}

	events := make([]RawExternalEvent, 0, len(data.Messages))
	for _, m := range data.Messages {
		ts := stringField(m, "ts")
		eventType := stringField(m, "subtype")
		if eventType == "" {
			eventType = "message"
		}
		events = append(events, RawExternalEvent{
			ID:        ts,
			Type:      eventType,
			Timestamp: slackTimestamp(ts),
			Data:      m,
			Actor:     &RawActor{ID: stringField(m, "user")},
		})
	}

	return &FetchPage{
		Events:     events,
		NextCursor: data.NextCursor,
		HasMore:    data.NextCursor != "",
	}, nil
}

// NormalizeRaw implements IntegrationAdapter.
func (a *SlackAdapter) NormalizeRaw(orgID uuid.UUID, raw RawExternalEvent, rawEventID uuid.UUID) *models.UniversalEventInput {
	mapping, ok := slackEventMap[raw.Type]
	if !ok {
		return nil
	}

	metadata := map[string]any{"channel": raw.Data["channel"]}
	if text := stringField(raw.Data, "text"); text != "" {
		metadata["text"] = truncate(text, 500)
	}

	input := &models.UniversalEventInput{
		OrgID:      orgID,
		Source:     models.SourceSlack,
		EventType:  mapping.EventType,
		EntityType: mapping.EntityType,
		EntityID:   raw.ID,
		Timestamp:  raw.Timestamp,
		Metadata:   metadata,
		RawEventID: rawEventID,
	}
	if raw.Actor != nil {
		input.ActorHints = models.ActorHints{ExternalID: raw.Actor.ID}
	}
	return input
}

// slackTimestamp parses Slack's "seconds.micros" message timestamp.
func slackTimestamp(ts string) time.Time {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Now()
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
