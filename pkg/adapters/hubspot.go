package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/assemblr-hq/assemblr-engine/pkg/models"
)

// hubspotEventMap maps HubSpot change notifications to canonical event types.
var hubspotEventMap = map[string]EventMapping{
	"deal.created":        {EventType: "deal.created", EntityType: models.EntityDeal},
	"deal.propertyChange": {EventType: "deal.updated", EntityType: models.EntityDeal},
	"deal.stage_changed":  {EventType: "deal.stage_changed", EntityType: models.EntityDeal},
	"contact.created":     {EventType: "contact.created", EntityType: models.EntityContact},
	"ticket.created":      {EventType: "ticket.created", EntityType: models.EntityTicket},
}

// HubSpotAdapter ingests HubSpot CRM activity.
type HubSpotAdapter struct {
	client *ComposioClient
}

// NewHubSpotAdapter creates a HubSpot adapter backed by Composio.
func NewHubSpotAdapter(client *ComposioClient) *HubSpotAdapter {
	return &HubSpotAdapter{client: client}
}

// Source implements IntegrationAdapter.
func (a *HubSpotAdapter) Source() models.Source {
	return models.SourceHubSpot
}

type hubspotDealPage struct {
	Results []map[string]any `json:"results"`
	Paging  *struct {
		Next *struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

// FetchBackfill pages through deals with HubSpot's opaque "after" cursor.
func (a *HubSpotAdapter) FetchBackfill(ctx context.Context, connectionID, cursor string) (*FetchPage, error) {
	params := map[string]any{"limit": 100}
	if cursor != "" {
		params["after"] = cursor
	}

	data, err := a.listDeals(ctx, connectionID, params)
	if err != nil {
		return nil, err
	}

	events := make([]RawExternalEvent, 0, len(data.Results))
	for _, item := range data.Results {
		created, _ := time.Parse(time.RFC3339, stringField(item, "createdAt"))
		events = append(events, RawExternalEvent{
			ID:        stringField(item, "id"),
			Type:      "deal.created",
			Timestamp: created,
			Data:      item,
			Actor:     hubspotOwner(item),
		})
	}

	page := &FetchPage{Events: events}
	if data.Paging != nil && data.Paging.Next != nil && data.Paging.Next.After != "" {
		page.NextCursor = data.Paging.Next.After
		page.HasMore = true
	}
	return page, nil
}

// FetchIncremental fetches deals modified since the given time.
func (a *HubSpotAdapter) FetchIncremental(ctx context.Context, connectionID string, since time.Time) (*FetchPage, error) {
	data, err := a.listDeals(ctx, connectionID, map[string]any{
		"filterGroups": []map[string]any{{
			"filters": []map[string]any{{
				"propertyName": "hs_lastmodifieddate",
				"operator":     "GTE",
				"value":        since.Format(time.RFC3339),
			}},
		}},
		"limit": 100,
	})
	if err != nil {
		return nil, err
	}

	events := make([]RawExternalEvent, 0, len(data.Results))
	for _, item := range data.Results {
		updated, _ := time.Parse(time.RFC3339, stringField(item, "updatedAt"))
		events = append(events, RawExternalEvent{
			ID:        stringField(item, "id"),
			Type:      "deal.propertyChange",
			Timestamp: updated,
			Data:      item,
			Actor:     hubspotOwner(item),
		})
	}
	return &FetchPage{Events: events}, nil
}

func (a *HubSpotAdapter) listDeals(ctx context.Context, connectionID string, params map[string]any) (*hubspotDealPage, error) {
	result, err := a.client.ExecuteAction(ctx, connectionID, "HUBSPOT_LIST_DEALS", params)
	if err != nil {
		return nil, fmt.Errorf("hubspot fetch failed: %w", err)
	}

	var data hubspotDealPage
	if err := json.Unmarshal(result.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode hubspot deals: %w", err)
	}
	return &data, nil
}

func hubspotOwner(item map[string]any) *RawActor {
	if owner := stringField(nestedMap(item, "properties"), "hubspot_owner_id"); owner != "" {
		return &RawActor{ID: owner}
	}
	return nil
}

// NormalizeRaw implements IntegrationAdapter.
func (a *HubSpotAdapter) NormalizeRaw(orgID uuid.UUID, raw RawExternalEvent, rawEventID uuid.UUID) *models.UniversalEventInput {
	mapping, ok := hubspotEventMap[raw.Type]
	if !ok {
		return nil
	}

	props := nestedMap(raw.Data, "properties")
	input := &models.UniversalEventInput{
		OrgID:      orgID,
		Source:     models.SourceHubSpot,
		EventType:  mapping.EventType,
		EntityType: mapping.EntityType,
		EntityID:   raw.ID,
		Timestamp:  raw.Timestamp,
		Metadata: map[string]any{
			"dealStage": props["dealstage"],
			"dealName":  props["dealname"],
			"amount":    props["amount"],
		},
		RawEventID: rawEventID,
	}
	if raw.Actor != nil {
		input.ActorHints = models.ActorHints{ExternalID: raw.Actor.ID}
	}
	return input
}
