package models

import (
	"time"

	"github.com/google/uuid"
)

// Actor is a resolved identity representing one real person within an org,
// stitched together from sightings across sources. Each per-source ID column
// holds that source's external identifier for the person, filled on first
// sighting and never overwritten.
type Actor struct {
	ID           uuid.UUID `json:"id"`
	OrgID        uuid.UUID `json:"org_id"`
	PrimaryEmail string    `json:"primary_email,omitempty"`
	DisplayName  string    `json:"display_name,omitempty"`
	SlackID      string    `json:"slack_id,omitempty"`
	GitHubID     string    `json:"github_id,omitempty"`
	HubSpotID    string    `json:"hubspot_id,omitempty"`
	JiraID       string    `json:"jira_id,omitempty"`
	NotionID     string    `json:"notion_id,omitempty"`
	GoogleID     string    `json:"google_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SourceID returns the actor's external identifier for the given source.
func (a *Actor) SourceID(source Source) string {
	switch source {
	case SourceSlack:
		return a.SlackID
	case SourceGitHub:
		return a.GitHubID
	case SourceHubSpot:
		return a.HubSpotID
	case SourceJira:
		return a.JiraID
	case SourceNotion:
		return a.NotionID
	case SourceGoogle:
		return a.GoogleID
	}
	return ""
}

// SetSourceID sets the actor's external identifier for the given source.
func (a *Actor) SetSourceID(source Source, id string) {
	switch source {
	case SourceSlack:
		a.SlackID = id
	case SourceGitHub:
		a.GitHubID = id
	case SourceHubSpot:
		a.HubSpotID = id
	case SourceJira:
		a.JiraID = id
	case SourceNotion:
		a.NotionID = id
	case SourceGoogle:
		a.GoogleID = id
	}
}

// ActorHints carries whatever identity signals an adapter could extract from
// a raw event. All fields are optional.
type ActorHints struct {
	Email       string
	DisplayName string
	ExternalID  string // source-scoped external identifier
}

// Empty reports whether the hints carry no usable signal.
func (h ActorHints) Empty() bool {
	return h.Email == "" && h.DisplayName == "" && h.ExternalID == ""
}
