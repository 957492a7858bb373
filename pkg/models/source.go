package models

// Source identifies the external tool an event or identity came from.
type Source string

const (
	SourceSlack   Source = "SLACK"
	SourceGitHub  Source = "GITHUB"
	SourceHubSpot Source = "HUBSPOT"
	SourceJira    Source = "JIRA"
	SourceNotion  Source = "NOTION"
	SourceGoogle  Source = "GOOGLE"
)

// AllSources lists every supported source.
var AllSources = []Source{
	SourceSlack,
	SourceGitHub,
	SourceHubSpot,
	SourceJira,
	SourceNotion,
	SourceGoogle,
}

// IsValidSource checks if the given source is supported.
func IsValidSource(s Source) bool {
	for _, v := range AllSources {
		if v == s {
			return true
		}
	}
	return false
}

// EntityType classifies the object an event acted on.
type EntityType string

const (
	EntityMessage       EntityType = "message"
	EntityChannel       EntityType = "channel"
	EntityReaction      EntityType = "reaction"
	EntityPullRequest   EntityType = "pull_request"
	EntityIssue         EntityType = "issue"
	EntityCommit        EntityType = "commit"
	EntityRelease       EntityType = "release"
	EntityRepository    EntityType = "repository"
	EntityDeal          EntityType = "deal"
	EntityContact       EntityType = "contact"
	EntityCompany       EntityType = "company"
	EntityTicket        EntityType = "ticket"
	EntityTask          EntityType = "task"
	EntitySprint        EntityType = "sprint"
	EntityBoard         EntityType = "board"
	EntityPage          EntityType = "page"
	EntityDatabase      EntityType = "database"
	EntityBlock         EntityType = "block"
	EntityEmail         EntityType = "email"
	EntityDocument      EntityType = "document"
	EntityCalendarEvent EntityType = "calendar_event"
	EntityFile          EntityType = "file"
	EntityUnknown       EntityType = "unknown"
)
