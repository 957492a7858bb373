package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/assemblr-hq/assemblr-engine/pkg/apperrors"
	"github.com/assemblr-hq/assemblr-engine/pkg/database"
	"github.com/assemblr-hq/assemblr-engine/pkg/models"
)

// sourceIDColumn maps each source to its actor ID column. The map is the
// only place column names come from, so building SQL with them is safe.
var sourceIDColumn = map[models.Source]string{
	models.SourceSlack:   "slack_id",
	models.SourceGitHub:  "github_id",
	models.SourceHubSpot: "hubspot_id",
	models.SourceJira:    "jira_id",
	models.SourceNotion:  "notion_id",
	models.SourceGoogle:  "google_id",
}

const actorColumns = `id, org_id, primary_email, display_name, slack_id, github_id,
	hubspot_id, jira_id, notion_id, google_id, created_at, updated_at`

// ActorRepository defines the interface for actor data access.
type ActorRepository interface {
	Create(ctx context.Context, actor *models.Actor) error
	GetByID(ctx context.Context, orgID, actorID uuid.UUID) (*models.Actor, error)
	// FindBySourceID returns the actor holding the (source, externalID) pair,
	// or nil if no actor in the org holds it.
	FindBySourceID(ctx context.Context, orgID uuid.UUID, source models.Source, externalID string) (*models.Actor, error)
	// FindByEmail returns the actor with the given primary email, or nil.
	FindByEmail(ctx context.Context, orgID uuid.UUID, email string) (*models.Actor, error)
	// FillMissingFields writes each hint field only where the actor's slot is
	// currently empty. Populated slots are never overwritten.
	FillMissingFields(ctx context.Context, actorID uuid.UUID, source models.Source, hints models.ActorHints) error
	// Merge fills primary's empty slots from secondary, reassigns secondary's
	// events to primary, and deletes secondary, all in one transaction.
	Merge(ctx context.Context, primaryID, secondaryID uuid.UUID) error
	CountEvents(ctx context.Context, actorID uuid.UUID) (int, error)
}

// actorRepository implements ActorRepository using PostgreSQL.
type actorRepository struct{}

// NewActorRepository creates a new actor repository.
func NewActorRepository() ActorRepository {
	return &actorRepository{}
}

// Create inserts a new actor. Returns apperrors.ErrConflict if another actor
// in the org already holds one of the unique identity slots; callers fall
// back to re-lookup (concurrent resolution race).
func (r *actorRepository) Create(ctx context.Context, actor *models.Actor) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	now := time.Now()
	actor.CreatedAt = now
	actor.UpdatedAt = now
	if actor.ID == uuid.Nil {
		actor.ID = uuid.New()
	}

	query := `
		INSERT INTO actors (id, org_id, primary_email, display_name,
			slack_id, github_id, hubspot_id, jira_id, notion_id, google_id,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := scope.Conn.Exec(ctx, query,
		actor.ID,
		actor.OrgID,
		nullIfEmpty(actor.PrimaryEmail),
		nullIfEmpty(actor.DisplayName),
		nullIfEmpty(actor.SlackID),
		nullIfEmpty(actor.GitHubID),
		nullIfEmpty(actor.HubSpotID),
		nullIfEmpty(actor.JiraID),
		nullIfEmpty(actor.NotionID),
		nullIfEmpty(actor.GoogleID),
		actor.CreatedAt,
		actor.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create actor: %w", err)
	}

	return nil
}

// GetByID retrieves an actor by ID within the org.
func (r *actorRepository) GetByID(ctx context.Context, orgID, actorID uuid.UUID) (*models.Actor, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := fmt.Sprintf(`SELECT %s FROM actors WHERE id = $1 AND org_id = $2`, actorColumns)

	actor, err := scanActor(scope.Conn.QueryRow(ctx, query, actorID, orgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get actor: %w", err)
	}
	return actor, nil
}

// FindBySourceID looks up an actor by its source-scoped external ID.
func (r *actorRepository) FindBySourceID(ctx context.Context, orgID uuid.UUID, source models.Source, externalID string) (*models.Actor, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	column, ok := sourceIDColumn[source]
	if !ok {
		return nil, apperrors.ErrInvalidSource
	}

	query := fmt.Sprintf(`SELECT %s FROM actors WHERE org_id = $1 AND %s = $2`, actorColumns, column)

	actor, err := scanActor(scope.Conn.QueryRow(ctx, query, orgID, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find actor by source id: %w", err)
	}
	return actor, nil
}

// FindByEmail looks up an actor by exact primary email match.
func (r *actorRepository) FindByEmail(ctx context.Context, orgID uuid.UUID, email string) (*models.Actor, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := fmt.Sprintf(`SELECT %s FROM actors WHERE org_id = $1 AND primary_email = $2`, actorColumns)

	actor, err := scanActor(scope.Conn.QueryRow(ctx, query, orgID, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find actor by email: %w", err)
	}
	return actor, nil
}

// FillMissingFields applies the first-writer-wins field-fill policy.
func (r *actorRepository) FillMissingFields(ctx context.Context, actorID uuid.UUID, source models.Source, hints models.ActorHints) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	column, ok := sourceIDColumn[source]
	if !ok {
		return apperrors.ErrInvalidSource
	}

	query := fmt.Sprintf(`
		UPDATE actors
		SET primary_email = COALESCE(primary_email, $1),
		    display_name = COALESCE(display_name, $2),
		    %s = COALESCE(%s, $3),
		    updated_at = $4
		WHERE id = $5`, column, column)

	_, err := scope.Conn.Exec(ctx, query,
		nullIfEmpty(hints.Email),
		nullIfEmpty(hints.DisplayName),
		nullIfEmpty(hints.ExternalID),
		time.Now(),
		actorID,
	)
	if err != nil {
		return fmt.Errorf("failed to fill actor fields: %w", err)
	}
	return nil
}

// Merge performs the three merge writes atomically. Callers validate
// existence, tenancy, and self-merge before invoking.
func (r *actorRepository) Merge(ctx context.Context, primaryID, secondaryID uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin merge transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Primary wins all conflicts; only its empty slots take secondary values.
	fill := `
		UPDATE actors p
		SET primary_email = COALESCE(p.primary_email, s.primary_email),
		    display_name = COALESCE(p.display_name, s.display_name),
		    slack_id = COALESCE(p.slack_id, s.slack_id),
		    github_id = COALESCE(p.github_id, s.github_id),
		    hubspot_id = COALESCE(p.hubspot_id, s.hubspot_id),
		    jira_id = COALESCE(p.jira_id, s.jira_id),
		    notion_id = COALESCE(p.notion_id, s.notion_id),
		    google_id = COALESCE(p.google_id, s.google_id),
		    updated_at = now()
		FROM actors s
		WHERE p.id = $1 AND s.id = $2`
	if _, err := tx.Exec(ctx, fill, primaryID, secondaryID); err != nil {
		return fmt.Errorf("failed to fill primary actor from secondary: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE universal_events SET actor_id = $1 WHERE actor_id = $2`,
		primaryID, secondaryID); err != nil {
		return fmt.Errorf("failed to reassign events: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM actors WHERE id = $1`, secondaryID); err != nil {
		return fmt.Errorf("failed to delete secondary actor: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit merge: %w", err)
	}
	return nil
}

// CountEvents returns how many universal events reference the actor.
func (r *actorRepository) CountEvents(ctx context.Context, actorID uuid.UUID) (int, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no tenant scope in context")
	}

	var count int
	err := scope.Conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM universal_events WHERE actor_id = $1`, actorID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count actor events: %w", err)
	}
	return count, nil
}

func scanActor(row pgx.Row) (*models.Actor, error) {
	var a models.Actor
	var email, name, slack, github, hubspot, jira, notion, google *string
	err := row.Scan(&a.ID, &a.OrgID, &email, &name, &slack, &github,
		&hubspot, &jira, &notion, &google, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.PrimaryEmail = deref(email)
	a.DisplayName = deref(name)
	a.SlackID = deref(slack)
	a.GitHubID = deref(github)
	a.HubSpotID = deref(hubspot)
	a.JiraID = deref(jira)
	a.NotionID = deref(notion)
	a.GoogleID = deref(google)
	return &a, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
