package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/assemblr-hq/assemblr-engine/pkg/apperrors"
	"github.com/assemblr-hq/assemblr-engine/pkg/database"
	"github.com/assemblr-hq/assemblr-engine/pkg/models"
)

// EventRepository defines the interface for raw and universal event access.
type EventRepository interface {
	CreateRaw(ctx context.Context, raw *models.RawEvent) error
	GetRawByID(ctx context.Context, orgID, rawID uuid.UUID) (*models.RawEvent, error)
	// CreateUniversal inserts a normalized event. Returns (false, nil) when a
	// universal event already references the same raw event (idempotent skip).
	CreateUniversal(ctx context.Context, event *models.UniversalEvent) (bool, error)
	// ExistsForRawEvent reports whether a universal event already references
	// the given raw event.
	ExistsForRawEvent(ctx context.Context, rawEventID uuid.UUID) (bool, error)
	// ListAnchorEvents returns all events of one (source, eventType) in the
	// org since the given time, ordered by timestamp ascending.
	ListAnchorEvents(ctx context.Context, orgID uuid.UUID, source models.Source, eventType string, since time.Time) ([]*models.UniversalEvent, error)
	// ListWindow returns up to limit events in [from, to] excluding excludeID,
	// ordered by timestamp ascending.
	ListWindow(ctx context.Context, orgID uuid.UUID, from, to time.Time, excludeID uuid.UUID, limit int) ([]*models.UniversalEvent, error)
}

// eventRepository implements EventRepository using PostgreSQL.
type eventRepository struct{}

// NewEventRepository creates a new event repository.
func NewEventRepository() EventRepository {
	return &eventRepository{}
}

// CreateRaw stores an untouched vendor record.
func (r *eventRepository) CreateRaw(ctx context.Context, raw *models.RawEvent) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if raw.ID == uuid.Nil {
		raw.ID = uuid.New()
	}
	raw.ReceivedAt = time.Now()

	payload, err := json.Marshal(raw.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal raw payload: %w", err)
	}

	_, err = scope.Conn.Exec(ctx, `
		INSERT INTO raw_events (id, org_id, source, payload, received_at)
		VALUES ($1, $2, $3, $4, $5)`,
		raw.ID, raw.OrgID, raw.Source, payload, raw.ReceivedAt)
	if err != nil {
		return fmt.Errorf("failed to create raw event: %w", err)
	}
	return nil
}

// GetRawByID retrieves a raw event by ID within the org.
func (r *eventRepository) GetRawByID(ctx context.Context, orgID, rawID uuid.UUID) (*models.RawEvent, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	var raw models.RawEvent
	var payload []byte
	err := scope.Conn.QueryRow(ctx, `
		SELECT id, org_id, source, payload, received_at
		FROM raw_events WHERE id = $1 AND org_id = $2`,
		rawID, orgID).Scan(&raw.ID, &raw.OrgID, &raw.Source, &payload, &raw.ReceivedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get raw event: %w", err)
	}

	if err := json.Unmarshal(payload, &raw.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal raw payload: %w", err)
	}
	return &raw, nil
}

// CreateUniversal inserts a normalized event, relying on the unique
// raw_event_id index for idempotency under re-delivery.
func (r *eventRepository) CreateUniversal(ctx context.Context, event *models.UniversalEvent) (bool, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return false, fmt.Errorf("no tenant scope in context")
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return false, fmt.Errorf("failed to marshal event metadata: %w", err)
	}

	result, err := scope.Conn.Exec(ctx, `
		INSERT INTO universal_events (id, org_id, source, event_type, actor_id,
			entity_type, entity_id, timestamp, metadata, raw_event_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (raw_event_id) DO NOTHING`,
		event.ID, event.OrgID, event.Source, event.EventType, event.ActorID,
		event.EntityType, event.EntityID, event.Timestamp, metadata, event.RawEventID)
	if err != nil {
		return false, fmt.Errorf("failed to create universal event: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// ExistsForRawEvent checks the idempotency marker for a raw event.
func (r *eventRepository) ExistsForRawEvent(ctx context.Context, rawEventID uuid.UUID) (bool, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return false, fmt.Errorf("no tenant scope in context")
	}

	var exists bool
	err := scope.Conn.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM universal_events WHERE raw_event_id = $1)`,
		rawEventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check raw event reference: %w", err)
	}
	return exists, nil
}

const universalEventColumns = `id, org_id, source, event_type, actor_id,
	entity_type, entity_id, timestamp, metadata, raw_event_id`

// ListAnchorEvents fetches anchor occurrences for sequence discovery.
func (r *eventRepository) ListAnchorEvents(ctx context.Context, orgID uuid.UUID, source models.Source, eventType string, since time.Time) ([]*models.UniversalEvent, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := fmt.Sprintf(`
		SELECT %s FROM universal_events
		WHERE org_id = $1 AND source = $2 AND event_type = $3 AND timestamp >= $4
		ORDER BY timestamp ASC`, universalEventColumns)

	rows, err := scope.Conn.Query(ctx, query, orgID, source, eventType, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list anchor events: %w", err)
	}
	defer rows.Close()

	return scanUniversalEvents(rows)
}

// ListWindow fetches the events following an anchor within its time window.
func (r *eventRepository) ListWindow(ctx context.Context, orgID uuid.UUID, from, to time.Time, excludeID uuid.UUID, limit int) ([]*models.UniversalEvent, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := fmt.Sprintf(`
		SELECT %s FROM universal_events
		WHERE org_id = $1 AND timestamp >= $2 AND timestamp <= $3 AND id != $4
		ORDER BY timestamp ASC
		LIMIT $5`, universalEventColumns)

	rows, err := scope.Conn.Query(ctx, query, orgID, from, to, excludeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list window events: %w", err)
	}
	defer rows.Close()

	return scanUniversalEvents(rows)
}

func scanUniversalEvents(rows pgx.Rows) ([]*models.UniversalEvent, error) {
	var events []*models.UniversalEvent
	for rows.Next() {
		var e models.UniversalEvent
		var metadata []byte
		err := rows.Scan(&e.ID, &e.OrgID, &e.Source, &e.EventType, &e.ActorID,
			&e.EntityType, &e.EntityID, &e.Timestamp, &metadata, &e.RawEventID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan universal event: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event metadata: %w", err)
			}
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read universal events: %w", err)
	}
	return events, nil
}
