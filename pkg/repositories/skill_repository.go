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

// SkillRepository defines the interface for skill and skill version access.
type SkillRepository interface {
	// CreateWithVersion atomically creates the skill, its first version, and
	// flips the source cluster to compiled. All three writes succeed or none do.
	CreateWithVersion(ctx context.Context, skill *models.Skill, version *models.SkillVersion, clusterID uuid.UUID) error
	GetByID(ctx context.Context, skillID uuid.UUID) (*models.Skill, error)
	// GetLatestVersion returns the version flagged latest, or
	// apperrors.ErrNoLatestVersion if none exists.
	GetLatestVersion(ctx context.Context, skillID uuid.UUID) (*models.SkillVersion, error)
	// InsertNextVersion atomically unflags the current latest version and
	// inserts the given version as the new latest.
	InsertNextVersion(ctx context.Context, version *models.SkillVersion) error
	ListVersions(ctx context.Context, skillID uuid.UUID) ([]*models.SkillVersion, error)
}

// skillRepository implements SkillRepository using PostgreSQL.
type skillRepository struct{}

// NewSkillRepository creates a new skill repository.
func NewSkillRepository() SkillRepository {
	return &skillRepository{}
}

// CreateWithVersion performs the compiler's atomic three-way write.
func (r *skillRepository) CreateWithVersion(ctx context.Context, skill *models.Skill, version *models.SkillVersion, clusterID uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	now := time.Now()
	if skill.ID == uuid.Nil {
		skill.ID = uuid.New()
	}
	skill.CreatedAt = now
	skill.UpdatedAt = now
	if version.ID == uuid.Nil {
		version.ID = uuid.New()
	}
	version.SkillID = skill.ID
	version.CreatedAt = now

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin compile transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO skills (id, org_id, name, description, cluster_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		skill.ID, skill.OrgID, skill.Name, skill.Description, skill.ClusterID,
		skill.Status, skill.CreatedAt, skill.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create skill: %w", err)
	}

	if err := insertVersion(ctx, tx, version); err != nil {
		return err
	}

	result, err := tx.Exec(ctx, `
		UPDATE workflow_clusters SET status = $1 WHERE id = $2 AND status = $3`,
		models.ClusterStatusCompiled, clusterID, models.ClusterStatusCandidate)
	if err != nil {
		return fmt.Errorf("failed to update cluster status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("cluster %s is not a candidate: %w", clusterID, apperrors.ErrConflict)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit compile transaction: %w", err)
	}
	return nil
}

// GetByID retrieves a skill by primary key. Ownership is checked by callers
// so cross-tenant access can be reported distinctly from absence.
func (r *skillRepository) GetByID(ctx context.Context, skillID uuid.UUID) (*models.Skill, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	var s models.Skill
	var description *string
	err := scope.Conn.QueryRow(ctx, `
		SELECT id, org_id, name, description, cluster_id, status, created_at, updated_at
		FROM skills WHERE id = $1`,
		skillID).Scan(&s.ID, &s.OrgID, &s.Name, &description, &s.ClusterID,
		&s.Status, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get skill: %w", err)
	}
	s.Description = deref(description)
	return &s, nil
}

const versionColumns = `id, skill_id, version, is_latest, trigger, nodes, edges, conditions, metadata, created_at`

// GetLatestVersion retrieves the skill's latest version.
func (r *skillRepository) GetLatestVersion(ctx context.Context, skillID uuid.UUID) (*models.SkillVersion, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := fmt.Sprintf(`SELECT %s FROM skill_versions WHERE skill_id = $1 AND is_latest`, versionColumns)

	version, err := scanVersion(scope.Conn.QueryRow(ctx, query, skillID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNoLatestVersion
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest version: %w", err)
	}
	return version, nil
}

// InsertNextVersion performs the atomic latest flip for version creation.
func (r *skillRepository) InsertNextVersion(ctx context.Context, version *models.SkillVersion) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if version.ID == uuid.Nil {
		version.ID = uuid.New()
	}
	version.IsLatest = true
	version.CreatedAt = time.Now()

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin version transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`UPDATE skill_versions SET is_latest = false WHERE skill_id = $1 AND is_latest`,
		version.SkillID)
	if err != nil {
		return fmt.Errorf("failed to unflag latest version: %w", err)
	}

	if err := insertVersion(ctx, tx, version); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit version transaction: %w", err)
	}
	return nil
}

// ListVersions retrieves all versions of a skill, oldest first.
func (r *skillRepository) ListVersions(ctx context.Context, skillID uuid.UUID) ([]*models.SkillVersion, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := fmt.Sprintf(`SELECT %s FROM skill_versions WHERE skill_id = $1 ORDER BY version ASC`, versionColumns)

	rows, err := scope.Conn.Query(ctx, query, skillID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []*models.SkillVersion
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read versions: %w", err)
	}
	return versions, nil
}

func insertVersion(ctx context.Context, tx pgx.Tx, v *models.SkillVersion) error {
	trigger, err := json.Marshal(v.Trigger)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger: %w", err)
	}
	nodes, err := json.Marshal(v.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}
	edges, err := json.Marshal(v.Edges)
	if err != nil {
		return fmt.Errorf("failed to marshal edges: %w", err)
	}
	conditions, err := json.Marshal(v.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}
	metadata, err := json.Marshal(v.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO skill_versions (id, skill_id, version, is_latest, trigger,
			nodes, edges, conditions, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		v.ID, v.SkillID, v.Version, v.IsLatest, trigger, nodes, edges, conditions,
		metadata, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert skill version: %w", err)
	}
	return nil
}

func scanVersion(row pgx.Row) (*models.SkillVersion, error) {
	var v models.SkillVersion
	var trigger, nodes, edges, conditions, metadata []byte
	err := row.Scan(&v.ID, &v.SkillID, &v.Version, &v.IsLatest, &trigger,
		&nodes, &edges, &conditions, &metadata, &v.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(trigger, &v.Trigger); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger: %w", err)
	}
	if err := json.Unmarshal(nodes, &v.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal(edges, &v.Edges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
	}
	if err := json.Unmarshal(conditions, &v.Conditions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &v.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &v, nil
}
