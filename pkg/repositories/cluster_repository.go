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

// ClusterRepository defines the interface for workflow cluster data access.
type ClusterRepository interface {
	Create(ctx context.Context, cluster *models.WorkflowCluster) error
	GetByID(ctx context.Context, clusterID uuid.UUID) (*models.WorkflowCluster, error)
	ListByOrg(ctx context.Context, orgID uuid.UUID, status string) ([]*models.WorkflowCluster, error)
}

// clusterRepository implements ClusterRepository using PostgreSQL.
type clusterRepository struct{}

// NewClusterRepository creates a new workflow cluster repository.
func NewClusterRepository() ClusterRepository {
	return &clusterRepository{}
}

// Create persists a newly discovered cluster.
func (r *clusterRepository) Create(ctx context.Context, cluster *models.WorkflowCluster) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if cluster.ID == uuid.Nil {
		cluster.ID = uuid.New()
	}
	cluster.CreatedAt = time.Now()
	if cluster.Status == "" {
		cluster.Status = models.ClusterStatusCandidate
	}

	sequence, err := json.Marshal(cluster.EventSequence)
	if err != nil {
		return fmt.Errorf("failed to marshal event sequence: %w", err)
	}

	_, err = scope.Conn.Exec(ctx, `
		INSERT INTO workflow_clusters (id, org_id, anchor_source, anchor_event_type,
			event_sequence, frequency, entropy_score, confidence_score, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		cluster.ID, cluster.OrgID, cluster.AnchorSource, cluster.AnchorEventType,
		sequence, cluster.Frequency, cluster.EntropyScore, cluster.ConfidenceScore,
		cluster.Status, cluster.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create workflow cluster: %w", err)
	}
	return nil
}

// GetByID retrieves a cluster by ID. The org ownership check belongs to the
// caller: clusters are fetched by primary key and compared against the
// requesting org so cross-tenant access can be reported distinctly.
func (r *clusterRepository) GetByID(ctx context.Context, clusterID uuid.UUID) (*models.WorkflowCluster, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	var c models.WorkflowCluster
	var sequence []byte
	err := scope.Conn.QueryRow(ctx, `
		SELECT id, org_id, anchor_source, anchor_event_type, event_sequence,
			frequency, entropy_score, confidence_score, status, created_at
		FROM workflow_clusters WHERE id = $1`,
		clusterID).Scan(&c.ID, &c.OrgID, &c.AnchorSource, &c.AnchorEventType,
		&sequence, &c.Frequency, &c.EntropyScore, &c.ConfidenceScore, &c.Status, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow cluster: %w", err)
	}

	if err := json.Unmarshal(sequence, &c.EventSequence); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event sequence: %w", err)
	}
	return &c, nil
}

// ListByOrg retrieves clusters for an org, optionally filtered by status.
func (r *clusterRepository) ListByOrg(ctx context.Context, orgID uuid.UUID, status string) ([]*models.WorkflowCluster, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, org_id, anchor_source, anchor_event_type, event_sequence,
			frequency, entropy_score, confidence_score, status, created_at
		FROM workflow_clusters
		WHERE org_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY confidence_score DESC, created_at DESC`

	rows, err := scope.Conn.Query(ctx, query, orgID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow clusters: %w", err)
	}
	defer rows.Close()

	var clusters []*models.WorkflowCluster
	for rows.Next() {
		var c models.WorkflowCluster
		var sequence []byte
		err := rows.Scan(&c.ID, &c.OrgID, &c.AnchorSource, &c.AnchorEventType,
			&sequence, &c.Frequency, &c.EntropyScore, &c.ConfidenceScore, &c.Status, &c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow cluster: %w", err)
		}
		if err := json.Unmarshal(sequence, &c.EventSequence); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event sequence: %w", err)
		}
		clusters = append(clusters, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read workflow clusters: %w", err)
	}
	return clusters, nil
}
