package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assemblr-hq/assemblr-engine/pkg/apperrors"
	"github.com/assemblr-hq/assemblr-engine/pkg/metrics"
	"github.com/assemblr-hq/assemblr-engine/pkg/models"
	"github.com/assemblr-hq/assemblr-engine/pkg/repositories"
)

const (
	// optionalSequenceLength and optionalMaxFrequency together mark
	// long-tail steps of weakly-observed patterns as optional.
	optionalSequenceLength = 5
	optionalMaxFrequency   = 5

	nodeLaneX     = 300
	nodeBaseY     = 100
	nodeYSpacing  = 120
	parallelIDLen = 8
)

// CompileResult summarizes what CompileSkill produced.
type CompileResult struct {
	SkillID      uuid.UUID `json:"skillId"`
	VersionID    uuid.UUID `json:"versionId"`
	NodesCreated int       `json:"nodesCreated"`
	EdgesCreated int       `json:"edgesCreated"`
}

// ConditionRule inspects a cluster and yields any inferred execution
// conditions. Rules are deliberately shallow pattern matches; replace or
// extend the slice rather than deepening individual rules.
type ConditionRule func(cluster *models.WorkflowCluster) []models.SkillCondition

// priorityConditionRule yields priority = "P1" for each sequence step whose
// event type carries a priority marker.
func priorityConditionRule(cluster *models.WorkflowCluster) []models.SkillCondition {
	var conditions []models.SkillCondition
	for _, step := range cluster.EventSequence {
		if strings.Contains(step.EventType, "P1") || strings.Contains(step.EventType, "priority") {
			conditions = append(conditions, models.SkillCondition{
				ID:       uuid.New(),
				Field:    "priority",
				Operator: "eq",
				Value:    "P1",
			})
		}
	}
	return conditions
}

var defaultConditionRules = []ConditionRule{priorityConditionRule}

// CompilerService turns candidate workflow clusters into executable skill
// graphs and manages skill versioning.
type CompilerService interface {
	// CompileSkill synthesizes a skill graph from a candidate cluster and
	// persists skill, first version, and the cluster's status flip in one
	// transaction. An empty name gets a default derived from the anchor.
	CompileSkill(ctx context.Context, orgID, clusterID uuid.UUID, name string) (*CompileResult, error)

	// CreateNewVersion clones the latest version verbatim as version N+1 and
	// flips the latest flag atomically.
	CreateNewVersion(ctx context.Context, orgID, skillID uuid.UUID) (uuid.UUID, error)

	// ExportVersion projects the latest version into the flat export form.
	ExportVersion(ctx context.Context, orgID, skillID uuid.UUID) (*models.SkillExport, error)
}

type compilerService struct {
	clusterRepo repositories.ClusterRepository
	skillRepo   repositories.SkillRepository
	rules       []ConditionRule
	logger      *zap.Logger
}

// NewCompilerService creates a new CompilerService with the default
// condition rules.
func NewCompilerService(clusterRepo repositories.ClusterRepository, skillRepo repositories.SkillRepository, logger *zap.Logger) CompilerService {
	return &compilerService{
		clusterRepo: clusterRepo,
		skillRepo:   skillRepo,
		rules:       defaultConditionRules,
		logger:      logger.Named("compiler"),
	}
}

var _ CompilerService = (*compilerService)(nil)

// CompileSkill implements cluster-to-graph compilation.
func (s *compilerService) CompileSkill(ctx context.Context, orgID, clusterID uuid.UUID, name string) (*CompileResult, error) {
	cluster, err := s.clusterRepo.GetByID(ctx, clusterID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cluster: %w", err)
	}
	if cluster.OrgID != orgID {
		return nil, apperrors.ErrCrossTenant
	}

	nodes := buildNodes(cluster)
	edges := buildEdges(nodes)

	var conditions []models.SkillCondition
	for _, rule := range s.rules {
		conditions = append(conditions, rule(cluster)...)
	}

	if name == "" {
		name = fmt.Sprintf("Workflow: %s.%s", cluster.AnchorSource, cluster.AnchorEventType)
	}

	skill := &models.Skill{
		ID:        uuid.New(),
		OrgID:     orgID,
		Name:      name,
		ClusterID: &cluster.ID,
		Status:    models.SkillStatusDraft,
		Description: fmt.Sprintf("Compiled from a workflow pattern observed %d times (confidence %.2f)",
			cluster.Frequency, cluster.ConfidenceScore),
	}
	version := &models.SkillVersion{
		ID:       uuid.New(),
		SkillID:  skill.ID,
		Version:  1,
		IsLatest: true,
		Trigger: models.SkillTrigger{
			Source:     cluster.AnchorSource,
			EventType:  cluster.AnchorEventType,
			Conditions: map[string]any{},
		},
		Nodes:      nodes,
		Edges:      edges,
		Conditions: conditions,
	}

	if err := s.skillRepo.CreateWithVersion(ctx, skill, version, cluster.ID); err != nil {
		return nil, fmt.Errorf("failed to persist compiled skill: %w", err)
	}
	metrics.SkillsCompiled.Inc()
	s.logger.Info("skill compiled",
		zap.String("org_id", orgID.String()),
		zap.String("skill_id", skill.ID.String()),
		zap.String("cluster_id", cluster.ID.String()),
		zap.Int("nodes", len(nodes)),
		zap.Int("edges", len(edges)))

	return &CompileResult{
		SkillID:      skill.ID,
		VersionID:    version.ID,
		NodesCreated: len(nodes),
		EdgesCreated: len(edges),
	}, nil
}

// buildNodes lays the cluster's sequence out on a fixed vertical lane and
// tags adjacent cross-source pairs with a shared parallel group.
func buildNodes(cluster *models.WorkflowCluster) []models.SkillNode {
	seq := cluster.EventSequence
	markOptional := len(seq) > optionalSequenceLength && cluster.Frequency < optionalMaxFrequency

	nodes := make([]models.SkillNode, len(seq))
	for i, step := range seq {
		nodes[i] = models.SkillNode{
			ID:         uuid.New(),
			Label:      fmt.Sprintf("%s: %s", step.Source, step.EventType),
			Source:     step.Source,
			EventType:  step.EventType,
			IsOptional: markOptional,
			Position:   models.NodePosition{X: nodeLaneX, Y: nodeBaseY + nodeYSpacing*i},
			Metadata:   map[string]any{},
		}
	}

	for i := 1; i < len(nodes); i++ {
		if nodes[i].Source == nodes[i-1].Source {
			continue
		}
		if nodes[i-1].ParallelGroup != "" {
			continue
		}
		group := uuid.New().String()[:parallelIDLen]
		nodes[i-1].ParallelGroup = group
		nodes[i].ParallelGroup = group
	}
	return nodes
}

// buildEdges connects consecutive nodes, skipping pairs that are parallel
// siblings.
func buildEdges(nodes []models.SkillNode) []models.SkillEdge {
	var edges []models.SkillEdge
	for i := 0; i < len(nodes)-1; i++ {
		if nodes[i].ParallelGroup != "" && nodes[i].ParallelGroup == nodes[i+1].ParallelGroup {
			continue
		}
		edges = append(edges, models.SkillEdge{
			ID:           uuid.New(),
			SourceNodeID: nodes[i].ID,
			TargetNodeID: nodes[i+1].ID,
		})
	}
	return edges
}

// CreateNewVersion implements verbatim version cloning.
func (s *compilerService) CreateNewVersion(ctx context.Context, orgID, skillID uuid.UUID) (uuid.UUID, error) {
	skill, err := s.skillRepo.GetByID(ctx, skillID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to load skill: %w", err)
	}
	if skill.OrgID != orgID {
		return uuid.Nil, apperrors.ErrCrossTenant
	}

	latest, err := s.skillRepo.GetLatestVersion(ctx, skillID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to load latest version: %w", err)
	}

	next := *latest
	next.ID = uuid.New()
	next.Version = latest.Version + 1
	next.IsLatest = true
	next.CreatedAt = time.Time{}

	if err := s.skillRepo.InsertNextVersion(ctx, &next); err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert new version: %w", err)
	}
	s.logger.Info("skill version created",
		zap.String("skill_id", skillID.String()),
		zap.Int("version", next.Version))
	return next.ID, nil
}

// ExportVersion implements the read-only export projection.
func (s *compilerService) ExportVersion(ctx context.Context, orgID, skillID uuid.UUID) (*models.SkillExport, error) {
	skill, err := s.skillRepo.GetByID(ctx, skillID)
	if err != nil {
		return nil, fmt.Errorf("failed to load skill: %w", err)
	}
	if skill.OrgID != orgID {
		return nil, apperrors.ErrCrossTenant
	}

	latest, err := s.skillRepo.GetLatestVersion(ctx, skillID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest version: %w", err)
	}

	return &models.SkillExport{
		SkillID:    skill.ID,
		Name:       skill.Name,
		Version:    latest.Version,
		Trigger:    latest.Trigger,
		Nodes:      latest.Nodes,
		Edges:      latest.Edges,
		Conditions: latest.Conditions,
		Metadata:   latest.Metadata,
		ExportedAt: time.Now().UTC(),
	}, nil
}
