package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assemblr-hq/assemblr-engine/pkg/metrics"
	"github.com/assemblr-hq/assemblr-engine/pkg/models"
	"github.com/assemblr-hq/assemblr-engine/pkg/repositories"
)

const (
	// detectionLookback is how far back anchor occurrences are considered.
	detectionLookback = 90 * 24 * time.Hour

	// sequenceWindow is how long after an anchor follow-up events are
	// attributed to its sequence.
	sequenceWindow = 24 * time.Hour

	// maxSequenceEvents caps the follow-up events per anchor occurrence.
	maxSequenceEvents = 50

	// minSequenceSteps is the shortest follow-up sequence worth keeping.
	minSequenceSteps = 2

	// minClusterFrequency is how often a pattern must repeat before it is
	// persisted as a candidate.
	minClusterFrequency = 3
)

// anchorSpec names an event type whose occurrences start a workflow.
type anchorSpec struct {
	Source    models.Source
	EventType string
}

// detectionAnchors are the event types treated as workflow starting points.
var detectionAnchors = []anchorSpec{
	{models.SourceJira, "issue.priority_changed"},
	{models.SourceJira, "issue.status_changed"},
	{models.SourceJira, "issue.created"},
	{models.SourceHubSpot, "deal.stage_changed"},
	{models.SourceGitHub, "release.created"},
	{models.SourceGitHub, "pull_request.merged"},
	{models.SourceSlack, "message.sent"},
}

// DetectorService discovers recurring workflow patterns from the normalized
// event stream.
type DetectorService interface {
	// DetectWorkflows scans recent events for each anchor type, clusters the
	// extracted sequences, and persists sufficiently frequent patterns as
	// candidate clusters. Returns the number of clusters created. Runs are
	// not deduplicated against earlier runs.
	DetectWorkflows(ctx context.Context, orgID uuid.UUID) (int, error)
}

type detectorService struct {
	eventRepo   repositories.EventRepository
	clusterRepo repositories.ClusterRepository
	logger      *zap.Logger
}

// NewDetectorService creates a new DetectorService.
func NewDetectorService(eventRepo repositories.EventRepository, clusterRepo repositories.ClusterRepository, logger *zap.Logger) DetectorService {
	return &detectorService{
		eventRepo:   eventRepo,
		clusterRepo: clusterRepo,
		logger:      logger.Named("detector"),
	}
}

var _ DetectorService = (*detectorService)(nil)

// DetectWorkflows runs sequence extraction and clustering per anchor type.
func (s *detectorService) DetectWorkflows(ctx context.Context, orgID uuid.UUID) (int, error) {
	since := time.Now().Add(-detectionLookback)
	created := 0

	for _, anchor := range detectionAnchors {
		sequences, err := s.extractSequences(ctx, orgID, anchor, since)
		if err != nil {
			return created, fmt.Errorf("sequence extraction for %s %s failed: %w",
				anchor.Source, anchor.EventType, err)
		}
		if len(sequences) == 0 {
			continue
		}

		for _, cluster := range clusterSequences(sequences) {
			if cluster.Frequency < minClusterFrequency {
				continue
			}
			err := s.clusterRepo.Create(ctx, &models.WorkflowCluster{
				OrgID:           orgID,
				AnchorSource:    anchor.Source,
				AnchorEventType: anchor.EventType,
				EventSequence:   cluster.Sequence,
				Frequency:       cluster.Frequency,
				EntropyScore:    cluster.Entropy,
				ConfidenceScore: cluster.Confidence,
				Status:          models.ClusterStatusCandidate,
			})
			if err != nil {
				return created, fmt.Errorf("failed to persist cluster: %w", err)
			}
			created++
			metrics.ClustersCreated.Inc()
		}
	}

	s.logger.Info("workflow detection completed",
		zap.String("org_id", orgID.String()),
		zap.Int("clusters_created", created))
	return created, nil
}

// extractSequences builds one step sequence per anchor occurrence: the
// events inside the anchor's forward window, in timestamp order, excluding
// the anchor itself.
func (s *detectorService) extractSequences(ctx context.Context, orgID uuid.UUID, anchor anchorSpec, since time.Time) ([][]models.SequenceStep, error) {
	anchors, err := s.eventRepo.ListAnchorEvents(ctx, orgID, anchor.Source, anchor.EventType, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list anchors: %w", err)
	}

	var sequences [][]models.SequenceStep
	for _, a := range anchors {
		window, err := s.eventRepo.ListWindow(ctx, orgID, a.Timestamp,
			a.Timestamp.Add(sequenceWindow), a.ID, maxSequenceEvents)
		if err != nil {
			return nil, fmt.Errorf("failed to list window events: %w", err)
		}

		seq := make([]models.SequenceStep, 0, len(window))
		for _, e := range window {
			seq = append(seq, models.SequenceStep{Source: e.Source, EventType: e.EventType})
		}
		if len(seq) < minSequenceSteps {
			continue
		}
		sequences = append(sequences, seq)
	}
	return sequences, nil
}
