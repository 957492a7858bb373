package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assemblr-hq/assemblr-engine/pkg/adapters"
	"github.com/assemblr-hq/assemblr-engine/pkg/models"
	"github.com/assemblr-hq/assemblr-engine/pkg/repositories"
)

// BackfillResult summarizes one backfill run.
type BackfillResult struct {
	PagesFetched int
	RawStored    int
	Normalized   int
}

// BackfillService ingests historical and incremental activity from a
// source through its adapter, storing raw events and normalizing inline.
type BackfillService interface {
	// Run pages through the source's history from the saved cursor. The
	// cursor is persisted after every page, so a crashed run resumes from
	// the last completed page. Delivery is at-least-once; normalization
	// idempotency absorbs duplicates.
	Run(ctx context.Context, orgID uuid.UUID, source models.Source) (*BackfillResult, error)

	// RunIncremental ingests activity since the integration's last sync.
	RunIncremental(ctx context.Context, orgID uuid.UUID, source models.Source) (*BackfillResult, error)
}

type backfillService struct {
	registry        adapters.Registry
	integrationRepo repositories.IntegrationRepository
	eventRepo       repositories.EventRepository
	normalizer      NormalizerService
	logger          *zap.Logger
}

// NewBackfillService creates a new BackfillService.
func NewBackfillService(
	registry adapters.Registry,
	integrationRepo repositories.IntegrationRepository,
	eventRepo repositories.EventRepository,
	normalizer NormalizerService,
	logger *zap.Logger,
) BackfillService {
	return &backfillService{
		registry:        registry,
		integrationRepo: integrationRepo,
		eventRepo:       eventRepo,
		normalizer:      normalizer,
		logger:          logger.Named("backfill"),
	}
}

var _ BackfillService = (*backfillService)(nil)

// Run implements the cursor-checkpointed backfill loop.
func (s *backfillService) Run(ctx context.Context, orgID uuid.UUID, source models.Source) (*BackfillResult, error) {
	adapter := s.registry.Get(source)
	if adapter == nil {
		return nil, fmt.Errorf("no adapter for source %s", source)
	}

	integration, err := s.integrationRepo.GetConnected(ctx, orgID, source)
	if err != nil {
		return nil, fmt.Errorf("integration lookup failed: %w", err)
	}

	result := &BackfillResult{}
	cursor := integration.SyncCursor

	for {
		page, err := adapter.FetchBackfill(ctx, integration.ConnectionID, cursor)
		if err != nil {
			return nil, fmt.Errorf("fetch page failed: %w", err)
		}
		result.PagesFetched++

		if err := s.ingestPage(ctx, orgID, source, page.Events, result); err != nil {
			return nil, err
		}

		cursor = page.NextCursor
		if err := s.integrationRepo.SaveCursor(ctx, integration.ID, cursor, time.Now()); err != nil {
			return nil, fmt.Errorf("cursor save failed: %w", err)
		}

		if !page.HasMore || len(page.Events) == 0 {
			break
		}
	}

	s.logger.Info("Backfill complete",
		zap.String("org_id", orgID.String()),
		zap.String("source", string(source)),
		zap.Int("pages", result.PagesFetched),
		zap.Int("normalized", result.Normalized))
	return result, nil
}

// RunIncremental ingests one batch of recent activity.
func (s *backfillService) RunIncremental(ctx context.Context, orgID uuid.UUID, source models.Source) (*BackfillResult, error) {
	adapter := s.registry.Get(source)
	if adapter == nil {
		return nil, fmt.Errorf("no adapter for source %s", source)
	}

	integration, err := s.integrationRepo.GetConnected(ctx, orgID, source)
	if err != nil {
		return nil, fmt.Errorf("integration lookup failed: %w", err)
	}

	since := integration.CreatedAt
	if integration.LastSyncAt != nil {
		since = *integration.LastSyncAt
	}

	page, err := adapter.FetchIncremental(ctx, integration.ConnectionID, since)
	if err != nil {
		return nil, fmt.Errorf("incremental fetch failed: %w", err)
	}

	result := &BackfillResult{PagesFetched: 1}
	if err := s.ingestPage(ctx, orgID, source, page.Events, result); err != nil {
		return nil, err
	}

	if err := s.integrationRepo.SaveCursor(ctx, integration.ID, integration.SyncCursor, time.Now()); err != nil {
		return nil, fmt.Errorf("sync time save failed: %w", err)
	}
	return result, nil
}

func (s *backfillService) ingestPage(ctx context.Context, orgID uuid.UUID, source models.Source, events []adapters.RawExternalEvent, result *BackfillResult) error {
	for _, rawEvent := range events {
		raw := &models.RawEvent{
			OrgID:   orgID,
			Source:  source,
			Payload: adapters.EncodeEnvelope(rawEvent),
		}
		if err := s.eventRepo.CreateRaw(ctx, raw); err != nil {
			return fmt.Errorf("raw event store failed: %w", err)
		}
		result.RawStored++

		event, err := s.normalizer.Normalize(ctx, orgID, rawEvent, raw.ID, source)
		if err != nil {
			return fmt.Errorf("normalize failed: %w", err)
		}
		if event != nil {
			result.Normalized++
		}
	}
	return nil
}
