package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assemblr-hq/assemblr-engine/pkg/adapters"
	"github.com/assemblr-hq/assemblr-engine/pkg/metrics"
	"github.com/assemblr-hq/assemblr-engine/pkg/models"
	"github.com/assemblr-hq/assemblr-engine/pkg/repositories"
)

// NormalizerService turns raw vendor events into universal events.
type NormalizerService interface {
	// Normalize maps one raw event through its adapter, resolves the actor,
	// and persists the universal event. Returns (nil, nil) when the vendor
	// type has no canonical mapping (expected drop) or when the raw event
	// was already normalized (idempotent re-delivery).
	Normalize(ctx context.Context, orgID uuid.UUID, raw adapters.RawExternalEvent, rawEventID uuid.UUID, source models.Source) (*models.UniversalEvent, error)
}

type normalizerService struct {
	registry  adapters.Registry
	eventRepo repositories.EventRepository
	identity  IdentityService
	logger    *zap.Logger
}

// NewNormalizerService creates a new NormalizerService.
func NewNormalizerService(
	registry adapters.Registry,
	eventRepo repositories.EventRepository,
	identity IdentityService,
	logger *zap.Logger,
) NormalizerService {
	return &normalizerService{
		registry:  registry,
		eventRepo: eventRepo,
		identity:  identity,
		logger:    logger.Named("normalizer"),
	}
}

var _ NormalizerService = (*normalizerService)(nil)

// Normalize performs at most one actor upsert and one event insert.
func (s *normalizerService) Normalize(ctx context.Context, orgID uuid.UUID, raw adapters.RawExternalEvent, rawEventID uuid.UUID, source models.Source) (*models.UniversalEvent, error) {
	adapter := s.registry.Get(source)
	if adapter == nil {
		return nil, fmt.Errorf("no adapter for source %s", source)
	}

	input := adapter.NormalizeRaw(orgID, raw, rawEventID)
	if input == nil {
		// Unmapped vendor types are an expected outcome, not an error.
		metrics.EventsDropped.WithLabelValues(string(source)).Inc()
		s.logger.Debug("Dropped unmapped vendor event",
			zap.String("source", string(source)),
			zap.String("vendor_type", raw.Type))
		return nil, nil
	}

	exists, err := s.eventRepo.ExistsForRawEvent(ctx, rawEventID)
	if err != nil {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	}
	if exists {
		metrics.EventsSkipped.Inc()
		return nil, nil
	}

	var actorID *uuid.UUID
	if !input.ActorHints.Empty() {
		id, err := s.identity.ResolveActor(ctx, orgID, source, input.ActorHints)
		if err != nil {
			return nil, fmt.Errorf("actor resolution failed: %w", err)
		}
		actorID = &id
	}

	event := &models.UniversalEvent{
		OrgID:      input.OrgID,
		Source:     input.Source,
		EventType:  input.EventType,
		ActorID:    actorID,
		EntityType: input.EntityType,
		EntityID:   input.EntityID,
		Timestamp:  input.Timestamp,
		Metadata:   input.Metadata,
		RawEventID: input.RawEventID,
	}

	inserted, err := s.eventRepo.CreateUniversal(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("event insert failed: %w", err)
	}
	if !inserted {
		// A concurrent delivery won the insert between our check and write.
		metrics.EventsSkipped.Inc()
		return nil, nil
	}

	metrics.EventsNormalized.WithLabelValues(string(source)).Inc()
	return event, nil
}
