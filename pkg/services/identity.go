package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assemblr-hq/assemblr-engine/pkg/apperrors"
	"github.com/assemblr-hq/assemblr-engine/pkg/metrics"
	"github.com/assemblr-hq/assemblr-engine/pkg/models"
	"github.com/assemblr-hq/assemblr-engine/pkg/repositories"
)

// IdentityService resolves and reconciles actor identities across sources.
type IdentityService interface {
	// ResolveActor returns the actor matching the hints, creating one when
	// nothing matches. Match priority: source-scoped external ID, then exact
	// email. On a match, empty fields are filled from the hints; populated
	// fields are never overwritten.
	ResolveActor(ctx context.Context, orgID uuid.UUID, source models.Source, hints models.ActorHints) (uuid.UUID, error)

	// MergeActors folds secondary into primary: primary's empty slots take
	// secondary's values, secondary's events move to primary, and secondary
	// is deleted. Irreversible.
	MergeActors(ctx context.Context, orgID, primaryID, secondaryID uuid.UUID) error
}

type identityService struct {
	actorRepo repositories.ActorRepository
	logger    *zap.Logger
}

// NewIdentityService creates a new IdentityService.
func NewIdentityService(actorRepo repositories.ActorRepository, logger *zap.Logger) IdentityService {
	return &identityService{
		actorRepo: actorRepo,
		logger:    logger.Named("identity"),
	}
}

var _ IdentityService = (*identityService)(nil)

// ResolveActor implements the first-match-wins resolution order.
func (s *identityService) ResolveActor(ctx context.Context, orgID uuid.UUID, source models.Source, hints models.ActorHints) (uuid.UUID, error) {
	if !models.IsValidSource(source) {
		return uuid.Nil, apperrors.ErrInvalidSource
	}

	if hints.ExternalID != "" {
		actor, err := s.actorRepo.FindBySourceID(ctx, orgID, source, hints.ExternalID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("source id lookup failed: %w", err)
		}
		if actor != nil {
			return actor.ID, s.actorRepo.FillMissingFields(ctx, actor.ID, source, hints)
		}
	}

	if hints.Email != "" {
		actor, err := s.actorRepo.FindByEmail(ctx, orgID, hints.Email)
		if err != nil {
			return uuid.Nil, fmt.Errorf("email lookup failed: %w", err)
		}
		if actor != nil {
			return actor.ID, s.actorRepo.FillMissingFields(ctx, actor.ID, source, hints)
		}
	}

	actor := &models.Actor{
		OrgID:        orgID,
		PrimaryEmail: hints.Email,
		DisplayName:  hints.DisplayName,
	}
	actor.SetSourceID(source, hints.ExternalID)

	err := s.actorRepo.Create(ctx, actor)
	if errors.Is(err, apperrors.ErrConflict) {
		// Lost a creation race: another resolution claimed one of the
		// identity slots between our lookup and insert. The unique index is
		// the serialization point, so re-resolve against the winner.
		s.logger.Debug("actor creation lost race, re-resolving",
			zap.String("org_id", orgID.String()),
			zap.String("source", string(source)))
		return s.reResolve(ctx, orgID, source, hints)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("actor creation failed: %w", err)
	}

	metrics.ActorsCreated.Inc()
	return actor.ID, nil
}

// reResolve retries the lookups after a creation conflict. One of them must
// hit the row that won the race.
func (s *identityService) reResolve(ctx context.Context, orgID uuid.UUID, source models.Source, hints models.ActorHints) (uuid.UUID, error) {
	if hints.ExternalID != "" {
		actor, err := s.actorRepo.FindBySourceID(ctx, orgID, source, hints.ExternalID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("source id re-lookup failed: %w", err)
		}
		if actor != nil {
			return actor.ID, s.actorRepo.FillMissingFields(ctx, actor.ID, source, hints)
		}
	}
	if hints.Email != "" {
		actor, err := s.actorRepo.FindByEmail(ctx, orgID, hints.Email)
		if err != nil {
			return uuid.Nil, fmt.Errorf("email re-lookup failed: %w", err)
		}
		if actor != nil {
			return actor.ID, s.actorRepo.FillMissingFields(ctx, actor.ID, source, hints)
		}
	}
	return uuid.Nil, fmt.Errorf("actor conflict with no matching row: %w", apperrors.ErrConflict)
}

// MergeActors validates then delegates the atomic three-way write.
func (s *identityService) MergeActors(ctx context.Context, orgID, primaryID, secondaryID uuid.UUID) error {
	if primaryID == secondaryID {
		return apperrors.ErrSelfMerge
	}

	primary, err := s.actorRepo.GetByID(ctx, orgID, primaryID)
	if err != nil {
		return fmt.Errorf("primary actor: %w", err)
	}
	secondary, err := s.actorRepo.GetByID(ctx, orgID, secondaryID)
	if err != nil {
		return fmt.Errorf("secondary actor: %w", err)
	}

	if primary.OrgID != orgID || secondary.OrgID != orgID || primary.OrgID != secondary.OrgID {
		return apperrors.ErrCrossTenant
	}

	if err := s.actorRepo.Merge(ctx, primaryID, secondaryID); err != nil {
		return fmt.Errorf("merge failed: %w", err)
	}

	metrics.ActorsMerged.Inc()
	s.logger.Info("Merged actors",
		zap.String("org_id", orgID.String()),
		zap.String("primary_id", primaryID.String()),
		zap.String("secondary_id", secondaryID.String()))
	return nil
}
