package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assemblr-hq/assemblr-engine/pkg/apperrors"
	"github.com/assemblr-hq/assemblr-engine/pkg/crypto"
	"github.com/assemblr-hq/assemblr-engine/pkg/models"
	"github.com/assemblr-hq/assemblr-engine/pkg/repositories"
)

// IntegrationService manages an org's source connections. Credentials are
// encrypted before they reach the repository and only decrypted on demand.
type IntegrationService interface {
	// Connect records a source connection with encrypted credentials,
	// replacing any previous connection for the same source.
	Connect(ctx context.Context, orgID uuid.UUID, source models.Source, connectionID string, credentials map[string]any) (*models.Integration, error)

	// Disconnect moves the source's integration out of the connected state.
	Disconnect(ctx context.Context, orgID uuid.UUID, source models.Source) error

	// Credentials returns the decrypted credentials of a connected
	// integration.
	Credentials(ctx context.Context, orgID uuid.UUID, source models.Source) (map[string]any, error)
}

type integrationService struct {
	repo      repositories.IntegrationRepository
	encryptor *crypto.Encryptor
	logger    *zap.Logger
}

// NewIntegrationService creates a new IntegrationService.
func NewIntegrationService(repo repositories.IntegrationRepository, encryptor *crypto.Encryptor, logger *zap.Logger) IntegrationService {
	return &integrationService{
		repo:      repo,
		encryptor: encryptor,
		logger:    logger.Named("integrations"),
	}
}

var _ IntegrationService = (*integrationService)(nil)

// Connect upserts the integration with credentials encrypted at rest.
func (s *integrationService) Connect(ctx context.Context, orgID uuid.UUID, source models.Source, connectionID string, credentials map[string]any) (*models.Integration, error) {
	if !models.IsValidSource(source) {
		return nil, apperrors.ErrInvalidSource
	}

	var encrypted string
	if len(credentials) > 0 {
		plaintext, err := json.Marshal(credentials)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal credentials: %w", err)
		}
		encrypted, err = s.encryptor.Encrypt(string(plaintext))
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt credentials: %w", err)
		}
	}

	integration := &models.Integration{
		OrgID:                orgID,
		Source:               source,
		Status:               models.IntegrationStatusConnected,
		ConnectionID:         connectionID,
		CredentialsEncrypted: encrypted,
	}
	if err := s.repo.Upsert(ctx, integration); err != nil {
		return nil, fmt.Errorf("failed to store integration: %w", err)
	}

	s.logger.Info("Integration connected",
		zap.String("org_id", orgID.String()),
		zap.String("source", string(source)))
	return integration, nil
}

// Disconnect flips the integration's status off connected.
func (s *integrationService) Disconnect(ctx context.Context, orgID uuid.UUID, source models.Source) error {
	integration, err := s.repo.GetConnected(ctx, orgID, source)
	if err != nil {
		return fmt.Errorf("integration lookup failed: %w", err)
	}

	if err := s.repo.UpdateStatus(ctx, integration.ID, models.IntegrationStatusDisconnected); err != nil {
		return fmt.Errorf("failed to update integration status: %w", err)
	}

	s.logger.Info("Integration disconnected",
		zap.String("org_id", orgID.String()),
		zap.String("source", string(source)))
	return nil
}

// Credentials decrypts the stored credential blob.
func (s *integrationService) Credentials(ctx context.Context, orgID uuid.UUID, source models.Source) (map[string]any, error) {
	integration, err := s.repo.GetConnected(ctx, orgID, source)
	if err != nil {
		return nil, fmt.Errorf("integration lookup failed: %w", err)
	}
	if integration.CredentialsEncrypted == "" {
		return nil, nil
	}

	plaintext, err := s.encryptor.Decrypt(integration.CredentialsEncrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}

	var credentials map[string]any
	if err := json.Unmarshal([]byte(plaintext), &credentials); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credentials: %w", err)
	}
	return credentials, nil
}
