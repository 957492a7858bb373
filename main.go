package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/assemblr-hq/assemblr-engine/pkg/adapters"
	"github.com/assemblr-hq/assemblr-engine/pkg/apperrors"
	"github.com/assemblr-hq/assemblr-engine/pkg/config"
	"github.com/assemblr-hq/assemblr-engine/pkg/crypto"
	"github.com/assemblr-hq/assemblr-engine/pkg/database"
	"github.com/assemblr-hq/assemblr-engine/pkg/jobs"
	"github.com/assemblr-hq/assemblr-engine/pkg/models"
	"github.com/assemblr-hq/assemblr-engine/pkg/repositories"
	"github.com/assemblr-hq/assemblr-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting assemblr-engine",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.URL(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	if err := database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = sqlDB.Close()

	credKey := cfg.CredentialsKey
	if credKey == "" {
		// Validate guarantees a key outside local.
		credKey = "local-dev-credentials"
	}
	encryptor, err := crypto.New(credKey)
	if err != nil {
		logger.Fatal("Failed to create credential encryptor", zap.Error(err))
	}

	composio := adapters.NewComposioClient(cfg.Composio.BaseURL, cfg.Composio.APIKey)
	registry := adapters.NewRegistry(composio)

	actorRepo := repositories.NewActorRepository()
	eventRepo := repositories.NewEventRepository()
	clusterRepo := repositories.NewClusterRepository()
	skillRepo := repositories.NewSkillRepository()
	integrationRepo := repositories.NewIntegrationRepository()

	scopes := database.NewTenantScopeProvider(db)

	integrations := services.NewIntegrationService(integrationRepo, encryptor, logger)
	identity := services.NewIdentityService(actorRepo, logger)
	normalizer := services.NewNormalizerService(registry, eventRepo, identity, logger)
	backfill := services.NewBackfillService(registry, integrationRepo, eventRepo, normalizer, logger)
	detector := services.NewDetectorService(eventRepo, clusterRepo, logger)
	compiler := services.NewCompilerService(clusterRepo, skillRepo, logger)

	runner := jobs.NewRunner(db, &jobs.WorkerDeps{
		Scopes:     scopes,
		Backfill:   backfill,
		Normalizer: normalizer,
		Detector:   detector,
		Compiler:   compiler,
		EventRepo:  eventRepo,
		Limiter:    rate.NewLimiter(rate.Limit(cfg.Worker.RatePerSecond), 1),
		Logger:     logger,
	}, &cfg.Worker, logger)

	if err := runner.Start(ctx); err != nil {
		logger.Fatal("Failed to start job runner", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	// Operational endpoint for connecting a source; the listener binds to
	// localhost by default and carries no auth of its own.
	mux.HandleFunc("POST /internal/integrations", connectIntegrationHandler(scopes, integrations, runner, logger))

	server := &http.Server{Addr: cfg.HealthAddr, Handler: mux}
	go func() {
		logger.Info("Health endpoint listening", zap.String("addr", cfg.HealthAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Health server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := runner.Stop(shutdownCtx); err != nil {
		logger.Error("Job runner shutdown failed", zap.Error(err))
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Health server shutdown failed", zap.Error(err))
	}
}

// connectIntegrationHandler records a source connection and kicks off its
// backfill.
func connectIntegrationHandler(scopes *database.TenantScopeProvider, integrations services.IntegrationService, runner *jobs.Runner, logger *zap.Logger) http.HandlerFunc {
	type request struct {
		OrgID        uuid.UUID      `json:"org_id"`
		Source       models.Source  `json:"source"`
		ConnectionID string         `json:"connection_id"`
		Credentials  map[string]any `json:"credentials,omitempty"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.OrgID == uuid.Nil || req.Source == "" {
			http.Error(w, "org_id and source are required", http.StatusBadRequest)
			return
		}

		ctx, cleanup, err := scopes.WithTenantScope(r.Context(), req.OrgID)
		if err != nil {
			logger.Error("Failed to open tenant scope", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		defer cleanup()

		integration, err := integrations.Connect(ctx, req.OrgID, req.Source, req.ConnectionID, req.Credentials)
		if err != nil {
			if errors.Is(err, apperrors.ErrInvalidSource) {
				http.Error(w, "unsupported source", http.StatusBadRequest)
				return
			}
			logger.Error("Failed to connect integration", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		if err := runner.EnqueueBackfill(r.Context(), req.OrgID, req.Source); err != nil {
			logger.Error("Failed to enqueue backfill", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"integration_id": integration.ID.String(),
			"status":         integration.Status,
		})
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
