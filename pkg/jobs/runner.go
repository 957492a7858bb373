package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"go.uber.org/zap"

	"github.com/assemblr-hq/assemblr-engine/pkg/config"
	"github.com/assemblr-hq/assemblr-engine/pkg/database"
	"github.com/assemblr-hq/assemblr-engine/pkg/models"
)

// Runner errors.
var (
	ErrRunnerNotStarted     = errors.New("runner not started")
	ErrRunnerAlreadyStarted = errors.New("runner already started")
)

const shutdownTimeout = 30 * time.Second

// Runner owns the River client: it registers the workers, runs the queue,
// and exposes typed enqueue helpers.
type Runner struct {
	db     *database.DB
	deps   *WorkerDeps
	cfg    *config.WorkerConfig
	logger *zap.Logger

	client  *river.Client[pgx.Tx]
	started bool
	mu      sync.Mutex
}

// NewRunner creates a Runner. Start must be called before enqueueing.
func NewRunner(db *database.DB, deps *WorkerDeps, cfg *config.WorkerConfig, logger *zap.Logger) *Runner {
	return &Runner{
		db:     db,
		deps:   deps,
		cfg:    cfg,
		logger: logger.Named("jobs"),
	}
}

// Start registers workers and starts the River client.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return ErrRunnerAlreadyStarted
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &backfillWorker{deps: r.deps})
	river.AddWorker(workers, &normalizeWorker{deps: r.deps})
	river.AddWorker(workers, &detectWorker{deps: r.deps})
	river.AddWorker(workers, &compileWorker{deps: r.deps})
	river.AddWorker(workers, &nightlyWorker{runner: r})

	var periodic []*river.PeriodicJob
	if r.cfg.NightlyDetection {
		periodic = append(periodic, river.NewPeriodicJob(
			river.PeriodicInterval(24*time.Hour),
			func() (river.JobArgs, *river.InsertOpts) {
				return NightlyArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: false},
		))
	}

	client, err := river.NewClient(riverpgxv5.New(r.db.Pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: r.cfg.Concurrency},
		},
		Workers:      workers,
		PeriodicJobs: periodic,
	})
	if err != nil {
		return fmt.Errorf("create river client: %w", err)
	}

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("start river client: %w", err)
	}

	r.client = client
	r.started = true
	r.logger.Info("job runner started",
		zap.Int("max_workers", r.cfg.Concurrency),
		zap.Float64("rate_per_second", r.cfg.RatePerSecond))
	return nil
}

// Stop drains in-flight jobs and shuts the client down.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := r.client.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop river client: %w", err)
	}
	r.started = false
	r.logger.Info("job runner stopped")
	return nil
}

func (r *Runner) insert(ctx context.Context, args river.JobArgs) error {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return ErrRunnerNotStarted
	}

	if _, err := r.client.Insert(ctx, args, nil); err != nil {
		return fmt.Errorf("insert %s job: %w", args.Kind(), err)
	}
	return nil
}

// EnqueueBackfill schedules a full historical sync for one integration.
func (r *Runner) EnqueueBackfill(ctx context.Context, orgID uuid.UUID, source models.Source) error {
	return r.insert(ctx, BackfillArgs{OrgID: orgID, Source: source})
}

// EnqueueIncrementalSync schedules a since-last-sync fetch.
func (r *Runner) EnqueueIncrementalSync(ctx context.Context, orgID uuid.UUID, source models.Source) error {
	return r.insert(ctx, BackfillArgs{OrgID: orgID, Source: source, Incremental: true})
}

// EnqueueNormalize schedules normalization of stored raw events.
func (r *Runner) EnqueueNormalize(ctx context.Context, orgID uuid.UUID, rawEventIDs []uuid.UUID) error {
	return r.insert(ctx, NormalizeArgs{OrgID: orgID, RawEventIDs: rawEventIDs})
}

// EnqueueDetect schedules a workflow detection pass for one org.
func (r *Runner) EnqueueDetect(ctx context.Context, orgID uuid.UUID) error {
	return r.insert(ctx, DetectArgs{OrgID: orgID})
}

// EnqueueCompile schedules compilation of one candidate cluster.
func (r *Runner) EnqueueCompile(ctx context.Context, orgID, clusterID uuid.UUID, name string) error {
	return r.insert(ctx, CompileArgs{OrgID: orgID, ClusterID: clusterID, Name: name})
}

// nightlyWorker fans a detection job out to every org. It queries orgs
// without a tenant scope; detection itself runs org-scoped in the fanned-out
// jobs.
type nightlyWorker struct {
	river.WorkerDefaults[NightlyArgs]
	runner *Runner
}

func (w *nightlyWorker) Work(ctx context.Context, job *river.Job[NightlyArgs]) error {
	rows, err := w.runner.db.Pool.Query(ctx, `SELECT id FROM orgs ORDER BY created_at`)
	if err != nil {
		return fmt.Errorf("list orgs: %w", err)
	}
	defer rows.Close()

	var orgIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan org id: %w", err)
		}
		orgIDs = append(orgIDs, id)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read orgs: %w", err)
	}

	for _, orgID := range orgIDs {
		if err := w.runner.EnqueueDetect(ctx, orgID); err != nil {
			return err
		}
	}
	w.runner.logger.Info("nightly detection fanned out", zap.Int("orgs", len(orgIDs)))
	return nil
}
