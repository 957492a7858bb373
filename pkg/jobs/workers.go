package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/assemblr-hq/assemblr-engine/pkg/adapters"
	"github.com/assemblr-hq/assemblr-engine/pkg/database"
	"github.com/assemblr-hq/assemblr-engine/pkg/metrics"
	"github.com/assemblr-hq/assemblr-engine/pkg/repositories"
	"github.com/assemblr-hq/assemblr-engine/pkg/services"
)

// WorkerDeps bundles what every worker needs: org scoping, the services,
// and the shared rate limiter that caps job starts across all workers.
type WorkerDeps struct {
	Scopes     *database.TenantScopeProvider
	Backfill   services.BackfillService
	Normalizer services.NormalizerService
	Detector   services.DetectorService
	Compiler   services.CompilerService
	EventRepo  repositories.EventRepository
	Limiter    *rate.Limiter
	Logger     *zap.Logger
}

// runScoped waits on the global rate limiter, opens a tenant scope for the
// org, runs fn inside it, and records the job's duration.
func (d *WorkerDeps) runScoped(ctx context.Context, kind string, orgID uuid.UUID, fn func(ctx context.Context) error) error {
	if err := d.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	start := time.Now()
	scopedCtx, cleanup, err := d.Scopes.WithTenantScope(ctx, orgID)
	if err != nil {
		metrics.JobDuration.WithLabelValues(kind, "error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("open tenant scope: %w", err)
	}
	defer cleanup()

	err = fn(scopedCtx)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.JobDuration.WithLabelValues(kind, status).Observe(time.Since(start).Seconds())
	return err
}

// backfillWorker runs integration syncs.
type backfillWorker struct {
	river.WorkerDefaults[BackfillArgs]
	deps *WorkerDeps
}

func (w *backfillWorker) Work(ctx context.Context, job *river.Job[BackfillArgs]) error {
	args := job.Args
	return w.deps.runScoped(ctx, JobKindBackfill, args.OrgID, func(ctx context.Context) error {
		var (
			result *services.BackfillResult
			err    error
		)
		if args.Incremental {
			result, err = w.deps.Backfill.RunIncremental(ctx, args.OrgID, args.Source)
		} else {
			result, err = w.deps.Backfill.Run(ctx, args.OrgID, args.Source)
		}
		if err != nil {
			return err
		}
		w.deps.Logger.Debug("backfill job finished",
			zap.String("org_id", args.OrgID.String()),
			zap.String("source", string(args.Source)),
			zap.Int("raw_stored", result.RawStored),
			zap.Int("normalized", result.Normalized))
		return nil
	})
}

// normalizeWorker re-normalizes raw events persisted outside a fetch loop.
type normalizeWorker struct {
	river.WorkerDefaults[NormalizeArgs]
	deps *WorkerDeps
}

func (w *normalizeWorker) Work(ctx context.Context, job *river.Job[NormalizeArgs]) error {
	args := job.Args
	return w.deps.runScoped(ctx, JobKindNormalize, args.OrgID, func(ctx context.Context) error {
		for _, rawID := range args.RawEventIDs {
			raw, err := w.deps.EventRepo.GetRawByID(ctx, args.OrgID, rawID)
			if err != nil {
				return fmt.Errorf("load raw event %s: %w", rawID, err)
			}
			external := adapters.DecodeEnvelope(raw.Payload)
			if _, err := w.deps.Normalizer.Normalize(ctx, args.OrgID, external, raw.ID, raw.Source); err != nil {
				return fmt.Errorf("normalize raw event %s: %w", rawID, err)
			}
		}
		return nil
	})
}

// detectWorker runs a workflow detection pass.
type detectWorker struct {
	river.WorkerDefaults[DetectArgs]
	deps *WorkerDeps
}

func (w *detectWorker) Work(ctx context.Context, job *river.Job[DetectArgs]) error {
	args := job.Args
	return w.deps.runScoped(ctx, JobKindDetect, args.OrgID, func(ctx context.Context) error {
		_, err := w.deps.Detector.DetectWorkflows(ctx, args.OrgID)
		return err
	})
}

// compileWorker compiles one cluster into a skill.
type compileWorker struct {
	river.WorkerDefaults[CompileArgs]
	deps *WorkerDeps
}

func (w *compileWorker) Work(ctx context.Context, job *river.Job[CompileArgs]) error {
	args := job.Args
	return w.deps.runScoped(ctx, JobKindCompile, args.OrgID, func(ctx context.Context) error {
		_, err := w.deps.Compiler.CompileSkill(ctx, args.OrgID, args.ClusterID, args.Name)
		return err
	})
}
