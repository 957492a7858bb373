// Package jobs defines the durable background work units of the pipeline
// and the River runner that executes them. Each job is one synchronous
// service invocation scoped to a single org; concurrency comes from running
// jobs in parallel, never from threading inside one invocation.
package jobs

import (
	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/assemblr-hq/assemblr-engine/pkg/models"
)

// Job kind constants for River job registration.
const (
	JobKindBackfill  = "assemblr.backfill"
	JobKindNormalize = "assemblr.normalize"
	JobKindDetect    = "assemblr.detect"
	JobKindCompile   = "assemblr.compile"
	JobKindNightly   = "assemblr.nightly_detect"
)

// BackfillArgs runs a historical or incremental sync for one integration.
type BackfillArgs struct {
	OrgID  uuid.UUID     `json:"org_id"`
	Source models.Source `json:"source"`

	// Incremental fetches only activity since the last sync instead of
	// paging through full history.
	Incremental bool `json:"incremental"`
}

// Kind implements river.JobArgs.
func (BackfillArgs) Kind() string { return JobKindBackfill }

// InsertOpts implements river.JobArgsWithInsertOpts.
func (BackfillArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 3}
}

// NormalizeArgs re-normalizes stored raw events. This is the path for
// events that arrive outside an adapter fetch loop, such as webhook
// deliveries persisted by an ingress process.
type NormalizeArgs struct {
	OrgID       uuid.UUID   `json:"org_id"`
	RawEventIDs []uuid.UUID `json:"raw_event_ids"`
}

// Kind implements river.JobArgs.
func (NormalizeArgs) Kind() string { return JobKindNormalize }

// InsertOpts implements river.JobArgsWithInsertOpts.
func (NormalizeArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 3}
}

// DetectArgs runs one workflow detection pass for an org.
type DetectArgs struct {
	OrgID uuid.UUID `json:"org_id"`
}

// Kind implements river.JobArgs.
func (DetectArgs) Kind() string { return JobKindDetect }

// InsertOpts implements river.JobArgsWithInsertOpts.
func (DetectArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 3}
}

// CompileArgs compiles one candidate cluster into a skill.
type CompileArgs struct {
	OrgID     uuid.UUID `json:"org_id"`
	ClusterID uuid.UUID `json:"cluster_id"`
	Name      string    `json:"name,omitempty"`
}

// Kind implements river.JobArgs.
func (CompileArgs) Kind() string { return JobKindCompile }

// InsertOpts implements river.JobArgsWithInsertOpts.
func (CompileArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 3}
}

// NightlyArgs fans out a detection job per org. Inserted by the periodic
// scheduler, never by callers.
type NightlyArgs struct{}

// Kind implements river.JobArgs.
func (NightlyArgs) Kind() string { return JobKindNightly }

// InsertOpts implements river.JobArgsWithInsertOpts.
func (NightlyArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 3}
}
