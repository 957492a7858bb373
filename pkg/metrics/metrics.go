// Package metrics exposes Prometheus instrumentation for the ingestion
// and intelligence pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "assemblr"

var (
	// EventsNormalized counts universal events created, by source.
	EventsNormalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_normalized_total",
		Help:      "Universal events created by normalization.",
	}, []string{"source"})

	// EventsDropped counts raw events with no canonical mapping, by source.
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Raw events dropped for lack of a canonical mapping.",
	}, []string{"source"})

	// EventsSkipped counts idempotent re-delivery skips.
	EventsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_skipped_total",
		Help:      "Normalizations skipped because the raw event was already processed.",
	})

	// ActorsCreated counts new actor records.
	ActorsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "actors_created_total",
		Help:      "Actors created by identity resolution.",
	})

	// ActorsMerged counts explicit actor merges.
	ActorsMerged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "actors_merged_total",
		Help:      "Actor pairs merged.",
	})

	// ClustersCreated counts persisted workflow clusters.
	ClustersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "clusters_created_total",
		Help:      "Workflow clusters persisted by detection.",
	})

	// SkillsCompiled counts compiled skills.
	SkillsCompiled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "skills_compiled_total",
		Help:      "Skills compiled from workflow clusters.",
	})

	// JobDuration observes job execution time by job kind.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Job execution duration by kind.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 3, 10),
	}, []string{"kind", "status"})
)
