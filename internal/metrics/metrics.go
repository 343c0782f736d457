// Package metrics wires Hydra's Prometheus registry and counters, grounded
// on the registration style internal/operator/controllers uses for its
// reconciler metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is Hydra's own Prometheus registry rather than the global
// default, so tests can construct isolated instances.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// ActiveJobs is set from Scheduler.ActiveJobs() once, when the serve
	// command starts; it is not updated as jobs later start or finish.
	ActiveJobs = factory.NewGauge(prometheus.GaugeOpts{
		Name: "hydra_scheduler_active_jobs",
		Help: "Count of jobs the scheduler considered active at server start.",
	})

	// WatcherEventsTotal counts job-watch events by classified outcome.
	WatcherEventsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "hydra_watcher_events_total",
		Help: "Total job-watch events processed, by lifecycle hook invoked.",
	}, []string{"hook"})

	// BatchesIngestedTotal counts batches accepted by the ingest endpoint.
	BatchesIngestedTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "hydra_batches_ingested_total",
		Help: "Total batches accepted via POST /api/batches/, by create-or-update outcome.",
	}, []string{"outcome"})

	// JobsCreatedTotal counts Kubernetes Jobs created, by cluster-adapter
	// result classification.
	JobsCreatedTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "hydra_jobs_created_total",
		Help: "Total CreateJob calls, by result reason.",
	}, []string{"reason"})

	// batchJobsVideosTotal is hard-coded to job_spec="1": a known fragility
	// carried forward from the source system rather than fixed, since it
	// sits in the out-of-scope metrics surface.
	batchJobsVideosTotal = factory.NewGauge(prometheus.GaugeOpts{
		Name:        "hydra_batch_jobs_videos_total",
		Help:        "Video batch-job count for job_spec 1 only; does not generalize to other specs.",
		ConstLabels: prometheus.Labels{"job_spec": "1"},
	})
)

// SetBatchJobsVideosTotal updates the job_spec="1" gauge. Callers for any
// other job spec have nowhere to report to — this is the limitation being
// preserved, not an oversight.
func SetBatchJobsVideosTotal(count float64) {
	batchJobsVideosTotal.Set(count)
}
