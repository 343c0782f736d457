// Package watcher runs the long-lived background task that consumes
// Hydra's namespace job-event stream and drives the Scheduler's lifecycle
// hooks.
package watcher

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	apiwatch "k8s.io/apimachinery/pkg/watch"

	"github.com/gislas3/hydra/internal/metrics"
	"github.com/gislas3/hydra/pkg/cluster"
	"github.com/gislas3/hydra/pkg/store"
)

// lifecycle is the subset of Scheduler the Watcher drives. Passing the
// Scheduler in at construction (rather than the reverse) avoids a cyclic
// reference: the Scheduler never needs a handle to the Watcher.
type lifecycle interface {
	OnJobCreated(ctx context.Context, bj *store.BatchJob) error
	OnJobStarted(ctx context.Context, bj *store.BatchJob, startTime time.Time) error
	OnJobFailure(ctx context.Context, bj *store.BatchJob, tries uint16) error
	OnJobSuccess(ctx context.Context, bj *store.BatchJob) error
}

// Watcher is the background task started iff WATCH_K8S=true.
type Watcher struct {
	adapter   cluster.Adapter
	store     store.Store
	scheduler lifecycle
	log       logr.Logger

	namespace      string
	timeout        time.Duration
	requestTimeout time.Duration
	backoff        time.Duration
}

// Config holds the watcher's namespace and stream-lifetime settings,
// sourced from WATCH_K8S_NAMESPACE, WATCH_K8S_TIMEOUT and
// WATCH_K8S_REQUEST_TIMEOUT.
type Config struct {
	Namespace      string
	Timeout        time.Duration
	RequestTimeout time.Duration
	// Backoff is the sleep between a stream's termination and reopening
	// it. Defaults to one second if zero.
	Backoff time.Duration
}

// New constructs a Watcher over adapter and store, driving scheduler's
// lifecycle hooks.
func New(adapter cluster.Adapter, s store.Store, scheduler lifecycle, cfg Config, log logr.Logger) *Watcher {
	backoff := cfg.Backoff
	if backoff == 0 {
		backoff = time.Second
	}
	return &Watcher{
		adapter:        adapter,
		store:          s,
		scheduler:      scheduler,
		log:            log.WithName("watcher"),
		namespace:      cfg.Namespace,
		timeout:        cfg.Timeout,
		requestTimeout: cfg.RequestTimeout,
		backoff:        backoff,
	}
}

// Run is the outer retry loop: it opens the event stream, processes it
// until it closes (server timeout, disconnect, or ctx cancellation), logs,
// sleeps a short backoff, and reopens — terminating only when ctx is
// canceled.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		events, err := w.adapter.WatchJobs(ctx, w.namespace, w.timeout, w.requestTimeout)
		if err != nil {
			w.log.Error(err, "failed to open job watch stream, retrying", "namespace", w.namespace)
			if !sleepOrDone(ctx, w.backoff) {
				return
			}
			continue
		}

		w.consume(ctx, events)

		w.log.Info("job watch stream closed, reopening", "namespace", w.namespace)
		if !sleepOrDone(ctx, w.backoff) {
			return
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func (w *Watcher) consume(ctx context.Context, events <-chan cluster.JobEvent) {
	for ev := range events {
		w.handle(ctx, ev)
	}
}

// handle classifies one event by (type, active, succeeded, failed) and
// invokes the matching lifecycle hook.
func (w *Watcher) handle(ctx context.Context, ev cluster.JobEvent) {
	job := ev.Object
	batchJobID, ok := parseBatchJobID(job.Name)
	if !ok {
		w.log.Info("job name does not carry a parseable batch-job id, ignoring", "job_name", job.Name)
		return
	}

	bj, err := w.store.FindBatchJob(ctx, batchJobID)
	if err != nil {
		w.log.Info("orphan job event for unknown batch-job, ignoring", "job_name", job.Name, "batch_job_id", batchJobID)
		return
	}

	active := job.Status.Active
	succeeded := job.Status.Succeeded
	failed := job.Status.Failed

	switch ev.Type {
	case apiwatch.Added:
		if !bj.Started {
			metrics.WatcherEventsTotal.WithLabelValues("on_job_created").Inc()
			if err := w.scheduler.OnJobCreated(ctx, bj); err != nil {
				w.log.Error(err, "on_job_created failed", "batch_job_id", batchJobID)
			}
		}
	case apiwatch.Modified:
		switch {
		case active == 1 && failed > 0:
			metrics.WatcherEventsTotal.WithLabelValues("on_job_failure").Inc()
			if err := w.scheduler.OnJobFailure(ctx, bj, uint16(failed)); err != nil {
				w.log.Error(err, "on_job_failure failed", "batch_job_id", batchJobID)
			}
		case active == 1 && succeeded == 0:
			startTime := time.Now()
			if job.Status.StartTime != nil {
				startTime = job.Status.StartTime.Time
			} else {
				startTime = job.CreationTimestamp.Time
			}
			metrics.WatcherEventsTotal.WithLabelValues("on_job_started").Inc()
			if err := w.scheduler.OnJobStarted(ctx, bj, startTime); err != nil {
				w.log.Error(err, "on_job_started failed", "batch_job_id", batchJobID)
			}
		case active == 0 && succeeded == 1:
			// Kubernetes may redeliver the same event; re-checking
			// existence before completing makes the second delivery a
			// no-op instead of a double delete.
			exists, err := w.adapter.JobExists(ctx, job.Name, job.Namespace)
			if err != nil {
				w.log.Error(err, "job_exists check failed", "job_name", job.Name)
				return
			}
			if !exists {
				return
			}
			metrics.WatcherEventsTotal.WithLabelValues("on_job_success").Inc()
			if err := w.scheduler.OnJobSuccess(ctx, bj); err != nil {
				w.log.Error(err, "on_job_success failed", "batch_job_id", batchJobID)
				return
			}
			if err := w.adapter.DeleteJob(ctx, job.Name, job.Namespace); err != nil {
				w.log.Error(err, "delete_job failed after success", "job_name", job.Name)
			}
		}
	default:
		// DELETED and bookmark/error events carry no lifecycle transition.
	}
}

// parseBatchJobID implements the job-name grammar:
// <job_definition.name>-<batch_job.id>, the id being the last
// hyphen-separated token parsed as an integer.
func parseBatchJobID(jobName string) (int64, bool) {
	idx := strings.LastIndex(jobName, "-")
	if idx < 0 || idx == len(jobName)-1 {
		return 0, false
	}
	id, err := strconv.ParseInt(jobName[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
