// Package scheduler implements Hydra's batch-to-job matching policy, active
// job concurrency cap, and the Batch_Job lifecycle hooks driven by the
// Kubernetes job watcher.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/gislas3/hydra/internal/metrics"
	"github.com/gislas3/hydra/pkg/cluster"
	"github.com/gislas3/hydra/pkg/store"
)

// Config holds the Scheduler's tunables, sourced from
// MAX_ACTIVE_K8S_JOBS and the cascade-wiring decision recorded in
// DESIGN.md.
type Config struct {
	MaxActiveJobs int64
	EnableCascade bool
}

// Scheduler is the process-wide singleton that owns batch accumulation
// policy, the active-job concurrency counter, and the lifecycle hooks
// invoked by the ingest path and the Watcher. It must be safe to invoke
// concurrently from both.
type Scheduler struct {
	store   store.Store
	adapter cluster.Adapter
	log     logr.Logger
	cfg     Config

	activeJobs atomic.Int64
}

// New constructs a Scheduler directly, bypassing the package singleton.
// Tests use this so each test gets an isolated instance.
func New(s store.Store, adapter cluster.Adapter, cfg Config, log logr.Logger) *Scheduler {
	return &Scheduler{
		store:   s,
		adapter: adapter,
		log:     log.WithName("scheduler"),
		cfg:     cfg,
	}
}

var (
	once     sync.Once
	instance *Scheduler
)

// Get returns the process-wide Scheduler, constructing it on first call.
// Subsequent calls ignore their arguments and return the existing
// instance — a concurrency-safe singleton constructor.
func Get(s store.Store, adapter cluster.Adapter, cfg Config, log logr.Logger) *Scheduler {
	once.Do(func() {
		instance = New(s, adapter, cfg, log)
	})
	return instance
}

// Reset clears the singleton handle. Tests call this between cases instead
// of leaking singleton state across them.
func Reset() {
	once = sync.Once{}
	instance = nil
}

// ActiveJobs returns the current active-job count, exported so an operator
// can observe the counter drift documented on StartJob as an acceptable
// leak.
func (s *Scheduler) ActiveJobs() int64 {
	return s.activeJobs.Load()
}

func (s *Scheduler) incrementActiveJobs() {
	s.activeJobs.Add(1)
}

// decrementActiveJobsFloor0 decrements the counter with saturation at
// zero: a CAS retry loop rather than a lock, so the ingest path and the
// Watcher can both call it without contending on a mutex.
func (s *Scheduler) decrementActiveJobsFloor0() {
	for {
		cur := s.activeJobs.Load()
		if cur <= 0 {
			return
		}
		if s.activeJobs.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// OnAddBatch drives one pass of the matching policy for batch against the
// active specs whose definition's parent is parentJobID (nil selects root
// definitions).
func (s *Scheduler) OnAddBatch(ctx context.Context, batch *store.Batch, parentJobID *int64) error {
	specs, err := s.store.JobSpecsForParent(ctx, parentJobID)
	if err != nil {
		return fmt.Errorf("on_add_batch: list specs: %w", err)
	}

	for _, spec := range specs {
		if !s.acceptsDevice(spec, batch) {
			continue
		}

		bj, err := s.AddBatchToJob(ctx, spec, batch)
		if err != nil {
			s.log.Error(err, "add_batch_to_job failed", "spec_id", spec.ID, "batch_id", batch.BatchID)
			continue
		}
		if err := s.DecideJob(ctx, bj, spec); err != nil {
			s.log.Error(err, "decide_job failed", "batch_job_id", bj.ID)
		}
	}
	return nil
}

// acceptsDevice evaluates spec's whitelist against batch.DeviceID. A
// malformed whitelist entry is logged and the whole list is treated as
// empty (accept all).
func (s *Scheduler) acceptsDevice(spec *store.JobSpec, batch *store.Batch) bool {
	whitelist, ok := s.parseWhitelist(spec)
	if !ok || len(whitelist) == 0 {
		return true
	}
	if batch.DeviceID == nil {
		return false
	}
	for _, id := range whitelist {
		if id == *batch.DeviceID {
			return true
		}
	}
	return false
}

func (s *Scheduler) parseWhitelist(spec *store.JobSpec) ([]uuid.UUID, bool) {
	if len(spec.WhitelistedDevices) == 0 {
		return nil, true
	}
	parsed := make([]uuid.UUID, 0, len(spec.WhitelistedDevices))
	for _, raw := range spec.WhitelistedDevices {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			verr := &ValidationError{
				SpecID:  spec.ID,
				Field:   "whitelisted_devices",
				Value:   raw,
				Message: "not a valid UUID, treating spec as accepting all devices",
			}
			s.log.Info(verr.Error())
			return nil, false
		}
		parsed = append(parsed, id)
	}
	return parsed, true
}

// AddBatchToJob implements the accumulation policy: the first pending
// bucket under spec's data threshold is the target; every other bucket
// encountered along the way that already meets or exceeds the threshold is
// opportunistically decided.
func (s *Scheduler) AddBatchToJob(ctx context.Context, spec *store.JobSpec, batch *store.Batch) (*store.BatchJob, error) {
	pending, err := s.store.PendingBatchJobsForSpec(ctx, spec.ID)
	if err != nil {
		return nil, fmt.Errorf("add_batch_to_job: list pending: %w", err)
	}

	var target *store.BatchJob
	for _, bj := range pending {
		count, err := s.store.BatchCountFor(ctx, bj)
		if err != nil {
			return nil, fmt.Errorf("add_batch_to_job: batch_count_for: %w", err)
		}
		if target == nil && count < spec.DataThreshold {
			target = bj
			continue
		}
		if count >= spec.DataThreshold {
			if err := s.DecideJob(ctx, bj, spec); err != nil {
				s.log.Error(err, "opportunistic decide_job failed", "batch_job_id", bj.ID)
			}
		}
	}

	if target == nil {
		target, err = s.store.CreateBatchJob(ctx, spec.ID)
		if err != nil {
			return nil, fmt.Errorf("add_batch_to_job: create_batch_job: %w", err)
		}
	}

	if err := s.store.AttachBatch(ctx, target, batch); err != nil {
		return nil, fmt.Errorf("add_batch_to_job: attach_batch: %w", err)
	}
	if err := s.store.Save(ctx, target); err != nil {
		return nil, fmt.Errorf("add_batch_to_job: save: %w", err)
	}
	return target, nil
}

// DecideJob is the admission gate: start bj iff there is spare concurrency
// and bj has reached its spec's data threshold.
func (s *Scheduler) DecideJob(ctx context.Context, bj *store.BatchJob, spec *store.JobSpec) error {
	count, err := s.store.BatchCountFor(ctx, bj)
	if err != nil {
		return fmt.Errorf("decide_job: batch_count_for: %w", err)
	}
	if s.activeJobs.Load() < s.cfg.MaxActiveJobs && count >= spec.DataThreshold {
		return s.StartJob(ctx, bj, spec)
	}
	return nil
}

// StartJob transitions bj from pending to scheduled and asks the cluster
// adapter to create the backing Kubernetes Job.
//
// active_jobs is incremented before the create_job call and is
// deliberately not decremented if that call fails: the watcher's ADDED
// event never arrives for a job that was never created, so nothing else
// would ever decrement the counter. This is a known, preserved leak rather
// than a bug fix waiting to happen — ActiveJobs() lets an operator spot
// the drift.
func (s *Scheduler) StartJob(ctx context.Context, bj *store.BatchJob, spec *store.JobSpec) error {
	bj.Scheduled = true
	if err := s.store.Save(ctx, bj); err != nil {
		return fmt.Errorf("start_job: save: %w", err)
	}

	s.incrementActiveJobs()

	def, err := s.store.JobDefinition(ctx, spec.JobDefinitionID)
	if err != nil {
		return fmt.Errorf("start_job: job_definition: %w", err)
	}
	jobName := fmt.Sprintf("%s-%d", def.Name, bj.ID)

	ids := make([]string, 0, len(bj.Batches))
	for id := range bj.Batches {
		ids = append(ids, id.String())
	}

	env := make(map[string]string, len(spec.EnvironmentVariables)+1)
	for k, v := range spec.EnvironmentVariables {
		env[k] = v
	}
	env["BATCH_IDS"] = batchIDsJoin(ids)

	reason, err := s.adapter.CreateJob(ctx, cluster.JobSpec{
		Name:               jobName,
		Namespace:          spec.Namespace,
		Env:                env,
		Image:              spec.ContainerImage,
		InitPhotoContainer: spec.InitPhotoContainer,
		Labels:             spec.K8sJobLabels,
	})
	metrics.JobsCreatedTotal.WithLabelValues(string(reason)).Inc()
	if err != nil {
		s.log.Error(err, "create_job failed, batch-job remains scheduled without a cluster counterpart",
			"job_name", jobName, "reason", reason)
		return nil
	}
	return nil
}

func batchIDsJoin(ids []string) string {
	return strings.Join(ids, ",")
}

// OnJobCreated handles the watcher's ADDED event.
func (s *Scheduler) OnJobCreated(ctx context.Context, bj *store.BatchJob) error {
	bj.Started = false
	bj.CreatedOnK8s = true
	return s.store.Save(ctx, bj)
}

// OnJobStarted handles a MODIFIED event reporting the job is now active
// without having failed or succeeded yet.
func (s *Scheduler) OnJobStarted(ctx context.Context, bj *store.BatchJob, startTime time.Time) error {
	bj.Started = true
	bj.Succeeded = false
	bj.Finished = false
	bj.TimeStarted = &startTime
	bj.Tries = 0
	return s.store.Save(ctx, bj)
}

// OnJobFailure handles a MODIFIED event reporting active pod failures.
func (s *Scheduler) OnJobFailure(ctx context.Context, bj *store.BatchJob, tries uint16) error {
	bj.Tries = tries
	s.decrementActiveJobsFloor0()
	return s.store.Save(ctx, bj)
}

// OnJobSuccess handles a MODIFIED event reporting the job completed
// successfully, and fires the parent→child cascade if this is a terminal
// success.
func (s *Scheduler) OnJobSuccess(ctx context.Context, bj *store.BatchJob) error {
	bj.Finished = true
	bj.Succeeded = true
	s.decrementActiveJobsFloor0()
	if err := s.store.Save(ctx, bj); err != nil {
		return err
	}
	return s.OnSaveBatchJobEvent(ctx, bj)
}

// OnSaveBatchJobEvent implements the parent→child cascade: for each batch
// attached to a batch-job that has just become finished and succeeded,
// re-evaluate the matching policy with parent_job set to bj's job
// definition. Gated by Config.EnableCascade, which defaults on — disabling
// it would silently break job chaining.
func (s *Scheduler) OnSaveBatchJobEvent(ctx context.Context, bj *store.BatchJob) error {
	if !s.cfg.EnableCascade {
		return nil
	}
	if !bj.Finished || !bj.Succeeded {
		return nil
	}

	spec, err := s.store.JobSpec(ctx, bj.JobSpecID)
	if err != nil {
		return fmt.Errorf("on_save_batch_job_event: job_spec: %w", err)
	}

	for batchID := range bj.Batches {
		batch, err := s.store.FindBatch(ctx, batchID)
		if err != nil {
			s.log.Error(err, "cascade: find_batch failed", "batch_id", batchID)
			continue
		}
		if err := s.OnAddBatch(ctx, batch, &spec.JobDefinitionID); err != nil {
			s.log.Error(err, "cascade: on_add_batch failed", "batch_id", batchID)
		}
	}
	return nil
}
