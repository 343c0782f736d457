package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"

	"github.com/gislas3/hydra/pkg/cluster"
	"github.com/gislas3/hydra/pkg/store"
)

// fakeAdapter records CreateJob/DeleteJob calls without touching a real or
// fake Kubernetes API, keeping these tests focused on the matching policy.
type fakeAdapter struct {
	mu          sync.Mutex
	createCalls []cluster.JobSpec
	deleteCalls []string
	createErr   error
}

func (f *fakeAdapter) CreateJob(ctx context.Context, spec cluster.JobSpec) (cluster.Reason, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls = append(f.createCalls, spec)
	if f.createErr != nil {
		return cluster.ReasonOther, f.createErr
	}
	return cluster.ReasonCreated, nil
}

func (f *fakeAdapter) DeleteJob(ctx context.Context, name, namespace string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls = append(f.deleteCalls, name)
	return nil
}

func (f *fakeAdapter) JobExists(ctx context.Context, name, namespace string) (bool, error) {
	return true, nil
}

func (f *fakeAdapter) JobStatus(ctx context.Context, name, namespace string) (cluster.JobStatus, error) {
	return cluster.JobStatusActive, nil
}

func (f *fakeAdapter) CleanupJobsWithState(ctx context.Context, namespace string, state cluster.CleanupState, labelSelector string) ([]string, error) {
	return nil, nil
}

func (f *fakeAdapter) ListPods(ctx context.Context, namespace, labelSelector string) ([]corev1.Pod, error) {
	return nil, nil
}

func (f *fakeAdapter) WatchJobs(ctx context.Context, namespace string, timeout, requestTimeout time.Duration) (<-chan cluster.JobEvent, error) {
	ch := make(chan cluster.JobEvent)
	close(ch)
	return ch, nil
}

func (f *fakeAdapter) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.createCalls)
}

func newTestScheduler(t *testing.T, s store.Store, maxActive int64) (*Scheduler, *fakeAdapter) {
	t.Helper()
	a := &fakeAdapter{}
	sched := New(s, a, Config{MaxActiveJobs: maxActive, EnableCascade: true}, logr.Discard())
	return sched, a
}

func mustSpec(t *testing.T, s store.Store, defID int64, threshold uint32, whitelist []string) *store.JobSpec {
	t.Helper()
	spec, err := s.CreateJobSpec(context.Background(), &store.JobSpec{
		JobDefinitionID:    defID,
		Active:             true,
		DataThreshold:      threshold,
		Namespace:          "ns",
		ContainerImage:     "img",
		WhitelistedDevices: whitelist,
	})
	require.NoError(t, err)
	return spec
}

func postBatch(t *testing.T, ctx context.Context, s store.Store, region string, deviceID *uuid.UUID) *store.Batch {
	t.Helper()
	b := &store.Batch{BatchID: uuid.New(), Region: region, DeviceID: deviceID}
	_, err := s.CreateBatch(ctx, b)
	require.NoError(t, err)
	return b
}

// S1: accumulation, no whitelist.
func TestScenario_S1_Accumulation(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.CreateRegion(ctx, &store.Region{Code: "r1"}))
	def, err := s.CreateJobDefinition(ctx, &store.JobDefinition{Name: "proc"})
	require.NoError(t, err)
	spec := mustSpec(t, s, def.ID, 3, nil)

	sched, adapter := newTestScheduler(t, s, 10)

	for i := 0; i < 3; i++ {
		b := postBatch(t, ctx, s, "r1", nil)
		require.NoError(t, sched.OnAddBatch(ctx, b, nil))
	}

	pending, err := s.PendingBatchJobsForSpec(ctx, spec.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 0, "the single batch-job should have transitioned to scheduled")

	all, err := s.ListBatchJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Scheduled)
	assert.Len(t, all[0].Batches, 3)
	assert.Equal(t, 1, adapter.createCount())
}

// S2: whitelist rejects.
func TestScenario_S2_WhitelistRejects(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.CreateRegion(ctx, &store.Region{Code: "r1"}))
	def, err := s.CreateJobDefinition(ctx, &store.JobDefinition{Name: "proc"})
	require.NoError(t, err)

	d1 := uuid.New()
	d2 := uuid.New()

	specA := mustSpec(t, s, def.ID, 3, nil)
	specB := mustSpec(t, s, def.ID, 3, []string{d1.String()})

	sched, _ := newTestScheduler(t, s, 10)

	for i := 0; i < 4; i++ {
		b := postBatch(t, ctx, s, "r1", &d2)
		require.NoError(t, sched.OnAddBatch(ctx, b, nil))
	}

	all, err := s.ListBatchJobs(ctx)
	require.NoError(t, err)

	var forA, forB []*store.BatchJob
	for _, bj := range all {
		if bj.JobSpecID == specA.ID {
			forA = append(forA, bj)
		}
		if bj.JobSpecID == specB.ID {
			forB = append(forB, bj)
		}
	}

	require.Len(t, forA, 2)
	require.Len(t, forB, 0)

	scheduledCount, pendingCount := 0, 0
	for _, bj := range forA {
		if bj.Scheduled {
			scheduledCount++
			assert.Len(t, bj.Batches, 3)
		} else {
			pendingCount++
			assert.Len(t, bj.Batches, 1)
		}
	}
	assert.Equal(t, 1, scheduledCount)
	assert.Equal(t, 1, pendingCount)
}

// S3: whitelist accepts.
func TestScenario_S3_WhitelistAccepts(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.CreateRegion(ctx, &store.Region{Code: "r1"}))
	def, err := s.CreateJobDefinition(ctx, &store.JobDefinition{Name: "proc"})
	require.NoError(t, err)

	d1 := uuid.New()

	specA := mustSpec(t, s, def.ID, 3, nil)
	specB := mustSpec(t, s, def.ID, 3, []string{d1.String()})

	sched, _ := newTestScheduler(t, s, 10)

	for i := 0; i < 4; i++ {
		b := postBatch(t, ctx, s, "r1", &d1)
		require.NoError(t, sched.OnAddBatch(ctx, b, nil))
	}

	for _, specID := range []int64{specA.ID, specB.ID} {
		var bjs []*store.BatchJob
		all, err := s.ListBatchJobs(ctx)
		require.NoError(t, err)
		for _, bj := range all {
			if bj.JobSpecID == specID {
				bjs = append(bjs, bj)
			}
		}
		require.Len(t, bjs, 2)
	}
}

// S4: concurrency cap.
func TestScenario_S4_ConcurrencyCap(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.CreateRegion(ctx, &store.Region{Code: "r1"}))
	def, err := s.CreateJobDefinition(ctx, &store.JobDefinition{Name: "proc"})
	require.NoError(t, err)
	mustSpec(t, s, def.ID, 1, nil)

	sched, _ := newTestScheduler(t, s, 2)

	for i := 0; i < 5; i++ {
		b := postBatch(t, ctx, s, "r1", nil)
		require.NoError(t, sched.OnAddBatch(ctx, b, nil))
	}

	all, err := s.ListBatchJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 5)

	scheduled := 0
	for _, bj := range all {
		if bj.Scheduled {
			scheduled++
		}
	}
	assert.Equal(t, 2, scheduled)
	assert.EqualValues(t, 2, sched.ActiveJobs())
}

// S5: watcher success cascade.
func TestScenario_S5_SuccessCascade(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.CreateRegion(ctx, &store.Region{Code: "r1"}))

	parentDef, err := s.CreateJobDefinition(ctx, &store.JobDefinition{Name: "parent"})
	require.NoError(t, err)
	childDef, err := s.CreateJobDefinition(ctx, &store.JobDefinition{Name: "child", ParentJobID: &parentDef.ID})
	require.NoError(t, err)

	mustSpec(t, s, parentDef.ID, 1, nil)
	mustSpec(t, s, childDef.ID, 1, nil)

	sched, adapter := newTestScheduler(t, s, 10)

	b := postBatch(t, ctx, s, "r1", nil)
	require.NoError(t, sched.OnAddBatch(ctx, b, nil))

	all, err := s.ListBatchJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	parentBJ := all[0]
	require.True(t, parentBJ.Scheduled)

	require.NoError(t, sched.OnJobCreated(ctx, parentBJ))
	require.NoError(t, sched.OnJobStarted(ctx, parentBJ, time.Now()))
	require.NoError(t, sched.OnJobSuccess(ctx, parentBJ))

	updated, err := s.FindBatchJob(ctx, parentBJ.ID)
	require.NoError(t, err)
	assert.True(t, updated.Finished)
	assert.True(t, updated.Succeeded)

	all, err = s.ListBatchJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	var childBJ *store.BatchJob
	for _, bj := range all {
		if bj.ID != parentBJ.ID {
			childBJ = bj
		}
	}
	require.NotNil(t, childBJ)
	assert.True(t, childBJ.Scheduled)
	assert.Len(t, childBJ.Batches, 1)

	assert.Equal(t, 0, len(adapter.deleteCalls), "scheduler itself never deletes; that is the watcher's job")
}

// S6: re-POST is update — exercised at the store level since Houston
// notification and the HTTP envelope live in internal/api.
func TestScenario_S6_RepostIsUpdate(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.CreateRegion(ctx, &store.Region{Code: "r1"}))

	id := uuid.New()
	created, err := s.CreateBatch(ctx, &store.Batch{BatchID: id, Region: "r1"})
	require.NoError(t, err)
	assert.True(t, created)

	first, err := s.FindBatch(ctx, id)
	require.NoError(t, err)

	created, err = s.CreateBatch(ctx, &store.Batch{BatchID: id, Region: "r1"})
	require.NoError(t, err)
	assert.False(t, created)

	second, err := s.FindBatch(ctx, id)
	require.NoError(t, err)
	assert.True(t, !second.UpdatedAt.Before(first.UpdatedAt))

	all, err := s.ListBatchJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 0)
}

func TestOnJobFailure_DecrementsFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	def, err := s.CreateJobDefinition(ctx, &store.JobDefinition{Name: "proc"})
	require.NoError(t, err)
	spec := mustSpec(t, s, def.ID, 1, nil)
	bj, err := s.CreateBatchJob(ctx, spec.ID)
	require.NoError(t, err)

	sched, _ := newTestScheduler(t, s, 10)
	require.NoError(t, sched.OnJobFailure(ctx, bj, 1))
	assert.EqualValues(t, 0, sched.ActiveJobs())
}

func TestAcceptsDevice_MalformedWhitelistTreatedAsEmpty(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.CreateRegion(ctx, &store.Region{Code: "r1"}))
	def, err := s.CreateJobDefinition(ctx, &store.JobDefinition{Name: "proc"})
	require.NoError(t, err)
	spec := mustSpec(t, s, def.ID, 1, []string{"not-a-uuid"})

	sched, adapter := newTestScheduler(t, s, 10)
	b := postBatch(t, ctx, s, "r1", nil)
	require.NoError(t, sched.OnAddBatch(ctx, b, nil))

	pending, err := s.PendingBatchJobsForSpec(ctx, spec.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 0)
	assert.Equal(t, 1, adapter.createCount())
}
