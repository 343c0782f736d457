package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"

	"github.com/gislas3/hydra/internal/api"
	"github.com/gislas3/hydra/internal/houston"
	"github.com/gislas3/hydra/internal/ingest"
	"github.com/gislas3/hydra/pkg/cluster"
	"github.com/gislas3/hydra/pkg/scheduler"
	"github.com/gislas3/hydra/pkg/store"
)

// noopNotifier is a Houston notifier that does nothing. These scenarios
// exercise the HTTP-to-store-to-scheduler wiring, not the notification
// side effect already covered by internal/houston's own tests.
type noopNotifier struct{}

func (noopNotifier) Notify(ctx context.Context, batchID uuid.UUID, status houston.Status, completed bool) error {
	return nil
}

// fakeAdapter records CreateJob calls without touching Kubernetes, so a
// full batch-upload scenario can run against the real scheduler.
type fakeAdapter struct {
	createCalls int
}

func (f *fakeAdapter) CreateJob(ctx context.Context, spec cluster.JobSpec) (cluster.Reason, error) {
	f.createCalls++
	return cluster.ReasonCreated, nil
}

func (f *fakeAdapter) DeleteJob(ctx context.Context, name, namespace string) error { return nil }

func (f *fakeAdapter) JobExists(ctx context.Context, name, namespace string) (bool, error) {
	return false, nil
}

func (f *fakeAdapter) JobStatus(ctx context.Context, name, namespace string) (cluster.JobStatus, error) {
	return cluster.JobStatusNotFound, nil
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

// newHarness wires a real Store, real Scheduler and real ingest Trigger
// behind a real api.Server, the way cmd/hydra-server's serve command does,
// so these tests exercise the whole path a batch upload takes.
func newHarness(t *testing.T) (*httptest.Server, store.Store, *fakeAdapter) {
	t.Helper()
	scheduler.Reset()

	s := store.NewMemoryStore()
	adapter := &fakeAdapter{}
	sched := scheduler.New(s, adapter, scheduler.Config{MaxActiveJobs: 10, EnableCascade: true}, logr.Discard())
	trigger := ingest.New(sched)

	server := api.NewServer(api.DefaultConfig(), api.BuildInfo{Version: "test"}, s, trigger, noopNotifier{}, logr.Discard())
	mux := http.NewServeMux()
	server.RegisterTestRoutes(mux)

	return httptest.NewServer(mux), s, adapter
}

func jsonBody(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func TestScenario_BatchUploadAccumulatesUntilThresholdThenStartsJob(t *testing.T) {
	ts, s, adapter := newHarness(t)
	defer ts.Close()

	ctx := context.Background()
	require.NoError(t, s.CreateRegion(ctx, &store.Region{Code: "us-east"}))
	def, err := s.CreateJobDefinition(ctx, &store.JobDefinition{Name: "ingest"})
	require.NoError(t, err)
	_, err = s.CreateJobSpec(ctx, &store.JobSpec{
		JobDefinitionID: def.ID,
		Active:          true,
		DataThreshold:   2,
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		batchID := uuid.New()
		resp, err := http.Post(ts.URL+"/api/batches/", "application/json",
			jsonBody(t, map[string]string{"batch_id": batchID.String(), "region": "us-east"}))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	batchJobs, err := s.ListBatchJobs(ctx)
	require.NoError(t, err)
	require.Len(t, batchJobs, 1)
	assert.Equal(t, 2, len(batchJobs[0].Batches))
	assert.True(t, batchJobs[0].Scheduled, "threshold reached, job should have started")
	assert.Equal(t, 1, adapter.createCalls)
}

func TestScenario_UnknownRegionNeverReachesScheduler(t *testing.T) {
	ts, s, adapter := newHarness(t)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/batches/", "application/json",
		jsonBody(t, map[string]string{"batch_id": uuid.NewString(), "region": "nowhere"}))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	batchJobs, err := s.ListBatchJobs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, batchJobs)
	assert.Equal(t, 0, adapter.createCalls)
}

func TestScenario_BelowThresholdBatchStaysQueued(t *testing.T) {
	ts, s, adapter := newHarness(t)
	defer ts.Close()

	ctx := context.Background()
	require.NoError(t, s.CreateRegion(ctx, &store.Region{Code: "us-east"}))
	def, err := s.CreateJobDefinition(ctx, &store.JobDefinition{Name: "ingest"})
	require.NoError(t, err)
	_, err = s.CreateJobSpec(ctx, &store.JobSpec{
		JobDefinitionID: def.ID,
		Active:          true,
		DataThreshold:   5,
	})
	require.NoError(t, err)

	batchID := uuid.New()
	resp, err := http.Post(ts.URL+"/api/batches/", "application/json",
		jsonBody(t, map[string]string{"batch_id": batchID.String(), "region": "us-east"}))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp2, err := http.Get(ts.URL + "/api/jobs-queued/")
	require.NoError(t, err)
	defer resp2.Body.Close()

	var payload api.Response
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&payload))
	data, err := json.Marshal(payload.Data)
	require.NoError(t, err)
	var counts map[string]int
	require.NoError(t, json.Unmarshal(data, &counts))
	assert.Equal(t, 1, counts["Total Queued Jobs"])
	assert.Equal(t, 0, adapter.createCalls)
}
