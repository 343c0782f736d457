package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes/fake"
)

func TestKubeAdapter_CreateJob_Created(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	a := NewKubeAdapter(clientset, logr.Discard())

	reason, err := a.CreateJob(context.Background(), JobSpec{
		Name: "ingest-1", Namespace: "ns", Image: "img", Env: map[string]string{"BATCH_IDS": "a,b"},
	})
	require.NoError(t, err)
	assert.Equal(t, ReasonCreated, reason)

	job, err := clientset.BatchV1().Jobs("ns").Get(context.Background(), "ingest-1", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ingest-1", job.Labels["name"])
	assert.Equal(t, containerName, job.Spec.Template.Spec.Containers[0].Name)
	assert.Equal(t, corev1PullAlways(job), true)
	assert.Equal(t, "vault-tls", job.Spec.Template.Annotations["vault.hydra.io/tls-secret"])
	assert.Equal(t, imagePullSecret, job.Spec.Template.Spec.ImagePullSecrets[0].Name)
}

func corev1PullAlways(job *batchv1.Job) bool {
	return string(job.Spec.Template.Spec.Containers[0].ImagePullPolicy) == "Always"
}

func TestKubeAdapter_CreateJob_AlreadyExists(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	a := NewKubeAdapter(clientset, logr.Discard())

	spec := JobSpec{Name: "dup", Namespace: "ns", Image: "img"}
	_, err := a.CreateJob(context.Background(), spec)
	require.NoError(t, err)

	reason, err := a.CreateJob(context.Background(), spec)
	require.Error(t, err)
	assert.Equal(t, ReasonAlreadyExists, reason)
}

func TestKubeAdapter_JobExists(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	a := NewKubeAdapter(clientset, logr.Discard())

	exists, err := a.JobExists(context.Background(), "missing", "ns")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = a.CreateJob(context.Background(), JobSpec{Name: "present", Namespace: "ns", Image: "img"})
	require.NoError(t, err)

	exists, err = a.JobExists(context.Background(), "present", "ns")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestKubeAdapter_JobStatus_PrefersSucceededOverActive(t *testing.T) {
	clientset := fake.NewSimpleClientset(&batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: "mixed", Namespace: "ns"},
		Status:     batchv1.JobStatus{Succeeded: 1, Active: 1, Failed: 1},
	})
	a := NewKubeAdapter(clientset, logr.Discard())

	status, err := a.JobStatus(context.Background(), "mixed", "ns")
	require.NoError(t, err)
	assert.Equal(t, JobStatusSucceeded, status)
}

func TestKubeAdapter_JobStatus_NotFound(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	a := NewKubeAdapter(clientset, logr.Discard())

	status, err := a.JobStatus(context.Background(), "ghost", "ns")
	require.NoError(t, err)
	assert.Equal(t, JobStatusNotFound, status)
}

func TestKubeAdapter_DeleteJob_AbsentIsNotError(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	a := NewKubeAdapter(clientset, logr.Discard())

	err := a.DeleteJob(context.Background(), "ghost", "ns")
	assert.NoError(t, err)
}

func TestKubeAdapter_WatchJobs_DeliversEvents(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	a := NewKubeAdapter(clientset, logr.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := a.WatchJobs(ctx, "ns", 10*time.Second, 0)
	require.NoError(t, err)

	watcher, err := clientset.BatchV1().Jobs("ns").Watch(ctx, metav1.ListOptions{})
	require.NoError(t, err)
	_ = watcher

	job := &batchv1.Job{ObjectMeta: metav1.ObjectMeta{Name: "watched", Namespace: "ns"}}
	_, err = clientset.BatchV1().Jobs("ns").Create(ctx, job, metav1.CreateOptions{})
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, watch.Added, ev.Type)
		assert.Equal(t, "watched", ev.Object.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watch event")
	}
}
