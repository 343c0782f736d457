package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
)

// JobStatus is the coarse-grained status job_status reduces a Kubernetes
// Job's Active/Succeeded/Failed counters to, preferring succeeded > active
// > failed when more than one is non-zero.
type JobStatus string

const (
	JobStatusSucceeded    JobStatus = "succeeded"
	JobStatusActive       JobStatus = "active"
	JobStatusFailed       JobStatus = "failed"
	JobStatusNonSucceeded JobStatus = "non-succeeded"
	JobStatusNotFound     JobStatus = "not-found"
)

// CleanupState selects which jobs cleanup_jobs_with_state targets.
type CleanupState string

const (
	CleanupStateFinished CleanupState = "Finished"
	CleanupStateActive   CleanupState = "Active"
)

// JobEvent is one delivery from WatchJobs's event stream.
type JobEvent struct {
	Type   watch.EventType
	Object *batchv1.Job
}

// Adapter is the thin wrapper over the Kubernetes Batch API the Scheduler
// and Watcher depend on.
type Adapter interface {
	CreateJob(ctx context.Context, spec JobSpec) (Reason, error)
	DeleteJob(ctx context.Context, name, namespace string) error
	JobExists(ctx context.Context, name, namespace string) (bool, error)
	JobStatus(ctx context.Context, name, namespace string) (JobStatus, error)
	CleanupJobsWithState(ctx context.Context, namespace string, state CleanupState, labelSelector string) ([]string, error)
	ListPods(ctx context.Context, namespace, labelSelector string) ([]corev1.Pod, error)
	WatchJobs(ctx context.Context, namespace string, timeout, requestTimeout time.Duration) (<-chan JobEvent, error)
}

// KubeAdapter implements Adapter against a real or fake kubernetes.Interface,
// so k8s.io/client-go/kubernetes/fake drives every test without a live
// cluster.
type KubeAdapter struct {
	clientset kubernetes.Interface
	log       logr.Logger
}

// NewKubeAdapter constructs a KubeAdapter over clientset.
func NewKubeAdapter(clientset kubernetes.Interface, log logr.Logger) *KubeAdapter {
	return &KubeAdapter{clientset: clientset, log: log.WithName("cluster-adapter")}
}

func (a *KubeAdapter) CreateJob(ctx context.Context, spec JobSpec) (Reason, error) {
	job := buildJob(spec)
	_, err := a.clientset.BatchV1().Jobs(spec.Namespace).Create(ctx, job, metav1.CreateOptions{})
	if err == nil {
		return ReasonCreated, nil
	}
	if apierrors.IsAlreadyExists(err) {
		return ReasonAlreadyExists, newClusterError("create_job", spec.Name, ReasonAlreadyExists, err.Error())
	}
	if apierrors.IsInvalid(err) {
		return ReasonInvalid, newClusterError("create_job", spec.Name, ReasonInvalid, err.Error())
	}
	return ReasonOther, newClusterError("create_job", spec.Name, ReasonOther, err.Error())
}

func (a *KubeAdapter) DeleteJob(ctx context.Context, name, namespace string) error {
	propagation := metav1.DeletePropagationBackground
	gracePeriod := int64(0)
	err := a.clientset.BatchV1().Jobs(namespace).Delete(ctx, name, metav1.DeleteOptions{
		PropagationPolicy:  &propagation,
		GracePeriodSeconds: &gracePeriod,
	})
	if err != nil {
		if apierrors.IsNotFound(err) {
			a.log.Info("delete_job: job already absent", "name", name, "namespace", namespace)
			return nil
		}
		a.log.Error(err, "delete_job failed", "name", name, "namespace", namespace)
		return nil
	}
	time.Sleep(50 * time.Millisecond)
	return nil
}

func (a *KubeAdapter) JobExists(ctx context.Context, name, namespace string) (bool, error) {
	_, err := a.clientset.BatchV1().Jobs(namespace).Get(ctx, name, metav1.GetOptions{})
	if err == nil {
		return true, nil
	}
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

func (a *KubeAdapter) JobStatus(ctx context.Context, name, namespace string) (JobStatus, error) {
	job, err := a.clientset.BatchV1().Jobs(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return JobStatusNotFound, nil
		}
		return "", err
	}
	return statusFromCounts(job.Status.Succeeded, job.Status.Active, job.Status.Failed), nil
}

func statusFromCounts(succeeded, active, failed int32) JobStatus {
	switch {
	case succeeded > 0:
		return JobStatusSucceeded
	case active > 0:
		return JobStatusActive
	case failed > 0:
		return JobStatusFailed
	default:
		return JobStatusNonSucceeded
	}
}

func (a *KubeAdapter) CleanupJobsWithState(ctx context.Context, namespace string, state CleanupState, labelSelector string) ([]string, error) {
	jobs, err := a.clientset.BatchV1().Jobs(namespace).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil {
		return nil, fmt.Errorf("list jobs for cleanup: %w", err)
	}

	var deleted []string
	for _, job := range jobs.Items {
		matches := false
		switch state {
		case CleanupStateFinished:
			matches = job.Status.Succeeded > 0 || job.Status.Failed > 0
		case CleanupStateActive:
			matches = job.Status.Active > 0
		}
		if !matches {
			continue
		}
		if err := a.DeleteJob(ctx, job.Name, namespace); err != nil {
			a.log.Error(err, "cleanup delete failed", "name", job.Name)
			continue
		}
		deleted = append(deleted, job.Name)
	}
	return deleted, nil
}

func (a *KubeAdapter) ListPods(ctx context.Context, namespace, labelSelector string) ([]corev1.Pod, error) {
	pods, err := a.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil {
		return nil, fmt.Errorf("list pods: %w", err)
	}
	return pods.Items, nil
}

// WatchJobs opens the namespace job-event stream and translates it into a
// JobEvent channel. The channel closes when the underlying watch ends
// (server timeout, disconnect, or ctx cancellation); the Watcher's outer
// loop is responsible for reopening it.
func (a *KubeAdapter) WatchJobs(ctx context.Context, namespace string, timeout, requestTimeout time.Duration) (<-chan JobEvent, error) {
	timeoutSeconds := int64(timeout.Seconds())
	w, err := a.clientset.BatchV1().Jobs(namespace).Watch(ctx, metav1.ListOptions{
		TimeoutSeconds: &timeoutSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("watch_jobs: %w", err)
	}

	out := make(chan JobEvent)
	go func() {
		defer close(out)
		defer w.Stop()

		reqCtx := ctx
		var cancel context.CancelFunc
		if requestTimeout > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, requestTimeout)
			defer cancel()
		}

		for {
			select {
			case ev, ok := <-w.ResultChan():
				if !ok {
					return
				}
				job, ok := ev.Object.(*batchv1.Job)
				if !ok {
					continue
				}
				select {
				case out <- JobEvent{Type: ev.Type, Object: job}:
				case <-ctx.Done():
					return
				}
			case <-reqCtx.Done():
				return
			}
		}
	}()

	return out, nil
}
