package cluster

import (
	"sort"
	"strings"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	containerName     = "jobcontainer"
	initContainerName = "photo-downloader"
	initContainerImage = "s3-image-client:latest"
	sharedVolumeName  = "shared-pod-data"
	sharedVolumeMount = "/shared-pod-data"
	imagePullSecret   = "gitlab-registry"
	ttlSecondsAfterFinished int32 = 600
)

// JobSpec is the set of inputs buildJob needs to construct a Kubernetes Job
// body for one Batch_Job.
type JobSpec struct {
	Name               string
	Namespace          string
	Env                map[string]string
	Image              string
	InitPhotoContainer bool
	Labels             map[string]string
}

// buildJob assembles the Job body: merged labels, the secret-injector pod
// annotations, the jobcontainer with imagePullPolicy Always, the optional
// photo-download init container against a shared empty-dir volume,
// restartPolicy Never, a 600s TTL, and the gitlab-registry image pull
// secret.
func buildJob(spec JobSpec) *batchv1.Job {
	labels := make(map[string]string, len(spec.Labels)+1)
	for k, v := range spec.Labels {
		labels[k] = v
	}
	labels["name"] = spec.Name

	podAnnotations := map[string]string{
		"vault.hydra.io/addr":       "https://vault.hydra.internal:8200",
		"vault.hydra.io/role":       "applications",
		"vault.hydra.io/tls-secret": "vault-tls",
	}

	volumes := []corev1.Volume{
		{
			Name:         sharedVolumeName,
			VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}},
		},
	}

	mainContainer := corev1.Container{
		Name:            containerName,
		Image:           spec.Image,
		ImagePullPolicy: corev1.PullAlways,
		Env:             envVars(spec.Env),
		VolumeMounts: []corev1.VolumeMount{
			{Name: sharedVolumeName, MountPath: sharedVolumeMount},
		},
	}

	containers := []corev1.Container{mainContainer}
	var initContainers []corev1.Container
	if spec.InitPhotoContainer {
		initContainers = append(initContainers, corev1.Container{
			Name:  initContainerName,
			Image: initContainerImage,
			Args: []string{
				"./image_client.py",
				"--batch=" + spec.Env["BATCH_IDS"],
				"--download",
				"--download_dir=" + sharedVolumeMount,
				"--sequential",
				"--print_summary",
			},
			EnvFrom: []corev1.EnvFromSource{
				{SecretRef: &corev1.SecretEnvSource{LocalObjectReference: corev1.LocalObjectReference{Name: "aws-image-client-credentials"}}},
			},
			VolumeMounts: []corev1.VolumeMount{
				{Name: sharedVolumeName, MountPath: sharedVolumeMount},
			},
		})
	}

	ttl := ttlSecondsAfterFinished
	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      spec.Name,
			Namespace: spec.Namespace,
			Labels:    labels,
		},
		Spec: batchv1.JobSpec{
			TTLSecondsAfterFinished: &ttl,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels:      labels,
					Annotations: podAnnotations,
				},
				Spec: corev1.PodSpec{
					InitContainers:   initContainers,
					Containers:       containers,
					Volumes:          volumes,
					RestartPolicy:    corev1.RestartPolicyNever,
					ImagePullSecrets: []corev1.LocalObjectReference{{Name: imagePullSecret}},
				},
			},
		},
	}
}

// envVars converts a string map into a deterministically ordered []EnvVar
// slice so Job bodies are stable across calls (useful for fakes in tests).
func envVars(env map[string]string) []corev1.EnvVar {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vars := make([]corev1.EnvVar, 0, len(keys))
	for _, k := range keys {
		vars = append(vars, corev1.EnvVar{Name: k, Value: env[k]})
	}
	return vars
}

// batchIDsEnv joins batch ids into the comma-separated BATCH_IDS value.
func batchIDsEnv(ids []string) string {
	return strings.Join(ids, ",")
}
