// Package k8s runs crawl workers as bare pods on a Kubernetes cluster.
package k8s

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/remotecommand"
	"sigs.k8s.io/yaml"

	"crawlfleet/pkg/config"
	"crawlfleet/pkg/constants"
	"crawlfleet/pkg/interfaces"
	"crawlfleet/pkg/logger"
)

const (
	workerContainerName = "worker"
	persistVolumeName   = "persist"
	annotationWorker    = "crawlfleet/worker-name"
)

// execFunc runs cmd in the worker container of pod and streams its stdout
type execFunc func(ctx context.Context, pod string, cmd []string, stdout io.Writer) error

// K8sRuntime runs each worker as one pod named after the worker.
type K8sRuntime struct {
	client     kubernetes.Interface
	restConfig *rest.Config
	namespace  string
	exec       execFunc
}

// NewK8sRuntime creates a K8s runtime from in-cluster config or kubeconfig
func NewK8sRuntime(cfg *config.Config) (interfaces.Runtime, error) {
	restConfig, err := rest.InClusterConfig()
	if err != nil || cfg.Runtime.Kubeconfig != "" {
		// If not in cluster, try to use kubeconfig
		loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
		if cfg.Runtime.Kubeconfig != "" {
			loadingRules.ExplicitPath = cfg.Runtime.Kubeconfig
		}
		kubeConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, &clientcmd.ConfigOverrides{})
		restConfig, err = kubeConfig.ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to get kubernetes config: %w", err)
		}
	}

	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	return newK8sRuntime(client, restConfig, cfg.Runtime.Namespace), nil
}

func newK8sRuntime(client kubernetes.Interface, restConfig *rest.Config, namespace string) *K8sRuntime {
	if namespace == "" {
		namespace = "default"
	}
	r := &K8sRuntime{
		client:     client,
		restConfig: restConfig,
		namespace:  namespace,
	}
	r.exec = r.spdyExec
	return r
}

// BuildPod builds the pod for a launch request
func (r *K8sRuntime) BuildPod(req *interfaces.LaunchRequest) *corev1.Pod {
	pod := &corev1.Pod{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Pod"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      req.Name,
			Namespace: r.namespace,
			Labels: map[string]string{
				constants.LabelManagedBy: constants.ManagedByCrawlfleet,
				constants.LabelComponent: constants.ComponentWorker,
			},
			Annotations: map[string]string{
				annotationWorker: req.Name,
			},
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{{
				Name:    workerContainerName,
				Image:   req.Image,
				Command: []string{constants.PipelineEntrypoint},
				Args:    req.Args,
			}},
		},
	}

	if req.Volume != "" {
		pod.Spec.Volumes = []corev1.Volume{{
			Name: persistVolumeName,
			VolumeSource: corev1.VolumeSource{
				PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: req.Volume},
			},
		}}
		pod.Spec.Containers[0].VolumeMounts = []corev1.VolumeMount{{
			Name:      persistVolumeName,
			MountPath: constants.PersistMountPath,
		}}
	}
	return pod
}

// Preview renders the pod manifest for a launch request as YAML
func (r *K8sRuntime) Preview(req *interfaces.LaunchRequest) (string, error) {
	out, err := yaml.Marshal(r.BuildPod(req))
	if err != nil {
		return "", fmt.Errorf("failed to render pod manifest: %w", err)
	}
	return string(out), nil
}

// Launch creates the worker pod. Output is collected later through SyncLogs.
func (r *K8sRuntime) Launch(ctx context.Context, req *interfaces.LaunchRequest) error {
	pod := r.BuildPod(req)
	if manifest, err := r.Preview(req); err == nil {
		logger.DebugCtx(ctx, "Creating pod:\n%s", manifest)
	}

	if _, err := r.client.CoreV1().Pods(r.namespace).Create(ctx, pod, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("failed to create pod %s: %w", req.Name, err)
	}
	return nil
}

// ListAlive lists managed pods that are running and not being deleted
func (r *K8sRuntime) ListAlive(ctx context.Context) (map[string]struct{}, error) {
	selector := labels.SelectorFromSet(labels.Set{constants.LabelManagedBy: constants.ManagedByCrawlfleet})
	pods, err := r.client.CoreV1().Pods(r.namespace).List(ctx, metav1.ListOptions{LabelSelector: selector.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}

	alive := make(map[string]struct{})
	for i := range pods.Items {
		pod := &pods.Items[i]
		if pod.DeletionTimestamp != nil {
			continue
		}
		if string(pod.Status.Phase) == constants.PodPhaseRunning {
			alive[pod.Name] = struct{}{}
		}
	}
	return alive, nil
}

// CopyArtifacts streams srcDir out of the pod as a tar archive and unpacks it into destDir
func (r *K8sRuntime) CopyArtifacts(ctx context.Context, name, srcDir, destDir string) error {
	cmd := []string{"tar", "cf", "-", "-C", path.Dir(srcDir), path.Base(srcDir)}
	pr, pw := io.Pipe()

	errCh := make(chan error, 1)
	go func() {
		err := r.exec(ctx, name, cmd, pw)
		pw.CloseWithError(err)
		errCh <- err
	}()

	extractErr := untar(pr, destDir)
	// Drain so the exec goroutine can finish even if extraction stopped early
	_, _ = io.Copy(io.Discard, pr)
	execErr := <-errCh

	if execErr != nil {
		return fmt.Errorf("failed to copy %s from pod %s: %w", srcDir, name, execErr)
	}
	if extractErr != nil {
		return fmt.Errorf("failed to unpack %s from pod %s: %w", srcDir, name, extractErr)
	}
	return nil
}

// SyncLogs replaces logPath with the current log of the worker pod
func (r *K8sRuntime) SyncLogs(ctx context.Context, name, logPath string) error {
	stream, err := r.client.CoreV1().Pods(r.namespace).GetLogs(name, &corev1.PodLogOptions{
		Container: workerContainerName,
	}).Stream(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pod logs: %w", err)
	}
	defer stream.Close()

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(logPath), ".log-*")
	if err != nil {
		return fmt.Errorf("failed to create temp log: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, stream); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to read pod logs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), logPath)
}

// Stop gracefully deletes the worker pod
func (r *K8sRuntime) Stop(ctx context.Context, name string) error {
	return r.deletePod(ctx, name, 30)
}

// Remove deletes the worker pod immediately so the name can be reused
func (r *K8sRuntime) Remove(ctx context.Context, name string) error {
	return r.deletePod(ctx, name, 0)
}

func (r *K8sRuntime) deletePod(ctx context.Context, name string, gracePeriodSeconds int64) error {
	err := r.client.CoreV1().Pods(r.namespace).Delete(ctx, name, metav1.DeleteOptions{
		GracePeriodSeconds: &gracePeriodSeconds,
	})
	if err != nil {
		if errors.IsNotFound(err) {
			// Pod already deleted, not an error
			return nil
		}
		return fmt.Errorf("failed to delete pod %s: %w", name, err)
	}
	return nil
}

func (r *K8sRuntime) spdyExec(ctx context.Context, pod string, cmd []string, stdout io.Writer) error {
	if r.restConfig == nil {
		return fmt.Errorf("exec not available without a rest config")
	}
	req := r.client.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(pod).
		Namespace(r.namespace).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: workerContainerName,
			Command:   cmd,
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(r.restConfig, "POST", req.URL())
	if err != nil {
		return fmt.Errorf("failed to create executor: %w", err)
	}
	return executor.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: stdout,
		Stderr: io.Discard,
	})
}
