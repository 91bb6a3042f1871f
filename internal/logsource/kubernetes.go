package logsource

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"rancher-error-digest/config"
	"rancher-error-digest/internal/model"
)

// NewKubernetesClient prefers an explicit kubeconfig, then the in-cluster
// service account, then the default loading rules (~/.kube/config).
func NewKubernetesClient(cfg config.KubernetesConfig) (kubernetes.Interface, error) {
	var restCfg *rest.Config
	var err error

	if cfg.Kubeconfig == "" {
		restCfg, err = rest.InClusterConfig()
		if err == nil {
			log.Debug().Msg("Using in-cluster Kubernetes configuration")
		}
	}
	if restCfg == nil {
		loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
		if cfg.Kubeconfig != "" {
			loadingRules.ExplicitPath = cfg.Kubeconfig
		}
		restCfg, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, &clientcmd.ConfigOverrides{}).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
		}
	}

	client, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	return client, nil
}

type kubernetesSource struct {
	client        kubernetes.Interface
	namespace     string
	labelSelector string
	concurrency   int
}

func NewKubernetesSource(client kubernetes.Interface, cfg config.KubernetesConfig) LogSource {
	concurrency := cfg.FetchConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &kubernetesSource{
		client:        client,
		namespace:     cfg.Namespace,
		labelSelector: cfg.LabelSelector,
		concurrency:   concurrency,
	}
}

// Fetch reads the logs of every matching pod. Any single failure aborts the
// whole fetch.
func (s *kubernetesSource) Fetch(ctx context.Context) ([]model.SourceLog, error) {
	pods, err := s.client.CoreV1().Pods(s.namespace).List(ctx, metav1.ListOptions{LabelSelector: s.labelSelector})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods in %s (%s): %w", s.namespace, s.labelSelector, err)
	}

	names := make([]string, 0, len(pods.Items))
	for _, pod := range pods.Items {
		names = append(names, pod.Name)
	}
	sort.Strings(names)
	log.Debug().Str("namespace", s.namespace).Strs("pods", names).Msg("Found pods to read")

	logs := make([]model.SourceLog, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			content, err := s.readPodLog(gctx, name)
			if err != nil {
				return fmt.Errorf("failed to read logs for pod %s/%s: %w", s.namespace, name, err)
			}
			logs[i] = model.SourceLog{Source: name, Content: content}
			log.Debug().Str("pod", name).Int("bytes", len(content)).Msg("Read pod log")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *kubernetesSource) readPodLog(ctx context.Context, name string) (string, error) {
	stream, err := s.client.CoreV1().Pods(s.namespace).GetLogs(name, &corev1.PodLogOptions{}).Stream(ctx)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
