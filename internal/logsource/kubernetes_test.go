package logsource

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"rancher-error-digest/config"
)

func testPod(namespace, name string, labels map[string]string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    labels,
		},
	}
}

func testKubernetesConfig() config.KubernetesConfig {
	return config.KubernetesConfig{
		Namespace:        "cattle-system",
		LabelSelector:    "app=rancher",
		FetchConcurrency: 2,
	}
}

func TestKubernetesSource_Fetch(t *testing.T) {
	rancher := map[string]string{"app": "rancher"}
	client := fake.NewSimpleClientset(
		testPod("cattle-system", "rancher-7c9d-zzz", rancher),
		testPod("cattle-system", "rancher-7c9d-aaa", rancher),
		testPod("cattle-system", "rancher-7c9d-mmm", rancher),
		testPod("cattle-system", "rancher-webhook-abc", map[string]string{"app": "rancher-webhook"}),
		testPod("default", "rancher-elsewhere", rancher),
	)

	source := NewKubernetesSource(client, testKubernetesConfig())
	logs, err := source.Fetch(context.Background())
	require.NoError(t, err)

	require.Len(t, logs, 3)
	assert.Equal(t, "rancher-7c9d-aaa", logs[0].Source)
	assert.Equal(t, "rancher-7c9d-mmm", logs[1].Source)
	assert.Equal(t, "rancher-7c9d-zzz", logs[2].Source)
	for _, l := range logs {
		// The fake clientset serves a fixed body for every log request.
		assert.Equal(t, "fake logs", l.Content)
	}
}

func TestKubernetesSource_NoPods(t *testing.T) {
	source := NewKubernetesSource(fake.NewSimpleClientset(), testKubernetesConfig())

	logs, err := source.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestKubernetesSource_ListError(t *testing.T) {
	client := fake.NewSimpleClientset()
	client.PrependReactor("list", "pods", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("forbidden")
	})

	source := NewKubernetesSource(client, testKubernetesConfig())
	logs, err := source.Fetch(context.Background())
	assert.Nil(t, logs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forbidden")
}
