package k8s

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apiextfake "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset/fake"
	"k8s.io/client-go/dynamic/fake"
	k8sfake "k8s.io/client-go/kubernetes/fake"
	k8sruntime "k8s.io/apimachinery/pkg/runtime"
)

func TestGetClient_ReturnsInjectedClient(t *testing.T) {
	c := newTestClient(t)

	fakeClient := k8sfake.NewSimpleClientset()
	c.InjectClient(fakeClient)

	retrieved, err := c.GetClient()
	require.NoError(t, err)
	if retrieved != fakeClient {
		t.Error("GetClient did not return the injected client")
	}
}

func TestGetDynamicClient_ReturnsInjectedClient(t *testing.T) {
	c := newTestClient(t)

	fakeDyn := fake.NewSimpleDynamicClient(k8sruntime.NewScheme())
	c.InjectDynamicClient(fakeDyn)

	retrieved, err := c.GetDynamicClient()
	require.NoError(t, err)
	assert.Same(t, fakeDyn, retrieved)
}

func TestGetAPIExtensionsClient_ReturnsInjectedClient(t *testing.T) {
	c := newTestClient(t)

	fakeExt := apiextfake.NewSimpleClientset()
	c.InjectAPIExtensionsClient(fakeExt)

	retrieved, err := c.GetAPIExtensionsClient()
	require.NoError(t, err)
	assert.Same(t, fakeExt, retrieved)
}

func TestGetClient_MissingKubeconfig(t *testing.T) {
	c := newTestClient(t)
	if c.IsInCluster() {
		t.Skip("running inside a cluster")
	}

	_, err := c.GetClient()
	assert.Error(t, err)
}

func TestReset_DropsCachedClients(t *testing.T) {
	c := newTestClient(t)
	c.InjectClient(k8sfake.NewSimpleClientset())

	reloaded := false
	c.SetOnReload(func() { reloaded = true })
	c.reloadAndNotify()

	assert.True(t, reloaded)
	c.mu.RLock()
	defer c.mu.RUnlock()
	assert.Nil(t, c.client)
}
