package k8s

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	apiextclientset "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const (
	k8sClientTimeout        = 30 * time.Second
	kubeconfigDebounce      = 500 * time.Millisecond
	kubeconfigPollInterval  = 5 * time.Second
	inClusterContextDisplay = "in-cluster"
)

// Client gives access to the cluster holding the Assistant resource and the
// backends' auth Secrets.
type Client struct {
	mu              sync.RWMutex
	kubeconfig      string
	contextName     string
	config          *rest.Config
	client          kubernetes.Interface
	dynamicClient   dynamic.Interface
	apiextClient    apiextclientset.Interface
	inClusterConfig *rest.Config

	watcher   *fsnotify.Watcher
	stopWatch chan struct{}
	onReload  func()
}

// NewClient creates a client for the given kubeconfig. An empty path falls
// back to $KUBECONFIG, then ~/.kube/config; when no file exists the
// in-cluster service account is used.
func NewClient(kubeconfig, contextName string) (*Client, error) {
	if kubeconfig == "" {
		kubeconfig = os.Getenv("KUBECONFIG")
		if kubeconfig == "" {
			home, _ := os.UserHomeDir()
			kubeconfig = filepath.Join(home, ".kube", "config")
		}
	}

	c := &Client{
		kubeconfig:  kubeconfig,
		contextName: contextName,
	}

	if _, err := os.Stat(kubeconfig); os.IsNotExist(err) {
		if inClusterConfig, err := rest.InClusterConfig(); err == nil {
			log.Println("[k8s] Using in-cluster config (no kubeconfig file found)")
			c.inClusterConfig = inClusterConfig
		}
	}

	return c, nil
}

// IsInCluster returns true if the client uses the pod's service account
func (c *Client) IsInCluster() bool {
	return c.inClusterConfig != nil
}

// Context returns the kubeconfig context in use
func (c *Client) Context() string {
	if c.IsInCluster() {
		return inClusterContextDisplay
	}
	return c.contextName
}

// InjectClient injects a typed client (for testing)
func (c *Client) InjectClient(client kubernetes.Interface) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.client = client
}

// InjectDynamicClient injects a dynamic client (for testing)
func (c *Client) InjectDynamicClient(client dynamic.Interface) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dynamicClient = client
}

// InjectAPIExtensionsClient injects an apiextensions client (for testing)
func (c *Client) InjectAPIExtensionsClient(client apiextclientset.Interface) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiextClient = client
}

// restConfig must be called with c.mu held for writing
func (c *Client) restConfig() (*rest.Config, error) {
	if c.config != nil {
		return c.config, nil
	}

	var config *rest.Config
	if c.inClusterConfig != nil {
		config = rest.CopyConfig(c.inClusterConfig)
	} else {
		var err error
		config, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			&clientcmd.ClientConfigLoadingRules{ExplicitPath: c.kubeconfig},
			&clientcmd.ConfigOverrides{CurrentContext: c.contextName},
		).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to get config for context %q: %w", c.contextName, err)
		}
	}
	config.Timeout = k8sClientTimeout
	c.config = config
	return config, nil
}

// GetClient returns the typed kubernetes client
func (c *Client) GetClient() (kubernetes.Interface, error) {
	c.mu.RLock()
	if c.client != nil {
		defer c.mu.RUnlock()
		return c.client, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}

	config, err := c.restConfig()
	if err != nil {
		return nil, err
	}
	client, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	c.client = client
	return client, nil
}

// GetDynamicClient returns the dynamic client used for custom resources
func (c *Client) GetDynamicClient() (dynamic.Interface, error) {
	c.mu.RLock()
	if c.dynamicClient != nil {
		defer c.mu.RUnlock()
		return c.dynamicClient, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dynamicClient != nil {
		return c.dynamicClient, nil
	}

	config, err := c.restConfig()
	if err != nil {
		return nil, err
	}
	client, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}
	c.dynamicClient = client
	return client, nil
}

// GetAPIExtensionsClient returns the client used to manage CRDs
func (c *Client) GetAPIExtensionsClient() (apiextclientset.Interface, error) {
	c.mu.RLock()
	if c.apiextClient != nil {
		defer c.mu.RUnlock()
		return c.apiextClient, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.apiextClient != nil {
		return c.apiextClient, nil
	}

	config, err := c.restConfig()
	if err != nil {
		return nil, err
	}
	client, err := apiextclientset.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create apiextensions client: %w", err)
	}
	c.apiextClient = client
	return client, nil
}

// reset drops cached clients so the next call rebuilds them from the kubeconfig
func (c *Client) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = nil
	c.client = nil
	c.dynamicClient = nil
	c.apiextClient = nil
}

// SetOnReload sets a callback to be called when the kubeconfig is reloaded
func (c *Client) SetOnReload(callback func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReload = callback
}

// StartWatching watches the kubeconfig for changes. Uses fsnotify plus a
// polling fallback to catch changes fsnotify misses after atomic writes.
func (c *Client) StartWatching() error {
	if c.IsInCluster() {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	c.watcher = watcher
	c.stopWatch = make(chan struct{})

	if err := watcher.Add(c.kubeconfig); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch kubeconfig: %w", err)
	}
	if err := watcher.Add(filepath.Dir(c.kubeconfig)); err != nil {
		log.Printf("[k8s] Warning: could not watch kubeconfig directory: %v", err)
	}

	go c.watchLoop()
	log.Printf("[k8s] Watching kubeconfig for changes: %s", c.kubeconfig)
	return nil
}

func (c *Client) reloadAndNotify() {
	log.Printf("[k8s] Kubeconfig changed, reloading...")
	c.reset()

	// atomic saves replace the inode, so the file watch must be re-established
	if c.watcher != nil {
		_ = c.watcher.Remove(c.kubeconfig)
		if err := c.watcher.Add(c.kubeconfig); err != nil {
			log.Printf("[k8s] Warning: could not re-watch kubeconfig file: %v", err)
		}
	}

	c.mu.RLock()
	callback := c.onReload
	c.mu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) watchLoop() {
	var debounceTimer *time.Timer
	pollTicker := time.NewTicker(kubeconfigPollInterval)
	defer pollTicker.Stop()

	var lastModTime time.Time
	if info, err := os.Stat(c.kubeconfig); err == nil {
		lastModTime = info.ModTime()
	}

	triggerReload := func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		debounceTimer = time.AfterFunc(kubeconfigDebounce, c.reloadAndNotify)
	}

	for {
		select {
		case <-c.stopWatch:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(c.kubeconfig) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if info, err := os.Stat(c.kubeconfig); err == nil {
					lastModTime = info.ModTime()
				}
				triggerReload()
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[k8s] Kubeconfig watcher error: %v", err)
		case <-pollTicker.C:
			info, err := os.Stat(c.kubeconfig)
			if err != nil {
				continue
			}
			if info.ModTime() != lastModTime {
				lastModTime = info.ModTime()
				log.Printf("[k8s] Kubeconfig change detected by poll (fsnotify missed)")
				triggerReload()
			}
		}
	}
}

// StopWatching stops watching the kubeconfig file
func (c *Client) StopWatching() {
	if c.stopWatch != nil {
		close(c.stopWatch)
	}
	if c.watcher != nil {
		c.watcher.Close()
	}
}
