package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kubestellar/console-assistant/pkg/assistant"
	"github.com/kubestellar/console-assistant/pkg/config"
	"github.com/kubestellar/console-assistant/pkg/k8s"
	"github.com/kubestellar/console-assistant/pkg/settings"
	"github.com/kubestellar/console-assistant/pkg/store"
)

// env is everything a command needs to reach the assistant backends
type env struct {
	cfg    config.Config
	vault  *settings.Manager
	kube   *k8s.Client
	loader *config.Loader
}

func (o *options) openEnv() (*env, error) {
	cfgManager, err := config.NewManager(o.configPath)
	if err != nil {
		return nil, err
	}
	cfg := cfgManager.Get()
	if o.kubeconfig != "" {
		cfg.Kubeconfig = o.kubeconfig
	}
	if o.context != "" {
		cfg.Context = o.context
	}
	if o.dbPath != "" {
		cfg.DatabasePath = o.dbPath
	}

	vault, err := settings.NewManager(o.settingsDir)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, vault: vault}
	var cluster config.ClusterSource
	if cfg.Source == config.SourceCluster {
		kube, err := newKubeClient(cfg)
		if err != nil {
			return nil, err
		}
		e.kube = kube
		cluster = kube
	}
	e.loader = config.NewLoader(cfgManager, cluster, vault)
	return e, nil
}

func newKubeClient(cfg config.Config) (*k8s.Client, error) {
	kube, err := k8s.NewClient(cfg.Kubeconfig, cfg.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}
	return kube, nil
}

func (e *env) openStore() (*store.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(e.cfg.DatabasePath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return store.NewSQLiteStore(e.cfg.DatabasePath)
}

// session discovers the configured backends and restores the remembered
// selection. A nil recorder skips history.
func (e *env) session(ctx context.Context, recorder assistant.Recorder) (*assistant.Session, assistant.DiscoveryResult, error) {
	hc, resolver, err := e.loader.Load(ctx)
	if err != nil {
		return nil, assistant.DiscoveryResult{}, err
	}

	var opts []assistant.SessionOption
	if recorder != nil {
		opts = append(opts, assistant.WithRecorder(recorder))
	}
	s := assistant.NewSession(assistant.NewClient(), opts...)
	result := s.Initialize(ctx, hc, resolver)
	if len(result.Backends) == 0 {
		if msg := s.State().FetchingBackendsError; msg != "" {
			return nil, result, errors.New(msg)
		}
		return nil, result, fmt.Errorf("no assistant backends are configured")
	}
	settings.RestoreSelection(s, e.vault.Preferences())
	return s, result, nil
}
