package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/kubestellar/console-assistant/pkg/assistant"
)

// ErrNoCluster is returned when the cluster source is selected without a
// Kubernetes client
var ErrNoCluster = errors.New("assistant source is cluster but no Kubernetes client is available")

// ClusterSource reads the host configuration and backend credentials from
// the cluster
type ClusterSource interface {
	GetAssistantConfig(ctx context.Context) (*assistant.HostConfig, error)
	CredentialResolver(namespace string) assistant.CredentialResolver
}

// Loader resolves the host configuration from the configured source
type Loader struct {
	manager *Manager
	cluster ClusterSource
	local   assistant.CredentialResolver
}

// NewLoader creates a loader. cluster serves the cluster source and local
// resolves credentials for the file source; either may be nil.
func NewLoader(m *Manager, cluster ClusterSource, local assistant.CredentialResolver) *Loader {
	return &Loader{manager: m, cluster: cluster, local: local}
}

// Load returns the host configuration and the credential resolver to use
// with it
func (l *Loader) Load(ctx context.Context) (assistant.HostConfig, assistant.CredentialResolver, error) {
	cfg := l.manager.Get()
	if cfg.Source == SourceFile {
		return cfg.Assistant, l.local, nil
	}

	if l.cluster == nil {
		return assistant.HostConfig{}, nil, ErrNoCluster
	}
	hc, err := l.cluster.GetAssistantConfig(ctx)
	if err != nil {
		return assistant.HostConfig{}, nil, fmt.Errorf("failed to read the assistant configuration: %w", err)
	}
	return *hc, l.cluster.CredentialResolver(hc.Namespace), nil
}
