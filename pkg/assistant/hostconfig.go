package assistant

import "time"

// HostConfig is the assistant configuration declared by the cluster's
// Assistant resource or the local config file.
type HostConfig struct {
	Backends         []BackendDescriptor `json:"backends" yaml:"backends"`
	DefaultBackendID string              `json:"defaultBackendId,omitempty" yaml:"defaultBackendId,omitempty"`
	// MaxPollAttempts overrides the poll budget when > 0
	MaxPollAttempts int `json:"maxPollAttempts,omitempty" yaml:"maxPollAttempts,omitempty"`
	// TimeBetweenPollAttempts is in milliseconds; overrides the poll interval when > 0
	TimeBetweenPollAttempts int    `json:"timeBetweenPollAttempts,omitempty" yaml:"timeBetweenPollAttempts,omitempty"`
	HideAdvancedTab         *bool  `json:"hideAdvancedTab,omitempty" yaml:"hideAdvancedTab,omitempty"`
	DefaultTaskTitle        string `json:"defaultTaskTitle,omitempty" yaml:"defaultTaskTitle,omitempty"`

	// Namespace holds the backends' auth Secrets
	Namespace string `json:"-" yaml:"namespace,omitempty"`
}

// PollInterval returns the configured interval, or 0 when unset
func (hc HostConfig) PollInterval() time.Duration {
	if hc.TimeBetweenPollAttempts <= 0 {
		return 0
	}
	return time.Duration(hc.TimeBetweenPollAttempts) * time.Millisecond
}

// WithPollSettings returns a copy of the client using the host config's
// poll overrides; unset values keep the client's current settings.
func (c *Client) WithPollSettings(hc HostConfig) *Client {
	next := *c
	if hc.MaxPollAttempts > 0 {
		next.maxPollAttempts = hc.MaxPollAttempts
	}
	if d := hc.PollInterval(); d > 0 {
		next.pollInterval = d
	}
	return &next
}
