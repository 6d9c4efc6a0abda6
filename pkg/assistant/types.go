package assistant

import (
	"net/url"
	"strconv"
)

const (
	// TaskMode is the only job mode the jobs endpoint is asked for.
	TaskMode = "asynchronous"

	// DefaultTaskTitle identifies the preferred task by title rather than id,
	// since task ids change when a backend regenerates its manifest.
	DefaultTaskTitle = "NL to YAML generation"

	// jobIDPlaceholder is substituted in the feedback path template.
	jobIDPlaceholder = "<job_id>"
)

// Endpoint describes one API endpoint advertised by a backend
type Endpoint struct {
	Methods []string `json:"methods,omitempty"`
	Path    string   `json:"path"`
}

// EndpointSet is one entry of the discovery manifest's endpoint list
type EndpointSet struct {
	Discovery Endpoint `json:"api_discovery_endpoint"`
	Feedback  Endpoint `json:"api_feedback_endpoint"`
	Jobs      Endpoint `json:"api_jobs_endpoint"`
	Key       Endpoint `json:"api_key_endpoint"`
	Models    Endpoint `json:"api_models_endpoint"`
	Tasks     Endpoint `json:"api_tasks_endpoint"`
}

// Example is a sample prompt for a task
type Example struct {
	Text string `json:"text"`
}

// Task is one task a model can perform
type Task struct {
	TaskID        int       `json:"taskId"`
	TaskTitle     string    `json:"taskTitle"`
	Examples      []Example `json:"examples"`
	Format        string    `json:"format"`
	PostProcessor string    `json:"postProcessor"`
	Shots         string    `json:"shots"`
}

// ID returns the task id in the string form the jobs API expects
func (t Task) ID() string {
	return strconv.Itoa(t.TaskID)
}

// Model is one model offered by a backend
type Model struct {
	ModelID   string `json:"model_id"`
	ModelPath string `json:"model_path"`
	Tasks     []Task `json:"tasks"`
}

// FindTask returns the task with the given id
func (m Model) FindTask(id string) (Task, bool) {
	for _, t := range m.Tasks {
		if t.ID() == id {
			return t, true
		}
	}
	return Task{}, false
}

// DiscoveryManifest is the capability description returned by a backend
type DiscoveryManifest struct {
	Endpoints []EndpointSet `json:"endpoints"`
	Models    []Model       `json:"model_data"`
}

// FindModel returns the model with the given id
func (d DiscoveryManifest) FindModel(id string) (Model, bool) {
	for _, m := range d.Models {
		if m.ModelID == id {
			return m, true
		}
	}
	return Model{}, false
}

// Answer is the body returned by the jobs endpoint, either on submission
// (job id only) or once the job is done.
type Answer struct {
	AllTokens   string `json:"all_tokens,omitempty"`
	InputTokens string `json:"input_tokens,omitempty"`
	JobID       string `json:"job_id"`
	Model       string `json:"model,omitempty"`
	Status      string `json:"status,omitempty"`
	TaskID      string `json:"task_id,omitempty"`
	TaskOutput  string `json:"task_output,omitempty"`
}

// Complete reports whether the answer carries task output
func (a *Answer) Complete() bool {
	return a != nil && a.TaskOutput != ""
}

// AuthCreds holds the credentials used against a backend
type AuthCreds struct {
	Email string `json:"email"`
	Token string `json:"-"`
}

// AuthRef points at the Secret holding a backend's credentials
type AuthRef struct {
	SecretName string `json:"secretName" yaml:"secretName"`
}

// BackendDescriptor is a configured backend before discovery
type BackendDescriptor struct {
	ID                string   `json:"id" yaml:"id"`
	Name              string   `json:"name" yaml:"name"`
	DiscoveryEndpoint string   `json:"discoveryEndpoint" yaml:"discoveryEndpoint"`
	DefaultModelID    string   `json:"defaultModelId,omitempty" yaml:"defaultModelId,omitempty"`
	Auth              *AuthRef `json:"auth,omitempty" yaml:"auth,omitempty"`
}

// Backend is a discovered backend
type Backend struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Host           *url.URL          `json:"-"`
	Manifest       DiscoveryManifest `json:"discoveryAnswer"`
	DefaultModelID string            `json:"defaultModelId,omitempty"`
	Creds          *AuthCreds        `json:"-"`
}

// HostURL returns the backend host as a string for serialization
func (b *Backend) HostURL() string {
	if b.Host == nil {
		return ""
	}
	return b.Host.String()
}
