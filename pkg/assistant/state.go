package assistant

import "github.com/kubestellar/console-assistant/pkg/markdown"

// Selection is the cascading backend → model → task pointer.
// An empty string means nothing is selected at that level.
type Selection struct {
	BackendID string `json:"currentBackendId,omitempty"`
	ModelID   string `json:"currentModelId,omitempty"`
	TaskID    string `json:"currentTaskId,omitempty"`
}

// Job tracks the query currently in flight
type Job struct {
	ID string `json:"currentJobId,omitempty"`
	// Progress is -1 before any query has been sent
	Progress float64 `json:"currentJobProgress"`
	// Generation increases with every submitted query; results carrying an
	// older generation are stale.
	Generation uint64 `json:"generation"`
}

// State is the assistant session state. It is a value: every transition
// returns a new State and leaves the receiver untouched. Backends are
// shared between states and must not be mutated.
type State struct {
	Backends         []*Backend `json:"-"`
	DefaultBackendID string     `json:"defaultBackendId,omitempty"`
	DefaultTaskTitle string     `json:"defaultTaskTitle"`
	HideAdvancedTab  bool       `json:"hideAdvancedTab"`
	Selection        Selection  `json:"selection"`

	FetchingBackends        bool   `json:"isFetchingBackends"`
	FetchingBackendsPartial bool   `json:"isFetchingBackendsPartial"`
	FetchingBackendsError   string `json:"fetchingBackendsError,omitempty"`

	Loading         bool    `json:"isLoading"`
	SendingFeedback bool    `json:"isSendingFeedback"`
	Error           string  `json:"error,omitempty"`
	FeedbackError   string  `json:"feedbackError,omitempty"`
	Job             Job     `json:"job"`
	Answer          *Answer `json:"answer,omitempty"`

	EditorYAML        string `json:"currentEditorYaml,omitempty"`
	// PendingYAML is the raw block for the editor; when PendingYAMLAppend is
	// set the editor appends it as a new document instead of replacing.
	PendingYAML       string `json:"yaml,omitempty"`
	PendingYAMLAppend bool   `json:"yamlIsAppend"`
	PendingCommand    string `json:"command,omitempty"`
}

// NewState returns the initial state: no backends, nothing selected
func NewState() State {
	return State{
		DefaultTaskTitle: DefaultTaskTitle,
		Job:              Job{Progress: -1},
	}
}

// Backend returns the backend with the given id
func (s State) Backend(id string) (*Backend, bool) {
	for _, b := range s.Backends {
		if b.ID == id {
			return b, true
		}
	}
	return nil, false
}

// CurrentBackend returns the selected backend, or nil
func (s State) CurrentBackend() *Backend {
	b, _ := s.Backend(s.Selection.BackendID)
	return b
}

// CurrentModel returns the selected model
func (s State) CurrentModel() (Model, bool) {
	b := s.CurrentBackend()
	if b == nil || s.Selection.ModelID == "" {
		return Model{}, false
	}
	return b.Manifest.FindModel(s.Selection.ModelID)
}

// CurrentTask returns the selected task
func (s State) CurrentTask() (Task, bool) {
	m, ok := s.CurrentModel()
	if !ok || s.Selection.TaskID == "" {
		return Task{}, false
	}
	return m.FindTask(s.Selection.TaskID)
}

// Valid reports whether the selection points into the backend collection:
// the task belongs to the model, which belongs to the backend.
func (s State) Valid() bool {
	sel := s.Selection
	if sel.BackendID == "" {
		return sel.ModelID == "" && sel.TaskID == ""
	}
	b, ok := s.Backend(sel.BackendID)
	if !ok {
		return false
	}
	if sel.ModelID == "" {
		return sel.TaskID == ""
	}
	m, ok := b.Manifest.FindModel(sel.ModelID)
	if !ok {
		return false
	}
	if sel.TaskID == "" {
		return true
	}
	_, ok = m.FindTask(sel.TaskID)
	return ok
}

// WithDefaultBackendID records the backend to select when it is discovered
func (s State) WithDefaultBackendID(id string) State {
	s.DefaultBackendID = id
	return s
}

// WithDefaultTaskTitle changes the title used to pick the default task
func (s State) WithDefaultTaskTitle(title string) State {
	s.DefaultTaskTitle = title
	return s
}

// WithHideAdvancedTab sets the advanced tab visibility flag
func (s State) WithHideAdvancedTab(hide bool) State {
	s.HideAdvancedTab = hide
	return s
}

// AddBackend merges a discovered backend into the collection. The first
// backend, or the configured default backend, becomes the selection.
// Re-adding a known id replaces it and re-validates the selection.
func (s State) AddBackend(b *Backend) State {
	next := s
	for i, existing := range s.Backends {
		if existing.ID != b.ID {
			continue
		}
		next.Backends = make([]*Backend, len(s.Backends))
		copy(next.Backends, s.Backends)
		next.Backends[i] = b
		if s.Selection.BackendID == b.ID {
			next.Selection = next.revalidate()
		}
		return next
	}

	next.Backends = make([]*Backend, len(s.Backends), len(s.Backends)+1)
	copy(next.Backends, s.Backends)
	next.Backends = append(next.Backends, b)

	if len(s.Backends) == 0 || (s.DefaultBackendID != "" && b.ID == s.DefaultBackendID) {
		return next.SelectBackend(b.ID)
	}
	return next
}

// RemoveBackend drops a backend; a selection pointing at it becomes undefined
func (s State) RemoveBackend(id string) State {
	next := s
	next.Backends = make([]*Backend, 0, len(s.Backends))
	for _, b := range s.Backends {
		if b.ID != id {
			next.Backends = append(next.Backends, b)
		}
	}
	if s.Selection.BackendID == id {
		next.Selection = Selection{}
	}
	return next
}

// SelectBackend selects a backend and resolves its default model and task.
// An unknown id clears the whole selection.
func (s State) SelectBackend(id string) State {
	next := s
	b, ok := s.Backend(id)
	if !ok {
		next.Selection = Selection{}
		return next
	}
	next.Selection = Selection{BackendID: b.ID}
	if m, ok := resolveModel(b); ok {
		next.Selection.ModelID = m.ModelID
		next.Selection.TaskID = resolveTask(m, s.DefaultTaskTitle)
	}
	return next
}

// SelectModel selects a model of the current backend and resolves its
// default task. Ids outside the current backend are ignored.
func (s State) SelectModel(id string) State {
	b := s.CurrentBackend()
	if b == nil {
		return s
	}
	m, ok := b.Manifest.FindModel(id)
	if !ok {
		return s
	}
	next := s
	next.Selection.ModelID = m.ModelID
	next.Selection.TaskID = resolveTask(m, s.DefaultTaskTitle)
	return next
}

// SelectTask selects a task of the current model. Ids outside the current
// model are ignored.
func (s State) SelectTask(id string) State {
	m, ok := s.CurrentModel()
	if !ok {
		return s
	}
	t, ok := m.FindTask(id)
	if !ok {
		return s
	}
	next := s
	next.Selection.TaskID = t.ID()
	return next
}

// revalidate re-resolves every level of the selection that no longer exists
func (s State) revalidate() Selection {
	sel := s.Selection
	b, ok := s.Backend(sel.BackendID)
	if !ok {
		return Selection{}
	}
	m, ok := b.Manifest.FindModel(sel.ModelID)
	if !ok {
		sel.ModelID, sel.TaskID = "", ""
		if m, ok := resolveModel(b); ok {
			sel.ModelID = m.ModelID
			sel.TaskID = resolveTask(m, s.DefaultTaskTitle)
		}
		return sel
	}
	if _, ok := m.FindTask(sel.TaskID); !ok {
		sel.TaskID = resolveTask(m, s.DefaultTaskTitle)
	}
	return sel
}

// resolveModel returns the backend's configured default model when it is in
// the manifest, otherwise the first model.
func resolveModel(b *Backend) (Model, bool) {
	if len(b.Manifest.Models) == 0 {
		return Model{}, false
	}
	if b.DefaultModelID != "" {
		if m, ok := b.Manifest.FindModel(b.DefaultModelID); ok {
			return m, true
		}
	}
	return b.Manifest.Models[0], true
}

// resolveTask returns the id of the task titled defaultTitle, otherwise the
// first task, otherwise "".
func resolveTask(m Model, defaultTitle string) string {
	if len(m.Tasks) == 0 {
		return ""
	}
	if defaultTitle != "" {
		for _, t := range m.Tasks {
			if t.TaskTitle == defaultTitle {
				return t.ID()
			}
		}
	}
	return m.Tasks[0].ID()
}

// StartQuery resets the job for a new query under the given generation
func (s State) StartQuery(generation uint64) State {
	s.Job = Job{Generation: generation, Progress: 0}
	s.Loading = true
	s.Error = ""
	s.FeedbackError = ""
	s.Answer = nil
	return s
}

// WithJobID records the job id returned on submission
func (s State) WithJobID(generation uint64, jobID string) State {
	if generation != s.Job.Generation {
		return s
	}
	s.Job.ID = jobID
	return s
}

// WithProgress records poll progress
func (s State) WithProgress(generation uint64, progress float64) State {
	if generation != s.Job.Generation {
		return s
	}
	s.Job.Progress = progress
	return s
}

// WithAnswer stores a finished answer
func (s State) WithAnswer(generation uint64, answer *Answer) State {
	if generation != s.Job.Generation {
		return s
	}
	s.Answer = answer
	if s.Job.ID == "" && answer != nil {
		s.Job.ID = answer.JobID
	}
	s.Loading = false
	return s
}

// WithError records a failed query
func (s State) WithError(generation uint64, err error) State {
	if generation != s.Job.Generation {
		return s
	}
	s.Error = err.Error()
	s.Loading = false
	return s
}

// WithFeedbackResult records the outcome of a feedback submission
func (s State) WithFeedbackResult(err error) State {
	s.SendingFeedback = false
	s.FeedbackError = ""
	if err != nil {
		s.FeedbackError = err.Error()
	}
	return s
}

// WithEditorYAML records the YAML currently open in the editor
func (s State) WithEditorYAML(yaml string) State {
	s.EditorYAML = yaml
	return s
}

// WithPendingYAML records YAML to hand to the editor
func (s State) WithPendingYAML(yaml string, appendMode bool) State {
	s.PendingYAML = yaml
	s.PendingYAMLAppend = appendMode
	return s
}

// EditorYAMLAfterApply returns the editor buffer once the pending YAML has
// been applied to it
func (s State) EditorYAMLAfterApply() string {
	return markdown.ApplyYAML(s.EditorYAML, s.PendingYAML, s.PendingYAMLAppend)
}

// WithPendingCommand records a command to hand to the terminal
func (s State) WithPendingCommand(cmd string) State {
	s.PendingCommand = cmd
	return s
}
