package assistant

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/kubestellar/console-assistant/pkg/markdown"
)

// StateObserver receives every new state snapshot. Snapshots are delivered in
// the order the transitions were applied. Observers must not call mutating
// Session methods from OnState.
type StateObserver interface {
	OnState(s State)
}

// StateObserverFunc adapts a function to StateObserver
type StateObserverFunc func(s State)

func (f StateObserverFunc) OnState(s State) { f(s) }

// JobOutcome describes one finished query, successful or not
type JobOutcome struct {
	BackendID string
	ModelID   string
	TaskID    string
	Query     string
	JobID     string
	Answer    *Answer
	Err       error
	Started   time.Time
	Finished  time.Time
}

// Recorder persists query outcomes and feedback votes
type Recorder interface {
	RecordJob(ctx context.Context, outcome JobOutcome) error
	RecordFeedback(ctx context.Context, backendID, jobID string, good bool) error
}

// Session owns the assistant state for one console user. All transitions
// are serialized; observers see each resulting snapshot.
type Session struct {
	mu       sync.Mutex
	notifyMu sync.Mutex
	// initMu keeps discovery runs from interleaving their add and prune passes
	initMu     sync.Mutex
	state      State
	base       *Client
	client     *Client
	generation uint64

	observers map[int]StateObserver
	nextObsID int
	recorder  Recorder
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithRecorder persists every query outcome and feedback vote
func WithRecorder(r Recorder) SessionOption {
	return func(s *Session) { s.recorder = r }
}

// WithObserver subscribes an observer from the start
func WithObserver(o StateObserver) SessionOption {
	return func(s *Session) {
		s.observers[s.nextObsID] = o
		s.nextObsID++
	}
}

// NewSession creates a session with no backends
func NewSession(client *Client, opts ...SessionOption) *Session {
	s := &Session{
		state:     NewState(),
		base:      client,
		client:    client,
		observers: make(map[int]StateObserver),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current snapshot
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Client returns the backend client currently in use
func (s *Session) Client() *Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// Subscribe registers an observer and returns a function that removes it
func (s *Session) Subscribe(o StateObserver) func() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = o
	return func() {
		s.notifyMu.Lock()
		defer s.notifyMu.Unlock()
		delete(s.observers, id)
	}
}

// update applies fn to the state and notifies observers with the result
func (s *Session) update(fn func(State) State) State {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.state = fn(s.state)
	snapshot := s.state
	s.mu.Unlock()

	for _, o := range s.observers {
		o.OnState(snapshot)
	}
	return snapshot
}

// Initialize applies the host configuration and discovers its backends.
// Backends are added as they arrive; ones missing from the configuration or
// failing discovery are removed once every request has settled. Concurrent
// calls run one after the other.
func (s *Session) Initialize(ctx context.Context, hc HostConfig, resolver CredentialResolver) DiscoveryResult {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	s.mu.Lock()
	s.client = s.base.WithPollSettings(hc)
	client := s.client
	s.mu.Unlock()

	s.update(func(st State) State {
		st = st.WithDefaultBackendID(hc.DefaultBackendID)
		if hc.DefaultTaskTitle != "" {
			st = st.WithDefaultTaskTitle(hc.DefaultTaskTitle)
		}
		if hc.HideAdvancedTab != nil {
			st = st.WithHideAdvancedTab(*hc.HideAdvancedTab)
		}
		st.FetchingBackends = true
		st.FetchingBackendsPartial = false
		st.FetchingBackendsError = ""
		return st
	})

	result := client.DiscoverAll(ctx, hc.Backends, resolver, (*sessionDiscovery)(s))

	found := make(map[string]bool, len(result.Backends))
	for _, b := range result.Backends {
		found[b.ID] = true
	}
	s.update(func(st State) State {
		for _, b := range st.Backends {
			if !found[b.ID] {
				st = st.RemoveBackend(b.ID)
			}
		}
		if st.Selection.BackendID == "" && len(st.Backends) > 0 {
			st = st.SelectBackend(st.Backends[0].ID)
		}
		st.FetchingBackends = false
		if len(result.Backends) == 0 && len(hc.Backends) > 0 {
			st.FetchingBackendsError = discoveryFailureMessage(result.Errors)
		}
		return st
	})

	log.Printf("[assistant] discovered %d/%d backends", len(result.Backends), len(hc.Backends))
	return result
}

// Refresh re-runs discovery; it is Initialize under another name so callers
// can express intent.
func (s *Session) Refresh(ctx context.Context, hc HostConfig, resolver CredentialResolver) DiscoveryResult {
	return s.Initialize(ctx, hc, resolver)
}

func discoveryFailureMessage(errs map[string]error) string {
	if len(errs) == 0 {
		return "no assistant backend could be discovered"
	}
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return "no assistant backend could be discovered: " + strings.Join(msgs, "; ")
}

// sessionDiscovery feeds discovery results into the session as they arrive
type sessionDiscovery Session

func (d *sessionDiscovery) OnBackendDiscovered(b *Backend) {
	(*Session)(d).update(func(st State) State {
		st = st.AddBackend(b)
		st.FetchingBackendsPartial = true
		return st
	})
}

func (d *sessionDiscovery) OnBackendFailed(BackendDescriptor, error) {}

// SelectBackend selects a backend by id
func (s *Session) SelectBackend(id string) State {
	return s.update(func(st State) State { return st.SelectBackend(id) })
}

// SelectModel selects a model of the current backend
func (s *Session) SelectModel(id string) State {
	return s.update(func(st State) State { return st.SelectModel(id) })
}

// SelectTask selects a task of the current model
func (s *Session) SelectTask(id string) State {
	return s.update(func(st State) State { return st.SelectTask(id) })
}

// SetEditorYAML records the YAML open in the editor; it is sent as context
// with the next query.
func (s *Session) SetEditorYAML(yaml string) State {
	return s.update(func(st State) State { return st.WithEditorYAML(yaml) })
}

// AskResult is the outcome of an asynchronous query
type AskResult struct {
	Answer *Answer
	Err    error
}

// Ask sends a query with the current selection, polls for the answer and
// stores it. Asking again while a query is in flight supersedes it: the
// older query's progress and result are discarded and it returns
// ErrSuperseded.
func (s *Session) Ask(ctx context.Context, query string) (*Answer, error) {
	gen, st, started := s.begin()
	return s.run(ctx, gen, st, started, query)
}

// AskAsync starts a query and returns its generation once the state has been
// reset for it. The outcome is delivered on the returned channel.
func (s *Session) AskAsync(ctx context.Context, query string) (uint64, <-chan AskResult) {
	gen, st, started := s.begin()
	done := make(chan AskResult, 1)
	go func() {
		answer, err := s.run(ctx, gen, st, started, query)
		done <- AskResult{Answer: answer, Err: err}
	}()
	return gen, done
}

// begin takes a new generation and resets the job state for it in the same
// transition, so generations reach the state in increasing order.
func (s *Session) begin() (uint64, State, time.Time) {
	started := time.Now()
	var gen uint64
	st := s.update(func(st State) State {
		s.generation++
		gen = s.generation
		return st.StartQuery(gen)
	})
	return gen, st, started
}

func (s *Session) run(ctx context.Context, gen uint64, st State, started time.Time, query string) (*Answer, error) {
	client := s.Client()
	outcome := JobOutcome{
		BackendID: st.Selection.BackendID,
		ModelID:   st.Selection.ModelID,
		TaskID:    st.Selection.TaskID,
		Query:     query,
		Started:   started,
	}

	b := st.CurrentBackend()
	var err error
	switch {
	case b == nil:
		err = ErrNoBackend
	case st.Selection.ModelID == "":
		err = ErrNoModel
	case st.Selection.TaskID == "":
		err = ErrNoTask
	}
	if err != nil {
		s.update(func(st State) State { return st.WithError(gen, err) })
		return nil, err
	}

	prompt := buildPrompt(query, st.EditorYAML)
	answer, err := client.SubmitQuery(ctx, b, st.Selection.ModelID, st.Selection.TaskID, prompt)
	if err != nil {
		return s.finish(ctx, gen, outcome, nil, err)
	}
	outcome.JobID = answer.JobID
	s.update(func(st State) State { return st.WithJobID(gen, answer.JobID) })

	if !answer.Complete() {
		progress := ProgressFunc(func(p float64) {
			s.update(func(st State) State { return st.WithProgress(gen, p) })
		})
		answer, err = client.PollForAnswer(ctx, b, answer.JobID, progress)
	}
	return s.finish(ctx, gen, outcome, answer, err)
}

func (s *Session) finish(ctx context.Context, gen uint64, outcome JobOutcome, answer *Answer, err error) (*Answer, error) {
	outcome.Answer = answer
	outcome.Err = err
	outcome.Finished = time.Now()
	if s.recorder != nil {
		if rerr := s.recorder.RecordJob(context.WithoutCancel(ctx), outcome); rerr != nil {
			log.Printf("[assistant] failed to record job %s: %v", outcome.JobID, rerr)
		}
	}

	s.mu.Lock()
	stale := gen != s.generation
	s.mu.Unlock()
	if stale {
		log.Printf("[assistant] discarding result of superseded job %s", outcome.JobID)
		return nil, ErrSuperseded
	}

	if err != nil {
		log.Printf("[assistant] query failed: %v", err)
		s.update(func(st State) State { return st.WithError(gen, err) })
		return nil, err
	}
	s.update(func(st State) State { return st.WithAnswer(gen, answer) })
	return answer, nil
}

// buildPrompt prefixes the query with the editor content as a fenced block
func buildPrompt(query, editorYAML string) string {
	if editorYAML == "" {
		return query
	}
	if !strings.HasSuffix(editorYAML, "\n") {
		editorYAML += "\n"
	}
	return "```\n" + editorYAML + "```\n" + query
}

// SendFeedback votes on the current job
func (s *Session) SendFeedback(ctx context.Context, good bool) error {
	st := s.State()
	b := st.CurrentBackend()
	if b == nil {
		return ErrNoBackend
	}
	if st.Job.ID == "" {
		return ErrNoJob
	}

	s.update(func(st State) State {
		st.SendingFeedback = true
		st.FeedbackError = ""
		return st
	})

	err := s.Client().SubmitFeedback(ctx, b, st.Job.ID, good)
	s.update(func(st State) State { return st.WithFeedbackResult(err) })
	if err != nil {
		log.Printf("[assistant] failed to send feedback for job %s: %v", st.Job.ID, err)
		return err
	}

	if s.recorder != nil {
		if rerr := s.recorder.RecordFeedback(ctx, b.ID, st.Job.ID, good); rerr != nil {
			log.Printf("[assistant] failed to record feedback for job %s: %v", st.Job.ID, rerr)
		}
	}
	return nil
}

// ApplyCodeBlock hands a code block from the answer to the editor or the
// terminal depending on its language.
func (s *Session) ApplyCodeBlock(block markdown.CodeBlock, appendMode bool) (State, error) {
	switch markdown.TargetFor(block.Language) {
	case markdown.TargetEditor:
		return s.update(func(st State) State { return st.WithPendingYAML(block.Code, appendMode) }), nil
	case markdown.TargetTerminal:
		return s.update(func(st State) State { return st.WithPendingCommand(block.Code) }), nil
	default:
		return s.State(), fmt.Errorf("%w: %s", ErrUnsupportedLanguage, block.Language)
	}
}

// CodeBlocks returns the code blocks of the current answer
func (s *Session) CodeBlocks() []markdown.CodeBlock {
	st := s.State()
	if st.Answer == nil {
		return nil
	}
	return markdown.ExtractCodeBlocks(st.Answer.TaskOutput)
}

// IsSuperseded reports whether err means a newer query replaced this one
func IsSuperseded(err error) bool {
	return errors.Is(err, ErrSuperseded)
}
