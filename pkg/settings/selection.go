package settings

import (
	"log"
	"sync"

	"github.com/kubestellar/console-assistant/pkg/assistant"
)

// SelectionObserver stores the session's selection in the preferences
// whenever it changes, so the next session starts from it.
type SelectionObserver struct {
	manager *Manager
	mu      sync.Mutex
	last    assistant.Selection
}

// SelectionObserver returns an observer bound to this manager
func (m *Manager) SelectionObserver() *SelectionObserver {
	p := m.Preferences()
	return &SelectionObserver{
		manager: m,
		last:    assistant.Selection{BackendID: p.BackendID, ModelID: p.ModelID, TaskID: p.TaskID},
	}
}

func (o *SelectionObserver) OnState(s assistant.State) {
	// an empty selection happens while backends are being rediscovered
	if s.Selection.BackendID == "" {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if s.Selection == o.last {
		return
	}
	o.last = s.Selection
	if err := o.manager.RememberSelection(s.Selection); err != nil {
		log.Printf("[settings] failed to remember selection: %v", err)
	}
}

// RestoreSelection re-applies a remembered selection to the session. Levels
// that no longer exist are skipped and keep the session's defaults.
func RestoreSelection(session *assistant.Session, p Preferences) assistant.State {
	st := session.State()
	if p.BackendID == "" {
		return st
	}
	if _, ok := st.Backend(p.BackendID); !ok {
		return st
	}
	st = session.SelectBackend(p.BackendID)
	if p.ModelID != "" {
		st = session.SelectModel(p.ModelID)
	}
	if p.TaskID != "" {
		st = session.SelectTask(p.TaskID)
	}
	return st
}
