package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/clinicvoice-ai/session-orchestrator/internal/model"
)

// Manager is the registry of live runners, keyed by session id. Gateways
// attach a connection, deliver events, and detach; the manager guarantees one
// runner per id.
type Manager struct {
	deps Deps

	mu      sync.Mutex
	runners map[string]*Runner
}

// NewManager creates an empty registry.
func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps, runners: make(map[string]*Runner)}
}

// Attach starts (or reuses) the runner for a session and returns it. The
// runner goroutine is detached from the connection's lifetime; ctx bounds
// the whole process, not one websocket.
func (m *Manager) Attach(ctx context.Context, sessionID string, speaker Speaker) *Runner {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.runners[sessionID]; ok {
		select {
		case <-r.Done():
			// finished runner with the same id: replace it
		default:
			return r
		}
	}

	r := newRunner(sessionID, m.deps, speaker)
	m.runners[sessionID] = r
	go func() {
		r.run(ctx)
		m.mu.Lock()
		if m.runners[sessionID] == r {
			delete(m.runners, sessionID)
		}
		m.mu.Unlock()
	}()
	return r
}

// Get returns the live runner for a session, if any.
func (m *Manager) Get(sessionID string) (*Runner, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runners[sessionID]
	return r, ok
}

// Len reports the number of live runners.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runners)
}

// Shutdown ends every live session and waits for the runners to drain.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	runners := make([]*Runner, 0, len(m.runners))
	for _, r := range m.runners {
		runners = append(runners, r)
	}
	m.mu.Unlock()

	for _, r := range runners {
		r.Deliver(model.SessionEvent{Type: model.EventSessionEnd, Reason: "shutdown"})
	}
	for _, r := range runners {
		select {
		case <-r.Done():
		case <-ctx.Done():
			m.deps.Logger.Warn("shutdown timed out waiting for session", zap.String("session_id", r.id))
			return
		}
	}
}
