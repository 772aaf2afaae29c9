package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/weavegraph/core/internal/ai"
	"github.com/weavegraph/core/internal/store"
)

// Manager owns one Session per workflow, creating its PlaywrightDriver
// lazily on first use and tearing it down on Release. Grounded on the
// teacher's cmd/orchestrator/container.Container, which builds its
// service graph once and hands out shared references; here the graph is
// per-workflow instead of per-process, so Manager keys it by workflow ID
// rather than building it once at startup.
type Manager struct {
	headless  bool
	backend   store.Backend
	events    EventPublisher
	generator ai.TextGenerator

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a browser session Manager.
func NewManager(headless bool, backend store.Backend, events EventPublisher, generator ai.TextGenerator) *Manager {
	return &Manager{
		headless:  headless,
		backend:   backend,
		events:    events,
		generator: generator,
		sessions:  make(map[string]*Session),
	}
}

// Get returns the Session for workflowID, launching a fresh browser and
// opening its main tab if none exists yet.
func (m *Manager) Get(ctx context.Context, workflowID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.sessions[workflowID]; ok {
		return sess, nil
	}

	driver, err := NewPlaywrightDriver(m.headless)
	if err != nil {
		return nil, fmt.Errorf("launch browser for workflow %s: %w", workflowID, err)
	}
	sess, err := New(ctx, workflowID, driver, m.backend, m.events, m.generator)
	if err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("open session for workflow %s: %w", workflowID, err)
	}
	m.sessions[workflowID] = sess
	return sess, nil
}

// Release closes and discards the Session for workflowID, if one exists.
// Call this once a workflow's VNC/browser lifecycle ends.
func (m *Manager) Release(ctx context.Context, workflowID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[workflowID]
	delete(m.sessions, workflowID)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return sess.Close(ctx)
}

// CloseAll releases every open session, for use during process shutdown.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var firstErr error
	for id, sess := range sessions {
		if err := sess.Close(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close session for workflow %s: %w", id, err)
		}
	}
	return firstErr
}
