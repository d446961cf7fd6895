// Package session owns conversation-session lifecycle. Sessions are
// created, looked up and destroyed through the Manager; there is no
// ambient process-wide session state.
package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"nbagent/pkg/agent"
	"nbagent/pkg/config"
	"nbagent/pkg/logx"
	"nbagent/pkg/notebook"
	"nbagent/pkg/orchestrator"
)

// Session binds one conversation's orchestrator to its id.
type Session struct {
	ID           string
	Orchestrator *orchestrator.Orchestrator
}

// Manager creates, resolves and destroys sessions. Destroying a session
// is the eviction point for client disconnects.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	cfg      config.AgentConfig
	streamer *agent.Streamer
	runtime  notebook.Runtime
	opts     []orchestrator.Option
	logger   *logx.Logger
}

// NewManager creates a session manager. opts are applied to every
// orchestrator the manager creates.
func NewManager(cfg config.AgentConfig, streamer *agent.Streamer, runtime notebook.Runtime, opts ...orchestrator.Option) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		streamer: streamer,
		runtime:  runtime,
		opts:     opts,
		logger:   logx.NewLogger("session"),
	}
}

// Create starts a new session and returns it.
func (m *Manager) Create() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	s := &Session{
		ID:           id,
		Orchestrator: orchestrator.New(id, m.cfg, m.streamer, m.runtime, m.opts...),
	}
	m.sessions[id] = s
	m.logger.Info("created session %s", id)
	return s
}

// Get resolves a session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("unknown session %s", id)
	}
	return s, nil
}

// Destroy evicts a session and clears its state. Destroying an unknown
// id is a no-op.
func (m *Manager) Destroy(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return
	}
	s.Orchestrator.Clear()
	m.logger.Info("destroyed session %s", id)
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
