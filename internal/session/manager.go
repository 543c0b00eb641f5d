package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// historySize is how many closed sessions are remembered.
const historySize = 50

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrMaxSessions     = errors.New("maximum session limit reached")
)

// Manager is the registry of open connection sessions. Each session owns
// an independent copy of the template sequence.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*connSession
	index       map[string]string // command ID → connection ID
	templates   *TemplateStore
	maxSessions int
	history     *RingBuffer[Info]
	now         func() time.Time
}

// NewManager creates a registry that clones commands from templates.
// maxSessions <= 0 means no limit.
func NewManager(templates *TemplateStore, maxSessions int) *Manager {
	return &Manager{
		sessions:    make(map[string]*connSession),
		index:       make(map[string]string),
		templates:   templates,
		maxSessions: maxSessions,
		history:     NewRingBuffer[Info](historySize),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Open registers a new session holding a fresh copy of the template
// sequence and returns its connection ID.
func (m *Manager) Open() (string, error) {
	templates := m.templates.Templates()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		return "", fmt.Errorf("%w (%d)", ErrMaxSessions, m.maxSessions)
	}

	id := uuid.New().String()
	sess := newConnSession(id, templates, m.now())
	for _, cmd := range sess.commands {
		m.index[cmd.ID] = id
	}
	m.sessions[id] = sess

	slog.Debug("session opened", "connection_id", id, "commands", len(sess.commands))
	return id, nil
}

// Close removes a session and all of its commands. It reports whether the
// session was present; closing an unknown session is a no-op.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		for _, cmd := range sess.commands {
			delete(m.index, cmd.ID)
		}
		close(sess.notify)

		info := sess.info()
		closedAt := m.now()
		info.ClosedAt = &closedAt
		m.history.Write(info)
	}
	m.mu.Unlock()

	if ok {
		slog.Debug("session closed", "connection_id", id)
	}
	return ok
}

// FindCommand resolves a command ID to its owning session.
func (m *Manager) FindCommand(commandID string) (string, Command, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	connID, ok := m.index[commandID]
	if !ok {
		return "", Command{}, false
	}
	sess, ok := m.sessions[connID]
	if !ok {
		return "", Command{}, false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	for _, cmd := range sess.commands {
		if cmd.ID == commandID {
			return connID, cmd, true
		}
	}
	return "", Command{}, false
}

// Complete records the outcome of a command: completed when ok, failed
// otherwise. It returns the updated command, or false if no open session
// owns the ID. The owning dispatch loop is woken.
func (m *Manager) Complete(commandID string, ok bool, errMsg string) (Command, bool) {
	now := m.now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	connID, found := m.index[commandID]
	if !found {
		return Command{}, false
	}
	sess, found := m.sessions[connID]
	if !found {
		return Command{}, false
	}

	cmd, found := sess.complete(commandID, ok, errMsg, now)
	if found {
		sess.signal()
	}
	return cmd, found
}

// Commands returns a snapshot of a session's commands together with its
// reset generation.
func (m *Manager) Commands(id string) ([]Command, uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	cmds, gen := sess.snapshot()
	return cmds, gen, nil
}

// Notify returns a channel that receives a value whenever the session's
// commands change. The channel is closed when the session is closed.
func (m *Manager) Notify(id string) (<-chan struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess.notify, nil
}

// ResetAll puts every command of every open session back to pending and
// returns the number of sessions affected.
func (m *Manager) ResetAll() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sess := range m.sessions {
		sess.reset()
		sess.signal()
	}
	return len(m.sessions)
}

// Get returns a summary of one session.
func (m *Manager) Get(id string) (Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[id]
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess.info(), nil
}

// List returns summaries of all open sessions.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Info, 0, len(m.sessions))
	for _, sess := range m.sessions {
		result = append(result, sess.info())
	}
	return result
}

// History returns summaries of recently closed sessions, oldest first,
// with their final counts.
func (m *Manager) History() []Info {
	return m.history.ReadAll()
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown closes every open session, which wakes and ends their loops.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.Close(id)
	}
}
