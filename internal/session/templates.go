package session

import (
	"sync"
	"time"
)

// TemplateStore holds the canonical command sequence that every new
// connection receives a fresh copy of.
type TemplateStore struct {
	mu       sync.RWMutex
	commands []Command
	now      func() time.Time
}

// NewTemplateStore creates a store with the given initial sequence.
func NewTemplateStore(templates []Template) *TemplateStore {
	ts := &TemplateStore{now: func() time.Time { return time.Now().UTC() }}
	ts.Define(templates)
	return ts
}

// Define replaces the canonical sequence.
func (ts *TemplateStore) Define(templates []Template) {
	now := ts.now()
	cmds := make([]Command, len(templates))
	for i, t := range templates {
		cmds[i] = newCommand(t, now)
	}

	ts.mu.Lock()
	ts.commands = cmds
	ts.mu.Unlock()
}

// Templates returns the action descriptions in sequence order.
func (ts *TemplateStore) Templates() []Template {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	out := make([]Template, len(ts.commands))
	for i, cmd := range ts.commands {
		out[i] = cmd.Template()
	}
	return out
}

// Snapshot returns a copy of the canonical commands.
func (ts *TemplateStore) Snapshot() []Command {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	out := make([]Command, len(ts.commands))
	copy(out, ts.commands)
	return out
}

// Counts aggregates the canonical commands by status.
func (ts *TemplateStore) Counts() Counts {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return countCommands(ts.commands)
}

// PendingCount returns the number of canonical commands still pending.
func (ts *TemplateStore) PendingCount() int {
	return ts.Counts().Pending
}

// Len returns the length of the canonical sequence.
func (ts *TemplateStore) Len() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.commands)
}

// Reset puts every canonical command back to pending.
func (ts *TemplateStore) Reset() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	for i := range ts.commands {
		ts.commands[i].reset()
	}
}
