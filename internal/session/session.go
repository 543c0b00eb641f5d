package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the execution status of a command.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is final for the current run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Template describes one browser action, independent of any connection.
type Template struct {
	Type     string  `json:"type" yaml:"type" toml:"type"`
	Selector *string `json:"selector" yaml:"selector" toml:"selector"`
	Value    *string `json:"value" yaml:"value" toml:"value"`
}

// Command is a tracked execution of a Template.
type Command struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Selector    *string    `json:"selector"`
	Value       *string    `json:"value"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

func newCommand(t Template, now time.Time) Command {
	return Command{
		ID:        uuid.New().String(),
		Type:      t.Type,
		Selector:  t.Selector,
		Value:     t.Value,
		Status:    StatusPending,
		CreatedAt: now,
	}
}

// Template returns the action description the command was cloned from.
func (c Command) Template() Template {
	return Template{Type: c.Type, Selector: c.Selector, Value: c.Value}
}

func (c *Command) reset() {
	c.Status = StatusPending
	c.CompletedAt = nil
	c.Error = ""
}

// Counts aggregates commands by status.
type Counts struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

func countCommands(cmds []Command) Counts {
	c := Counts{Total: len(cmds)}
	for _, cmd := range cmds {
		switch cmd.Status {
		case StatusPending:
			c.Pending++
		case StatusCompleted:
			c.Completed++
		case StatusFailed:
			c.Failed++
		}
	}
	return c
}

// Info is a read-only summary of an open connection session.
type Info struct {
	ID        string     `json:"connection_id"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	Counts
}

// connSession is the server-side state for one connected executor.
// Fields below mu are guarded by it; the notify channel is owned by Manager.
type connSession struct {
	id        string
	createdAt time.Time
	notify    chan struct{}

	mu         sync.Mutex
	commands   []Command
	generation uint64
}

func newConnSession(id string, templates []Template, now time.Time) *connSession {
	cmds := make([]Command, len(templates))
	for i, t := range templates {
		cmds[i] = newCommand(t, now)
	}
	return &connSession{
		id:        id,
		createdAt: now,
		notify:    make(chan struct{}, 1),
		commands:  cmds,
	}
}

// signal wakes the dispatch loop without blocking. A pending wake-up is
// enough; extra signals coalesce.
func (s *connSession) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *connSession) snapshot() ([]Command, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Command, len(s.commands))
	copy(out, s.commands)
	return out, s.generation
}

func (s *connSession) complete(commandID string, ok bool, errMsg string, now time.Time) (Command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.commands {
		cmd := &s.commands[i]
		if cmd.ID != commandID {
			continue
		}
		if ok {
			cmd.Status = StatusCompleted
		} else {
			cmd.Status = StatusFailed
		}
		completedAt := now
		cmd.CompletedAt = &completedAt
		if errMsg != "" {
			cmd.Error = errMsg
		}
		return *cmd, true
	}
	return Command{}, false
}

func (s *connSession) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.commands {
		s.commands[i].reset()
	}
	s.generation++
}

func (s *connSession) info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Info{ID: s.id, CreatedAt: s.createdAt, Counts: countCommands(s.commands)}
}
