// Package dispatch runs the per-connection loop that offers commands to an
// executor and detects when its whole sequence is done.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"browser-steps/internal/protocol"
	"browser-steps/internal/session"
)

// State is the lifecycle state of a Loop.
type State string

const (
	StateStarting  State = "starting"
	StateStreaming State = "streaming"
	StateDraining  State = "draining"
	StateClosed    State = "closed"
)

// Emitter delivers one event to the executor.
type Emitter interface {
	Emit(protocol.Event) error
}

// Heartbeater is implemented by emitters whose transport needs keep-alive
// traffic while no events are flowing.
type Heartbeater interface {
	Heartbeat() error
}

// Registry is the view of the session registry the loop needs.
type Registry interface {
	Commands(id string) ([]session.Command, uint64, error)
	Notify(id string) (<-chan struct{}, error)
	Close(id string) bool
}

// Options tunes a Loop.
type Options struct {
	// PollInterval bounds the wait between passes when nothing changes.
	PollInterval time.Duration
	// Pacing is the delay between individually emitted commands.
	Pacing time.Duration
	// KeepAlive is the heartbeat interval; zero disables heartbeats.
	KeepAlive time.Duration
	// ResetRedeliver makes a registry reset clear the delivered set so
	// reset commands are offered again.
	ResetRedeliver bool
}

// DefaultOptions returns the stock timings.
func DefaultOptions() Options {
	return Options{
		PollInterval:   time.Second,
		Pacing:         100 * time.Millisecond,
		KeepAlive:      15 * time.Second,
		ResetRedeliver: true,
	}
}

// Loop streams one session's commands over an Emitter.
type Loop struct {
	connID   string
	registry Registry
	emitter  Emitter
	opts     Options

	mu    sync.Mutex
	state State

	delivered  map[string]struct{}
	generation uint64
	closeOnce  sync.Once
}

// New creates a loop for an already opened session.
func New(connID string, registry Registry, emitter Emitter, opts Options) *Loop {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions().PollInterval
	}
	return &Loop{
		connID:    connID,
		registry:  registry,
		emitter:   emitter,
		opts:      opts,
		state:     StateStarting,
		delivered: make(map[string]struct{}),
	}
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Run drives the loop until the sequence completes, ctx is cancelled, the
// session disappears or the emitter fails. The session is always closed on
// return. It returns nil only on normal completion.
func (l *Loop) Run(ctx context.Context) error {
	defer l.teardown()

	if err := l.emit(protocol.NewConnectedEvent(l.connID)); err != nil {
		return err
	}
	l.setState(StateStreaming)

	notify, err := l.registry.Notify(l.connID)
	if err != nil {
		return err
	}

	var (
		hb        Heartbeater
		heartbeat <-chan time.Time
	)
	if h, ok := l.emitter.(Heartbeater); ok && l.opts.KeepAlive > 0 {
		ticker := time.NewTicker(l.opts.KeepAlive)
		defer ticker.Stop()
		hb, heartbeat = h, ticker.C
	}

	timer := time.NewTimer(l.opts.PollInterval)
	defer timer.Stop()

	for {
		done, err := l.pass(ctx)
		if err != nil {
			return err
		}
		if done {
			l.setState(StateDraining)
			if err := l.emit(protocol.NewAllCompletedEvent()); err != nil {
				return err
			}
			slog.Info("all commands completed, closing stream", "connection_id", l.connID)
			return nil
		}

		resetTimer(timer, l.opts.PollInterval)
	wait:
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case _, ok := <-notify:
				if !ok {
					return fmt.Errorf("%w: %s", session.ErrSessionNotFound, l.connID)
				}
				break wait
			case <-timer.C:
				break wait
			case <-heartbeat:
				if err := hb.Heartbeat(); err != nil {
					return fmt.Errorf("heartbeat: %w", err)
				}
			}
		}
	}
}

// pass offers every pending, undelivered command in sequence order and
// reports whether the whole sequence is finished.
func (l *Loop) pass(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	cmds, gen, err := l.registry.Commands(l.connID)
	if err != nil {
		return false, err
	}
	if gen != l.generation {
		l.generation = gen
		if l.opts.ResetRedeliver {
			l.delivered = make(map[string]struct{})
		}
	}

	sent := 0
	for _, cmd := range cmds {
		if cmd.Status != session.StatusPending {
			continue
		}
		if _, ok := l.delivered[cmd.ID]; ok {
			continue
		}

		if sent > 0 && l.opts.Pacing > 0 {
			if err := sleep(ctx, l.opts.Pacing); err != nil {
				return false, err
			}
		}
		if err := l.emit(protocol.NewCommandEvent(cmd.ID, cmd.Type, cmd.Selector, cmd.Value)); err != nil {
			return false, err
		}
		l.delivered[cmd.ID] = struct{}{}
		sent++
		slog.Debug("sent command", "connection_id", l.connID, "command_id", cmd.ID, "type", cmd.Type)
	}

	// Statuses may have moved while we were emitting.
	cmds, _, err = l.registry.Commands(l.connID)
	if err != nil {
		return false, err
	}
	return l.finished(cmds), nil
}

// finished reports whether every command is terminal and was delivered.
func (l *Loop) finished(cmds []session.Command) bool {
	for _, cmd := range cmds {
		if !cmd.Status.Terminal() {
			return false
		}
		if _, ok := l.delivered[cmd.ID]; !ok {
			return false
		}
	}
	return true
}

func (l *Loop) emit(evt protocol.Event) error {
	if err := l.emitter.Emit(evt); err != nil {
		return fmt.Errorf("emit %s: %w", evt.Type, err)
	}
	return nil
}

func (l *Loop) teardown() {
	l.closeOnce.Do(func() {
		l.registry.Close(l.connID)
		l.setState(StateClosed)
	})
}

// IsDisconnect reports whether err from Run means the client went away or
// the session was closed server side, rather than an unexpected failure.
func IsDisconnect(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, session.ErrSessionNotFound)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
