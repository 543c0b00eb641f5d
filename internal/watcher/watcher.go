package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"browser-steps/internal/session"

	"github.com/fsnotify/fsnotify"
)

const debounceInterval = 500 * time.Millisecond

// LoadFunc reads the script file into a template sequence.
type LoadFunc func(path string) ([]session.Template, error)

// ReloadFunc receives a freshly loaded sequence.
type ReloadFunc func([]session.Template)

// Watcher reloads a script file whenever it changes on disk.
type Watcher struct {
	path     string
	load     LoadFunc
	reload   ReloadFunc
	debounce time.Duration

	fsWatcher *fsnotify.Watcher
	closeOnce sync.Once
	mu        sync.Mutex // serialises reloads
}

// New starts watching the directory that holds path. The directory is
// watched rather than the file so that editors replacing the file by
// rename are still seen.
func New(path string, load LoadFunc, reload ReloadFunc) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsW.Add(filepath.Dir(abs)); err != nil {
		fsW.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:      abs,
		load:      load,
		reload:    reload,
		debounce:  debounceInterval,
		fsWatcher: fsW,
	}, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Run processes fsnotify events with debouncing until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Close()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	slog.Info("watching script", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			// Debounce: reset timer on each event.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				if err := w.Reload(); err != nil {
					slog.Warn("script reload failed, keeping previous sequence", "path", w.path, "error", err)
				}
			})

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "path", w.path, "error", err)
		}
	}
}

// Reload loads the script now and hands it to the reload callback. On
// error the callback is not called.
func (w *Watcher) Reload() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	steps, err := w.load(w.path)
	if err != nil {
		return err
	}
	w.reload(steps)
	slog.Info("script reloaded", "path", w.path, "steps", len(steps))
	return nil
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsWatcher.Close()
	})
	return err
}
