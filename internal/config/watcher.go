package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounce = 500 * time.Millisecond

// Watcher watches the config file and calls onReload after each change.
type Watcher struct {
	path     string
	onReload func(*Config, error)
	current  *Config
	mu       sync.RWMutex
	reloads  atomic.Uint32
	fsw      *fsnotify.Watcher
	done     chan struct{}
	reloadMu sync.Mutex
	closed   bool
}

// NewWatcher loads the initial config and starts watching for changes.
func NewWatcher(path string, onReload func(*Config, error)) (*Watcher, error) {
	cfg, err := LoadAndValidate(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial config: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Editors often replace the file rather than write to it, so the parent
	// directory is watched and events are filtered by name.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	cw := &Watcher{
		path:     filepath.Clean(path),
		onReload: onReload,
		current:  cfg,
		fsw:      fsw,
		done:     make(chan struct{}),
	}

	go cw.watch()

	return cw, nil
}

func (cw *Watcher) watch() {
	defer close(cw.done)

	var timer *time.Timer
	for {
		select {
		case event, ok := <-cw.fsw.Events:
			if !ok {
				if timer != nil {
					timer.Stop()
				}
				return
			}

			if filepath.Clean(event.Name) != cw.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, cw.reload)

		case err, ok := <-cw.fsw.Errors:
			if !ok {
				return
			}
			slog.Error("Watcher error", "error", err)
		}
	}
}

func (cw *Watcher) reload() {
	cw.reloadMu.Lock()
	defer cw.reloadMu.Unlock()

	if cw.closed {
		return
	}

	count := cw.reloads.Add(1)
	slog.Info("Reloading config file", "path", cw.path, "count", count)

	cfg, err := LoadAndValidate(cw.path)
	if err != nil {
		slog.Error("Failed to reload config", "error", err)
		cw.onReload(nil, err)
		return
	}

	cw.mu.Lock()
	cw.current = cfg
	cw.mu.Unlock()

	slog.Info("Config reloaded successfully", "count", count)
	cw.onReload(cfg, nil)
}

// Snapshot returns the current config (thread-safe).
func (cw *Watcher) Snapshot() *Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()

	return cw.current
}

// ReloadCount returns the number of reload attempts so far.
func (cw *Watcher) ReloadCount() uint32 {
	return cw.reloads.Load()
}

// Close stops watching and waits for a reload in progress to finish.
// Reloads scheduled after Close are dropped.
func (cw *Watcher) Close() error {
	err := cw.fsw.Close()
	<-cw.done

	cw.reloadMu.Lock()
	cw.closed = true
	cw.reloadMu.Unlock()

	return err
}
