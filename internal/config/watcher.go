package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/orchestra-dev/orchestra/internal/logging"
)

// ReloadEvent describes a change to a watched configuration file.
type ReloadEvent struct {
	Path string
	Op   fsnotify.Op
}

// Watcher emits ReloadEvents when the config file changes on disk.
// Long-running surfaces (the dashboard) subscribe so edits to the config
// take effect without a restart.
type Watcher struct {
	configDir string
	logger    *logging.Logger
	events    chan ReloadEvent
}

// NewWatcher creates a watcher for the given config directory.
// A nil logger falls back to a no-op logger.
func NewWatcher(configDir string, logger *logging.Logger) *Watcher {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Watcher{
		configDir: configDir,
		logger:    logger.WithComponent("config"),
		events:    make(chan ReloadEvent, 16),
	}
}

// Events returns the channel on which reload events are delivered.
// The channel is closed when the watcher stops.
func (w *Watcher) Events() <-chan ReloadEvent {
	return w.events
}

// Start begins watching. It returns immediately; events are delivered on
// Events() until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory rather than the file: editors replace config
	// files via rename, which would drop a file-level watch.
	if err := fsw.Add(w.configDir); err != nil {
		fsw.Close()
		return err
	}

	go func() {
		defer fsw.Close()
		defer close(w.events)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != "config.yaml" {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case w.events <- ReloadEvent{Path: ev.Name, Op: ev.Op}:
				default:
					// Slow subscriber; drop rather than block the loop.
				}
				w.logger.Info("config file changed", "path", ev.Name, "op", ev.Op.String())
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.logger.Error("config watcher error", "error", err)
			}
		}
	}()
	return nil
}
