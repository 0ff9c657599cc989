package costs

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherConfig contains configuration for the pricing file watcher.
type WatcherConfig struct {
	// Path is the pricing file to watch.
	Path string

	// DebounceInterval is the time to wait before reloading after a change
	// is detected (default: 100ms). Editors frequently emit several events
	// per save; debouncing collapses them into one reload.
	DebounceInterval time.Duration
}

// Watcher watches a pricing file and hot-reloads the cost table when it
// changes. Reload failures keep the previous table in place.
type Watcher struct {
	table   *Table
	config  WatcherConfig
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	mu       sync.Mutex
	running  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWatcher creates a watcher that updates table from the configured file.
func NewWatcher(table *Table, config WatcherConfig) (*Watcher, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("pricing watcher path cannot be empty")
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 100 * time.Millisecond
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		table:   table,
		config:  config,
		watcher: fsw,
		logger:  slog.Default().With("component", "costs.watcher"),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Watch blocks, reloading the table on file changes, until the context is
// cancelled or Stop is called.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(w.doneCh)
	}()

	// Watch the directory rather than the file itself: editors replace
	// files on save, which would otherwise drop the watch.
	dir := filepath.Dir(w.config.Path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	w.logger.Info("pricing watcher started",
		"path", w.config.Path,
		"debounce_ms", w.config.DebounceInterval.Milliseconds(),
	)

	var debounce *time.Timer
	debounced := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("pricing watcher stopped (context cancelled)")
			return nil

		case <-w.stopCh:
			w.logger.Info("pricing watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.config.Path) {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}

			w.logger.Debug("pricing file event", "path", event.Name, "op", event.Op.String())

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(w.config.DebounceInterval, func() {
				select {
				case debounced <- struct{}{}:
				default:
				}
			})

		case <-debounced:
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("pricing watcher error", "error", err)
		}
	}
}

// reload reads the pricing file and swaps the table contents.
func (w *Watcher) reload() {
	rates, err := LoadFile(w.config.Path)
	if err != nil {
		w.logger.Error("pricing reload failed, keeping previous pricing",
			"path", w.config.Path,
			"error", err,
		)
		return
	}

	w.table.Update(rates)
	w.logger.Info("pricing reloaded", "path", w.config.Path, "providers", len(rates))
}

// Stop stops the watcher and releases its resources.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()

	w.stopOnce.Do(func() { close(w.stopCh) })
	if running {
		<-w.doneCh
	}

	return w.watcher.Close()
}
