// internal/situation/watcher.go
package situation

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

// Watcher serves a Library loaded from disk and rebuilds it when record files
// change. Every reload produces a fresh immutable Library that is swapped in
// atomically; diagnoses already running keep the one they started with. A
// reload that fails keeps the previous library.
type Watcher struct {
	roots    []string
	libOpts  []LibraryOption
	logger   *zap.Logger
	debounce time.Duration
	onReload func(*Library, error)

	current atomic.Pointer[Library]
	fsw     *fsnotify.Watcher

	mu      sync.Mutex
	running bool
	pending time.Time
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long the tree must be quiet before reloading.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLibraryOptions passes options to every library the watcher builds.
func WithLibraryOptions(opts ...LibraryOption) WatcherOption {
	return func(w *Watcher) { w.libOpts = append(w.libOpts, opts...) }
}

// WithReloadHook is called after each reload attempt.
func WithReloadHook(fn func(*Library, error)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// NewWatcher loads the initial library. It fails if that first load fails.
func NewWatcher(roots []string, logger *zap.Logger, opts ...WatcherOption) (*Watcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	w := &Watcher{
		roots:    roots,
		logger:   logger.Named("library-watcher"),
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	lib, err := Load(roots, w.libOpts...)
	if err != nil {
		return nil, err
	}
	w.current.Store(lib)
	return w, nil
}

// Current implements Source.
func (w *Watcher) Current() *Library { return w.current.Load() }

// Reload rebuilds the library immediately.
func (w *Watcher) Reload() error {
	lib, err := Load(w.roots, w.libOpts...)
	if err != nil {
		w.logger.Error("Situation library reload failed; keeping previous library.", zap.Error(err))
	} else {
		w.current.Store(lib)
		w.logger.Info("Situation library reloaded.", zap.Int("situations", lib.Len()))
	}
	if w.onReload != nil {
		w.onReload(lib, err)
	}
	return err
}

// Start begins watching the library roots. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	for _, root := range w.roots {
		if err := w.addTree(fsw, root); err != nil {
			fsw.Close()
			return err
		}
	}

	w.fsw = fsw
	w.running = true
	go w.run(ctx)
	return nil
}

// Stop ends watching and waits for the event loop to exit. A stopped
// watcher cannot be started again.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	if err := w.fsw.Close(); err != nil {
		w.logger.Warn("Error closing file watcher.", zap.Error(err))
	}
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) error {
	expanded, err := homedir.Expand(root)
	if err != nil {
		return fmt.Errorf("failed to expand %s: %w", root, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return fsw.Add(filepath.Dir(expanded))
	}
	return filepath.WalkDir(expanded, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := fsw.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("File watcher error.", zap.Error(err))
		case <-ticker.C:
			w.mu.Lock()
			due := !w.pending.IsZero() && time.Since(w.pending) >= w.debounce
			if due {
				w.pending = time.Time{}
			}
			w.mu.Unlock()
			if due {
				_ = w.Reload()
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(w.fsw, event.Name); err != nil {
				w.logger.Warn("Failed to watch new directory.", zap.String("path", event.Name), zap.Error(err))
			}
			w.markPending()
			return
		}
	}
	if !isRecordFile(event.Name) && event.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	w.logger.Debug("Library change detected.", zap.String("path", event.Name), zap.String("op", event.Op.String()))
	w.markPending()
}

func (w *Watcher) markPending() {
	w.mu.Lock()
	w.pending = time.Now()
	w.mu.Unlock()
}
