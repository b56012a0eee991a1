package syncdata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jivehq/jive/internal/logger"
	"github.com/jivehq/jive/internal/namespace"
)

const watchDebounce = 500 * time.Millisecond

// Watcher applies sync files back to their namespace stores when they change
// on disk. Events are debounced per file. An export written by the same
// syncer triggers a reapply, which merge turns into a no-op because nothing
// in the file is strictly newer than the store.
type Watcher struct {
	syncer     *Syncer
	namespaces *namespace.Manager
	fw         *fsnotify.Watcher
	debounce   time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer

	quit chan struct{}
	done chan struct{}
}

// NewWatcher prepares a watcher over the syncer's directory.
func NewWatcher(syncer *Syncer, namespaces *namespace.Manager) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create sync watcher: %w", err)
	}
	return &Watcher{
		syncer:     syncer,
		namespaces: namespaces,
		fw:         fw,
		debounce:   watchDebounce,
		timers:     make(map[string]*time.Timer),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// Start watches the sync directory and begins dispatching events.
func (w *Watcher) Start() error {
	if err := os.MkdirAll(w.syncer.Dir(), 0o755); err != nil {
		return fmt.Errorf("failed to create sync directory: %w", err)
	}
	if err := w.fw.Add(w.syncer.Dir()); err != nil {
		return fmt.Errorf("failed to watch sync directory: %w", err)
	}
	go w.loop()
	logger.Info("👀 Sync watcher started on %s", w.syncer.Dir())
	return nil
}

// Stop cancels pending applies and shuts the watcher down.
func (w *Watcher) Stop() {
	close(w.quit)
	<-w.done
	_ = w.fw.Close()

	w.mu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.timers = make(map[string]*time.Timer)
	w.mu.Unlock()
	logger.Info("👀 Sync watcher stopped")
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.quit:
			return
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if _, ok := formatForPath(event.Name); !ok {
				continue
			}
			w.schedule(event.Name)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			logger.Error("sync watcher error: %v", err)
		}
	}
}

// schedule arms the per-file debounce timer.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.apply(path)
	})
}

// apply syncs one changed file into the namespace named by its basename.
func (w *Watcher) apply(path string) {
	format, ok := formatForPath(path)
	if !ok {
		return
	}
	ns := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	store, err := w.namespaces.Store(ns)
	if err != nil {
		logger.Error("sync watcher cannot open namespace %s: %v", ns, err)
		return
	}
	report, err := w.syncer.Sync(context.Background(), store, SyncRequest{
		Namespace: ns,
		FilePath:  path,
		Format:    format,
		Direction: DirectionToDB,
		Strategy:  MergeMerge,
	})
	if err != nil {
		logger.Error("sync watcher failed to apply %s: %v", path, err)
		return
	}

	logger.Info("🔄 Applied %s: %d inserted, %d updated, %d skipped, %d failed",
		filepath.Base(path), report.Inserted, report.Updated, report.Skipped, report.Failed)
	for _, item := range report.Items {
		if item.Error != "" {
			logger.Warn("sync watcher: item %s: %s", item.ID, item.Error)
		}
	}
}
