package workspace

import (
	"context"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"aira/internal/logging"
)

const (
	defaultWatchDebounce = 200 * time.Millisecond
	defaultWatchPoll     = 10 * time.Second
)

// Watcher reloads the store when its storage files change on disk, so several
// processes (the server, a REPL, the MCP server) can share one data directory.
// It falls back to polling when fsnotify is unavailable.
type Watcher struct {
	store        *Store
	paths        []string
	logger       *log.Logger
	debounce     time.Duration
	pollInterval time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher builds a watcher for the store's persister. It returns nil when
// the persister has nothing to watch.
func NewWatcher(store *Store, logger *log.Logger) *Watcher {
	pp, ok := store.persister.(PathProvider)
	if !ok || len(pp.Paths()) == 0 {
		return nil
	}
	return &Watcher{
		store:        store,
		paths:        pp.Paths(),
		logger:       logging.OrDiscard(logger),
		debounce:     defaultWatchDebounce,
		pollInterval: defaultWatchPoll,
	}
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	names := make(map[string]bool, len(w.paths))
	dirs := make(map[string]bool)
	for _, p := range w.paths {
		names[filepath.Base(p)] = true
		dirs[filepath.Dir(p)] = true
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Printf("watcher: fsnotify init failed (%v), using poll-only", err)
		w.pollLoop(ctx)
		return
	}
	defer watcher.Close()
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			w.logger.Printf("watcher: add %s failed (%v), using poll-only", dir, err)
			w.pollLoop(ctx)
			return
		}
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !matches(names, filepath.Base(event.Name)) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.trigger()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("watcher: %v", err)
		case <-ticker.C:
			w.reload()
		}
	}
}

// matches accepts the record file itself and sqlite's -wal/-shm companions.
func matches(names map[string]bool, base string) bool {
	if names[base] {
		return true
	}
	for name := range names {
		if strings.HasPrefix(base, name+"-") {
			return true
		}
	}
	return false
}

func (w *Watcher) trigger() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	if err := w.store.Reload(); err != nil {
		w.logger.Printf("watcher: %v", err)
	}
}
