package csvhost

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/sardine-ai/fieldview/watch"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 200 * time.Millisecond

// WatcherStats tracks watcher activity.
type WatcherStats struct {
	Events        int
	Reloads       int
	Errors        int
	LastEventTime time.Time
	LastEventType string
}

// Watcher reloads a Table whenever its file changes on disk. The directory is
// watched rather than the file so that editors replacing the file by rename
// are followed.
type Watcher struct {
	mu       sync.RWMutex
	table    *Table
	watcher  *fsnotify.Watcher
	debounce *watch.Debouncer
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
	stats    WatcherStats
	log      *logrus.Entry
}

// NewWatcher returns a watcher for table. A window of zero uses DefaultDebounce.
func NewWatcher(table *Table, window time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating file watcher")
	}
	if window <= 0 {
		window = DefaultDebounce
	}
	w := &Watcher{
		table:   table,
		watcher: fw,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		log:     logrus.WithFields(logrus.Fields{"component": "csvhost-watcher", "path": table.Path()}),
	}
	w.debounce = watch.NewDebouncer(window, w.reload)
	return w, nil
}

// Start begins watching. It is non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	dir := filepath.Dir(w.table.Path())
	if err := w.watcher.Add(dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return errors.Wrapf(err, "watching %s", dir)
	}
	w.log.Debug("watching")
	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for cleanup. A reload already running
// completes first.
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
	w.debounce.Stop()

	if err := w.watcher.Close(); err != nil {
		w.log.WithError(err).Error("error closing watcher")
	}
	w.log.Debug("stopped")
}

// Stats returns a snapshot of the counters.
func (w *Watcher) Stats() WatcherStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("context cancelled")
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Error("watcher error")
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.table.Path() {
		return
	}
	var eventType string
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = "create"
	case event.Op&fsnotify.Write != 0:
		eventType = "modify"
	case event.Op&fsnotify.Rename != 0:
		eventType = "rename"
	case event.Op&fsnotify.Remove != 0:
		eventType = "delete"
	default:
		return
	}

	w.mu.Lock()
	w.stats.Events++
	w.stats.LastEventTime = time.Now()
	w.stats.LastEventType = eventType
	w.mu.Unlock()

	w.log.WithField("event", eventType).Debug("file changed")
	w.debounce.Trigger()
}

func (w *Watcher) reload() {
	if err := w.table.Reload(); err != nil {
		// The file may be mid-replace; the next event reloads it.
		w.log.WithError(err).Warn("error reloading table")
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
		return
	}
	w.mu.Lock()
	w.stats.Reloads++
	w.mu.Unlock()
}
