// Package watch coalesces bursts of live view changes into single
// resynchronizations.
package watch

import (
	"context"
	"sync"
	"time"

	"github.com/sardine-ai/fieldview/view"
	"github.com/sirupsen/logrus"
)

// DefaultWindow is the quiet period before a resync runs.
const DefaultWindow = 300 * time.Millisecond

// ObserverStats tracks observer activity.
type ObserverStats struct {
	Mutations  int
	Suppressed int
	Syncs      int
	LastSync   time.Time
}

// Observer watches a container for field nodes being added or removed and for
// key attribute changes, and calls onSync once the changes settle.
type Observer struct {
	mu         sync.Mutex
	target     view.Observable
	keyAttr    string
	onSync     func(ctx context.Context)
	debouncer  *Debouncer
	ctx        context.Context
	cancel     func()
	stopCh     chan struct{}
	running    bool
	suppressed int
	stats      ObserverStats
	log        *logrus.Entry
}

// NewObserver returns an observer for target. A nil target yields an observer
// whose Start and Stop do nothing. A window of zero uses DefaultWindow.
func NewObserver(target view.Observable, keyAttr string, window time.Duration, onSync func(ctx context.Context)) *Observer {
	if keyAttr == "" {
		keyAttr = view.DefaultKeyAttr
	}
	if window <= 0 {
		window = DefaultWindow
	}
	o := &Observer{
		target:  target,
		keyAttr: keyAttr,
		onSync:  onSync,
		log:     logrus.WithField("component", "observer"),
	}
	o.debouncer = NewDebouncer(window, o.sync)
	return o
}

// Start begins observing. It is non-blocking; observation stops on Stop or
// when ctx is cancelled. A stopped Observer cannot be started again.
func (o *Observer) Start(ctx context.Context) {
	if o.target == nil {
		o.log.Debug("no container to observe")
		return
	}
	// Mutations arriving before running is set are ignored by handle.
	cancel := o.target.Observe(o.handle)

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		cancel()
		return
	}
	o.running = true
	o.ctx = ctx
	o.cancel = cancel
	o.stopCh = make(chan struct{})
	stopCh := o.stopCh
	o.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			o.log.Debug("context cancelled")
			o.Stop()
		case <-stopCh:
		}
	}()
}

// Stop ends observation and waits for a resync already running.
func (o *Observer) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	close(o.stopCh)
	cancel := o.cancel
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.debouncer.Stop()
	o.log.Debug("stopped")
}

// Suppress runs fn while ignoring mutations, so changes the widget makes to
// the container itself do not schedule another resync.
func (o *Observer) Suppress(fn func()) {
	o.mu.Lock()
	o.suppressed++
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.suppressed--
		o.mu.Unlock()
	}()
	fn()
}

// Stats returns a snapshot of the counters.
func (o *Observer) Stats() ObserverStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}

func (o *Observer) handle(m view.Mutation) {
	if m.Type == view.AttributeChanged && m.Attr != o.keyAttr {
		return
	}
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	if o.suppressed > 0 {
		o.stats.Suppressed++
		o.mu.Unlock()
		return
	}
	o.stats.Mutations++
	o.mu.Unlock()

	o.log.WithField("mutation", m.Type.String()).Debug("container changed")
	o.debouncer.Trigger()
}

func (o *Observer) sync() {
	o.mu.Lock()
	ctx := o.ctx
	o.stats.Syncs++
	o.stats.LastSync = time.Now()
	o.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	o.onSync(ctx)
}
