// Package widget ties discovery, reconciliation, persistence and the
// visibility applier together for one host container, and exposes the
// settings panel session used to edit the configuration.
package widget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sardine-ai/fieldview/discovery"
	"github.com/sardine-ai/fieldview/model"
	"github.com/sardine-ai/fieldview/reconcile"
	"github.com/sardine-ai/fieldview/reorder"
	"github.com/sardine-ai/fieldview/source"
	"github.com/sardine-ai/fieldview/store"
	"github.com/sardine-ai/fieldview/validate"
	"github.com/sardine-ai/fieldview/view"
	"github.com/sardine-ai/fieldview/watch"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxEnabled = 10
	MinMaxEnabled     = 1
	MaxMaxEnabled     = 500
)

// ErrOutOfRange is returned by Move for positions outside the configuration.
var ErrOutOfRange = errors.New("position out of range")

// Options configure a Widget.
type Options struct {
	// Container holds the field nodes. When it also implements
	// view.Observable, Start keeps the configuration in sync with it.
	Container view.Container
	// KeyAttr names the node attribute carrying the field key.
	KeyAttr string
	// Store persists the configuration. Nil keeps it in memory only.
	Store *store.Store
	// MaxEnabled caps the number of enabled fields. Values outside 1-500,
	// including zero, mean DefaultMaxEnabled.
	MaxEnabled int
	// DefaultEnabled lists the keys enabled when first discovered after the
	// initial run.
	DefaultEnabled []string
	// SyncDebounce is the quiet period before a live view change is
	// reconciled. Zero means watch.DefaultWindow.
	SyncDebounce time.Duration
	// SaveDebounce delays and coalesces writes. Zero writes synchronously.
	SaveDebounce time.Duration
	Notifier     Notifier
}

// Widget keeps the fields of one container shown, hidden and ordered as the
// user configured them. All methods are safe for concurrent use; operations
// are serialized.
type Widget struct {
	mu         sync.Mutex
	container  view.Container
	keyAttr    string
	store      *store.Store
	maxEnabled int
	defaults   reconcile.KeySet
	notifier   Notifier
	observer   *watch.Observer
	cfg        model.Configuration
	natural    reconcile.Order
	log        *logrus.Entry

	saveMu     sync.Mutex
	saver      *watch.Debouncer
	pending    model.Configuration
	hasPending bool
}

// New returns a Widget. Nothing is read or applied until Init.
func New(opts Options) (*Widget, error) {
	st := opts.Store
	if st == nil {
		var err error
		st, err = store.New(source.NewMemoryRepository("memory"), store.DefaultEntry)
		if err != nil {
			return nil, err
		}
	}
	keyAttr := opts.KeyAttr
	if keyAttr == "" {
		keyAttr = view.DefaultKeyAttr
	}

	w := &Widget{
		container:  opts.Container,
		keyAttr:    keyAttr,
		store:      st,
		maxEnabled: validate.ClampCount(opts.MaxEnabled, DefaultMaxEnabled, MinMaxEnabled, MaxMaxEnabled),
		defaults:   reconcile.Defaults(opts.DefaultEnabled...),
		notifier:   opts.Notifier,
		cfg:        model.Configuration{},
		log:        logrus.WithField("entry", st.Entry()),
	}
	if w.notifier == nil {
		w.notifier = logNotifier{log: w.log}
	}

	var target view.Observable
	if obs, ok := opts.Container.(view.Observable); ok {
		target = obs
	}
	w.observer = watch.NewObserver(target, keyAttr, opts.SyncDebounce, w.resync)
	if opts.SaveDebounce > 0 {
		w.saver = watch.NewDebouncer(opts.SaveDebounce, w.flushSave)
	}
	return w, nil
}

// MaxEnabled returns the effective cap.
func (w *Widget) MaxEnabled() int {
	return w.maxEnabled
}

// Init reads the persisted configuration, reconciles it with the fields in
// the container and applies the result.
func (w *Widget) Init(ctx context.Context) error {
	return w.Sync(ctx)
}

// Sync re-runs discovery and reconciliation against the persisted
// configuration. Without a container it does nothing.
func (w *Widget) Sync(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.syncLocked(ctx)
}

func (w *Widget) syncLocked(ctx context.Context) error {
	if w.container == nil {
		return nil
	}
	// Pending writes must land before reading back.
	if w.saver != nil {
		w.saver.Flush()
	}

	persisted, loadErr := w.store.Load(ctx)
	if loadErr != nil {
		w.log.WithError(loadErr).Error("error loading configuration, using the last known one")
		persisted = w.cfg
	}
	discovered := w.discoverLocked()
	cfg := reconcile.Reconcile(discovered, persisted, w.defaults)

	w.cfg = cfg
	w.applyLocked()
	if loadErr != nil {
		return loadErr
	}
	// Fields missing from the view are only dropped from the stored entry
	// together with a real change, so a momentarily empty or partial view
	// does not erase the saved layout.
	if addsFields(cfg, persisted) {
		w.log.WithField("fields", len(cfg)).Debug("configuration changed by reconciliation")
		return w.persistLocked(ctx, cfg)
	}
	return nil
}

// discoverLocked reads the fields of the container and learns the order of
// keys it has not seen yet.
func (w *Widget) discoverLocked() []model.Discovered {
	discovered := discovery.Discover(w.container, w.keyAttr)
	w.natural.Learn(discovered)
	return discovered
}

func addsFields(cfg, persisted model.Configuration) bool {
	for _, d := range cfg {
		if persisted.Index(d.Key) < 0 {
			return true
		}
	}
	return false
}

func (w *Widget) resync(ctx context.Context) {
	if err := w.Sync(ctx); err != nil {
		w.log.WithError(err).Error("error synchronizing with container")
	}
}

// Configuration returns a copy of the canonical configuration.
func (w *Widget) Configuration() model.Configuration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg.Clone()
}

// SetEnabled shows or hides one field. Enabling past the cap fails with
// reconcile.ErrCapExceeded and changes nothing.
func (w *Widget) SetEnabled(ctx context.Context, key string, enabled bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	next, err := reconcile.SetEnabled(w.cfg, key, enabled, w.maxEnabled)
	if err != nil {
		if errors.Is(err, reconcile.ErrCapExceeded) {
			w.notifyCap(err)
		}
		return err
	}
	if next.Equal(w.cfg) {
		return nil
	}
	return w.commitLocked(ctx, next)
}

// Move reorders the field at from to position to and persists immediately.
func (w *Widget) Move(ctx context.Context, from, to int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if from < 0 || from >= len(w.cfg) || to < 0 || to >= len(w.cfg) {
		return errors.Wrapf(ErrOutOfRange, "move %d to %d of %d", from, to, len(w.cfg))
	}
	if from == to {
		return nil
	}
	return w.commitLocked(ctx, reorder.Move(w.cfg, from, to))
}

// Reset drops the persisted configuration and derives a fresh one from the
// fields currently in the container, in the order the host first presented
// them. Without a container it only clears the store.
func (w *Widget) Reset(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.dropPendingSave()
	if err := w.store.Clear(ctx); err != nil {
		return err
	}
	if w.container == nil {
		w.cfg = model.Configuration{}
	} else {
		cfg := reconcile.Fresh(w.natural.Sort(w.discoverLocked()), w.defaults)
		if err := w.commitLocked(ctx, cfg); err != nil {
			return err
		}
	}
	w.notifier.Notify(Notice{Kind: ResetDone, Message: "field settings reset"})
	return nil
}

// replace commits a configuration edited elsewhere, reconciled against the
// fields present now.
func (w *Widget) replace(ctx context.Context, edited model.Configuration) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	next := edited.Clone()
	if w.container != nil && len(edited) > 0 {
		next = reconcile.Reconcile(w.discoverLocked(), edited, w.defaults)
	}
	return w.commitLocked(ctx, next)
}

// Start keeps the widget in sync with the container until ctx is cancelled
// or Close is called. It does nothing when the container is not observable.
func (w *Widget) Start(ctx context.Context) {
	w.observer.Start(ctx)
}

// Close stops observing and writes any pending change.
func (w *Widget) Close() error {
	w.observer.Stop()
	if w.saver == nil {
		return nil
	}
	w.saver.Flush()
	w.saver.Stop()
	return nil
}

// OpenPanel starts a settings session on a copy of the configuration.
func (w *Widget) OpenPanel() *Panel {
	return newPanel(w)
}

// commitLocked makes cfg canonical, applies it and persists it. A failed
// write keeps cfg in effect.
func (w *Widget) commitLocked(ctx context.Context, cfg model.Configuration) error {
	w.cfg = cfg
	w.applyLocked()
	return w.persistLocked(ctx, cfg)
}

func (w *Widget) applyLocked() {
	if w.container == nil {
		return
	}
	var res view.ApplyResult
	w.observer.Suppress(func() {
		res = view.Apply(w.container, w.keyAttr, w.cfg)
	})
	entry := w.log.WithFields(logrus.Fields{"shown": res.Shown, "hidden": res.Hidden})
	if len(res.Strays) > 0 {
		entry = entry.WithField("strays", res.Strays)
	}
	entry.Debug("applied configuration")
}

func (w *Widget) persistLocked(ctx context.Context, cfg model.Configuration) error {
	if w.saver != nil {
		w.saveMu.Lock()
		w.pending = cfg.Clone()
		w.hasPending = true
		w.saveMu.Unlock()
		w.saver.Trigger()
		return nil
	}
	return w.save(ctx, cfg)
}

func (w *Widget) save(ctx context.Context, cfg model.Configuration) error {
	err := w.store.Save(ctx, cfg)
	if err == nil {
		return nil
	}
	msg := "could not save field settings"
	if errors.Is(err, store.ErrPayloadTooLarge) {
		msg = "field settings are too large to save"
	}
	w.notifier.Notify(Notice{Kind: SaveFailed, Message: msg, Err: err})
	return err
}

func (w *Widget) flushSave() {
	w.saveMu.Lock()
	cfg, ok := w.pending, w.hasPending
	w.pending, w.hasPending = nil, false
	w.saveMu.Unlock()
	if !ok {
		return
	}
	if err := w.save(context.Background(), cfg); err != nil {
		w.log.WithError(err).Error("error saving configuration")
	}
}

func (w *Widget) dropPendingSave() {
	if w.saver == nil {
		return
	}
	w.saveMu.Lock()
	w.pending, w.hasPending = nil, false
	w.saveMu.Unlock()
}

func (w *Widget) notifyCap(err error) {
	w.notifier.Notify(Notice{
		Kind:    CapReached,
		Message: fmt.Sprintf("at most %d fields can be shown", w.maxEnabled),
		Err:     err,
	})
}
