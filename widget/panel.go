package widget

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/sardine-ai/fieldview/model"
	"github.com/sardine-ai/fieldview/reconcile"
	"github.com/sardine-ai/fieldview/reorder"
)

// ErrPanelClosed is returned by a Panel after Cancel.
var ErrPanelClosed = errors.New("settings panel is closed")

// Row is one line of the settings list.
type Row struct {
	Index   int
	Key     string
	Label   string
	Enabled bool
	// Carried marks the row being dragged.
	Carried bool
	// Marker is where the carried row would land relative to this row.
	Marker reorder.Position
}

// Panel is one settings session. Toggles and reorders edit a draft that only
// reaches the widget on Save; Cancel discards it.
type Panel struct {
	mu     sync.Mutex
	w      *Widget
	draft  model.Configuration
	drag   reorder.Controller
	dirty  bool
	closed bool
}

func newPanel(w *Widget) *Panel {
	return &Panel{w: w, draft: w.Configuration()}
}

// Rows renders the draft.
func (p *Panel) Rows() []Row {
	p.mu.Lock()
	defer p.mu.Unlock()

	carried, dragging := p.drag.Carried()
	hint := p.drag.Hint()
	rows := make([]Row, len(p.draft))
	for i, d := range p.draft {
		rows[i] = Row{Index: i, Key: d.Key, Label: d.Label, Enabled: d.Enabled}
		if dragging && i == carried {
			rows[i].Carried = true
		}
		if hint.Position != reorder.None && i == hint.Index {
			rows[i].Marker = hint.Position
		}
	}
	return rows
}

// Dirty reports whether the draft differs from what was opened or last saved.
func (p *Panel) Dirty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dirty
}

// Enabled returns the number of enabled rows and the cap.
func (p *Panel) Enabled() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.draft.EnabledCount(), p.w.maxEnabled
}

// Toggle flips a row's checkbox. When enabling would pass the cap the row
// stays unchecked, the widget's Notifier is told and ErrCapExceeded returned.
func (p *Panel) Toggle(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPanelClosed
	}

	idx := p.draft.Index(key)
	if idx < 0 {
		return errors.Wrapf(reconcile.ErrUnknownField, "%q", key)
	}
	next, err := reconcile.SetEnabled(p.draft, key, !p.draft[idx].Enabled, p.w.maxEnabled)
	if err != nil {
		if errors.Is(err, reconcile.ErrCapExceeded) {
			p.w.notifyCap(err)
		}
		return err
	}
	p.draft = next
	p.dirty = true
	return nil
}

// DragStart picks up the row at index.
func (p *Panel) DragStart(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.drag.DragStart(index, len(p.draft))
}

// DragOver moves the insertion marker over the row at index.
func (p *Panel) DragOver(index int) reorder.Hint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.drag.DragOver(index)
}

// Hint returns the current insertion marker.
func (p *Panel) Hint() reorder.Hint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.drag.Hint()
}

// Dragging reports whether a row is being carried.
func (p *Panel) Dragging() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.drag.State() == reorder.Dragging
}

// Drop places the carried row next to the row at target in the draft.
func (p *Panel) Drop(target int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPanelClosed
	}
	from, _ := p.drag.Carried()
	next, err := reorder.Drop(&p.drag, target, p.draft)
	if err != nil {
		return err
	}
	if from != target {
		p.draft = next
		p.dirty = true
	}
	return nil
}

// DragEnd ends a drag without dropping.
func (p *Panel) DragEnd() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drag.DragEnd()
}

// Save commits the draft, including its order, to the widget and the store.
// If the write fails the draft is still in effect on the widget and stays
// dirty so it can be saved again.
func (p *Panel) Save(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPanelClosed
	}
	p.drag.DragEnd()

	err := p.w.replace(ctx, p.draft)
	p.draft = p.w.Configuration()
	if err != nil {
		return err
	}
	p.dirty = false
	enabled := p.draft.EnabledCount()
	p.w.notifier.Notify(Notice{
		Kind:    Saved,
		Message: fmt.Sprintf("saved: %d of %d fields shown", enabled, len(p.draft)),
	})
	return nil
}

// Reset clears the persisted configuration through the widget and reloads
// the draft from the result.
func (p *Panel) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPanelClosed
	}
	p.drag.DragEnd()

	err := p.w.Reset(ctx)
	p.draft = p.w.Configuration()
	p.dirty = false
	return err
}

// Cancel discards the draft and closes the panel. Persisted state is not
// touched.
func (p *Panel) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drag.DragEnd()
	p.draft = nil
	p.dirty = false
	p.closed = true
}

// Closed reports whether Cancel was called.
func (p *Panel) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
