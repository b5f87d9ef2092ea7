// Package reorder turns a drag gesture over a settings list into a new order.
package reorder

import (
	"github.com/cockroachdb/errors"
)

// State of a Controller.
type State int

const (
	Idle State = iota
	Dragging
)

func (s State) String() string {
	if s == Dragging {
		return "dragging"
	}
	return "idle"
}

// Position tells where the carried row would land relative to the row under it.
type Position int

const (
	None Position = iota
	Before
	After
)

// Hint is the insertion marker shown while dragging. It never changes the model.
type Hint struct {
	Index    int
	Position Position
}

// ErrNotDragging is returned by Drop when no drag is in progress.
var ErrNotDragging = errors.New("no drag in progress")

// Controller tracks one drag gesture: idle, then dragging after DragStart,
// then idle again after Drop or DragEnd.
type Controller struct {
	state   State
	carried int
	size    int
	hint    Hint
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// Carried returns the original index of the carried row and whether a drag
// is in progress.
func (c *Controller) Carried() (int, bool) {
	return c.carried, c.state == Dragging
}

// Hint returns the current insertion hint.
func (c *Controller) Hint() Hint {
	return c.hint
}

// DragStart picks up row index of a list of size rows. Out of range indexes
// are ignored and leave the controller idle.
func (c *Controller) DragStart(index, size int) {
	c.reset()
	if index < 0 || index >= size {
		return
	}
	c.state = Dragging
	c.carried = index
	c.size = size
}

// DragOver moves the insertion hint over row index and returns it.
func (c *Controller) DragOver(index int) Hint {
	if c.state != Dragging || index < 0 || index >= c.size {
		c.hint = Hint{}
		return c.hint
	}
	c.hint = Hint{Index: index, Position: positionFor(c.carried, index)}
	return c.hint
}

// Drop places the carried row next to row target of items and ends the drag.
// The returned slice is a new order; items is not modified. Dropping onto the
// carried row's own slot returns an unchanged copy.
func Drop[T any](c *Controller, target int, items []T) ([]T, error) {
	if c.state != Dragging {
		return nil, ErrNotDragging
	}
	from, size := c.carried, c.size
	c.reset()
	if len(items) != size {
		return nil, errors.Newf("list changed during drag: %d rows", len(items))
	}
	if target < 0 || target >= len(items) {
		return nil, errors.Newf("drop target %d out of range", target)
	}
	return Move(items, from, target), nil
}

// DragEnd finishes the gesture with or without a drop and clears the hint.
func (c *Controller) DragEnd() {
	c.reset()
}

func (c *Controller) reset() {
	c.state = Idle
	c.hint = Hint{}
	c.carried = 0
	c.size = 0
}

func positionFor(from, over int) Position {
	switch {
	case from > over:
		return Before
	case from < over:
		return After
	}
	return None
}

// Move returns a copy of items with the element at from removed and
// reinserted adjacent to the element at to: before it when moving up, after
// it when moving down. Either way the moved element ends up at index to, so a
// drop never skips past its target. from == to, or an index out of range,
// returns an unchanged copy.
func Move[T any](items []T, from, to int) []T {
	out := make([]T, len(items))
	copy(out, items)
	if from == to || from < 0 || to < 0 || from >= len(items) || to >= len(items) {
		return out
	}
	moved := out[from]
	if from < to {
		copy(out[from:to], out[from+1:to+1])
	} else {
		copy(out[to+1:from+1], out[to:from])
	}
	out[to] = moved
	return out
}
