package view

import (
	"sync"
)

// Element is a host-owned field node held by a List.
type Element struct {
	mu     sync.RWMutex
	attrs  map[string]string
	label  *string
	hidden bool
}

// NewElement returns an element carrying key under DefaultKeyAttr and the
// given label text. An empty label means the element has no label.
func NewElement(key, label string) *Element {
	e := &Element{attrs: map[string]string{DefaultKeyAttr: key}}
	if label != "" {
		e.label = &label
	}
	return e
}

// NewBareElement returns an element without attributes or label.
func NewBareElement() *Element {
	return &Element{attrs: map[string]string{}}
}

func (e *Element) Attr(name string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.attrs[name]
	return v, ok
}

func (e *Element) LabelText() (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.label == nil {
		return "", false
	}
	return *e.label, true
}

func (e *Element) SetHidden(hidden bool) {
	e.mu.Lock()
	e.hidden = hidden
	e.mu.Unlock()
}

func (e *Element) Hidden() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.hidden
}

func (e *Element) setAttr(name, value string) {
	e.mu.Lock()
	e.attrs[name] = value
	e.mu.Unlock()
}

// List is an in-memory Observable container. Hosts without a real view use it
// directly; tests use it as the live view.
type List struct {
	mu        sync.Mutex
	children  []Node
	observers map[int]func(Mutation)
	nextID    int
}

// NewList returns a list holding nodes in order.
func NewList(nodes ...Node) *List {
	l := &List{observers: make(map[int]func(Mutation))}
	l.children = append(l.children, nodes...)
	return l
}

func (l *List) Children() []Node {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Node, len(l.children))
	copy(out, l.children)
	return out
}

func (l *List) Detach(n Node) {
	l.mu.Lock()
	idx := l.indexLocked(n)
	if idx < 0 {
		l.mu.Unlock()
		return
	}
	l.children = append(l.children[:idx], l.children[idx+1:]...)
	l.mu.Unlock()
	l.notify(Mutation{Type: ChildRemoved, Node: n})
}

func (l *List) Append(n Node) {
	l.mu.Lock()
	if idx := l.indexLocked(n); idx >= 0 {
		l.children = append(l.children[:idx], l.children[idx+1:]...)
	}
	l.children = append(l.children, n)
	l.mu.Unlock()
	l.notify(Mutation{Type: ChildAdded, Node: n})
}

// Insert places n at position i, clamped to the list bounds.
func (l *List) Insert(i int, n Node) {
	l.mu.Lock()
	if i < 0 {
		i = 0
	}
	if i > len(l.children) {
		i = len(l.children)
	}
	l.children = append(l.children, nil)
	copy(l.children[i+1:], l.children[i:])
	l.children[i] = n
	l.mu.Unlock()
	l.notify(Mutation{Type: ChildAdded, Node: n})
}

// Remove is the host deleting n from the view.
func (l *List) Remove(n Node) {
	l.Detach(n)
}

// SetAttr changes an attribute of e and reports it to observers.
func (l *List) SetAttr(e *Element, name, value string) {
	e.setAttr(name, value)
	l.notify(Mutation{Type: AttributeChanged, Node: e, Attr: name})
}

func (l *List) Observe(fn func(Mutation)) (cancel func()) {
	l.mu.Lock()
	if l.observers == nil {
		l.observers = make(map[int]func(Mutation))
	}
	id := l.nextID
	l.nextID++
	l.observers[id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.observers, id)
			l.mu.Unlock()
		})
	}
}

func (l *List) indexLocked(n Node) int {
	for i, c := range l.children {
		if c == n {
			return i
		}
	}
	return -1
}

// notify runs observers outside the lock so they may read the list.
func (l *List) notify(m Mutation) {
	l.mu.Lock()
	fns := make([]func(Mutation), 0, len(l.observers))
	for _, fn := range l.observers {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(m)
	}
}
