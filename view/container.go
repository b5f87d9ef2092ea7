// Package view defines what the widget needs from the host's live view and
// applies a Configuration to it.
//
// The host owns every Node. The widget detaches, appends, shows and hides
// nodes but never creates or destroys them, and it re-resolves nodes by key
// on every operation instead of holding on to them.
package view

// DefaultKeyAttr is the attribute carrying a field's stable key.
const DefaultKeyAttr = "data-field-key"

// Node is one field's root element in the live view.
type Node interface {
	// Attr returns the named attribute.
	Attr(name string) (string, bool)
	// LabelText returns the text of the node's label sub-element, if any.
	LabelText() (string, bool)
	SetHidden(hidden bool)
	Hidden() bool
}

// Container is the live element holding the field nodes.
type Container interface {
	// Children returns the current children in document order.
	Children() []Node
	// Detach removes n from the container without destroying it.
	Detach(n Node)
	// Append adds n as the last child.
	Append(n Node)
}

// MutationType classifies a structural change of a container.
type MutationType int

const (
	ChildAdded MutationType = iota
	ChildRemoved
	AttributeChanged
)

func (t MutationType) String() string {
	switch t {
	case ChildAdded:
		return "child-added"
	case ChildRemoved:
		return "child-removed"
	case AttributeChanged:
		return "attribute-changed"
	}
	return "unknown"
}

// Mutation describes one change. Attr is set for AttributeChanged.
type Mutation struct {
	Type MutationType
	Node Node
	Attr string
}

// Observable is a Container that reports its mutations.
type Observable interface {
	Container
	// Observe registers fn and returns a function that unregisters it.
	// fn may be called from any goroutine.
	Observe(fn func(Mutation)) (cancel func())
}
