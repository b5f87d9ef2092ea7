package model

// FieldDescriptor is the persisted unit describing one configurable field.
// Its position inside a Configuration is its display order.
type FieldDescriptor struct {
	Key     string `yaml:"key" json:"key" validate:"fieldkey"` // Stable identifier of the field
	Label   string `yaml:"label" json:"label"`                 // Text shown to the user
	Enabled bool   `yaml:"enabled" json:"enabled"`             // Whether the live node is shown
}

// Discovered is a field found in the live view at scan time.
type Discovered struct {
	Key   string
	Label string
}

// Configuration is the ordered list of field descriptors. Keys are unique.
type Configuration []FieldDescriptor

// Keys returns the keys in order.
func (c Configuration) Keys() []string {
	keys := make([]string, len(c))
	for i, d := range c {
		keys[i] = d.Key
	}
	return keys
}

// Index returns the position of key, or -1.
func (c Configuration) Index(key string) int {
	for i, d := range c {
		if d.Key == key {
			return i
		}
	}
	return -1
}

// EnabledCount returns how many descriptors are enabled.
func (c Configuration) EnabledCount() int {
	n := 0
	for _, d := range c {
		if d.Enabled {
			n++
		}
	}
	return n
}

// Clone returns an independent copy.
func (c Configuration) Clone() Configuration {
	if c == nil {
		return nil
	}
	out := make(Configuration, len(c))
	copy(out, c)
	return out
}

// Equal reports whether both configurations hold the same descriptors in the
// same order. A nil and an empty configuration are equal.
func (c Configuration) Equal(other Configuration) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i] != other[i] {
			return false
		}
	}
	return true
}
