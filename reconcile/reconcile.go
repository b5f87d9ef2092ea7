// Package reconcile merges the fields discovered in the live view with the
// persisted configuration, and applies enable toggles under the cap.
//
// Everything here is a pure function over plain records.
package reconcile

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/sardine-ai/fieldview/model"
	"github.com/sardine-ai/fieldview/validate"
)

var (
	// ErrCapExceeded is returned when enabling a field would exceed the cap.
	ErrCapExceeded = errors.New("maximum number of enabled fields reached")
	// ErrUnknownField is returned for keys the configuration does not hold.
	ErrUnknownField = errors.New("unknown field")
)

// KeySet is a set of field keys.
type KeySet map[string]struct{}

// Defaults builds the set of keys enabled when first discovered. Invalid keys
// are ignored.
func Defaults(keys ...string) KeySet {
	set := make(KeySet, len(keys))
	for _, k := range keys {
		if validate.IsValidKey(k) {
			set[k] = struct{}{}
		}
	}
	return set
}

// Has reports whether key is in the set.
func (s KeySet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Reconcile returns the canonical configuration for the discovered fields.
//
// With nothing persisted every discovered field is enabled, in discovery
// order. Otherwise persisted descriptors still present keep their order and
// enabled flag and take the discovered label; newly discovered fields follow
// in discovery order, enabled when listed in defaults; persisted descriptors
// no longer discovered are dropped. Running it again on its own output with
// the same discovery yields the same configuration.
func Reconcile(discovered []model.Discovered, persisted model.Configuration, defaults KeySet) model.Configuration {
	labels := make(map[string]string, len(discovered))
	var order []string
	for _, d := range discovered {
		if !validate.IsValidKey(d.Key) {
			continue
		}
		if _, dup := labels[d.Key]; dup {
			continue
		}
		label := d.Label
		if label == "" {
			label = d.Key
		}
		labels[d.Key] = label
		order = append(order, d.Key)
	}

	out := make(model.Configuration, 0, len(order))
	if len(persisted) == 0 {
		for _, key := range order {
			out = append(out, model.FieldDescriptor{Key: key, Label: labels[key], Enabled: true})
		}
		return out
	}

	retained := make(map[string]struct{}, len(persisted))
	for _, p := range persisted {
		label, ok := labels[p.Key]
		if !ok {
			continue
		}
		if _, dup := retained[p.Key]; dup {
			continue
		}
		retained[p.Key] = struct{}{}
		out = append(out, model.FieldDescriptor{Key: p.Key, Label: label, Enabled: p.Enabled})
	}
	for _, key := range order {
		if _, ok := retained[key]; ok {
			continue
		}
		out = append(out, model.FieldDescriptor{Key: key, Label: labels[key], Enabled: defaults.Has(key)})
	}
	return out
}

// SetEnabled returns a copy of cfg with key's enabled flag set to enabled.
// Enabling a field while maxEnabled fields are already enabled fails with
// ErrCapExceeded and leaves cfg untouched. A maxEnabled below 1 disables the
// cap. Disabling is always allowed.
func SetEnabled(cfg model.Configuration, key string, enabled bool, maxEnabled int) (model.Configuration, error) {
	idx := cfg.Index(key)
	if idx < 0 {
		return cfg, errors.Wrapf(ErrUnknownField, "%q", validate.SanitizeKey(key))
	}
	if cfg[idx].Enabled == enabled {
		return cfg, nil
	}
	if enabled && maxEnabled > 0 && cfg.EnabledCount() >= maxEnabled {
		return cfg, errors.Wrapf(ErrCapExceeded, "limit is %d", maxEnabled)
	}
	out := cfg.Clone()
	out[idx].Enabled = enabled
	return out, nil
}

// Fresh derives a configuration from discovery alone, as after a reset.
// With no defaults every field is enabled, as on a first run; otherwise only
// the default fields are.
func Fresh(discovered []model.Discovered, defaults KeySet) model.Configuration {
	out := Reconcile(discovered, nil, defaults)
	if len(defaults) == 0 {
		return out
	}
	for i := range out {
		out[i].Enabled = defaults.Has(out[i].Key)
	}
	return out
}

// Order remembers the host's own order of field keys, so a reset can restore
// it after the view has been rearranged. The zero value is ready to use.
type Order struct {
	keys []string
}

// Learn records the keys of discovered not seen before. A new key is placed
// before the nearest following key of discovered that is already known, or
// last when there is none. Known keys keep their place.
func (o *Order) Learn(discovered []model.Discovered) {
	known := make(map[string]struct{}, len(o.keys)+len(discovered))
	for _, k := range o.keys {
		known[k] = struct{}{}
	}
	next := ""
	for i := len(discovered) - 1; i >= 0; i-- {
		key := discovered[i].Key
		if _, ok := known[key]; !ok {
			at := len(o.keys)
			if next != "" {
				at = slices.Index(o.keys, next)
			}
			o.keys = slices.Insert(o.keys, at, key)
			known[key] = struct{}{}
		}
		next = key
	}
}

// Keys returns the learned order.
func (o *Order) Keys() []string {
	return slices.Clone(o.keys)
}

// Sort returns discovered arranged in the learned order. Unknown keys follow
// in their discovered order.
func (o *Order) Sort(discovered []model.Discovered) []model.Discovered {
	rank := make(map[string]int, len(o.keys))
	for i, k := range o.keys {
		rank[k] = i
	}
	pos := func(key string) int {
		if r, ok := rank[key]; ok {
			return r
		}
		return len(o.keys)
	}
	out := slices.Clone(discovered)
	slices.SortStableFunc(out, func(a, b model.Discovered) int {
		return pos(a.Key) - pos(b.Key)
	})
	return out
}
