package view

import (
	"github.com/sardine-ai/fieldview/model"
	"github.com/sardine-ai/fieldview/validate"
)

// ApplyResult summarizes one Apply pass.
type ApplyResult struct {
	Shown   int
	Hidden  int
	Missing []string // configured keys without a live node
	Strays  []string // live keys not in the configuration, appended hidden
}

// Apply reorders and shows or hides the container's field nodes to match cfg.
//
// Nodes without a valid key attribute are left where they are. Mapped nodes
// are detached and re-appended in configuration order; mapped nodes the
// configuration does not know yet are appended last and hidden until the next
// reconciliation picks them up. A nil container is a no-op.
func Apply(c Container, keyAttr string, cfg model.Configuration) ApplyResult {
	var res ApplyResult
	if c == nil {
		return res
	}
	if keyAttr == "" {
		keyAttr = DefaultKeyAttr
	}

	byKey := make(map[string]Node)
	var mapped []string
	for _, n := range c.Children() {
		key, ok := n.Attr(keyAttr)
		if !ok || !validate.IsValidKey(key) {
			continue
		}
		if _, dup := byKey[key]; dup {
			continue
		}
		byKey[key] = n
		mapped = append(mapped, key)
	}

	for _, key := range mapped {
		c.Detach(byKey[key])
	}

	placed := make(map[string]struct{}, len(cfg))
	for _, d := range cfg {
		n, ok := byKey[d.Key]
		if !ok {
			res.Missing = append(res.Missing, d.Key)
			continue
		}
		n.SetHidden(!d.Enabled)
		c.Append(n)
		placed[d.Key] = struct{}{}
		if d.Enabled {
			res.Shown++
		} else {
			res.Hidden++
		}
	}

	for _, key := range mapped {
		if _, ok := placed[key]; ok {
			continue
		}
		n := byKey[key]
		n.SetHidden(true)
		c.Append(n)
		res.Hidden++
		res.Strays = append(res.Strays, key)
	}
	return res
}
