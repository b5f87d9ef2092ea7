// Package discovery scans a live container for the fields it currently shows.
package discovery

import (
	"strings"

	"github.com/sardine-ai/fieldview/model"
	"github.com/sardine-ai/fieldview/validate"
	"github.com/sardine-ai/fieldview/view"
	"github.com/sirupsen/logrus"
)

const separators = ":;,|-–—·•"

// Discover returns the fields of c in current document order. Nodes without
// the key attribute are ignored; nodes whose key is not valid are skipped with
// a warning, as are repeated keys.
func Discover(c view.Container, keyAttr string) []model.Discovered {
	if c == nil {
		return nil
	}
	if keyAttr == "" {
		keyAttr = view.DefaultKeyAttr
	}
	log := logrus.WithField("component", "discovery")

	var found []model.Discovered
	seen := make(map[string]struct{})
	for _, n := range c.Children() {
		raw, ok := n.Attr(keyAttr)
		if !ok {
			continue
		}
		if !validate.IsValidKey(raw) {
			log.WithField("key", validate.SanitizeKey(raw)).Warn("skipping field with invalid key")
			continue
		}
		if _, dup := seen[raw]; dup {
			log.WithField("key", raw).Warn("skipping duplicate field")
			continue
		}
		seen[raw] = struct{}{}

		label := raw
		if text, ok := n.LabelText(); ok {
			if cleaned := CleanLabel(text); cleaned != "" {
				label = cleaned
			}
		}
		found = append(found, model.Discovered{Key: raw, Label: label})
	}
	return found
}

// CleanLabel collapses whitespace and strips separator punctuation from both
// ends, so "  Region : " becomes "Region".
func CleanLabel(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimSpace(strings.Trim(s, separators+" "))
}
