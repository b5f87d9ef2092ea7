// Package validate holds the checks every field key, count and payload goes
// through before it is used in a lookup, persisted, or turned into a name.
package validate

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

const (
	// MaxKeyLength is the longest accepted field key.
	MaxKeyLength = 99
	// MaxPayloadBytes caps a serialized configuration.
	MaxPayloadBytes = 100 * 1024
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var (
	instance     *validator.Validate
	instanceOnce sync.Once
)

// IsValidKey reports whether s is a usable field key: 1 to MaxKeyLength
// characters drawn from letters, digits, '-' and '_'.
func IsValidKey(s string) bool {
	if len(s) == 0 || len(s) > MaxKeyLength {
		return false
	}
	return keyPattern.MatchString(s)
}

// SanitizeKey drops every character that may not appear in a key. The result
// may be empty and is truncated to MaxKeyLength.
func SanitizeKey(s string) string {
	var b strings.Builder
	for _, r := range s {
		if isKeyRune(r) {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > MaxKeyLength {
		out = out[:MaxKeyLength]
	}
	return out
}

func isKeyRune(r rune) bool {
	return r >= 'a' && r <= 'z' ||
		r >= 'A' && r <= 'Z' ||
		r >= '0' && r <= '9' ||
		r == '-' || r == '_'
}

// ClampCount returns n as an int when it is a number inside [min, max] and def
// otherwise. Strings are accepted because counts often arrive from flags,
// environment variables or decoded documents.
func ClampCount(n interface{}, def, min, max int) int {
	var v float64
	switch t := n.(type) {
	case int:
		v = float64(t)
	case int8:
		v = float64(t)
	case int16:
		v = float64(t)
	case int32:
		v = float64(t)
	case int64:
		v = float64(t)
	case uint:
		v = float64(t)
	case uint8:
		v = float64(t)
	case uint16:
		v = float64(t)
	case uint32:
		v = float64(t)
	case uint64:
		v = float64(t)
	case float32:
		v = float64(t)
	case float64:
		v = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return def
		}
		v = parsed
	default:
		return def
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return def
	}
	if v < float64(min) || v > float64(max) {
		return def
	}
	return int(v)
}

// Validator returns the shared struct validator. It understands the
// "fieldkey" tag in addition to the stock validator/v10 tags.
func Validator() *validator.Validate {
	instanceOnce.Do(func() {
		v := validator.New()
		// Registration only fails for an empty tag or nil func.
		_ = v.RegisterValidation("fieldkey", func(fl validator.FieldLevel) bool {
			return IsValidKey(fl.Field().String())
		})
		instance = v
	})
	return instance
}

// Struct validates v against its `validate` tags.
func Struct(v interface{}) error {
	return Validator().Struct(v)
}
