package validate

import (
	"strings"
	"testing"
)

func TestIsValidKey(t *testing.T) {
	testCases := []struct {
		name string
		key  string
		want bool
	}{
		{name: "simple", key: "region", want: true},
		{name: "mixed", key: "Field_01-a", want: true},
		{name: "empty", key: "", want: false},
		{name: "space", key: "due date", want: false},
		{name: "dot", key: "a.b", want: false},
		{name: "quote", key: `x"]`, want: false},
		{name: "unicode", key: "régión", want: false},
		{name: "max length", key: strings.Repeat("a", MaxKeyLength), want: true},
		{name: "too long", key: strings.Repeat("a", MaxKeyLength+1), want: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsValidKey(tc.key); got != tc.want {
				t.Errorf("IsValidKey(%q) = %v, want %v", tc.key, got, tc.want)
			}
		})
	}
}

func TestSanitizeKey(t *testing.T) {
	testCases := map[string]string{
		"region":            "region",
		"due date":          "duedate",
		`status"]</script>`: "statusscript",
		"..//":              "",
		"Ünit_Cost-2":       "nit_Cost-2",
	}
	for in, want := range testCases {
		if got := SanitizeKey(in); got != want {
			t.Errorf("SanitizeKey(%q) = %q, want %q", in, got, want)
		}
	}

	long := SanitizeKey(strings.Repeat("ab", MaxKeyLength))
	if len(long) != MaxKeyLength {
		t.Errorf("expected sanitized key truncated to %d, got %d", MaxKeyLength, len(long))
	}
	if !IsValidKey(long) {
		t.Errorf("expected truncated key to be valid")
	}
}

func TestClampCount(t *testing.T) {
	testCases := []struct {
		name string
		in   interface{}
		want int
	}{
		{name: "in range", in: 5, want: 5},
		{name: "lower bound", in: 1, want: 1},
		{name: "upper bound", in: 20, want: 20},
		{name: "below", in: 0, want: 10},
		{name: "above", in: 21, want: 10},
		{name: "int64", in: int64(7), want: 7},
		{name: "integral float", in: 3.0, want: 3},
		{name: "fractional float", in: 3.5, want: 10},
		{name: "numeric string", in: " 12 ", want: 12},
		{name: "garbage string", in: "twelve", want: 10},
		{name: "nil", in: nil, want: 10},
		{name: "bool", in: true, want: 10},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClampCount(tc.in, 10, 1, 20); got != tc.want {
				t.Errorf("ClampCount(%v) = %d, want %d", tc.in, got, tc.want)
			}
		})
	}
}

func TestStructFieldKeyTag(t *testing.T) {
	type entry struct {
		Key string `validate:"fieldkey"`
	}
	if err := Struct(entry{Key: "status"}); err != nil {
		t.Errorf("expected valid entry, got %v", err)
	}
	if err := Struct(entry{Key: "bad key"}); err == nil {
		t.Error("expected error for invalid key")
	}
}
