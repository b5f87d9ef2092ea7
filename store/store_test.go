package store

import (
	"context"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/sardine-ai/fieldview/model"
	"github.com/sardine-ai/fieldview/source"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *source.MemoryRepository) {
	t.Helper()
	repo := source.NewMemoryRepository("test")
	s, err := New(repo, DefaultEntry, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return s, repo
}

func TestNewRejectsInvalidEntry(t *testing.T) {
	repo := source.NewMemoryRepository("test")
	if _, err := New(repo, "filter fields"); !errors.Is(err, source.ErrInvalidEntry) {
		t.Errorf("expected ErrInvalidEntry, got %v", err)
	}
	if _, err := New(nil, DefaultEntry); err == nil {
		t.Error("expected error for nil repository")
	}
}

func TestLoadAbsentReturnsEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	cfg, err := s.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cfg == nil || len(cfg) != 0 {
		t.Errorf("expected empty non-nil configuration, got %#v", cfg)
	}
}

func TestRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	want := model.Configuration{
		{Key: "status", Label: "Status", Enabled: true},
		{Key: "region", Label: "Region: EU/US", Enabled: false},
		{Key: "due_date", Label: "yes", Enabled: true},
		{Key: "owner-id", Label: "Owner #", Enabled: false},
	}
	if err := s.Save(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadCorruptDeletesEntry(t *testing.T) {
	testCases := map[string]string{
		"not yaml":   "{{{ not: valid",
		"mapping":    "key: status\nenabled: true\n",
		"scalar":     "42",
		"empty":      "",
		"json value": `{"key":"status"}`,
	}
	for name, raw := range testCases {
		t.Run(name, func(t *testing.T) {
			s, repo := newTestStore(t)
			ctx := context.Background()
			if err := repo.Write(ctx, DefaultEntry, []byte(raw)); err != nil {
				t.Fatal(err)
			}
			cfg, err := s.Load(ctx)
			if err != nil {
				t.Fatalf("corrupt data must not surface as an error: %v", err)
			}
			if len(cfg) != 0 {
				t.Errorf("expected empty configuration, got %v", cfg)
			}
			if _, err := repo.Read(ctx, DefaultEntry); !errors.Is(err, source.ErrNotFound) {
				t.Errorf("expected corrupt entry to be deleted, got %v", err)
			}
		})
	}
}

func TestLoadFiltersInvalidEntries(t *testing.T) {
	s, repo := newTestStore(t)
	ctx := context.Background()
	raw := `[
  {"key": "status", "label": "Status", "enabled": true},
  {"key": "bad key", "label": "Bad", "enabled": true},
  {"key": "region", "label": "Region", "enabled": "yes"},
  {"key": "owner", "enabled": false},
  {"key": "status", "label": "Again", "enabled": false},
  "department",
  {"key": "amount", "label": 12, "enabled": true}
]`
	if err := repo.Write(ctx, DefaultEntry, []byte(raw)); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := model.Configuration{
		{Key: "status", Label: "Status", Enabled: true},
		{Key: "owner", Label: "owner", Enabled: false},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected configuration (-want +got):\n%s", diff)
	}
	if _, err := repo.Read(ctx, DefaultEntry); err != nil {
		t.Errorf("partially valid entry must be kept, got %v", err)
	}
}

func TestSaveFiltersMalformedDescriptors(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	err := s.Save(ctx, model.Configuration{
		{Key: "status", Label: "Status", Enabled: true},
		{Key: "", Label: "Empty", Enabled: true},
		{Key: "a.b", Label: "Dotted", Enabled: true},
		{Key: "status", Label: "Twice", Enabled: false},
		{Key: "region", Enabled: false},
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := model.Configuration{
		{Key: "status", Label: "Status", Enabled: true},
		{Key: "region", Label: "region", Enabled: false},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected configuration (-want +got):\n%s", diff)
	}
}

func TestSaveRefusesOversizedPayload(t *testing.T) {
	s, repo := newTestStore(t, WithMaxBytes(512))
	ctx := context.Background()

	small := model.Configuration{{Key: "status", Label: "Status", Enabled: true}}
	if err := s.Save(ctx, small); err != nil {
		t.Fatal(err)
	}

	var big model.Configuration
	for i := 0; i < 20; i++ {
		big = append(big, model.FieldDescriptor{
			Key:     "field-" + strings.Repeat("x", 10) + string(rune('a'+i)),
			Label:   strings.Repeat("label ", 5),
			Enabled: true,
		})
	}
	err := s.Save(ctx, big)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}

	// the previous entry is untouched
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(small, got); diff != "" {
		t.Errorf("oversized save must not write (-want +got):\n%s", diff)
	}
	if _, err := repo.Read(ctx, DefaultEntry); err != nil {
		t.Errorf("expected entry to survive, got %v", err)
	}
}

func TestLoadOversizedEntryIsDiscarded(t *testing.T) {
	s, repo := newTestStore(t, WithMaxBytes(64))
	ctx := context.Background()
	raw := "- key: status\n  label: " + strings.Repeat("s", 100) + "\n  enabled: true\n"
	if err := repo.Write(ctx, DefaultEntry, []byte(raw)); err != nil {
		t.Fatal(err)
	}
	cfg, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg) != 0 {
		t.Errorf("expected empty configuration, got %v", cfg)
	}
	if _, err := repo.Read(ctx, DefaultEntry); !errors.Is(err, source.ErrNotFound) {
		t.Errorf("expected oversized entry to be deleted, got %v", err)
	}
}

func TestClear(t *testing.T) {
	s, repo := newTestStore(t)
	ctx := context.Background()
	if err := s.Save(ctx, model.Configuration{{Key: "status", Label: "Status", Enabled: true}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Read(ctx, DefaultEntry); !errors.Is(err, source.ErrNotFound) {
		t.Errorf("expected entry removed, got %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Errorf("clearing twice should succeed, got %v", err)
	}
}

func TestParseReportsRejected(t *testing.T) {
	parsed, err := Parse([]byte("- key: ok\n  enabled: true\n- key: 'no way'\n  enabled: true\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed.Configuration) != 1 {
		t.Errorf("expected 1 descriptor, got %d", len(parsed.Configuration))
	}
	if parsed.Rejected == nil || !strings.Contains(parsed.Rejected.Error(), "entry 1") {
		t.Errorf("expected rejection for entry 1, got %v", parsed.Rejected)
	}

	if _, err := Parse([]byte("nope: true")); !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
	if _, err := Parse([]byte("[unclosed")); !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt for syntax error, got %v", err)
	}
}
