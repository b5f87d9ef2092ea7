package source

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
)

// exerciseRepository runs the read/write/delete contract every back-end shares.
func exerciseRepository(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()

	if _, err := repo.Read(ctx, "filter-fields"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for absent entry, got %v", err)
	}

	payload := []byte("- key: status\n  label: Status\n  enabled: true\n")
	if err := repo.Write(ctx, "filter-fields", payload); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	data, err := repo.Read(ctx, "filter-fields")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != string(payload) {
		t.Errorf("expected %q, got %q", payload, data)
	}

	replaced := []byte("[]\n")
	if err := repo.Write(ctx, "filter-fields", replaced); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	data, err = repo.Read(ctx, "filter-fields")
	if err != nil {
		t.Fatalf("read after overwrite failed: %v", err)
	}
	if string(data) != string(replaced) {
		t.Errorf("expected %q, got %q", replaced, data)
	}

	if err := repo.Delete(ctx, "filter-fields"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := repo.Read(ctx, "filter-fields"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := repo.Delete(ctx, "filter-fields"); err != nil {
		t.Errorf("deleting an absent entry should succeed, got %v", err)
	}

	if err := repo.Write(ctx, "../escape", payload); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("expected ErrInvalidEntry, got %v", err)
	}
	if _, err := repo.Read(ctx, ""); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("expected ErrInvalidEntry for empty name, got %v", err)
	}
}

func TestMemoryRepository(t *testing.T) {
	repo := NewMemoryRepository("memory")
	exerciseRepository(t, repo)

	// Stored bytes must not alias the caller's buffer.
	buf := []byte("[]")
	if err := repo.Write(context.Background(), "alias", buf); err != nil {
		t.Fatal(err)
	}
	buf[0] = 'x'
	data, _ := repo.Read(context.Background(), "alias")
	if string(data) != "[]" {
		t.Errorf("expected stored copy, got %q", data)
	}
}

func TestNewRepository(t *testing.T) {
	testCases := []struct {
		name     string
		cfg      Config
		wantType string
		wantErr  bool
	}{
		{name: "memory", cfg: Config{Type: "memory"}, wantType: "memory"},
		{name: "file", cfg: Config{Type: "file", Path: t.TempDir()}, wantType: "file"},
		{name: "default is file", cfg: Config{Path: t.TempDir()}, wantType: "file"},
		{name: "web", cfg: Config{Type: "web", URL: "http://127.0.0.1:8080"}, wantType: "web"},
		{name: "s3", cfg: Config{Type: "s3", Bucket: "layouts"}, wantType: "s3"},
		{name: "gcs", cfg: Config{Type: "gcs", Bucket: "layouts"}, wantType: "gcs"},
		{name: "git", cfg: Config{Type: "git", Path: t.TempDir()}, wantType: "git"},
		{name: "file without path", cfg: Config{Type: "file"}, wantErr: true},
		{name: "web without url", cfg: Config{Type: "web"}, wantErr: true},
		{name: "web relative url", cfg: Config{Type: "web", URL: "/entries"}, wantErr: true},
		{name: "s3 without bucket", cfg: Config{Type: "s3"}, wantErr: true},
		{name: "gcs without bucket", cfg: Config{Type: "gcs"}, wantErr: true},
		{name: "git without path", cfg: Config{Type: "git"}, wantErr: true},
		{name: "unknown", cfg: Config{Type: "ftp"}, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo, err := New(tc.cfg)
			if tc.wantErr {
				if err == nil {
					t.Errorf("expected error, got repository %T", repo)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if repo.GetType() != tc.wantType {
				t.Errorf("expected type %q, got %q", tc.wantType, repo.GetType())
			}
		})
	}
}

func TestAwsS3RepositoryRejectsInvalidEntryBeforeNetwork(t *testing.T) {
	repo := &AwsS3Repository{BucketName: "layouts", Prefix: "users/42/"}
	ctx := context.Background()
	if _, err := repo.Read(ctx, "bad/entry"); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("expected ErrInvalidEntry, got %v", err)
	}
	if err := repo.Write(ctx, "", []byte("[]")); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("expected ErrInvalidEntry, got %v", err)
	}
	if repo.Client != nil {
		t.Error("client should not be created for rejected entries")
	}
	if got := objectName(repo.Prefix, "filter-fields"); got != "users/42/filter-fields.yaml" {
		t.Errorf("unexpected object name %q", got)
	}
}
