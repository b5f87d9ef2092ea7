package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileRepository(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "prefs")
	repo, err := NewFileRepository("local", dir)
	if err != nil {
		t.Fatal(err)
	}
	exerciseRepository(t, repo)

	// happy path leaves exactly one file and no temp files behind
	if err := repo.Write(context.Background(), "filter-fields", []byte("[]")); err != nil {
		t.Fatal(err)
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Name() != "filter-fields.yaml" {
		var names []string
		for _, f := range files {
			names = append(names, f.Name())
		}
		t.Errorf("expected only filter-fields.yaml, got %v", names)
	}
}

func TestFileRepositoryRelativePath(t *testing.T) {
	repo, err := NewFileRepository("local", "prefs")
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(repo.Dir) {
		t.Errorf("expected absolute directory, got %q", repo.Dir)
	}
	if repo.GetName() != "local" {
		t.Errorf("expected name %q, got %q", "local", repo.GetName())
	}
}
