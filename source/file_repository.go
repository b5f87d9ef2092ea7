package source

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

// FileRepository is a struct that implements the Repository interface for
// entries stored as one YAML file each inside a directory.
type FileRepository struct {
	sync.Mutex        // Serializes writers so temp files never race on rename
	Name       string // Name of the storage area
	Dir        string // Absolute directory holding the entry files
}

// NewFileRepository creates a FileRepository rooted at dir.
func NewFileRepository(name, dir string) (*FileRepository, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		logrus.WithError(err).Error("error getting absolute path")
		return nil, errors.Wrap(err, "resolving repository directory")
	}
	return &FileRepository{Name: name, Dir: absDir}, nil
}

// GetName returns the name of the storage area.
func (f *FileRepository) GetName() string {
	return f.Name
}

// GetType returns "file".
func (f *FileRepository) GetType() string {
	return "file"
}

func (f *FileRepository) path(entry string) string {
	return filepath.Join(f.Dir, objectName("", entry))
}

// Read returns the content of the entry file.
func (f *FileRepository) Read(_ context.Context, entry string) ([]byte, error) {
	if err := checkEntry(entry); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path(entry))
	if errors.Is(err, os.ErrNotExist) {
		return nil, notFound(entry)
	}
	if err != nil {
		logrus.WithField("repository", f.Name).Debug("error reading file")
		return nil, errors.Wrapf(err, "reading entry %q", entry)
	}
	return data, nil
}

// Write replaces the entry file atomically: the data goes to a temp file in
// the same directory which is then renamed over the entry.
func (f *FileRepository) Write(_ context.Context, entry string, data []byte) error {
	if err := checkEntry(entry); err != nil {
		return err
	}
	f.Lock()
	defer f.Unlock()

	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return errors.Wrap(err, "creating repository directory")
	}
	tmp, err := os.CreateTemp(f.Dir, "."+entry+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Wrapf(err, "writing entry %q", entry)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrapf(err, "closing entry %q", entry)
	}
	if err := os.Rename(tmpName, f.path(entry)); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrapf(err, "replacing entry %q", entry)
	}
	logrus.WithField("repository", f.Name).Debugf("wrote %s", f.path(entry))
	return nil
}

// Delete removes the entry file. Removing an absent entry is not an error.
func (f *FileRepository) Delete(_ context.Context, entry string) error {
	if err := checkEntry(entry); err != nil {
		return err
	}
	f.Lock()
	defer f.Unlock()
	err := os.Remove(f.path(entry))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "deleting entry %q", entry)
	}
	return nil
}
