package source

import (
	"context"
	"io"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/cockroachdb/errors"
	"google.golang.org/api/option"
)

// GcpStorageRepository is a struct that implements the Repository interface for
// entries stored as objects in a GCS bucket.
type GcpStorageRepository struct {
	Name          string          // Name of the storage area
	BucketName    string          // Name of the GCS bucket
	Prefix        string          // Object name prefix
	Client        *storage.Client // GCS client instance
	ClientOptions []option.ClientOption
	clientOnce    sync.Once // Ensures client is initialized only once
	clientInitErr error     // Stores error from client initialization
}

func (g *GcpStorageRepository) GetName() string {
	return g.Name
}

func (g *GcpStorageRepository) GetType() string {
	return "gcs"
}

func (g *GcpStorageRepository) object(ctx context.Context, entry string) (*storage.ObjectHandle, error) {
	// Thread-safe client initialization using sync.Once (only if client not pre-configured)
	if g.Client == nil {
		g.clientOnce.Do(func() {
			g.Client, g.clientInitErr = storage.NewClient(ctx, g.ClientOptions...)
		})
		if g.clientInitErr != nil {
			return nil, errors.Wrap(g.clientInitErr, "creating storage client")
		}
	}
	return g.Client.Bucket(g.BucketName).Object(objectName(g.Prefix, entry)), nil
}

// Read downloads the entry object.
func (g *GcpStorageRepository) Read(ctx context.Context, entry string) ([]byte, error) {
	if err := checkEntry(entry); err != nil {
		return nil, err
	}
	obj, err := g.object(ctx, entry)
	if err != nil {
		return nil, err
	}
	reader, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, notFound(entry)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening object for entry %q", entry)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrapf(err, "reading object for entry %q", entry)
	}
	return data, nil
}

// Write uploads the entry object. GCS only makes the object visible once the
// writer is closed, so a failed upload never leaves a partial entry.
func (g *GcpStorageRepository) Write(ctx context.Context, entry string, data []byte) error {
	if err := checkEntry(entry); err != nil {
		return err
	}
	obj, err := g.object(ctx, entry)
	if err != nil {
		return err
	}
	w := obj.NewWriter(ctx)
	w.ContentType = "application/yaml"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return errors.Wrapf(err, "uploading entry %q", entry)
	}
	if err := w.Close(); err != nil {
		return errors.Wrapf(err, "closing upload of entry %q", entry)
	}
	return nil
}

// Delete removes the entry object. A missing object is not an error.
func (g *GcpStorageRepository) Delete(ctx context.Context, entry string) error {
	if err := checkEntry(entry); err != nil {
		return err
	}
	obj, err := g.object(ctx, entry)
	if err != nil {
		return err
	}
	err = obj.Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return errors.Wrapf(err, "deleting entry %q", entry)
	}
	return nil
}
