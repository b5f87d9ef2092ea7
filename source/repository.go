package source

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/sardine-ai/fieldview/validate"
)

var (
	// ErrNotFound is returned by Read when the entry does not exist.
	ErrNotFound = errors.New("entry not found")
	// ErrInvalidEntry is returned for entry names that are not valid keys.
	ErrInvalidEntry = errors.New("invalid entry name")
	// ErrUnauthorized is returned when a remote back-end rejects the credentials.
	ErrUnauthorized = errors.New("unauthorized")
)

// Repository is a durable key-value area holding named, serialized entries.
// Entry names follow the same rules as field keys.
type Repository interface {
	GetName() string
	GetType() string
	Read(ctx context.Context, entry string) ([]byte, error)
	Write(ctx context.Context, entry string, data []byte) error
	Delete(ctx context.Context, entry string) error
}

// Config selects and parameterizes a Repository built by New.
type Config struct {
	Type            string `mapstructure:"type" validate:"omitempty,oneof=memory file web s3 gcs git"`
	Name            string `mapstructure:"name"`
	Path            string `mapstructure:"path"`
	URL             string `mapstructure:"url" validate:"omitempty,url"`
	APIKey          string `mapstructure:"api_key"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// New builds the Repository described by cfg. An empty type means "file".
func New(cfg Config) (Repository, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryRepository(cfg.Name), nil
	case "web":
		if cfg.URL == "" {
			return nil, errors.New("url is required for the web repository")
		}
		repo, err := NewWebRepository(cfg.URL, cfg.APIKey)
		if err != nil {
			return nil, err
		}
		repo.Name = cfg.Name
		return repo, nil
	case "s3":
		if cfg.Bucket == "" {
			return nil, errors.New("bucket is required for the s3 repository")
		}
		return &AwsS3Repository{
			Name:            cfg.Name,
			BucketName:      cfg.Bucket,
			Prefix:          cfg.Prefix,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		}, nil
	case "gcs":
		if cfg.Bucket == "" {
			return nil, errors.New("bucket is required for the gcs repository")
		}
		return &GcpStorageRepository{Name: cfg.Name, BucketName: cfg.Bucket, Prefix: cfg.Prefix}, nil
	case "git":
		if cfg.Path == "" {
			return nil, errors.New("path is required for the git repository")
		}
		return &GitRepository{Name: cfg.Name, Path: cfg.Path}, nil
	case "file", "":
		if cfg.Path == "" {
			return nil, errors.New("path is required for the file repository")
		}
		return NewFileRepository(cfg.Name, cfg.Path)
	default:
		return nil, errors.Newf("unknown repository type %q", cfg.Type)
	}
}

func checkEntry(entry string) error {
	if !validate.IsValidKey(entry) {
		return errors.Wrapf(ErrInvalidEntry, "%q", entry)
	}
	return nil
}

func notFound(entry string) error {
	return errors.Wrapf(ErrNotFound, "%q", entry)
}

func objectName(prefix, entry string) string {
	return prefix + entry + ".yaml"
}
