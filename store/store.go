// Package store persists one named Configuration in a source.Repository and
// refuses to hand back anything that does not validate.
package store

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/sardine-ai/fieldview/model"
	"github.com/sardine-ai/fieldview/source"
	"github.com/sardine-ai/fieldview/validate"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultEntry is the entry name used when none is configured.
const DefaultEntry = "filter-fields"

var (
	// ErrPayloadTooLarge is returned by Save when the serialized
	// configuration exceeds the size cap. Nothing is written.
	ErrPayloadTooLarge = errors.New("serialized configuration exceeds size limit")
	// ErrCorrupt marks data that could not be parsed as a configuration.
	ErrCorrupt = errors.New("corrupt configuration")
)

// Store reads and writes a Configuration under a single entry name.
type Store struct {
	repo     source.Repository
	entry    string
	maxBytes int
	log      *logrus.Entry
}

// Option customizes a Store.
type Option func(*Store)

// WithMaxBytes overrides validate.MaxPayloadBytes.
func WithMaxBytes(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// New returns a Store for entry inside repo. The entry name must be a valid key.
func New(repo source.Repository, entry string, opts ...Option) (*Store, error) {
	if repo == nil {
		return nil, errors.New("repository is required")
	}
	if !validate.IsValidKey(entry) {
		return nil, errors.Wrapf(source.ErrInvalidEntry, "%q", entry)
	}
	s := &Store{
		repo:     repo,
		entry:    entry,
		maxBytes: validate.MaxPayloadBytes,
		log: logrus.WithFields(logrus.Fields{
			"component":  "store",
			"repository": repo.GetName(),
			"entry":      entry,
		}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Entry returns the entry name.
func (s *Store) Entry() string {
	return s.entry
}

// Load returns the persisted configuration. An absent entry yields an empty
// configuration. Data that cannot be parsed as a list is deleted and treated
// as absent; individual malformed descriptors are dropped. Only back-end
// failures are returned as errors.
func (s *Store) Load(ctx context.Context) (model.Configuration, error) {
	data, err := s.repo.Read(ctx, s.entry)
	if errors.Is(err, source.ErrNotFound) {
		return model.Configuration{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading configuration")
	}

	if len(data) > s.maxBytes {
		s.discard(ctx, errors.Newf("%d bytes exceeds the %d byte limit", len(data), s.maxBytes))
		return model.Configuration{}, nil
	}
	parsed, err := Parse(data)
	if err != nil {
		s.discard(ctx, err)
		return model.Configuration{}, nil
	}
	if parsed.Rejected != nil {
		s.log.WithError(parsed.Rejected).Warn("dropped invalid field descriptors")
	}
	return parsed.Configuration, nil
}

func (s *Store) discard(ctx context.Context, cause error) {
	s.log.WithError(cause).Warn("discarding corrupt configuration")
	if err := s.repo.Delete(ctx, s.entry); err != nil {
		s.log.WithError(err).Error("error deleting corrupt configuration")
	}
}

// Save filters cfg to well-formed descriptors and writes it. A payload over
// the size cap is refused with ErrPayloadTooLarge.
func (s *Store) Save(ctx context.Context, cfg model.Configuration) error {
	clean, rejected := Sanitize(cfg)
	if rejected != nil {
		s.log.WithError(rejected).Warn("not persisting invalid field descriptors")
	}
	data, err := Encode(clean)
	if err != nil {
		return err
	}
	if len(data) > s.maxBytes {
		return errors.Wrapf(ErrPayloadTooLarge, "%d bytes, limit %d", len(data), s.maxBytes)
	}
	if err := s.repo.Write(ctx, s.entry, data); err != nil {
		return errors.Wrap(err, "saving configuration")
	}
	s.log.Debugf("saved %d descriptors", len(clean))
	return nil
}

// Clear removes the persisted configuration.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.repo.Delete(ctx, s.entry); err != nil {
		return errors.Wrap(err, "clearing configuration")
	}
	return nil
}

// Encode serializes a configuration as a YAML sequence.
func Encode(cfg model.Configuration) ([]byte, error) {
	if cfg == nil {
		cfg = model.Configuration{}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "encoding configuration")
	}
	return data, nil
}

// Parsed is the outcome of Parse.
type Parsed struct {
	Configuration model.Configuration
	// Rejected aggregates the dropped entries; nil when none were dropped.
	Rejected error
}

// Parse decodes data into a configuration. It fails with ErrCorrupt when the
// document is not a sequence. Entries that are not mappings or that carry an
// invalid key, a non-boolean enabled flag, a non-string label or an already
// seen key are dropped and reported in Parsed.Rejected. JSON input is
// accepted as well.
func Parse(data []byte) (Parsed, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Parsed{}, errors.Mark(errors.Wrap(err, "parsing configuration"), ErrCorrupt)
	}
	items, ok := doc.([]interface{})
	if !ok {
		return Parsed{}, errors.Wrapf(ErrCorrupt, "expected a list, got %T", doc)
	}

	var rejected *multierror.Error
	cfg := make(model.Configuration, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		d, err := descriptor(item)
		if err != nil {
			rejected = multierror.Append(rejected, errors.Wrapf(err, "entry %d", i))
			continue
		}
		if _, dup := seen[d.Key]; dup {
			rejected = multierror.Append(rejected, errors.Newf("entry %d: duplicate key %q", i, d.Key))
			continue
		}
		seen[d.Key] = struct{}{}
		cfg = append(cfg, d)
	}
	return Parsed{Configuration: cfg, Rejected: rejected.ErrorOrNil()}, nil
}

func descriptor(item interface{}) (model.FieldDescriptor, error) {
	m, ok := item.(map[string]interface{})
	if !ok {
		return model.FieldDescriptor{}, errors.Newf("expected a mapping, got %T", item)
	}
	key, ok := m["key"].(string)
	if !ok || !validate.IsValidKey(key) {
		return model.FieldDescriptor{}, errors.Newf("invalid key %v", m["key"])
	}
	enabled, ok := m["enabled"].(bool)
	if !ok {
		return model.FieldDescriptor{}, errors.Newf("key %q: enabled is not a boolean", key)
	}
	label := key
	switch l := m["label"].(type) {
	case nil:
	case string:
		if l != "" {
			label = l
		}
	default:
		return model.FieldDescriptor{}, errors.Newf("key %q: label is not a string", key)
	}
	return model.FieldDescriptor{Key: key, Label: label, Enabled: enabled}, nil
}

// Sanitize keeps the well-formed descriptors of cfg, dropping invalid keys
// and repeated keys. Empty labels fall back to the key.
func Sanitize(cfg model.Configuration) (model.Configuration, error) {
	var rejected *multierror.Error
	clean := make(model.Configuration, 0, len(cfg))
	seen := make(map[string]struct{}, len(cfg))
	for i, d := range cfg {
		if err := validate.Struct(d); err != nil {
			rejected = multierror.Append(rejected, errors.Wrapf(err, "entry %d", i))
			continue
		}
		if _, dup := seen[d.Key]; dup {
			rejected = multierror.Append(rejected, errors.Newf("entry %d: duplicate key %q", i, d.Key))
			continue
		}
		seen[d.Key] = struct{}{}
		if d.Label == "" {
			d.Label = d.Key
		}
		clean = append(clean, d)
	}
	return clean, rejected.ErrorOrNil()
}
