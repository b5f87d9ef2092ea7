// Package config loads fieldview settings from flags, FIELDVIEW_* environment
// variables and an optional YAML file, in that order of precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/sardine-ai/fieldview/source"
	"github.com/sardine-ai/fieldview/store"
	"github.com/sardine-ai/fieldview/validate"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "FIELDVIEW"

type Server struct {
	Addr          string        `mapstructure:"addr" validate:"required"`
	APIKey        string        `mapstructure:"api_key"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
}

type Config struct {
	Repository     source.Config `mapstructure:"repository"`
	Entry          string        `mapstructure:"entry" validate:"fieldkey"`
	MaxEnabled     int           `mapstructure:"max_enabled" validate:"gte=1,lte=500"`
	DefaultEnabled []string      `mapstructure:"default_enabled" validate:"dive,fieldkey"`
	SyncDebounce   time.Duration `mapstructure:"sync_debounce" validate:"gte=0"`
	SaveDebounce   time.Duration `mapstructure:"save_debounce" validate:"gte=0"`
	LogLevel       string        `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	Server         Server        `mapstructure:"server"`
}

// flagKeys maps flag names to configuration keys. Flags not listed use their
// own name.
var flagKeys = map[string]string{
	"repo-type":      "repository.type",
	"repo-name":      "repository.name",
	"repo-path":      "repository.path",
	"repo-url":       "repository.url",
	"repo-api-key":   "repository.api_key",
	"bucket":         "repository.bucket",
	"prefix":         "repository.prefix",
	"region":         "repository.region",
	"endpoint":       "repository.endpoint",
	"max-enabled":    "max_enabled",
	"default-enable": "default_enabled",
	"sync-debounce":  "sync_debounce",
	"save-debounce":  "save_debounce",
	"log-level":      "log_level",
	"addr":           "server.addr",
	"api-key":        "server.api_key",
	"probe-interval": "server.probe_interval",
}

// DefaultDir is where the file repository keeps entries unless configured.
func DefaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "fieldview")
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("repository.type", "file")
	v.SetDefault("repository.name", "local")
	v.SetDefault("repository.path", DefaultDir())
	v.SetDefault("entry", store.DefaultEntry)
	v.SetDefault("max_enabled", 10)
	v.SetDefault("sync_debounce", 300*time.Millisecond)
	v.SetDefault("save_debounce", time.Duration(0))
	v.SetDefault("log_level", "info")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.probe_interval", 30*time.Second)
}

// AddFlags declares the persistent flags shared by every command.
func AddFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "YAML configuration file")
	flags.String("repo-type", "", "repository type: memory, file, web, s3, gcs or git")
	flags.String("repo-name", "", "repository name used in logs")
	flags.String("repo-path", "", "directory for the file and git repositories")
	flags.String("repo-url", "", "preferences server URL for the web repository")
	flags.String("repo-api-key", "", "API key sent to the preferences server")
	flags.String("bucket", "", "bucket for the s3 and gcs repositories")
	flags.String("prefix", "", "object name prefix for the s3 and gcs repositories")
	flags.String("region", "", "AWS region")
	flags.String("endpoint", "", "custom S3 endpoint")
	flags.String("entry", "", "name of the persisted entry")
	flags.Int("max-enabled", 0, "maximum number of shown fields")
	flags.StringSlice("default-enable", nil, "fields shown when first discovered")
	flags.Duration("sync-debounce", 0, "quiet period before reacting to view changes")
	flags.Duration("save-debounce", 0, "delay before writes, 0 writes immediately")
	flags.String("log-level", "", "trace, debug, info, warn or error")
}

// AddServerFlags declares the flags of the serve command.
func AddServerFlags(flags *pflag.FlagSet) {
	flags.String("addr", "", "listen address")
	flags.String("api-key", "", "API key required on /entries")
	flags.Duration("probe-interval", 0, "interval between repository health probes")
}

// BindFlagsToViper binds the flags that were set on cmd, including inherited
// persistent flags once parsed, to v. Unset flags are left out so they do not
// shadow environment and file values.
func BindFlagsToViper(cmd *cobra.Command, v *viper.Viper) error {
	var result error
	bind := func(f *pflag.Flag) {
		if f.Name == "config" || !f.Changed {
			return
		}
		key, ok := flagKeys[f.Name]
		if !ok {
			key = f.Name
		}
		if err := v.BindPFlag(key, f); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "binding --%s", f.Name))
		}
	}
	cmd.Flags().VisitAll(bind)
	return result
}

// SetViperEnvPrefix lets v read FIELDVIEW_* variables, with dots and dashes
// in keys replaced by underscores.
func SetViperEnvPrefix(v *viper.Viper, prefix string) {
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load builds the configuration for cmd.
func Load(cmd *cobra.Command) (Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetViperEnvPrefix(v, EnvPrefix)

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "reading %s", path)
		}
	}
	if err := BindFlagsToViper(cmd, v); err != nil {
		return Config{}, err
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	// Nested keys are only seen by Unmarshal when known to viper, so
	// environment-only values are bound explicitly.
	for _, key := range envKeys() {
		if err := v.BindEnv(key); err != nil {
			return Config{}, errors.Wrapf(err, "binding %s", key)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decoding configuration")
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func envKeys() []string {
	return []string{
		"repository.url", "repository.api_key", "repository.bucket",
		"repository.prefix", "repository.region", "repository.endpoint",
		"repository.access_key_id", "repository.secret_access_key",
		"default_enabled", "server.api_key",
	}
}

// ConfigureLogging applies the log level.
func (c Config) ConfigureLogging() error {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return errors.Wrapf(err, "log level %q", c.LogLevel)
	}
	logrus.SetLevel(level)
	return nil
}

// OpenStore builds the configured repository and a store on it.
func (c Config) OpenStore() (*store.Store, source.Repository, error) {
	repo, err := source.New(c.Repository)
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating repository")
	}
	st, err := store.New(repo, c.Entry)
	if err != nil {
		return nil, nil, err
	}
	return st, repo, nil
}
