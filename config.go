package hitrace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"dario.cat/mergo"
	json "github.com/goccy/go-json"
	"github.com/hashicorp/go-hclog"
	"go.uber.org/multierr"
)

// Environment variables read by LoadConfig.
const (
	EnvDisabled    = "HITRACE_DISABLED"
	EnvTags        = "HITRACE_TAGS_ENABLEFLAGS"
	EnvTracingRoot = "HITRACE_TRACING_ROOT"
	EnvLogLevel    = "HITRACE_LOG_LEVEL"
	EnvIDPoolSize  = "HITRACE_ID_POOL_SIZE"
)

// Config controls a Tracer.
type Config struct {
	// TracingRoot is the tracing directory. Empty means look for debugfs,
	// then tracefs.
	TracingRoot string `json:"tracing_root,omitempty"`
	// LogLevel is an hclog level name.
	LogLevel string `json:"log_level,omitempty"`
	// Tags is the enabled category mask. TagAlways is always added.
	Tags Tag `json:"tags,omitempty"`
	// IDPoolSize is the number of pre-generated ids. Zero picks a size from
	// the CPU count.
	IDPoolSize int `json:"id_pool_size,omitempty"`
	// Disabled turns every event into a no-op.
	Disabled bool `json:"disabled,omitempty"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Tags:     TagAlways,
	}
}

// LoadConfig builds a Config from the defaults, the JSON file at path (if
// path is not empty) and the HITRACE_* environment, in that order.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		var fileCfg Config
		if err := json.Unmarshal(data, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
		if err := mergo.Merge(&cfg, fileCfg, mergo.WithOverride); err != nil {
			return Config{}, fmt.Errorf("merge config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides fields from the environment.
func (c *Config) applyEnv() error {
	var errs error

	if v := getEnv(EnvDisabled, ""); v != "" {
		disabled, err := strconv.ParseBool(v)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", EnvDisabled, err))
		} else {
			c.Disabled = disabled
		}
	}
	if v := getEnv(EnvTags, ""); v != "" {
		tags, err := strconv.ParseUint(v, 0, 64)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", EnvTags, err))
		} else {
			c.Tags = Tag(tags)
		}
	}
	if v := getEnv(EnvIDPoolSize, ""); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", EnvIDPoolSize, err))
		} else {
			c.IDPoolSize = size
		}
	}
	c.TracingRoot = getEnv(EnvTracingRoot, c.TracingRoot)
	c.LogLevel = getEnv(EnvLogLevel, c.LogLevel)

	return errs
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs error
	if c.LogLevel != "" && hclog.LevelFromString(c.LogLevel) == hclog.NoLevel {
		errs = multierr.Append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	if c.IDPoolSize < 0 {
		errs = multierr.Append(errs, errors.New("id pool size must be >= 0"))
	}
	if c.TracingRoot != "" && !filepath.IsAbs(c.TracingRoot) {
		errs = multierr.Append(errs, fmt.Errorf("tracing root %q must be absolute", c.TracingRoot))
	}
	return errs
}

// getEnv returns environment variable value or default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
