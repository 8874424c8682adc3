package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sethvargo/go-envconfig"
)

// ContinueOnErrorPolicy decides how a job that tolerated a step failure
// via continue-on-error ends up.
type ContinueOnErrorPolicy string

const (
	// PolicyWarn marks the job succeeded with warnings.
	PolicyWarn ContinueOnErrorPolicy = "warn"
	// PolicyFail still marks the job failed once all steps have run.
	PolicyFail ContinueOnErrorPolicy = "fail"
)

// Duration wraps time.Duration so values can be written as "30s" or "5m"
// in both the TOML file and environment variables.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds all conveyor engine configuration.
type Config struct {
	// MaxConcurrency bounds how many jobs run in parallel.
	MaxConcurrency int `toml:"max_concurrency" env:"MAX_CONCURRENCY"`
	// StepTimeout bounds a single step's execution when the step does
	// not declare its own timeout. Zero means no limit.
	StepTimeout Duration `toml:"step_timeout" env:"STEP_TIMEOUT"`
	// GracePeriod is how long a cancelled step may keep running after
	// SIGTERM before it is force-killed.
	GracePeriod Duration `toml:"grace_period" env:"GRACE_PERIOD"`
	// ContinueOnError is the job outcome policy for tolerated failures.
	ContinueOnError ContinueOnErrorPolicy `toml:"continue_on_error" env:"CONTINUE_ON_ERROR"`
	// ArchivePath is the SQLite file completed runs are archived to.
	// Empty disables archiving.
	ArchivePath string `toml:"archive_path" env:"ARCHIVE_PATH"`
}

const (
	defaultMaxConcurrency = 4
	defaultGracePeriod    = 10 * time.Second
)

// Default returns the engine defaults applied before any file or
// environment value.
func Default() Config {
	return Config{
		MaxConcurrency:  defaultMaxConcurrency,
		GracePeriod:     Duration(defaultGracePeriod),
		ContinueOnError: PolicyWarn,
	}
}

// LoadFrom reads configuration from the given TOML file path. If the file
// does not exist, defaults are used without error. Environment variables
// prefixed CONVEYOR_ always take precedence over file values, e.g.
// CONVEYOR_MAX_CONCURRENCY overrides max_concurrency.
func LoadFrom(ctx context.Context, path string) (Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decoding %s: %w", path, err)
		}
	}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.PrefixLookuper("CONVEYOR_", envconfig.OsLookuper()),
	}); err != nil {
		return Config{}, fmt.Errorf("applying environment overrides: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1, got %d", c.MaxConcurrency)
	}
	switch c.ContinueOnError {
	case PolicyWarn, PolicyFail:
	default:
		return fmt.Errorf("continue_on_error must be %q or %q, got %q", PolicyWarn, PolicyFail, c.ContinueOnError)
	}
	return nil
}

// DefaultConfigPath returns the default path for the conveyor config file.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return home + "/.config/conveyor/config.toml"
}
