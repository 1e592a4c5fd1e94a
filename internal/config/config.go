// Package config loads drover configuration from the TOML file under the
// state root, with environment variables taking precedence over the file
// and built-in defaults filling whatever remains.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/droverhq/drover/internal/paths"
)

// Environment variables recognized alongside the config file. Env always
// wins over file values.
const (
	EnvAPIKey  = "JULES_API_KEY"
	EnvBaseURL = "JULES_API_BASE_URL"
)

// Config is the merged view of file, environment, and defaults.
type Config struct {
	API   APIConfig   `toml:"api"`
	Sync  SyncConfig  `toml:"sync"`
	Fleet FleetConfig `toml:"fleet"`
	Log   LogConfig   `toml:"log"`
}

// APIConfig configures the transport.
type APIConfig struct {
	// Key authenticates against the Jules API.
	Key string `toml:"key"`

	// BaseURL overrides the production endpoint, mainly for testing.
	BaseURL string `toml:"base_url"`

	// RequestTimeout bounds each HTTP attempt, e.g. "30s".
	RequestTimeout duration `toml:"request_timeout"`

	// PollInterval is the delay between session and activity polls.
	PollInterval duration `toml:"poll_interval"`
}

// SyncConfig holds defaults for the sync command.
type SyncConfig struct {
	Limit       int      `toml:"limit"`
	Depth       string   `toml:"depth"`
	Concurrency int      `toml:"concurrency"`
	Incremental *bool    `toml:"incremental"`
	Checkpoint  bool     `toml:"checkpoint"`
	Timeout     duration `toml:"timeout"`
}

// FleetConfig holds defaults for fleet dispatch and merge.
type FleetConfig struct {
	BaseBranch  string   `toml:"base_branch"`
	Concurrency int      `toml:"concurrency"`
	MaxRetries  int      `toml:"max_retries"`
	MaxCIWait   duration `toml:"max_ci_wait"`
	PollTimeout duration `toml:"poll_timeout"`
	ReDispatch  *bool    `toml:"re_dispatch"`
}

// LogConfig configures diagnostic logging.
type LogConfig struct {
	Level string `toml:"level"`
}

// duration decodes TOML duration strings like "45s" or "2m".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration, or fallback when unset.
func (d duration) Duration(fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return time.Duration(d)
}

// Default returns the built-in configuration.
func Default() Config {
	t := true
	return Config{
		API: APIConfig{},
		Sync: SyncConfig{
			Limit:       100,
			Depth:       "metadata",
			Concurrency: 3,
			Incremental: &t,
		},
		Fleet: FleetConfig{
			BaseBranch:  "main",
			Concurrency: 4,
			MaxRetries:  2,
			MaxCIWait:   duration(600 * time.Second),
			PollTimeout: duration(900 * time.Second),
		},
	}
}

// Load reads the config file under root and applies environment overrides.
// A missing file is not an error; defaults are returned.
func Load(root string) (Config, error) {
	cfg := Default()

	path := paths.ConfigFile(root)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyEnv(&cfg)
	normalize(&cfg)
	return cfg, nil
}

// applyEnv overrides file values with environment variables.
func applyEnv(cfg *Config) {
	if key := os.Getenv(EnvAPIKey); key != "" {
		cfg.API.Key = key
	}
	if base := os.Getenv(EnvBaseURL); base != "" {
		cfg.API.BaseURL = base
	}
}

// normalize backfills zero values so callers never re-check defaults.
func normalize(cfg *Config) {
	def := Default()
	if cfg.Sync.Limit <= 0 {
		cfg.Sync.Limit = def.Sync.Limit
	}
	if cfg.Sync.Depth == "" {
		cfg.Sync.Depth = def.Sync.Depth
	}
	if cfg.Sync.Concurrency <= 0 {
		cfg.Sync.Concurrency = def.Sync.Concurrency
	}
	if cfg.Sync.Incremental == nil {
		cfg.Sync.Incremental = def.Sync.Incremental
	}
	if cfg.Fleet.BaseBranch == "" {
		cfg.Fleet.BaseBranch = def.Fleet.BaseBranch
	}
	if cfg.Fleet.Concurrency <= 0 {
		cfg.Fleet.Concurrency = def.Fleet.Concurrency
	}
	if cfg.Fleet.MaxRetries < 0 {
		cfg.Fleet.MaxRetries = def.Fleet.MaxRetries
	}
	if cfg.Fleet.MaxCIWait <= 0 {
		cfg.Fleet.MaxCIWait = def.Fleet.MaxCIWait
	}
	if cfg.Fleet.PollTimeout <= 0 {
		cfg.Fleet.PollTimeout = def.Fleet.PollTimeout
	}
}
