// Package config holds the search limits used by every predictor and the
// service configuration, loaded with viper from defaults, an optional file,
// STARPREDICT_* environment variables and command-line flags.
package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, with dots in keys
// replaced by underscores (search.max_iterations → STARPREDICT_SEARCH_MAX_ITERATIONS).
const EnvPrefix = "STARPREDICT"

// DefaultMaxIterations bounds every search loop.
const DefaultMaxIterations = 99999

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Search bounds the root-finders and scanners. It is passed explicitly to
// every constructor that loops.
type Search struct {
	// MaxIterations caps each loop of a search; a capped root-find is
	// reported as non-convergence.
	MaxIterations int `mapstructure:"max_iterations"`
	// Debug logs every step of the scans at debug level.
	Debug bool `mapstructure:"debug"`
}

// DefaultSearch returns the standard search limits.
func DefaultSearch() Search {
	return Search{MaxIterations: DefaultMaxIterations}
}

// Validate checks the search limits.
func (s Search) Validate() error {
	if s.MaxIterations < 1 {
		return errors.Wrapf(ErrInvalid, "search.max_iterations must be at least 1, got %d", s.MaxIterations)
	}
	return nil
}

// HTTP configures the listener.
type HTTP struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
	TrustProxy bool `mapstructure:"trust_proxy"`
}

// Auth configures bearer-token authentication.
type Auth struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
}

// RateLimit configures the per-client token bucket. RPS 0 disables it.
type RateLimit struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// Stream configures the live position feed and the snapshot cache behind it.
type Stream struct {
	MaxPerIP  int           `mapstructure:"max_per_ip"`
	Keepalive time.Duration `mapstructure:"keepalive"`
	// Step is the spacing of cached snapshots.
	Step time.Duration `mapstructure:"step"`
	// Buffer is how long a snapshot is kept after its instant has passed.
	Buffer time.Duration `mapstructure:"buffer"`
}

// TLE configures where the catalog comes from.
type TLE struct {
	// File is a local catalog loaded at startup instead of fetching.
	File            string        `mapstructure:"file"`
	EnableFetch     bool          `mapstructure:"enable_fetch"`
	SourceURL       string        `mapstructure:"source_url"`
	ExtraSourceURLs []string      `mapstructure:"extra_urls"`
	CacheDir        string        `mapstructure:"cache_dir"`
	MaxFiles        int           `mapstructure:"max_files"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// Config is the complete service configuration.
type Config struct {
	LogLevel  string    `mapstructure:"log_level"`
	Workers   int       `mapstructure:"workers"`
	Search    Search    `mapstructure:"search"`
	HTTP      HTTP      `mapstructure:"http"`
	Auth      Auth      `mapstructure:"auth"`
	RateLimit RateLimit `mapstructure:"rate_limit"`
	Stream    Stream    `mapstructure:"stream"`
	TLE       TLE       `mapstructure:"tle"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("workers", 0)
	v.SetDefault("search.max_iterations", DefaultMaxIterations)
	v.SetDefault("search.debug", false)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 5*time.Second)
	v.SetDefault("http.trust_proxy", false)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token", "")
	v.SetDefault("rate_limit.rps", 10.0)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("stream.max_per_ip", 10)
	v.SetDefault("stream.keepalive", 30*time.Second)
	v.SetDefault("stream.step", 5*time.Second)
	v.SetDefault("stream.buffer", time.Minute)
	v.SetDefault("tle.file", "")
	v.SetDefault("tle.enable_fetch", false)
	v.SetDefault("tle.source_url", "")
	v.SetDefault("tle.extra_urls", []string{})
	v.SetDefault("tle.cache_dir", "/tmp/starpredict/tle")
	v.SetDefault("tle.max_files", 5)
	v.SetDefault("tle.refresh_interval", 6*time.Hour)
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"log-level":      "log_level",
	"workers":        "workers",
	"max-iterations": "search.max_iterations",
	"debug":          "search.debug",
	"addr":           "http.addr",
	"tle-file":       "tle.file",
	"fetch":          "tle.enable_fetch",
}

// Load builds the configuration. file may be empty; flags may be nil. Only
// flags present in the set are bound, and an explicitly set flag wins over
// the environment and the file.
func Load(file string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "reading config file %s", file)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, errors.Wrapf(err, "binding flag --%s", name)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decoding config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the service cannot run with.
func (c Config) Validate() error {
	if err := c.Search.Validate(); err != nil {
		return err
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Workers < 0 {
		return errors.Wrapf(ErrInvalid, "workers must not be negative, got %d", c.Workers)
	}
	if c.Auth.Enabled && c.Auth.Token == "" {
		return errors.Wrap(ErrInvalid, "auth.token is required when auth is enabled")
	}
	if c.RateLimit.RPS < 0 {
		return errors.Wrapf(ErrInvalid, "rate_limit.rps must not be negative, got %v", c.RateLimit.RPS)
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst < 1 {
		return errors.Wrapf(ErrInvalid, "rate_limit.burst must be at least 1, got %d", c.RateLimit.Burst)
	}
	if c.Stream.MaxPerIP < 1 {
		return errors.Wrapf(ErrInvalid, "stream.max_per_ip must be at least 1, got %d", c.Stream.MaxPerIP)
	}
	if c.Stream.Step < time.Second {
		return errors.Wrapf(ErrInvalid, "stream.step must be at least 1s, got %v", c.Stream.Step)
	}
	if c.Stream.Keepalive <= 0 {
		return errors.Wrapf(ErrInvalid, "stream.keepalive must be positive, got %v", c.Stream.Keepalive)
	}
	if c.TLE.MaxFiles < 1 {
		return errors.Wrapf(ErrInvalid, "tle.max_files must be at least 1, got %d", c.TLE.MaxFiles)
	}
	if c.TLE.EnableFetch && c.TLE.RefreshInterval < time.Minute {
		return errors.Wrapf(ErrInvalid, "tle.refresh_interval must be at least 1m, got %v", c.TLE.RefreshInterval)
	}
	return nil
}

// ParseLevel maps a level name (debug, info, warn, error) to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, errors.Wrapf(ErrInvalid, "log level %q", s)
	}
	return l, nil
}
