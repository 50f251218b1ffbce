// Package config loads and validates scribblehub-fetch configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. SHFETCH_FETCH_STRATEGY.
const EnvPrefix = "SHFETCH"

// Fetch strategies.
const (
	StrategyHTTP     = "http"
	StrategyHeadless = "headless"
)

// Config captures every knob of the fetch pipeline.
type Config struct {
	Cache    CacheConfig    `mapstructure:"cache"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Output   OutputConfig   `mapstructure:"output"`
}

// CacheConfig locates the on-disk asset cache.
type CacheConfig struct {
	Dir string `mapstructure:"dir"`
}

// FetchConfig governs page and asset retrieval.
type FetchConfig struct {
	Strategy           string        `mapstructure:"strategy"`
	UserAgent          string        `mapstructure:"user_agent"`
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
	RequestsPerSecond  float64       `mapstructure:"requests_per_second"`
	Burst              int           `mapstructure:"burst"`
	ChapterConcurrency int           `mapstructure:"chapter_concurrency"`
	AssetConcurrency   int           `mapstructure:"asset_concurrency"`
}

// HeadlessConfig configures the browser strategy.
type HeadlessConfig struct {
	NavTimeout  time.Duration `mapstructure:"nav_timeout"`
	MaxParallel int           `mapstructure:"max_parallel"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// OutputConfig controls where exports are written.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// NewViper returns a viper instance with defaults and environment binding
// in place. Callers may bind flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads path (when set) into v and decodes the result.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv exports the variables of the given .env files (default ".env")
// into the process environment. Missing files are ignored; variables that
// are already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// DefaultCacheDir is <user cache dir>/scribblehub-fetch/3, falling back to
// the temp dir when the user cache dir is unknown.
func DefaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "scribblehub-fetch", "3")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache.dir", DefaultCacheDir())
	v.SetDefault("fetch.strategy", StrategyHTTP)
	v.SetDefault("fetch.user_agent", "scribblehub-fetch/0.1 (+https://github.com/JakeFAU/scribblehub-fetch)")
	v.SetDefault("fetch.timeout", 15*time.Second)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.requests_per_second", 0)
	v.SetDefault("fetch.burst", 1)
	v.SetDefault("fetch.chapter_concurrency", 50)
	v.SetDefault("fetch.asset_concurrency", 8)
	v.SetDefault("headless.nav_timeout", 30*time.Second)
	v.SetDefault("headless.max_parallel", 4)
	v.SetDefault("logging.development", true)
	v.SetDefault("output.dir", "dist")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Cache.Dir) == "" {
		return fmt.Errorf("cache.dir must be set")
	}
	switch c.Fetch.Strategy {
	case StrategyHTTP, StrategyHeadless:
	default:
		return fmt.Errorf("fetch.strategy must be %q or %q, got %q", StrategyHTTP, StrategyHeadless, c.Fetch.Strategy)
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must be >= 0")
	}
	if c.Fetch.RequestsPerSecond < 0 {
		return fmt.Errorf("fetch.requests_per_second must be >= 0")
	}
	if c.Fetch.ChapterConcurrency <= 0 {
		return fmt.Errorf("fetch.chapter_concurrency must be > 0")
	}
	if c.Fetch.AssetConcurrency <= 0 {
		return fmt.Errorf("fetch.asset_concurrency must be > 0")
	}
	if c.Fetch.Strategy == StrategyHeadless && c.Headless.NavTimeout <= 0 {
		return fmt.Errorf("headless.nav_timeout must be > 0 when the headless strategy is used")
	}
	if c.Headless.MaxParallel < 0 {
		return fmt.Errorf("headless.max_parallel must be >= 0")
	}
	return nil
}
