package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalidConfig is returned for missing or malformed settings.
var ErrInvalidConfig = errors.New("invalid configuration")

// Language detectors understood by LANGUAGE_DETECTOR.
const (
	DetectorStatic = "static"
	DetectorEnry   = "enry"
)

// Config holds all configuration for the application
type Config struct {
	GitHubToken string
	APIURL      string

	RateLimitRetries int
	RequestTimeout   time.Duration
	RateLimitMaxWait time.Duration
	BackoffBase      time.Duration
	BackoffMax       time.Duration

	MaxEventsPerRequest int
	CacheTTL            time.Duration
	CacheMaxEntries     int

	FanoutConcurrency int
	MaxRepositories   int
	MaxCommitsPerRepo int
	MaxCommitDetails  int
	MaxPages          int
	IncludeForks      bool

	LanguageDetector string
	LogLevel         string
	MetricsAddr      string

	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
}

// NewConfig creates a new Config instance
func NewConfig() *Config {
	return &Config{}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("GITHUB_API_URL", "https://api.github.com")
	v.SetDefault("RATE_LIMIT_RETRIES", 3)
	v.SetDefault("REQUEST_TIMEOUT", 30)
	v.SetDefault("RATE_LIMIT_MAX_WAIT", 60)
	v.SetDefault("BACKOFF_BASE", "1s")
	v.SetDefault("BACKOFF_MAX", "30s")
	v.SetDefault("MAX_EVENTS_PER_REQUEST", 100)
	v.SetDefault("CACHE_TTL", 300)
	v.SetDefault("CACHE_MAX_ENTRIES", 1024)
	v.SetDefault("FANOUT_CONCURRENCY", 5)
	v.SetDefault("MAX_REPOSITORIES", 30)
	v.SetDefault("MAX_COMMITS_PER_REPO", 100)
	v.SetDefault("MAX_COMMIT_DETAILS", 100)
	v.SetDefault("MAX_PAGES", 10)
	v.SetDefault("INCLUDE_FORKS", false)
	v.SetDefault("LANGUAGE_DETECTOR", DetectorStatic)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 25)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "5m")
}

// Load loads configuration from environment variables and, when present,
// the .env file named by CONFIG_FILE.
func (c *Config) Load() error {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return c.fill(v)
}

func (c *Config) fill(v *viper.Viper) error {
	c.GitHubToken = strings.TrimSpace(v.GetString("GITHUB_TOKEN"))
	if c.GitHubToken == "" {
		return fmt.Errorf("%w: GITHUB_TOKEN is required", ErrInvalidConfig)
	}

	c.APIURL = strings.TrimRight(v.GetString("GITHUB_API_URL"), "/")
	c.RateLimitRetries = v.GetInt("RATE_LIMIT_RETRIES")
	c.RequestTimeout = time.Duration(v.GetInt("REQUEST_TIMEOUT")) * time.Second
	c.RateLimitMaxWait = time.Duration(v.GetInt("RATE_LIMIT_MAX_WAIT")) * time.Second
	c.BackoffBase = v.GetDuration("BACKOFF_BASE")
	c.BackoffMax = v.GetDuration("BACKOFF_MAX")
	c.MaxEventsPerRequest = v.GetInt("MAX_EVENTS_PER_REQUEST")
	c.CacheTTL = time.Duration(v.GetInt("CACHE_TTL")) * time.Second
	c.CacheMaxEntries = v.GetInt("CACHE_MAX_ENTRIES")
	c.FanoutConcurrency = v.GetInt("FANOUT_CONCURRENCY")
	c.MaxRepositories = v.GetInt("MAX_REPOSITORIES")
	c.MaxCommitsPerRepo = v.GetInt("MAX_COMMITS_PER_REPO")
	c.MaxCommitDetails = v.GetInt("MAX_COMMIT_DETAILS")
	c.MaxPages = v.GetInt("MAX_PAGES")
	c.IncludeForks = v.GetBool("INCLUDE_FORKS")
	c.LanguageDetector = strings.ToLower(v.GetString("LANGUAGE_DETECTOR"))
	c.LogLevel = v.GetString("LOG_LEVEL")
	c.MetricsAddr = v.GetString("METRICS_ADDR")
	c.DatabaseURL = v.GetString("DATABASE_URL")
	c.DBMaxOpenConns = v.GetInt("DB_MAX_OPEN_CONNS")
	c.DBMaxIdleConns = v.GetInt("DB_MAX_IDLE_CONNS")
	c.DBConnMaxLifetime = v.GetDuration("DB_CONN_MAX_LIFETIME")

	return c.Validate()
}

// Validate checks ranges of the numeric settings.
func (c *Config) Validate() error {
	switch {
	case c.RateLimitRetries < 0:
		return fmt.Errorf("%w: RATE_LIMIT_RETRIES must be >= 0", ErrInvalidConfig)
	case c.RequestTimeout <= 0:
		return fmt.Errorf("%w: REQUEST_TIMEOUT must be positive", ErrInvalidConfig)
	case c.MaxEventsPerRequest < 1 || c.MaxEventsPerRequest > 100:
		return fmt.Errorf("%w: MAX_EVENTS_PER_REQUEST must be between 1 and 100", ErrInvalidConfig)
	case c.CacheTTL < 0:
		return fmt.Errorf("%w: CACHE_TTL must be >= 0", ErrInvalidConfig)
	case c.MaxPages < 1:
		return fmt.Errorf("%w: MAX_PAGES must be >= 1", ErrInvalidConfig)
	case c.FanoutConcurrency < 1:
		return fmt.Errorf("%w: FANOUT_CONCURRENCY must be >= 1", ErrInvalidConfig)
	case c.BackoffBase <= 0 || c.BackoffMax < c.BackoffBase:
		return fmt.Errorf("%w: BACKOFF_BASE must be positive and <= BACKOFF_MAX", ErrInvalidConfig)
	}
	if c.LanguageDetector != DetectorStatic && c.LanguageDetector != DetectorEnry {
		return fmt.Errorf("%w: LANGUAGE_DETECTOR must be %q or %q", ErrInvalidConfig, DetectorStatic, DetectorEnry)
	}
	return nil
}
