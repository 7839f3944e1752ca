// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/pacing"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Pacing  PacingConfig  `mapstructure:"pacing"`
	Store   StoreConfig   `mapstructure:"store"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// CrawlerConfig governs scheduler and crawl pipeline behavior.
type CrawlerConfig struct {
	Concurrency     int     `mapstructure:"concurrency"`
	UserAgent       string  `mapstructure:"user_agent"`
	MaxDepthDefault int     `mapstructure:"max_depth_default"`
	MaxPagesDefault int     `mapstructure:"max_pages_default"`
	GlobalRPS       float64 `mapstructure:"global_rps"`
	QueueDepth      int     `mapstructure:"queue_depth"`
	ForbiddenLimit  int     `mapstructure:"forbidden_limit"`
	MaxAttempts     int     `mapstructure:"max_attempts"`
}

// HTTPConfig configures the fetch client.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// PacingConfig holds the adaptive per-host pacing knobs. Invalid values here
// abort startup; pacing is never silently defaulted past load time.
type PacingConfig struct {
	BaseDelay        time.Duration `mapstructure:"base_delay"`
	MaxDelay         time.Duration `mapstructure:"max_delay"`
	EscalationFactor float64       `mapstructure:"escalation_factor"`
	ExceptionFactor  float64       `mapstructure:"exception_factor"`
	DecayFactor      float64       `mapstructure:"decay_factor"`
	MaxTrackedHosts  int           `mapstructure:"max_tracked_hosts"`
}

// StoreConfig selects and configures the document store.
type StoreConfig struct {
	Provider  string `mapstructure:"provider"`
	JSONLPath string `mapstructure:"jsonl_path"`
	DSN       string `mapstructure:"dsn"`
	Table     string `mapstructure:"table"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SEARCHCRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.user_agent", "searchcrawler/0.1")
	v.SetDefault("crawler.max_depth_default", 2)
	v.SetDefault("crawler.max_pages_default", 200)
	v.SetDefault("crawler.global_rps", 8.0)
	v.SetDefault("crawler.queue_depth", 1024)
	v.SetDefault("crawler.forbidden_limit", 3)
	v.SetDefault("crawler.max_attempts", 3)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("pacing.base_delay", "250ms")
	v.SetDefault("pacing.max_delay", "8s")
	v.SetDefault("pacing.escalation_factor", 2.0)
	v.SetDefault("pacing.exception_factor", 1.5)
	v.SetDefault("pacing.decay_factor", 0.5)
	v.SetDefault("pacing.max_tracked_hosts", 0)
	v.SetDefault("store.provider", "jsonl")
	v.SetDefault("store.jsonl_path", "data/documents.jsonl")
	v.SetDefault("store.table", "documents")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.QueueDepth <= 0 {
		return fmt.Errorf("crawler.queue_depth must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if err := c.Pacing.ToPolicy().Validate(); err != nil {
		return fmt.Errorf("pacing config: %w", err)
	}
	switch c.Store.Provider {
	case "jsonl":
		if c.Store.JSONLPath == "" {
			return fmt.Errorf("store.jsonl_path must be set for the jsonl provider")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set for the postgres provider")
		}
	default:
		return fmt.Errorf("unknown store provider %q", c.Store.Provider)
	}
	return nil
}

// ToPolicy converts the loaded pacing section into the controller's config.
func (p PacingConfig) ToPolicy() pacing.Config {
	return pacing.Config{
		BaseDelay:        p.BaseDelay,
		MaxDelay:         p.MaxDelay,
		EscalationFactor: p.EscalationFactor,
		ExceptionFactor:  p.ExceptionFactor,
		DecayFactor:      p.DecayFactor,
		MaxTrackedHosts:  p.MaxTrackedHosts,
	}
}

// FetchTimeout converts the HTTP timeout config into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
