// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/eduspider/internal/crawler"
)

// DefaultUserAgent identifies the crawler to the sites it visits.
const DefaultUserAgent = "EduSpider/1.0 (educational crawler; +https://github.com/eduspider)"

// Store drivers accepted by store.driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Store   StoreConfig   `mapstructure:"store"`
	Server  ServerConfig  `mapstructure:"server"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CrawlerConfig governs fetching, politeness, and traversal.
type CrawlerConfig struct {
	UserAgent         string        `mapstructure:"user_agent"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	MinDomainInterval time.Duration `mapstructure:"min_domain_interval"`
	RespectRobots     bool          `mapstructure:"respect_robots"`
	RobotsTimeout     time.Duration `mapstructure:"robots_timeout"`
	Workers           int           `mapstructure:"workers"`
	MaxDepthDefault   int           `mapstructure:"max_depth_default"`
	MaxBodyBytes      int           `mapstructure:"max_body_bytes"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// ServerConfig controls the browsing API.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// PubSubConfig holds metadata for job event notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Enabled reports whether a Pub/Sub project is configured.
func (p PubSubConfig) Enabled() bool { return p.ProjectID != "" }

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment. Environment variables use
// the EDUSPIDER_ prefix with dots replaced by underscores, for example
// EDUSPIDER_CRAWLER_WORKERS.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EDUSPIDER")
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
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.user_agent", DefaultUserAgent)
	v.SetDefault("crawler.request_timeout", 15*time.Second)
	v.SetDefault("crawler.min_domain_interval", time.Second)
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.robots_timeout", 10*time.Second)
	v.SetDefault("crawler.workers", crawler.DefaultWorkers)
	v.SetDefault("crawler.max_depth_default", crawler.DefaultMaxDepth)
	v.SetDefault("crawler.max_body_bytes", 10<<20)
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.path", ".")
	v.SetDefault("store.dsn", "")
	v.SetDefault("server.port", 5555)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", crawler.DefaultEventTopic)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.UserAgent == "" {
		return fmt.Errorf("crawler.user_agent must be set")
	}
	if c.Crawler.RequestTimeout <= 0 {
		return fmt.Errorf("crawler.request_timeout must be > 0")
	}
	if c.Crawler.MinDomainInterval < 0 {
		return fmt.Errorf("crawler.min_domain_interval must be >= 0")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Crawler.MaxDepthDefault < 0 {
		return fmt.Errorf("crawler.max_depth_default must be >= 0")
	}
	if c.Crawler.MaxBodyBytes < 0 {
		return fmt.Errorf("crawler.max_body_bytes must be >= 0")
	}
	switch c.Store.Driver {
	case DriverSQLite, DriverMemory:
	case DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set when store.driver is postgres")
		}
	default:
		return fmt.Errorf("store.driver %q is not one of sqlite, postgres, memory", c.Store.Driver)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.PubSub.Enabled() && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	return nil
}

// EngineConfig converts the crawler section into the engine's knobs.
func (c Config) EngineConfig() crawler.EngineConfig {
	return crawler.EngineConfig{
		Workers:    c.Crawler.Workers,
		EventTopic: c.PubSub.TopicName,
	}
}
