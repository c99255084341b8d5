// Package config loads the tailfeed daemon configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "/etc/tailfeed/config.yaml"

const (
	defaultChannelPrefix = "logs"
	defaultStatusListen  = "127.0.0.1:7333"
	defaultPruneMaxAge   = 7 * 24 * time.Hour
)

// Config is the root configuration.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Store     StoreConfig     `yaml:"store"`
	Status    StatusConfig    `yaml:"status"`
	Notify    NotifyConfig    `yaml:"notify"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// GatewayConfig describes the pub/sub gateway connection.
type GatewayConfig struct {
	URL           string         `yaml:"url"`
	Token         string         `yaml:"token"`
	ChannelPrefix string         `yaml:"channel_prefix,omitempty"`
	Subscriptions []Subscription `yaml:"subscriptions,omitempty"`
}

// Subscription binds a local handle to a logical channel name. The wire
// channel is derived as "<channel_prefix>:<channel>".
type Subscription struct {
	Handle  string `yaml:"handle"`
	Channel string `yaml:"channel"`
}

// StoreConfig describes the log database.
type StoreConfig struct {
	Driver        string `yaml:"driver"` // "postgres" or "mysql"
	DSN           string `yaml:"dsn"`
	PruneMaxAge   string `yaml:"prune_max_age,omitempty"`  // Go duration, default 168h
	PruneSchedule string `yaml:"prune_schedule,omitempty"` // cron expression; empty disables
}

// MaxAge parses PruneMaxAge, falling back to the 7-day default.
func (c StoreConfig) MaxAge() time.Duration {
	if c.PruneMaxAge == "" {
		return defaultPruneMaxAge
	}
	d, err := time.ParseDuration(c.PruneMaxAge)
	if err != nil || d <= 0 {
		return defaultPruneMaxAge
	}
	return d
}

// StatusConfig describes the local status endpoint.
type StatusConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// NotifyConfig describes outbound notifications.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url,omitempty"`
}

// TelemetryConfig describes tracing.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
}

// Load reads and validates the configuration file.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Gateway.ChannelPrefix == "" {
		c.Gateway.ChannelPrefix = defaultChannelPrefix
	}
	if c.Status.Listen == "" {
		c.Status.Listen = defaultStatusListen
	}
}

func (c *Config) validate() error {
	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway.url is required")
	}
	if c.Store.Driver != "" && c.Store.Driver != "postgres" && c.Store.Driver != "postgresql" && c.Store.Driver != "mysql" {
		return fmt.Errorf("store.driver must be postgres or mysql, got %q", c.Store.Driver)
	}
	if c.Store.Driver != "" && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required when store.driver is set")
	}
	if c.Store.PruneMaxAge != "" {
		if _, err := time.ParseDuration(c.Store.PruneMaxAge); err != nil {
			return fmt.Errorf("store.prune_max_age: %w", err)
		}
	}

	seen := make(map[string]struct{})
	for _, sub := range c.Gateway.Subscriptions {
		if sub.Handle == "" || sub.Channel == "" {
			return fmt.Errorf("gateway.subscriptions entries need both handle and channel")
		}
		if _, ok := seen[sub.Handle]; ok {
			return fmt.Errorf("duplicate subscription handle %q", sub.Handle)
		}
		seen[sub.Handle] = struct{}{}
	}
	return nil
}
