// Package config loads engine configuration from layered sources:
// built-in defaults, an optional YAML file, and GUARDRAIL_* environment
// variables, with later layers overriding earlier ones.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ErrInvalidConfig is returned when configuration fails validation
var ErrInvalidConfig = errors.New("invalid configuration")

// DefaultConfigPaths lists where a config file is searched, in order.
var DefaultConfigPaths = []string{
	"guardrail.yaml",
	"guardrail.yml",
	"/etc/guardrail/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "GUARDRAIL_CONFIG"

// envPrefix namespaces the engine's environment variables.
const envPrefix = "GUARDRAIL_"

// Config is the full engine configuration.
type Config struct {
	// Backend selects the store: "memory" or "redis".
	Backend string `koanf:"backend"`

	Redis       RedisConfig       `koanf:"redis"`
	Events      EventsConfig      `koanf:"events"`
	Block       BlockConfig       `koanf:"block"`
	Remediation RemediationConfig `koanf:"remediation"`
	Alerts      AlertsConfig      `koanf:"alerts"`
	Limiter     LimiterConfig     `koanf:"limiter"`
	Log         LogConfig         `koanf:"log"`
}

// RedisConfig configures the remote backend.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// EventsConfig configures event log retention.
type EventsConfig struct {
	Retention        time.Duration `koanf:"retention"`
	CounterRetention time.Duration `koanf:"counter_retention"`
	MaxPerCategory   int64         `koanf:"max_per_category"`
}

// BlockConfig configures block list behavior.
type BlockConfig struct {
	DefaultDuration time.Duration `koanf:"default_duration"`
}

// RemediationConfig configures the remediation engine.
type RemediationConfig struct {
	QueueSize int `koanf:"queue_size"`
}

// AlertsConfig configures the alert channels. Any channel left without
// an endpoint is disabled.
type AlertsConfig struct {
	Email   EmailConfig   `koanf:"email"`
	Webhook WebhookConfig `koanf:"webhook"`
	Pager   PagerConfig   `koanf:"pager"`
}

// EmailConfig configures the SMTP alert channel.
type EmailConfig struct {
	Host     string   `koanf:"host"`
	Port     int      `koanf:"port"`
	Username string   `koanf:"username"`
	Password string   `koanf:"password"`
	From     string   `koanf:"from"`
	To       []string `koanf:"to"`
}

// WebhookConfig configures the chat webhook alert channel.
type WebhookConfig struct {
	URL string `koanf:"url"`
}

// PagerConfig configures the paging alert channel.
type PagerConfig struct {
	URL        string `koanf:"url"`
	RoutingKey string `koanf:"routing_key"`
}

// LimiterConfig configures the ingestion middleware's per-actor limiter.
type LimiterConfig struct {
	Rate  float64 `koanf:"rate"`  // tokens per second
	Burst int     `koanf:"burst"` // burst size
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Backend: "memory",
		Events: EventsConfig{
			Retention:        7 * 24 * time.Hour,
			CounterRetention: 30 * 24 * time.Hour,
			MaxPerCategory:   10000,
		},
		Block: BlockConfig{
			DefaultDuration: time.Hour,
		},
		Remediation: RemediationConfig{
			QueueSize: 256,
		},
		Limiter: LimiterConfig{
			Rate:  10,
			Burst: 100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, an optional config file
// and environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransform maps GUARDRAIL_* variable names to config paths.
// Multi-word leaf keys need an explicit entry; everything else is
// lowercased with underscores becoming dots.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))

	mapped := map[string]string{
		"redis_addr":               "redis.addr",
		"redis_password":           "redis.password",
		"redis_db":                 "redis.db",
		"events_retention":         "events.retention",
		"events_counter_retention": "events.counter_retention",
		"events_max_per_category":  "events.max_per_category",
		"block_default_duration":   "block.default_duration",
		"remediation_queue_size":   "remediation.queue_size",
		"alerts_email_host":        "alerts.email.host",
		"alerts_email_port":        "alerts.email.port",
		"alerts_email_username":    "alerts.email.username",
		"alerts_email_password":    "alerts.email.password",
		"alerts_email_from":        "alerts.email.from",
		"alerts_email_to":          "alerts.email.to",
		"alerts_webhook_url":       "alerts.webhook.url",
		"alerts_pager_url":         "alerts.pager.url",
		"alerts_pager_routing_key": "alerts.pager.routing_key",
		"limiter_rate":             "limiter.rate",
		"limiter_burst":            "limiter.burst",
		"log_level":                "log.level",
		"log_format":               "log.format",
	}
	if path, ok := mapped[key]; ok {
		return path
	}
	return strings.ReplaceAll(key, "_", ".")
}

// Validate checks the configuration for combinations that cannot work.
func (c *Config) Validate() error {
	switch c.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("%w: redis backend selected but no address configured", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	if c.Events.MaxPerCategory < 0 {
		return fmt.Errorf("%w: events.max_per_category must not be negative", ErrInvalidConfig)
	}
	if c.Limiter.Rate < 0 || c.Limiter.Burst < 0 {
		return fmt.Errorf("%w: limiter rate and burst must not be negative", ErrInvalidConfig)
	}
	return nil
}
