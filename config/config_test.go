package config

import (
	"errors"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Backend != "memory" {
		t.Errorf("expected memory backend, got %q", cfg.Backend)
	}
	if cfg.Events.Retention != 7*24*time.Hour {
		t.Errorf("expected 7d retention, got %v", cfg.Events.Retention)
	}
	if cfg.Remediation.QueueSize != 256 {
		t.Errorf("expected queue size 256, got %d", cfg.Remediation.QueueSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GUARDRAIL_BACKEND", "redis")
	t.Setenv("GUARDRAIL_REDIS_ADDR", "localhost:6380")
	t.Setenv("GUARDRAIL_REMEDIATION_QUEUE_SIZE", "64")
	t.Setenv("GUARDRAIL_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend != "redis" {
		t.Errorf("expected redis backend, got %q", cfg.Backend)
	}
	if cfg.Redis.Addr != "localhost:6380" {
		t.Errorf("expected overridden redis addr, got %q", cfg.Redis.Addr)
	}
	if cfg.Remediation.QueueSize != 64 {
		t.Errorf("expected queue size 64, got %d", cfg.Remediation.QueueSize)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug level, got %q", cfg.Log.Level)
	}
	// Untouched values keep their defaults.
	if cfg.Block.DefaultDuration != time.Hour {
		t.Errorf("expected default block duration, got %v", cfg.Block.DefaultDuration)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid memory", func(c *Config) {}, false},
		{"valid redis", func(c *Config) {
			c.Backend = "redis"
			c.Redis.Addr = "localhost:6379"
		}, false},
		{"redis without addr", func(c *Config) { c.Backend = "redis" }, true},
		{"unknown backend", func(c *Config) { c.Backend = "etcd" }, true},
		{"negative max per category", func(c *Config) { c.Events.MaxPerCategory = -1 }, true},
		{"negative limiter rate", func(c *Config) { c.Limiter.Rate = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.wantErr && err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error should wrap ErrInvalidConfig: %v", err)
			}
		})
	}
}
