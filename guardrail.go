// Package guardrail ties the protection components together behind one
// engine: a key-value store backend, the event log, the block list,
// the remediation engine and the alert dispatcher.
package guardrail

import (
	"context"
	"fmt"
	"net/http"

	"github.com/yourusername/guardrail/alerts"
	"github.com/yourusername/guardrail/blocklist"
	"github.com/yourusername/guardrail/config"
	"github.com/yourusername/guardrail/events"
	"github.com/yourusername/guardrail/logging"
	"github.com/yourusername/guardrail/metrics"
	"github.com/yourusername/guardrail/middleware"
	"github.com/yourusername/guardrail/remediation"
	"github.com/yourusername/guardrail/store"
)

// Re-export main types for convenience
type (
	Event            = events.Event
	Severity         = events.Severity
	Issue            = remediation.Issue
	Rule             = remediation.Rule
	KeyFunc          = middleware.KeyFunc
	MiddlewareConfig = middleware.Config
)

// NewProtector creates the HTTP protection middleware
var NewProtector = middleware.NewProtector

// Engine is the top-level protection engine.
type Engine struct {
	Store       store.Store
	Events      *events.Log
	Blocks      *blocklist.BlockList
	Remediation *remediation.Engine
	Alerts      *alerts.Dispatcher
	Metrics     *metrics.Metrics

	cfg *config.Config
}

// New builds an engine from configuration. The remediation worker is
// started; Close stops it and shuts the store down.
func New(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var s store.Store
	switch cfg.Backend {
	case "redis":
		rs := store.NewRedisStore(store.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rs.Ping(context.Background()); err != nil {
			rs.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
		}
		s = rs
	default:
		s = store.NewMemoryStore()
	}

	m := metrics.NewMetrics()

	dispatcher := alerts.NewDispatcher(alerts.Config{
		Email: alerts.EmailConfig{
			Host:     cfg.Alerts.Email.Host,
			Port:     cfg.Alerts.Email.Port,
			Username: cfg.Alerts.Email.Username,
			Password: cfg.Alerts.Email.Password,
			From:     cfg.Alerts.Email.From,
			To:       cfg.Alerts.Email.To,
		},
		Webhook: alerts.WebhookConfig{URL: cfg.Alerts.Webhook.URL},
		Pager: alerts.PagerConfig{
			URL:        cfg.Alerts.Pager.URL,
			RoutingKey: cfg.Alerts.Pager.RoutingKey,
		},
	}, m)

	log := events.NewLog(s, events.Options{
		Retention:        cfg.Events.Retention,
		CounterRetention: cfg.Events.CounterRetention,
		MaxPerCategory:   cfg.Events.MaxPerCategory,
		Notifier:         dispatcher,
		Metrics:          m,
	})

	eng := remediation.NewEngine(remediation.Config{
		QueueSize: cfg.Remediation.QueueSize,
		Audit:     log,
		Metrics:   m,
	})
	eng.Start(context.Background())

	e := &Engine{
		Store:       s,
		Events:      log,
		Blocks:      blocklist.New(s, m),
		Remediation: eng,
		Alerts:      dispatcher,
		Metrics:     m,
		cfg:         cfg,
	}
	logging.Info().Str("backend", cfg.Backend).Msg("protection engine ready")
	return e, nil
}

// Middleware returns HTTP middleware wired to this engine's block list,
// event log and metrics, using the configured limiter settings.
func (e *Engine) Middleware() func(http.Handler) http.Handler {
	p := middleware.NewProtector(middleware.Config{
		Rate:    e.cfg.Limiter.Rate,
		Burst:   e.cfg.Limiter.Burst,
		Blocks:  e.Blocks,
		Events:  e.Events,
		Metrics: e.Metrics,
	})
	return p.Middleware
}

// Close stops the remediation worker and releases the store.
func (e *Engine) Close() error {
	e.Remediation.Stop()
	return e.Store.Close()
}
