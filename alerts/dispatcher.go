// Package alerts fans qualifying security events out to external
// channels. Delivery is best-effort: a failing channel is logged and
// never blocks the others, and nothing here ever propagates back into
// the caller's ingestion path.
package alerts

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/yourusername/guardrail/events"
	"github.com/yourusername/guardrail/logging"
	"github.com/yourusername/guardrail/metrics"
)

// Config configures the dispatcher's channels. Leaving a channel's
// endpoint empty disables that channel with a logged warning.
type Config struct {
	Email   EmailConfig
	Webhook WebhookConfig
	Pager   PagerConfig
}

// Dispatcher routes events to channels by severity:
// critical/high reach email, chat and pager; medium reaches email and
// chat; low reaches chat only.
type Dispatcher struct {
	email   Channel
	chat    Channel
	pager   Channel
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// Ensure Dispatcher satisfies the event log's notifier hook
var _ events.Notifier = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher. m may be nil.
func NewDispatcher(cfg Config, m *metrics.Metrics) *Dispatcher {
	d := &Dispatcher{
		email:   NewEmailChannel(cfg.Email),
		chat:    NewWebhookChannel(cfg.Webhook),
		pager:   NewPagerChannel(cfg.Pager),
		metrics: m,
		log:     logging.With().Str("component", "alerts").Logger(),
	}
	for _, ch := range []Channel{d.email, d.chat, d.pager} {
		if !ch.Enabled() {
			d.log.Warn().Str("channel", ch.Name()).Msg("alert channel not configured, disabled")
		}
	}
	return d
}

// channelsFor maps severity to the fan-out set.
func (d *Dispatcher) channelsFor(severity events.Severity) []Channel {
	switch severity {
	case events.SeverityCritical, events.SeverityHigh:
		return []Channel{d.email, d.chat, d.pager}
	case events.SeverityMedium:
		return []Channel{d.email, d.chat}
	case events.SeverityLow:
		return []Channel{d.chat}
	}
	return nil
}

// Notify fans the event out to every channel its severity qualifies
// for, concurrently. Failures are logged per channel and swallowed.
func (d *Dispatcher) Notify(ctx context.Context, e *events.Event) {
	var wg sync.WaitGroup
	for _, ch := range d.channelsFor(e.Severity) {
		if !ch.Enabled() {
			continue
		}
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			if err := ch.Send(ctx, e); err != nil {
				d.log.Error().Err(err).Str("channel", ch.Name()).Str("event", e.ID).
					Msg("alert delivery failed")
				if d.metrics != nil {
					d.metrics.RecordAlert(false)
				}
				return
			}
			if d.metrics != nil {
				d.metrics.RecordAlert(true)
			}
		}(ch)
	}
	wg.Wait()
}
