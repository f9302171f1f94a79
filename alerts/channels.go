package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/yourusername/guardrail/events"
)

// Channel delivers one alert to one external destination.
type Channel interface {
	Name() string
	Enabled() bool
	Send(ctx context.Context, e *events.Event) error
}

// Payload is the JSON body posted to webhook-style channels.
type Payload struct {
	Event     *events.Event `json:"event"`
	EventType string        `json:"event_type"` // security_alert
	Source    string        `json:"source"`     // guardrail
	Timestamp time.Time     `json:"timestamp"`
}

func newPayload(e *events.Event) *Payload {
	return &Payload{
		Event:     e,
		EventType: "security_alert",
		Source:    "guardrail",
		Timestamp: time.Now().UTC(),
	}
}

// WebhookConfig configures the chat webhook channel.
type WebhookConfig struct {
	URL     string
	Headers map[string]string // custom headers (e.g. auth)
}

// WebhookChannel posts alerts to a chat webhook endpoint.
type WebhookChannel struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhookChannel creates a chat webhook channel.
func NewWebhookChannel(cfg WebhookConfig) *WebhookChannel {
	headers := make(map[string]string)
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	return &WebhookChannel{
		url:     cfg.URL,
		headers: headers,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Name returns the channel name.
func (c *WebhookChannel) Name() string { return "chat" }

// Enabled reports whether a webhook URL is configured.
func (c *WebhookChannel) Enabled() bool { return c.url != "" }

// Send posts the alert payload to the webhook endpoint.
func (c *WebhookChannel) Send(ctx context.Context, e *events.Event) error {
	return postJSON(ctx, c.client, c.url, c.headers, newPayload(e))
}

// PagerConfig configures the paging channel.
type PagerConfig struct {
	URL        string // events API endpoint
	RoutingKey string
}

// PagerChannel triggers an incident through a paging events API.
type PagerChannel struct {
	url        string
	routingKey string
	client     *http.Client
}

// NewPagerChannel creates a paging channel.
func NewPagerChannel(cfg PagerConfig) *PagerChannel {
	return &PagerChannel{
		url:        cfg.URL,
		routingKey: cfg.RoutingKey,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Name returns the channel name.
func (c *PagerChannel) Name() string { return "pager" }

// Enabled reports whether both endpoint and routing key are configured.
func (c *PagerChannel) Enabled() bool { return c.url != "" && c.routingKey != "" }

// pagerEvent is the events-API trigger body.
type pagerEvent struct {
	RoutingKey  string       `json:"routing_key"`
	EventAction string       `json:"event_action"`
	Payload     pagerPayload `json:"payload"`
}

type pagerPayload struct {
	Summary       string            `json:"summary"`
	Severity      string            `json:"severity"`
	Source        string            `json:"source"`
	CustomDetails map[string]string `json:"custom_details,omitempty"`
}

// Send triggers an incident for the alert.
func (c *PagerChannel) Send(ctx context.Context, e *events.Event) error {
	body := pagerEvent{
		RoutingKey:  c.routingKey,
		EventAction: "trigger",
		Payload: pagerPayload{
			Summary:       fmt.Sprintf("%s security event from %s", e.Severity, e.Actor),
			Severity:      string(e.Severity),
			Source:        "guardrail",
			CustomDetails: e.Metadata,
		},
	}
	return postJSON(ctx, c.client, c.url, nil, body)
}

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("posting alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
