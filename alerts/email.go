package alerts

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/yourusername/guardrail/events"
)

// EmailConfig configures the SMTP email channel.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// EmailChannel delivers alerts by SMTP.
type EmailChannel struct {
	cfg EmailConfig

	// send is swappable for tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailChannel creates an SMTP email channel.
func NewEmailChannel(cfg EmailConfig) *EmailChannel {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &EmailChannel{cfg: cfg, send: smtp.SendMail}
}

// Name returns the channel name.
func (c *EmailChannel) Name() string { return "email" }

// Enabled reports whether host, sender and recipients are configured.
func (c *EmailChannel) Enabled() bool {
	return c.cfg.Host != "" && c.cfg.From != "" && len(c.cfg.To) > 0
}

// Send delivers the alert email. The context deadline is not honored by
// net/smtp itself; delivery is bounded by the dispatcher's fan-out being
// best-effort.
func (c *EmailChannel) Send(ctx context.Context, e *events.Event) error {
	var auth smtp.Auth
	if c.cfg.Username != "" {
		auth = smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	return c.send(addr, auth, c.cfg.From, c.cfg.To, c.buildMessage(e))
}

func (c *EmailChannel) buildMessage(e *events.Event) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", c.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(c.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: [guardrail] %s security event from %s\r\n", e.Severity, e.Actor)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")

	fmt.Fprintf(&b, "Severity: %s\r\n", e.Severity)
	fmt.Fprintf(&b, "Actor:    %s\r\n", e.Actor)
	if e.Type != "" {
		fmt.Fprintf(&b, "Type:     %s\r\n", e.Type)
	}
	if e.Resource != "" {
		fmt.Fprintf(&b, "Resource: %s %s\r\n", e.Method, e.Resource)
	}
	fmt.Fprintf(&b, "Time:     %s\r\n", e.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))
	for k, v := range e.Metadata {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	return []byte(b.String())
}
