package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yourusername/guardrail/events"
)

// countingServer records received webhook posts.
type countingServer struct {
	mu     sync.Mutex
	bodies []Payload
	status int
}

func (s *countingServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p Payload
		json.NewDecoder(r.Body).Decode(&p)
		s.mu.Lock()
		s.bodies = append(s.bodies, p)
		s.mu.Unlock()
		status := s.status
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
	}
}

func (s *countingServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bodies)
}

func securityEvent(severity events.Severity) *events.Event {
	return &events.Event{
		ID:        "evt-1",
		Actor:     "1.2.3.4",
		Category:  events.CategorySecurity,
		Type:      "brute_force",
		Severity:  severity,
		Timestamp: time.Now(),
	}
}

func TestWebhookChannel_Send(t *testing.T) {
	srv := &countingServer{}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	ch := NewWebhookChannel(WebhookConfig{URL: ts.URL, Headers: map[string]string{"X-Token": "secret"}})
	if !ch.Enabled() {
		t.Fatal("channel with URL should be enabled")
	}

	if err := ch.Send(context.Background(), securityEvent(events.SeverityHigh)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if srv.count() != 1 {
		t.Fatalf("webhook received %d posts, want 1", srv.count())
	}
	srv.mu.Lock()
	got := srv.bodies[0]
	srv.mu.Unlock()
	if got.Source != "guardrail" || got.EventType != "security_alert" {
		t.Errorf("payload = {%s, %s}, want {guardrail, security_alert}", got.Source, got.EventType)
	}
	if got.Event == nil || got.Event.Actor != "1.2.3.4" {
		t.Error("payload should carry the event")
	}
}

func TestWebhookChannel_Non2xxFails(t *testing.T) {
	srv := &countingServer{status: http.StatusBadGateway}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	ch := NewWebhookChannel(WebhookConfig{URL: ts.URL})
	if err := ch.Send(context.Background(), securityEvent(events.SeverityHigh)); err == nil {
		t.Error("non-2xx response should fail the send")
	}
}

func TestPagerChannel_TriggerBody(t *testing.T) {
	var got pagerEvent
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	ch := NewPagerChannel(PagerConfig{URL: ts.URL, RoutingKey: "rk-123"})
	if err := ch.Send(context.Background(), securityEvent(events.SeverityCritical)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got.RoutingKey != "rk-123" || got.EventAction != "trigger" {
		t.Errorf("trigger = {%s, %s}, want {rk-123, trigger}", got.RoutingKey, got.EventAction)
	}
	if got.Payload.Severity != "critical" {
		t.Errorf("severity = %q, want critical", got.Payload.Severity)
	}
}

func TestEmailChannel_Message(t *testing.T) {
	ch := NewEmailChannel(EmailConfig{
		Host: "smtp.example.com",
		From: "alerts@example.com",
		To:   []string{"oncall@example.com"},
	})
	if !ch.Enabled() {
		t.Fatal("configured email channel should be enabled")
	}

	var sentTo []string
	var sentMsg []byte
	ch.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		sentTo = to
		sentMsg = msg
		return nil
	}

	if err := ch.Send(context.Background(), securityEvent(events.SeverityHigh)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(sentTo) != 1 || sentTo[0] != "oncall@example.com" {
		t.Errorf("recipients = %v", sentTo)
	}
	msg := string(sentMsg)
	if !strings.Contains(msg, "Subject: [guardrail] high security event from 1.2.3.4") {
		t.Errorf("unexpected subject in message:\n%s", msg)
	}
	if !strings.Contains(msg, "Severity: high") {
		t.Error("message should carry the severity")
	}
}

func TestEmailChannel_DisabledWithoutConfig(t *testing.T) {
	if NewEmailChannel(EmailConfig{}).Enabled() {
		t.Error("unconfigured email channel should be disabled")
	}
	if NewWebhookChannel(WebhookConfig{}).Enabled() {
		t.Error("unconfigured webhook channel should be disabled")
	}
	if NewPagerChannel(PagerConfig{URL: "https://x"}).Enabled() {
		t.Error("pager without routing key should be disabled")
	}
}

func TestDispatcher_SeverityFanOut(t *testing.T) {
	chat := &countingServer{}
	chatTS := httptest.NewServer(chat.handler())
	defer chatTS.Close()
	pager := &countingServer{}
	pagerTS := httptest.NewServer(pager.handler())
	defer pagerTS.Close()

	var emailMu sync.Mutex
	emails := 0
	d := NewDispatcher(Config{
		Email:   EmailConfig{Host: "smtp.example.com", From: "a@x", To: []string{"b@x"}},
		Webhook: WebhookConfig{URL: chatTS.URL},
		Pager:   PagerConfig{URL: pagerTS.URL, RoutingKey: "rk"},
	}, nil)
	d.email.(*EmailChannel).send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		emailMu.Lock()
		emails++
		emailMu.Unlock()
		return nil
	}
	ctx := context.Background()

	tests := []struct {
		severity              events.Severity
		email, chatN, pagerN  int
	}{
		{events.SeverityCritical, 1, 1, 1},
		{events.SeverityHigh, 2, 2, 2},
		{events.SeverityMedium, 3, 3, 2},
		{events.SeverityLow, 3, 4, 2},
	}
	for _, tt := range tests {
		d.Notify(ctx, securityEvent(tt.severity))
		emailMu.Lock()
		gotEmail := emails
		emailMu.Unlock()
		if gotEmail != tt.email || chat.count() != tt.chatN || pager.count() != tt.pagerN {
			t.Errorf("after %s: (email, chat, pager) = (%d, %d, %d), want (%d, %d, %d)",
				tt.severity, gotEmail, chat.count(), pager.count(), tt.email, tt.chatN, tt.pagerN)
		}
	}
}

func TestDispatcher_FailureDoesNotBlockOthers(t *testing.T) {
	chat := &countingServer{}
	chatTS := httptest.NewServer(chat.handler())
	defer chatTS.Close()
	pager := &countingServer{status: http.StatusInternalServerError}
	pagerTS := httptest.NewServer(pager.handler())
	defer pagerTS.Close()

	d := NewDispatcher(Config{
		Webhook: WebhookConfig{URL: chatTS.URL},
		Pager:   PagerConfig{URL: pagerTS.URL, RoutingKey: "rk"},
	}, nil)

	// Pager fails, email unconfigured: chat must still be reached,
	// and Notify must not propagate any error.
	d.Notify(context.Background(), securityEvent(events.SeverityCritical))

	if chat.count() != 1 {
		t.Errorf("chat received %d posts, want 1 despite pager failure", chat.count())
	}
}
