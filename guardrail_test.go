package guardrail

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yourusername/guardrail/config"
	"github.com/yourusername/guardrail/events"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(config.Default())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestEngineMemoryBackend(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	err := e.Events.Log(ctx, &events.Event{
		Actor:    "10.0.0.1",
		Category: events.CategorySecurity,
		Type:     "login_failure",
		Severity: events.SeverityMedium,
	})
	if err != nil {
		t.Fatalf("logging event failed: %v", err)
	}

	if err := e.Blocks.Block(ctx, "10.0.0.1", time.Minute); err != nil {
		t.Fatalf("block failed: %v", err)
	}
	if !e.Blocks.IsBlocked(ctx, "10.0.0.1") {
		t.Error("actor should be blocked")
	}

	snap := e.Metrics.GetSnapshot()
	if snap.EventsLogged != 1 {
		t.Errorf("expected 1 event logged, got %d", snap.EventsLogged)
	}
	if snap.BlocksApplied != 1 {
		t.Errorf("expected 1 block applied, got %d", snap.BlocksApplied)
	}
}

func TestEngineRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = "redis" // no address configured
	if _, err := New(cfg); err == nil {
		t.Error("expected error for redis backend without address")
	}
}

func TestEngineMiddlewareBlocksActor(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Blocks.Block(context.Background(), "10.0.0.9", time.Minute); err != nil {
		t.Fatalf("block failed: %v", err)
	}

	handler := e.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("blocked actor should get 403, got %d", rec.Code)
	}
}
