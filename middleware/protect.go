// Package middleware provides HTTP middleware that enforces the block
// list and per-actor rate limits, emitting events for denied traffic.
package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yourusername/guardrail/blocklist"
	"github.com/yourusername/guardrail/events"
	"github.com/yourusername/guardrail/logging"
	"github.com/yourusername/guardrail/metrics"
)

// KeyFunc extracts a unique actor identifier from the request
type KeyFunc func(*http.Request) string

// suspiciousAfter is the number of denials within the idle window after
// which an actor's rate-limit events are flagged suspicious.
const suspiciousAfter = 5

// limiterIdleTimeout is how long an actor's limiter survives without
// traffic before it is dropped.
const limiterIdleTimeout = 10 * time.Minute

// Protector provides HTTP middleware combining block list enforcement
// with per-actor rate limiting.
type Protector struct {
	mu       sync.Mutex
	limiters map[string]*actorLimiter

	rate    rate.Limit
	burst   int
	blocks  *blocklist.BlockList
	log     *events.Log
	metrics *metrics.Metrics
	keyFunc KeyFunc
}

type actorLimiter struct {
	limiter  *rate.Limiter
	denials  int
	lastSeen time.Time
}

// Config for creating a Protector
type Config struct {
	Rate    float64              // Tokens added per second
	Burst   int                  // Maximum burst size
	Blocks  *blocklist.BlockList // Optional: block list to enforce
	Events  *events.Log          // Optional: event log for denied traffic
	Metrics *metrics.Metrics     // Optional: request counters
	KeyFunc KeyFunc              // Optional: custom actor extraction
}

// NewProtector creates the protection middleware
func NewProtector(config Config) *Protector {
	if config.KeyFunc == nil {
		config.KeyFunc = defaultKeyFunc
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}

	p := &Protector{
		limiters: make(map[string]*actorLimiter),
		rate:     rate.Limit(config.Rate),
		burst:    config.Burst,
		blocks:   config.Blocks,
		log:      config.Events,
		metrics:  config.Metrics,
		keyFunc:  config.KeyFunc,
	}
	return p
}

// defaultKeyFunc extracts the client identifier from the IP address
func defaultKeyFunc(r *http.Request) string {
	// Try X-Forwarded-For first (for proxies)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}

	ip := r.RemoteAddr
	// Remove port if present
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// limiterFor returns the actor's limiter, creating it on first use and
// sweeping idle entries opportunistically.
func (p *Protector) limiterFor(actor string, now time.Time) *actorLimiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, al := range p.limiters {
		if now.Sub(al.lastSeen) > limiterIdleTimeout {
			delete(p.limiters, key)
		}
	}

	al, ok := p.limiters[actor]
	if !ok {
		al = &actorLimiter{limiter: rate.NewLimiter(p.rate, p.burst)}
		p.limiters[actor] = al
	}
	al.lastSeen = now
	return al
}

// Middleware wraps an http.Handler with block list and rate limit checks
func (p *Protector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := p.keyFunc(r)
		now := time.Now()

		if p.blocks != nil && p.blocks.IsBlocked(r.Context(), actor) {
			p.record(actor, false)
			p.emit(r, actor, "blocked_request", false, true, true)
			writeDenied(w, "blocked", "Access denied.", 0)
			return
		}

		al := p.limiterFor(actor, now)
		if !al.limiter.Allow() {
			p.mu.Lock()
			al.denials++
			suspicious := al.denials >= suspiciousAfter
			p.mu.Unlock()

			p.record(actor, false)
			p.emit(r, actor, "rate_limit_exceeded", true, false, suspicious)

			retryAfter := 1
			if p.rate > 0 && p.rate < 1 {
				retryAfter = int(1 / float64(p.rate))
			}
			writeDenied(w, "rate_limit_exceeded", "Too many requests. Please try again later.", retryAfter)
			return
		}

		p.record(actor, true)
		next.ServeHTTP(w, r)
	})
}

func (p *Protector) record(actor string, allowed bool) {
	if p.metrics != nil {
		p.metrics.RecordRequest(actor, allowed)
	}
}

func (p *Protector) emit(r *http.Request, actor, eventType string, exceeded, blocked, suspicious bool) {
	if p.log == nil {
		return
	}
	err := p.log.Log(r.Context(), &events.Event{
		Actor:      actor,
		Resource:   r.URL.Path,
		Method:     r.Method,
		Category:   events.CategoryRateLimit,
		Type:       eventType,
		Exceeded:   exceeded,
		Blocked:    blocked,
		Suspicious: suspicious,
	})
	if err != nil {
		logging.Warn().Err(err).Str("component", "middleware").
			Str("actor", actor).Msg("failed to log denied request")
	}
}

func writeDenied(w http.ResponseWriter, code, message string, retryAfterSec int) {
	if retryAfterSec > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSec))
	}
	w.Header().Set("Content-Type", "application/json")
	status := http.StatusTooManyRequests
	if code == "blocked" {
		status = http.StatusForbidden
	}
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   code,
		"message": message,
	})
}
