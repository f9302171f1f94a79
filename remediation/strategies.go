package remediation

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/yourusername/guardrail/logging"
)

// Mitigations tracks which mitigations are active per issue name. Every
// handler is idempotent: enabling an already-enabled mitigation is a
// no-op, so repeated rule firings cannot stack effects.
type Mitigations struct {
	mu        sync.Mutex
	cache     map[string]bool
	throttle  map[string]bool
	lazyLoad  map[string]bool
	quality   map[string]bool
	breakers  map[string]*gobreaker.CircuitBreaker[any]
	log       zerolog.Logger
}

// NewMitigations creates an empty mitigation registry.
func NewMitigations() *Mitigations {
	return &Mitigations{
		cache:    make(map[string]bool),
		throttle: make(map[string]bool),
		lazyLoad: make(map[string]bool),
		quality:  make(map[string]bool),
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
		log:      logging.With().Str("component", "mitigations").Logger(),
	}
}

// EnableCache turns on response caching for name.
func (m *Mitigations) EnableCache(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cache[name] {
		return nil
	}
	m.cache[name] = true
	m.log.Info().Str("target", name).Msg("caching enabled")
	return nil
}

// CacheEnabled reports whether caching is active for name.
func (m *Mitigations) CacheEnabled(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache[name]
}

// EnableThrottle turns on request throttling for name.
func (m *Mitigations) EnableThrottle(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.throttle[name] {
		return nil
	}
	m.throttle[name] = true
	m.log.Info().Str("target", name).Msg("throttling enabled")
	return nil
}

// Throttled reports whether throttling is active for name.
func (m *Mitigations) Throttled(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.throttle[name]
}

// EnableLazyLoad turns on lazy loading for name.
func (m *Mitigations) EnableLazyLoad(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lazyLoad[name] {
		return nil
	}
	m.lazyLoad[name] = true
	m.log.Info().Str("target", name).Msg("lazy loading enabled")
	return nil
}

// LazyLoadEnabled reports whether lazy loading is active for name.
func (m *Mitigations) LazyLoadEnabled(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lazyLoad[name]
}

// ReduceQuality lowers the serving quality for name.
func (m *Mitigations) ReduceQuality(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.quality[name] {
		return nil
	}
	m.quality[name] = true
	m.log.Info().Str("target", name).Msg("quality reduced")
	return nil
}

// QualityReduced reports whether quality reduction is active for name.
func (m *Mitigations) QualityReduced(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quality[name]
}

// EnableCircuitBreaker installs a named circuit breaker for name.
// Enabling an existing breaker is a no-op; the breaker itself manages
// open/half-open/closed transitions from that point on.
func (m *Mitigations) EnableCircuitBreaker(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.breakers[name]; ok {
		return nil
	}
	log := m.log
	m.breakers[name] = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,               // allow 3 probes in half-open state
		Interval:    time.Minute,     // reset counts after 1 minute closed
		Timeout:     2 * time.Minute, // open -> half-open after 2 minutes
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state transition")
		},
	})
	log.Info().Str("target", name).Msg("circuit breaker enabled")
	return nil
}

// Breaker returns the circuit breaker for name, or nil when none is
// installed. Callers route guarded work through its Execute method.
func (m *Mitigations) Breaker(name string) *gobreaker.CircuitBreaker[any] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.breakers[name]
}
