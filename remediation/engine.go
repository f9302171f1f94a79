package remediation

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/guardrail/events"
	"github.com/yourusername/guardrail/logging"
	"github.com/yourusername/guardrail/metrics"
)

// DefaultQueueSize bounds the issue queue when Config leaves it zero.
const DefaultQueueSize = 256

// Config configures a remediation engine.
type Config struct {
	// QueueSize bounds the issue queue consumed by the worker loop.
	QueueSize int

	// Rules seeds the rule set; nil means DefaultRules.
	Rules []Rule

	// Audit, when set, receives one durable event per remediation attempt.
	Audit *events.Log

	// Metrics, when set, counts attempts and successes.
	Metrics *metrics.Metrics
}

// Engine matches submitted issues against its rules and applies the
// winning rule's mitigation, bounded by per-issue-key max attempts and
// cooldown. Producers push onto a bounded queue via Submit; a single
// worker loop consumes it. A full queue drops the oldest entry.
type Engine struct {
	mu       sync.RWMutex
	rules    []Rule
	attempts map[string]*Attempt

	keysMu   sync.Mutex
	keyLocks map[string]*sync.Mutex

	mitigations *Mitigations
	audit       *events.Log
	metrics     *metrics.Metrics
	log         zerolog.Logger

	queue chan Issue
	done  chan struct{}
	stop  sync.Once
	wg    sync.WaitGroup

	statsMu    sync.Mutex
	total      int64
	successful int64
	byStrategy map[string]int64
	byType     map[string]int64

	// now is swappable for tests exercising cooldown timing.
	now func() time.Time
}

// NewEngine creates an engine with the given configuration.
func NewEngine(cfg Config) *Engine {
	rules := cfg.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Engine{
		rules:       append([]Rule(nil), rules...),
		attempts:    make(map[string]*Attempt),
		keyLocks:    make(map[string]*sync.Mutex),
		mitigations: NewMitigations(),
		audit:       cfg.Audit,
		metrics:     cfg.Metrics,
		log:         logging.With().Str("component", "remediation").Logger(),
		queue:       make(chan Issue, size),
		done:        make(chan struct{}),
		byStrategy:  make(map[string]int64),
		byType:      make(map[string]int64),
		now:         time.Now,
	}
}

// Mitigations exposes the active mitigation registry for callers that
// route work through it (cache checks, breaker execution).
func (e *Engine) Mitigations() *Mitigations { return e.mitigations }

// Start launches the worker loop. It exits when ctx is cancelled or
// Stop is called.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.done:
				return
			case issue := <-e.queue:
				e.Handle(ctx, issue)
			}
		}
	}()
}

// Stop terminates the worker loop and waits for it to drain its current
// issue. Safe to call more than once.
func (e *Engine) Stop() {
	e.stop.Do(func() { close(e.done) })
	e.wg.Wait()
}

// Submit queues an issue without blocking. When the queue is full the
// oldest queued issue is dropped to make room; the return value reports
// whether this issue was accepted.
func (e *Engine) Submit(issue Issue) bool {
	select {
	case e.queue <- issue:
		return true
	default:
	}
	select {
	case dropped := <-e.queue:
		e.log.Warn().Str("key", dropped.Key()).Msg("issue queue full, dropped oldest")
	default:
	}
	select {
	case e.queue <- issue:
		return true
	default:
		return false
	}
}

// keyLock returns the mutex serializing all remediation decisions for
// one issue key. The check-then-act on the attempt record must be
// atomic per key or concurrent identical issues double-remediate.
func (e *Engine) keyLock(key string) *sync.Mutex {
	e.keysMu.Lock()
	defer e.keysMu.Unlock()
	lock, ok := e.keyLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		e.keyLocks[key] = lock
	}
	return lock
}

// matchRule returns the matching rule with the highest threshold, or nil.
// Equal thresholds keep registration order.
func (e *Engine) matchRule(issue Issue) *Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var matched []Rule
	for _, rule := range e.rules {
		if rule.AppliesTo(issue) {
			matched = append(matched, rule)
		}
	}
	if len(matched) == 0 {
		return nil
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].ThresholdPercent > matched[j].ThresholdPercent
	})
	rule := matched[0]
	return &rule
}

// Handle runs one issue through the state machine and reports whether a
// mitigation was invoked. No-ops (no matching rule, cooling down,
// attempts exhausted) return false.
func (e *Engine) Handle(ctx context.Context, issue Issue) bool {
	rule := e.matchRule(issue)
	if rule == nil {
		return false
	}

	key := issue.Key()
	lock := e.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	now := e.now()
	prev := e.getAttempt(key)
	var att Attempt
	switch {
	case prev == nil:
		att = Attempt{Key: key, RuleID: rule.ID, Strategy: rule.Strategy, Count: 1, LastAttempt: now}
	case now.Sub(prev.LastAttempt) < rule.Cooldown:
		e.log.Debug().Str("key", key).Str("rule", rule.ID).Msg("cooling down, skipping")
		return false
	case prev.Count >= rule.MaxAttempts:
		e.log.Debug().Str("key", key).Str("rule", rule.ID).Msg("attempts exhausted, skipping")
		return false
	default:
		att = *prev
		att.Count++
		att.LastAttempt = now
		att.RuleID = rule.ID
		att.Strategy = rule.Strategy
	}

	success := e.apply(issue, rule.Strategy)
	att.Successful = success
	e.putAttempt(&att)

	e.recordStats(rule, issue, success)
	if e.metrics != nil {
		e.metrics.RecordRemediation(success)
	}
	e.auditAttempt(ctx, issue, rule, &att, success)
	e.log.Info().
		Str("key", key).
		Str("rule", rule.ID).
		Str("strategy", rule.Strategy.String()).
		Int("attempt", att.Count).
		Bool("success", success).
		Msg("remediation attempt")
	return true
}

// apply invokes the handler for a strategy. Handler failures are caught
// here and reported as an unsuccessful attempt, never propagated.
func (e *Engine) apply(issue Issue, strategy Strategy) bool {
	var err error
	switch strategy {
	case StrategyCache:
		err = e.mitigations.EnableCache(issue.Name)
	case StrategyThrottle:
		err = e.mitigations.EnableThrottle(issue.Name)
	case StrategyLazyLoad:
		err = e.mitigations.EnableLazyLoad(issue.Name)
	case StrategyReduceQuality:
		err = e.mitigations.ReduceQuality(issue.Name)
	case StrategyCircuitBreaker:
		err = e.mitigations.EnableCircuitBreaker(issue.Name)
	case StrategyNone:
	}
	if err != nil {
		e.log.Warn().Err(err).Str("strategy", strategy.String()).Str("target", issue.Name).
			Msg("strategy handler failed")
		return false
	}
	return true
}

func (e *Engine) getAttempt(key string) *Attempt {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.attempts[key]
}

func (e *Engine) putAttempt(att *Attempt) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attempts[att.Key] = att
}

func (e *Engine) recordStats(rule *Rule, issue Issue, success bool) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	e.total++
	if success {
		e.successful++
	}
	e.byStrategy[rule.Strategy.String()]++
	e.byType[issue.Type]++
}

// auditAttempt persists a durable record of the attempt in the event
// log. Audit failures are logged, never allowed to fail the attempt.
func (e *Engine) auditAttempt(ctx context.Context, issue Issue, rule *Rule, att *Attempt, success bool) {
	if e.audit == nil {
		return
	}
	err := e.audit.Log(ctx, &events.Event{
		Actor:    issue.Key(),
		Resource: issue.Name,
		Category: events.CategoryRemediation,
		Metadata: map[string]string{
			"issue_type": issue.Type,
			"rule_id":    rule.ID,
			"strategy":   rule.Strategy.String(),
			"attempt":    strconv.Itoa(att.Count),
			"success":    strconv.FormatBool(success),
		},
	})
	if err != nil {
		e.log.Warn().Err(err).Msg("audit log write failed")
	}
}

// AttemptFor returns a copy of the attempt record for an issue key.
func (e *Engine) AttemptFor(key string) (Attempt, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	att, ok := e.attempts[key]
	if !ok {
		return Attempt{}, false
	}
	return *att, true
}

// ClearAttempts drops every attempt record, resetting all issue keys to
// the unseen state.
func (e *Engine) ClearAttempts() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attempts = make(map[string]*Attempt)
}

// AddRule upserts a rule by ID. Replacing keeps the rule's position so
// tie-breaks stay stable; a new ID appends.
func (e *Engine) AddRule(rule Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.rules {
		if e.rules[i].ID == rule.ID {
			e.rules[i] = rule
			return nil
		}
	}
	e.rules = append(e.rules, rule)
	return nil
}

// RemoveRule deletes a rule by ID and reports whether it existed.
func (e *Engine) RemoveRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.rules {
		if e.rules[i].ID == id {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			return true
		}
	}
	return false
}

// ResetRules restores the built-in rule set.
func (e *Engine) ResetRules() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = DefaultRules()
}

// Rules returns a copy of the current rule set in registration order.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Rule(nil), e.rules...)
}

// Stats returns a snapshot of the engine's activity counters.
func (e *Engine) Stats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	stats := Stats{
		TotalAttempts:      e.total,
		SuccessfulAttempts: e.successful,
		ByStrategy:         make(map[string]int64, len(e.byStrategy)),
		ByType:             make(map[string]int64, len(e.byType)),
	}
	for k, v := range e.byStrategy {
		stats.ByStrategy[k] = v
	}
	for k, v := range e.byType {
		stats.ByType[k] = v
	}
	return stats
}
