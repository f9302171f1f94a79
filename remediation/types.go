package remediation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	// ErrInvalidRule is returned when a rule fails validation on add
	ErrInvalidRule = errors.New("invalid remediation rule")
)

// Strategy is the mitigation applied when a rule fires. The engine
// dispatches on it with an exhaustive switch, one handler per variant.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyCache
	StrategyThrottle
	StrategyLazyLoad
	StrategyReduceQuality
	StrategyCircuitBreaker
)

var strategyNames = map[Strategy]string{
	StrategyNone:           "none",
	StrategyCache:          "cache",
	StrategyThrottle:       "throttle",
	StrategyLazyLoad:       "lazy_load",
	StrategyReduceQuality:  "reduce_quality",
	StrategyCircuitBreaker: "circuit_breaker",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// ParseStrategy maps a strategy name to its variant.
func ParseStrategy(name string) (Strategy, error) {
	for s, n := range strategyNames {
		if n == name {
			return s, nil
		}
	}
	return StrategyNone, fmt.Errorf("unknown strategy %q", name)
}

// Issue is a detected performance or security problem submitted for
// remediation. Duration is the observed cost, Threshold the acceptable
// one; how far Duration overshoots Threshold drives rule matching.
type Issue struct {
	Type      string            // e.g. "api", "render", "database"
	Name      string            // e.g. the endpoint or query identifier
	Duration  time.Duration     // observed
	Threshold time.Duration     // acceptable
	Timestamp time.Time
	Metadata  map[string]string
}

// Key identifies the attempt record an issue maps to.
func (i Issue) Key() string { return i.Type + "_" + i.Name }

// ExceedPercent is how far Duration overshoots Threshold, in percent.
// 150ms observed against a 100ms threshold is 50.
func (i Issue) ExceedPercent() float64 {
	if i.Threshold <= 0 {
		return 0
	}
	return float64(i.Duration)/float64(i.Threshold)*100 - 100
}

// Rule configures when and how an issue is remediated.
type Rule struct {
	ID string

	// Match restricts the rule to issue names matching this pattern,
	// interpreted as a regular expression when it compiles and as a
	// plain substring otherwise. Empty matches everything.
	Match string

	// Type must equal the issue's type for the rule to apply.
	Type string

	Strategy Strategy

	// ThresholdPercent is the minimum overshoot for the rule to fire.
	ThresholdPercent float64

	// MaxAttempts bounds how often the rule fires per issue key.
	MaxAttempts int

	// Cooldown is the minimum time between attempts for one issue key.
	Cooldown time.Duration

	Enabled  bool
	Metadata map[string]string
}

// Validate rejects rules that could never fire or would fire unbounded.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRule)
	}
	if r.Type == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidRule)
	}
	if r.MaxAttempts <= 0 {
		return fmt.Errorf("%w: max attempts must be positive", ErrInvalidRule)
	}
	if r.Cooldown < 0 {
		return fmt.Errorf("%w: cooldown must not be negative", ErrInvalidRule)
	}
	return nil
}

// AppliesTo reports whether the rule matches an issue: enabled, same
// type, overshoot at or above the rule's threshold, and name matching
// the pattern.
func (r *Rule) AppliesTo(issue Issue) bool {
	if !r.Enabled || r.Type != issue.Type {
		return false
	}
	if issue.ExceedPercent() < r.ThresholdPercent {
		return false
	}
	return r.matchesName(issue.Name)
}

func (r *Rule) matchesName(name string) bool {
	if r.Match == "" {
		return true
	}
	if re, err := regexp.Compile(r.Match); err == nil {
		return re.MatchString(name)
	}
	return strings.Contains(name, r.Match)
}

// Attempt is the per-issue-key remediation record. It is created on the
// first rule match and updated on every subsequent one, subject to
// cooldown and max attempts.
type Attempt struct {
	Key         string
	RuleID      string
	Strategy    Strategy
	Count       int
	LastAttempt time.Time
	Successful  bool
}

// Stats summarizes the engine's remediation activity.
type Stats struct {
	TotalAttempts      int64            `json:"total_attempts"`
	SuccessfulAttempts int64            `json:"successful_attempts"`
	ByStrategy         map[string]int64 `json:"by_strategy"`
	ByType             map[string]int64 `json:"by_type"`
}

// DefaultRules is the built-in rule set: slow API responses get cached,
// slow renders throttled, pathological database calls circuit-broken.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:               "api-slow-response",
			Type:             "api",
			Strategy:         StrategyCache,
			ThresholdPercent: 50,
			MaxAttempts:      3,
			Cooldown:         5 * time.Minute,
			Enabled:          true,
		},
		{
			ID:               "render-slow",
			Type:             "render",
			Strategy:         StrategyThrottle,
			ThresholdPercent: 100,
			MaxAttempts:      2,
			Cooldown:         2 * time.Minute,
			Enabled:          true,
		},
		{
			ID:               "database-slow-query",
			Type:             "database",
			Strategy:         StrategyCircuitBreaker,
			ThresholdPercent: 200,
			MaxAttempts:      1,
			Cooldown:         10 * time.Minute,
			Enabled:          true,
		},
	}
}
