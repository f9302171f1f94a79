package events

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidEvent is returned when an event is rejected before storage
	ErrInvalidEvent = errors.New("invalid event")
)

// Severity classifies security events. Rate-limit events carry the
// Exceeded/Blocked/Suspicious flags instead and leave Severity empty.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordering of a severity level; unknown severities rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Valid reports whether s is one of the known levels.
func (s Severity) Valid() bool { return s.Rank() > 0 }

// Well-known categories. Callers may log their own categories (e.g. a
// limiter name); these are the ones the engine itself writes and queries.
const (
	CategoryRateLimit   = "rate_limit"
	CategorySecurity    = "security"
	CategoryRemediation = "remediation"
)

// Event is a single rate-limit, security or remediation record. Events are
// immutable once logged; they are evicted only by retention.
type Event struct {
	ID       string `json:"id"`
	Actor    string `json:"actor"`
	Resource string `json:"resource,omitempty"`
	Method   string `json:"method,omitempty"`
	Category string `json:"category"`

	// Type is the security-event type (e.g. "brute_force"); populated on
	// security events only.
	Type     string   `json:"type,omitempty"`
	Severity Severity `json:"severity,omitempty"`

	// Rate-limit flags.
	Exceeded   bool `json:"exceeded,omitempty"`
	Blocked    bool `json:"blocked,omitempty"`
	Suspicious bool `json:"suspicious,omitempty"`

	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Validate rejects malformed events before they reach storage.
func (e *Event) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	if e.Actor == "" {
		return fmt.Errorf("%w: actor is required", ErrInvalidEvent)
	}
	if e.Category == "" {
		return fmt.Errorf("%w: category is required", ErrInvalidEvent)
	}
	if e.Severity != "" && !e.Severity.Valid() {
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidEvent, e.Severity)
	}
	return nil
}

// IsSecurity reports whether the event carries a severity, which is what
// distinguishes security events from rate-limit events.
func (e *Event) IsSecurity() bool { return e.Severity != "" }

// SuspiciousActor is the derived per-actor aggregate returned by
// SuspiciousActors. It is recomputed per query, never persisted.
type SuspiciousActor struct {
	Actor        string   `json:"actor"`
	Count        int      `json:"count"`
	RecentEvents []*Event `json:"recent_events"`
}

// Stats summarizes security-event counters for a window.
type Stats struct {
	Total      int64            `json:"total"`
	BySeverity map[string]int64 `json:"by_severity"`
	ByType     map[string]int64 `json:"by_type"`
}
