package events

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yourusername/guardrail/logging"
	"github.com/yourusername/guardrail/metrics"
	"github.com/yourusername/guardrail/store"
)

const (
	eventKeyPrefix   = "events:"
	counterKeyPrefix = "counters:"
	counterDayLayout = "2006-01-02"

	// suspiciousScanLimit bounds how many recent events one
	// SuspiciousActors query inspects.
	suspiciousScanLimit = 1000

	// recentPerActor bounds the events kept per suspicious actor.
	recentPerActor = 10
)

// Notifier receives qualifying security events for external fan-out.
// Implementations must never block on channel failures.
type Notifier interface {
	Notify(ctx context.Context, e *Event)
}

// Options configures a Log. Zero values fall back to engine defaults.
type Options struct {
	// Retention is the ttl refreshed on each category's event set.
	Retention time.Duration // default 7 days

	// CounterRetention is the ttl on the per-day stats counters.
	CounterRetention time.Duration // default 30 days

	// MaxPerCategory is the trim bound per category's event set.
	MaxPerCategory int64 // default 10000

	// Notifier, when set, receives every security event after storage.
	Notifier Notifier

	// Metrics, when set, counts ingested events.
	Metrics *metrics.Metrics
}

// Log ingests events into time-ordered per-category sets and answers the
// recent-events, suspicious-actors and stats queries. When the backend has
// no sorted sets it degrades to a bounded in-process list: blocking
// correctness elsewhere is unaffected, analytics become best-effort.
type Log struct {
	store    store.Store
	notifier Notifier
	metrics  *metrics.Metrics
	log      zerolog.Logger

	retention        time.Duration
	counterRetention time.Duration
	maxPerCategory   int64

	mu       sync.Mutex
	fallback []*Event // newest last, bounded by maxPerCategory
}

// NewLog creates an event log over the given store.
func NewLog(s store.Store, opts Options) *Log {
	if opts.Retention <= 0 {
		opts.Retention = 7 * 24 * time.Hour
	}
	if opts.CounterRetention <= 0 {
		opts.CounterRetention = 30 * 24 * time.Hour
	}
	if opts.MaxPerCategory <= 0 {
		opts.MaxPerCategory = 10000
	}
	return &Log{
		store:            s,
		notifier:         opts.Notifier,
		metrics:          opts.Metrics,
		log:              logging.With().Str("component", "events").Logger(),
		retention:        opts.Retention,
		counterRetention: opts.CounterRetention,
		maxPerCategory:   opts.MaxPerCategory,
	}
}

// Log validates and persists an event: one pipelined write adds it to the
// category set, trims the set to the newest MaxPerCategory entries and
// refreshes the retention ttl. Security events additionally bump the
// per-day counters in a second pipeline; the two writes are not
// transactional with each other, so stats may transiently undercount
// after a crash between them.
func (l *Log) Log(ctx context.Context, e *Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}

	key := eventKeyPrefix + e.Category
	err = l.store.Pipeline(ctx, func(p store.Pipe) error {
		p.SortedSetAdd(key, float64(e.Timestamp.UnixMilli()), string(payload))
		p.SortedSetTrimByRank(key, 0, -(l.maxPerCategory + 1))
		p.Expire(key, l.retention)
		return nil
	})
	switch {
	case errors.Is(err, store.ErrNotImplemented):
		l.appendFallback(e)
	case err != nil:
		return err
	}

	if l.metrics != nil {
		l.metrics.RecordEvent()
	}

	if e.IsSecurity() {
		if cerr := l.bumpCounters(ctx, e); cerr != nil {
			// Counters lagging must never fail the ingestion path.
			l.log.Warn().Err(cerr).Msg("stats counters not updated")
		}
		if l.notifier != nil {
			go l.notifier.Notify(context.WithoutCancel(ctx), e)
		}
	}
	return nil
}

func (l *Log) bumpCounters(ctx context.Context, e *Event) error {
	key := counterKeyPrefix + e.Timestamp.UTC().Format(counterDayLayout)
	eventType := e.Type
	if eventType == "" {
		eventType = e.Category
	}
	return l.store.Pipeline(ctx, func(p store.Pipe) error {
		p.HashIncrement(key, "total", 1)
		p.HashIncrement(key, "severity_"+string(e.Severity), 1)
		p.HashIncrement(key, "type_"+eventType, 1)
		p.Expire(key, l.counterRetention)
		return nil
	})
}

func (l *Log) appendFallback(e *Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fallback = append(l.fallback, e)
	if int64(len(l.fallback)) > l.maxPerCategory {
		l.fallback = l.fallback[int64(len(l.fallback))-l.maxPerCategory:]
	}
}

// recent returns up to limit events from a category, newest first,
// reading the fallback list when the backend has no sorted sets.
func (l *Log) recent(ctx context.Context, category string, limit int) ([]*Event, error) {
	members, err := l.store.SortedSetRange(ctx, eventKeyPrefix+category, -int64(limit), -1)
	if errors.Is(err, store.ErrNotImplemented) {
		return l.recentFallback(category, limit), nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]*Event, 0, len(members))
	for i := len(members) - 1; i >= 0; i-- {
		var e Event
		if uerr := json.Unmarshal([]byte(members[i]), &e); uerr != nil {
			l.log.Warn().Err(uerr).Str("category", category).Msg("skipping undecodable event")
			continue
		}
		out = append(out, &e)
	}
	return out, nil
}

func (l *Log) recentFallback(category string, limit int) []*Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Event, 0, limit)
	for i := len(l.fallback) - 1; i >= 0 && len(out) < limit; i-- {
		if l.fallback[i].Category == category {
			out = append(out, l.fallback[i])
		}
	}
	return out
}

// Recent returns the newest events of a category, newest first. limit
// defaults to 100; severity, when non-empty, filters after the limit is
// applied.
func (l *Log) Recent(ctx context.Context, category string, limit int, severity Severity) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}
	recent, err := l.recent(ctx, category, limit)
	if err != nil {
		return nil, err
	}
	if severity == "" {
		return recent, nil
	}
	filtered := recent[:0]
	for _, e := range recent {
		if e.Severity == severity {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

// ClearOlderThan removes events of a category older than maxAge (default
// 24h) and reports how many were removed.
func (l *Log) ClearOlderThan(ctx context.Context, category string, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	cutoff := float64(time.Now().Add(-maxAge).UnixMilli())
	removed, err := l.store.SortedSetRemoveByScore(ctx, eventKeyPrefix+category, 0, cutoff)
	if errors.Is(err, store.ErrNotImplemented) {
		return l.clearFallback(category, cutoff), nil
	}
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (l *Log) clearFallback(category string, cutoff float64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var removed int64
	kept := l.fallback[:0]
	for _, e := range l.fallback {
		if e.Category == category && float64(e.Timestamp.UnixMilli()) <= cutoff {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	l.fallback = kept
	return removed
}

// SuspiciousActors scans the newest events of a category (at most 1000),
// keeps those flagged suspicious or exceeded, and returns the top actors
// by count descending. Ties keep first-seen order scanning newest first;
// there is no secondary sort key.
func (l *Log) SuspiciousActors(ctx context.Context, category string, limit int) ([]*SuspiciousActor, error) {
	if limit <= 0 {
		limit = 20
	}
	recent, err := l.recent(ctx, category, suspiciousScanLimit)
	if err != nil {
		return nil, err
	}

	byActor := make(map[string]*SuspiciousActor)
	order := make([]*SuspiciousActor, 0)
	for _, e := range recent {
		if !e.Suspicious && !e.Exceeded {
			continue
		}
		actor, ok := byActor[e.Actor]
		if !ok {
			actor = &SuspiciousActor{Actor: e.Actor}
			byActor[e.Actor] = actor
			order = append(order, actor)
		}
		actor.Count++
		if len(actor.RecentEvents) < recentPerActor {
			actor.RecentEvents = append(actor.RecentEvents, e)
		}
	}

	sort.SliceStable(order, func(i, j int) bool { return order[i].Count > order[j].Count })
	if len(order) > limit {
		order = order[:limit]
	}
	return order, nil
}

// Stats reads the per-day security counters covering the window (default
// 24h, i.e. the current UTC day). Counters are maintained incrementally
// on ingestion, so this is O(days), independent of the event log's size
// or trim state.
func (l *Log) Stats(ctx context.Context, window time.Duration) (*Stats, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	days := int((window + 24*time.Hour - 1) / (24 * time.Hour))

	stats := &Stats{
		BySeverity: make(map[string]int64),
		ByType:     make(map[string]int64),
	}
	now := time.Now().UTC()
	for i := 0; i < days; i++ {
		key := counterKeyPrefix + now.AddDate(0, 0, -i).Format(counterDayLayout)
		fields, err := l.store.HashGetAll(ctx, key)
		if err != nil {
			return nil, err
		}
		for field, raw := range fields {
			n, perr := strconv.ParseInt(raw, 10, 64)
			if perr != nil {
				continue
			}
			switch {
			case field == "total":
				stats.Total += n
			case strings.HasPrefix(field, "severity_"):
				stats.BySeverity[strings.TrimPrefix(field, "severity_")] += n
			case strings.HasPrefix(field, "type_"):
				stats.ByType[strings.TrimPrefix(field, "type_")] += n
			}
		}
	}
	return stats, nil
}
