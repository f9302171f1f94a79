package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks protection-engine activity counters
type Metrics struct {
	eventsLogged    atomic.Int64
	requestsAllowed atomic.Int64
	requestsDenied  atomic.Int64
	blocksApplied   atomic.Int64
	alertsSent      atomic.Int64
	alertsFailed    atomic.Int64
	remediations    atomic.Int64
	remediationOK   atomic.Int64

	// Per-actor stats
	mu         sync.RWMutex
	actorStats map[string]*ActorStats
	startTime  time.Time
}

// ActorStats tracks request statistics for a specific actor
type ActorStats struct {
	Actor          string    `json:"actor"`
	TotalRequests  int64     `json:"total_requests"`
	DeniedRequests int64     `json:"denied_requests"`
	LastRequestAt  time.Time `json:"last_request_at"`
	FirstRequestAt time.Time `json:"first_request_at"`
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{
		actorStats: make(map[string]*ActorStats),
		startTime:  time.Now(),
	}
}

// RecordRequest records one protected request and whether it was allowed
func (m *Metrics) RecordRequest(actor string, allowed bool) {
	if allowed {
		m.requestsAllowed.Add(1)
	} else {
		m.requestsDenied.Add(1)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stats, exists := m.actorStats[actor]
	if !exists {
		stats = &ActorStats{
			Actor:          actor,
			FirstRequestAt: time.Now(),
		}
		m.actorStats[actor] = stats
	}
	stats.TotalRequests++
	if !allowed {
		stats.DeniedRequests++
	}
	stats.LastRequestAt = time.Now()
}

// RecordEvent records one event ingested by the event log
func (m *Metrics) RecordEvent() { m.eventsLogged.Add(1) }

// RecordBlock records one block applied to an actor
func (m *Metrics) RecordBlock() { m.blocksApplied.Add(1) }

// RecordAlert records one alert channel delivery outcome
func (m *Metrics) RecordAlert(sent bool) {
	if sent {
		m.alertsSent.Add(1)
	} else {
		m.alertsFailed.Add(1)
	}
}

// RecordRemediation records one remediation attempt outcome
func (m *Metrics) RecordRemediation(success bool) {
	m.remediations.Add(1)
	if success {
		m.remediationOK.Add(1)
	}
}

// GetSnapshot returns a point-in-time view of all counters
func (m *Metrics) GetSnapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	topActors := make([]*ActorStats, 0, len(m.actorStats))
	for _, stats := range m.actorStats {
		copied := *stats
		topActors = append(topActors, &copied)
	}

	sortByTotalRequests(topActors)
	if len(topActors) > 10 {
		topActors = topActors[:10]
	}

	return &Snapshot{
		EventsLogged:          m.eventsLogged.Load(),
		RequestsAllowed:       m.requestsAllowed.Load(),
		RequestsDenied:        m.requestsDenied.Load(),
		BlocksApplied:         m.blocksApplied.Load(),
		AlertsSent:            m.alertsSent.Load(),
		AlertsFailed:          m.alertsFailed.Load(),
		RemediationAttempts:   m.remediations.Load(),
		RemediationSuccesses:  m.remediationOK.Load(),
		UniqueActors:          int64(len(m.actorStats)),
		TopActors:             topActors,
		UptimeSeconds:         int64(time.Since(m.startTime).Seconds()),
		StartTime:             m.startTime,
	}
}

// Snapshot represents a point-in-time view of metrics
type Snapshot struct {
	EventsLogged          int64         `json:"events_logged"`
	RequestsAllowed       int64         `json:"requests_allowed"`
	RequestsDenied        int64         `json:"requests_denied"`
	BlocksApplied         int64         `json:"blocks_applied"`
	AlertsSent            int64         `json:"alerts_sent"`
	AlertsFailed          int64         `json:"alerts_failed"`
	RemediationAttempts   int64         `json:"remediation_attempts"`
	RemediationSuccesses  int64         `json:"remediation_successes"`
	UniqueActors          int64         `json:"unique_actors"`
	TopActors             []*ActorStats `json:"top_actors"`
	UptimeSeconds         int64         `json:"uptime_seconds"`
	StartTime             time.Time     `json:"start_time"`
}

// Helper to sort actors by total requests
func sortByTotalRequests(actors []*ActorStats) {
	for i := 0; i < len(actors)-1; i++ {
		for j := i + 1; j < len(actors); j++ {
			if actors[j].TotalRequests > actors[i].TotalRequests {
				actors[i], actors[j] = actors[j], actors[i]
			}
		}
	}
}
