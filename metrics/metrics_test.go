package metrics

import (
	"fmt"
	"testing"
)

func TestMetrics_RecordRequest(t *testing.T) {
	m := NewMetrics()

	m.RecordRequest("1.2.3.4", true)
	m.RecordRequest("1.2.3.4", false)
	m.RecordRequest("5.6.7.8", true)

	snap := m.GetSnapshot()
	if snap.RequestsAllowed != 2 {
		t.Errorf("RequestsAllowed = %d, want 2", snap.RequestsAllowed)
	}
	if snap.RequestsDenied != 1 {
		t.Errorf("RequestsDenied = %d, want 1", snap.RequestsDenied)
	}
	if snap.UniqueActors != 2 {
		t.Errorf("UniqueActors = %d, want 2", snap.UniqueActors)
	}
}

func TestMetrics_TopActorsBounded(t *testing.T) {
	m := NewMetrics()

	for i := 0; i < 15; i++ {
		actor := fmt.Sprintf("10.0.0.%d", i)
		for j := 0; j <= i; j++ {
			m.RecordRequest(actor, true)
		}
	}

	snap := m.GetSnapshot()
	if len(snap.TopActors) != 10 {
		t.Fatalf("TopActors has %d entries, want 10", len(snap.TopActors))
	}
	// Sorted by total requests descending
	if snap.TopActors[0].Actor != "10.0.0.14" {
		t.Errorf("busiest actor = %s, want 10.0.0.14", snap.TopActors[0].Actor)
	}
	for i := 1; i < len(snap.TopActors); i++ {
		if snap.TopActors[i].TotalRequests > snap.TopActors[i-1].TotalRequests {
			t.Fatal("TopActors not sorted by request count")
		}
	}
}

func TestMetrics_EngineCounters(t *testing.T) {
	m := NewMetrics()

	m.RecordEvent()
	m.RecordEvent()
	m.RecordBlock()
	m.RecordAlert(true)
	m.RecordAlert(false)
	m.RecordRemediation(true)
	m.RecordRemediation(false)

	snap := m.GetSnapshot()
	if snap.EventsLogged != 2 {
		t.Errorf("EventsLogged = %d, want 2", snap.EventsLogged)
	}
	if snap.BlocksApplied != 1 {
		t.Errorf("BlocksApplied = %d, want 1", snap.BlocksApplied)
	}
	if snap.AlertsSent != 1 || snap.AlertsFailed != 1 {
		t.Errorf("alerts = (%d, %d), want (1, 1)", snap.AlertsSent, snap.AlertsFailed)
	}
	if snap.RemediationAttempts != 2 || snap.RemediationSuccesses != 1 {
		t.Errorf("remediations = (%d, %d), want (2, 1)", snap.RemediationAttempts, snap.RemediationSuccesses)
	}
}
