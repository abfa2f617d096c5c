package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New() returned nil")
	}

	if m.Registry() == nil {
		t.Error("Registry() returned nil")
	}

	// Check that all metrics are registered
	if m.LeadsDispatchedTotal == nil {
		t.Error("LeadsDispatchedTotal is nil")
	}
	if m.LeadsSkippedTotal == nil {
		t.Error("LeadsSkippedTotal is nil")
	}
	if m.TicksTotal == nil {
		t.Error("TicksTotal is nil")
	}
	if m.TickDurationSeconds == nil {
		t.Error("TickDurationSeconds is nil")
	}
	if m.VerificationCallsTotal == nil {
		t.Error("VerificationCallsTotal is nil")
	}
	if m.CircuitBreakerState == nil {
		t.Error("CircuitBreakerState is nil")
	}
	if m.FeedbackEventsTotal == nil {
		t.Error("FeedbackEventsTotal is nil")
	}
	if m.QueueDepth == nil {
		t.Error("QueueDepth is nil")
	}
	if m.APIRequestsTotal == nil {
		t.Error("APIRequestsTotal is nil")
	}
	if m.APIRequestDurationSeconds == nil {
		t.Error("APIRequestDurationSeconds is nil")
	}
}

func TestGlobalMetrics(t *testing.T) {
	// Initially global should be nil
	if Global() != nil {
		t.Error("Global() should be nil before SetGlobal")
	}

	m := New()
	SetGlobal(m)

	if Global() != m {
		t.Error("Global() did not return the set metrics")
	}

	// Cleanup
	SetGlobal(nil)
}

func TestIncLeadsDispatched(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncLeadsDispatched("verification", 5)
	IncLeadsDispatched("verification", 2)
	IncLeadsDispatched("delivery", 3)

	if got := counterValue(t, m.LeadsDispatchedTotal, "verification"); got != 7 {
		t.Errorf("verification counter = %v, want 7", got)
	}
	if got := counterValue(t, m.LeadsDispatchedTotal, "delivery"); got != 3 {
		t.Errorf("delivery counter = %v, want 3", got)
	}
}

func TestIncFeedbackEvents(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncFeedbackEvents("bounce")
	IncFeedbackEvents("bounce")
	IncFeedbackEvents("complaint")

	if got := counterValue(t, m.FeedbackEventsTotal, "bounce"); got != 2 {
		t.Errorf("bounce counter = %v, want 2", got)
	}
	if got := counterValue(t, m.FeedbackEventsTotal, "complaint"); got != 1 {
		t.Errorf("complaint counter = %v, want 1", got)
	}
}

func TestHelpersWithNilGlobal(t *testing.T) {
	SetGlobal(nil)

	// None of these should panic when no global instance is set
	IncLeadsDispatched("delivery", 1)
	IncLeadsSkipped("invalid_email_spamtrap")
	IncTicks("ok")
	ObserveTickDuration(0.1)
	SetCampaignsRunning(2)
	IncVerificationCalls("ok")
	IncVerificationRateLimited()
	SetCircuitBreakerState(2)
	IncFeedbackEvents("delivery")
	IncReputationPauses()
	SetQueueDepth("delivery", 42)
}

func TestSetQueueDepth(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	SetQueueDepth("verification", 17)

	g, err := m.QueueDepth.GetMetricWithLabelValues("verification")
	if err != nil {
		t.Fatalf("Failed to get gauge: %v", err)
	}
	var metric dto.Metric
	if err := g.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.GetGauge().GetValue() != 17 {
		t.Errorf("QueueDepth = %v, want 17", metric.GetGauge().GetValue())
	}
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	c, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("Failed to get counter: %v", err)
	}
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.GetCounter().GetValue()
}
