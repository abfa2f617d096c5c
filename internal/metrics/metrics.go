package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for the campaign engine
type Metrics struct {
	// Lead pipeline counters
	LeadsDispatchedTotal *prometheus.CounterVec
	LeadsSkippedTotal    *prometheus.CounterVec

	// Tick counters/histograms
	TicksTotal          *prometheus.CounterVec
	TickDurationSeconds prometheus.Histogram
	CampaignsRunning    prometheus.Gauge

	// Verification client
	VerificationCallsTotal       *prometheus.CounterVec
	VerificationRateLimitedTotal prometheus.Counter
	CircuitBreakerState          prometheus.Gauge

	// Feedback / reputation
	FeedbackEventsTotal   *prometheus.CounterVec
	ReputationPausesTotal prometheus.Counter

	// Queue gauges
	QueueDepth *prometheus.GaugeVec

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		LeadsDispatchedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pivotr_leads_dispatched_total",
				Help: "Total number of leads dispatched to a downstream pipeline",
			},
			[]string{"pipeline"},
		),
		LeadsSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pivotr_leads_skipped_total",
				Help: "Total number of leads skipped during categorization",
			},
			[]string{"reason"},
		),

		TicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pivotr_ticks_total",
				Help: "Total number of orchestrator ticks by result",
			},
			[]string{"result"},
		),
		TickDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pivotr_tick_duration_seconds",
				Help:    "Orchestrator tick duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		CampaignsRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pivotr_campaigns_running",
				Help: "Number of campaigns in the running state at the last tick",
			},
		),

		VerificationCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pivotr_verification_calls_total",
				Help: "Total number of verification API calls by outcome",
			},
			[]string{"outcome"},
		),
		VerificationRateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pivotr_verification_ratelimited_total",
				Help: "Total number of verification calls refused by the local rate limiter",
			},
		),
		CircuitBreakerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pivotr_verification_breaker_state",
				Help: "Verification circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
		),

		FeedbackEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pivotr_feedback_events_total",
				Help: "Total number of provider feedback events processed",
			},
			[]string{"type"},
		),
		ReputationPausesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pivotr_reputation_pauses_total",
				Help: "Total number of campaign pauses triggered by the reputation guard",
			},
		),

		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pivotr_queue_depth",
				Help: "Approximate number of messages in a queue",
			},
			[]string{"queue"},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pivotr_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pivotr_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pivotr_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		registry: reg,
	}

	// Register all metrics
	reg.MustRegister(
		m.LeadsDispatchedTotal,
		m.LeadsSkippedTotal,
		m.TicksTotal,
		m.TickDurationSeconds,
		m.CampaignsRunning,
		m.VerificationCallsTotal,
		m.VerificationRateLimitedTotal,
		m.CircuitBreakerState,
		m.FeedbackEventsTotal,
		m.ReputationPausesTotal,
		m.QueueDepth,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncLeadsDispatched adds to the dispatched lead counter
func IncLeadsDispatched(pipeline string, n int) {
	m := Global()
	if m != nil {
		m.LeadsDispatchedTotal.WithLabelValues(pipeline).Add(float64(n))
	}
}

// IncLeadsSkipped increments the skipped lead counter
func IncLeadsSkipped(reason string) {
	m := Global()
	if m != nil {
		m.LeadsSkippedTotal.WithLabelValues(reason).Inc()
	}
}

// IncTicks increments the tick counter
func IncTicks(result string) {
	m := Global()
	if m != nil {
		m.TicksTotal.WithLabelValues(result).Inc()
	}
}

// ObserveTickDuration records the duration of a tick in seconds
func ObserveTickDuration(seconds float64) {
	m := Global()
	if m != nil {
		m.TickDurationSeconds.Observe(seconds)
	}
}

// SetCampaignsRunning sets the running campaign gauge
func SetCampaignsRunning(n int) {
	m := Global()
	if m != nil {
		m.CampaignsRunning.Set(float64(n))
	}
}

// IncVerificationCalls increments the verification call counter
func IncVerificationCalls(outcome string) {
	m := Global()
	if m != nil {
		m.VerificationCallsTotal.WithLabelValues(outcome).Inc()
	}
}

// IncVerificationRateLimited increments the rate limited counter
func IncVerificationRateLimited() {
	m := Global()
	if m != nil {
		m.VerificationRateLimitedTotal.Inc()
	}
}

// SetCircuitBreakerState records the breaker state as a gauge
func SetCircuitBreakerState(state float64) {
	m := Global()
	if m != nil {
		m.CircuitBreakerState.Set(state)
	}
}

// IncFeedbackEvents increments the feedback event counter
func IncFeedbackEvents(eventType string) {
	m := Global()
	if m != nil {
		m.FeedbackEventsTotal.WithLabelValues(eventType).Inc()
	}
}

// IncReputationPauses increments the reputation pause counter
func IncReputationPauses() {
	m := Global()
	if m != nil {
		m.ReputationPausesTotal.Inc()
	}
}

// SetQueueDepth sets the depth gauge for a queue
func SetQueueDepth(queue string, depth int64) {
	m := Global()
	if m != nil {
		m.QueueDepth.WithLabelValues(queue).Set(float64(depth))
	}
}
