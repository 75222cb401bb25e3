package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	openInvocations prometheus.Gauge
	closeAttempts   *prometheus.CounterVec

	turnTotal    *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec

	toolCallTotal    *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec

	overrideTotal prometheus.Counter

	flowBuildTotal   *prometheus.CounterVec
	flowStepTotal    *prometheus.CounterVec
	flowStepDuration prometheus.Histogram

	connectedClients prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
	registerer  prometheus.Registerer = prometheus.DefaultRegisterer
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			openInvocations: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "open_invocations",
					Help: "Current number of invocations with a live connection.",
				},
			),
			closeAttempts: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "invocation_close_attempts_total",
					Help: "Background close attempts by outcome.",
				},
				[]string{"outcome"},
			),
			turnTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "runtime_turns_total",
					Help: "Completion turns by provider and outcome.",
				},
				[]string{"provider", "outcome"},
			),
			turnDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "runtime_turn_duration_seconds",
					Help:    "Completion turn duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			toolCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_calls_total",
					Help: "Tool dispatches by tool and terminal status.",
				},
				[]string{"tool", "status"},
			),
			toolCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_call_duration_seconds",
					Help:    "Tool handler duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			overrideTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "multiaction_overrides_total",
					Help: "Terminal responses intercepted by the multi-action guarantee.",
				},
			),
			flowBuildTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "flow_builds_total",
					Help: "Workflow compilations by outcome.",
				},
				[]string{"outcome"},
			),
			flowStepTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "flow_steps_total",
					Help: "Workflow step executions by type and outcome.",
				},
				[]string{"type", "outcome"},
			),
			flowStepDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "flow_step_duration_seconds",
					Help:    "Workflow step duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			connectedClients: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "connected_clients",
					Help: "Current number of websocket clients.",
				},
			),
		}

		registerer.MustRegister(
			m.openInvocations,
			m.closeAttempts,
			m.turnTotal,
			m.turnDuration,
			m.toolCallTotal,
			m.toolCallDuration,
			m.overrideTotal,
			m.flowBuildTotal,
			m.flowStepTotal,
			m.flowStepDuration,
			m.connectedClients,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered forces metric registration. Call from package constructors.
func EnsureRegistered() {
	getMetrics()
}

// MetricsHandler returns the HTTP handler for the /metrics endpoint
func MetricsHandler() http.Handler {
	getMetrics()
	return promhttp.Handler()
}

// SetOpenInvocations records the number of invocations with live connections
func SetOpenInvocations(n int) {
	getMetrics().openInvocations.Set(float64(n))
}

// RecordCloseAttempt records one background close attempt
func RecordCloseAttempt(outcome string) {
	getMetrics().closeAttempts.WithLabelValues(outcome).Inc()
}

// RecordTurn records a completion turn
func RecordTurn(provider string, duration time.Duration, success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	m := getMetrics()
	m.turnTotal.WithLabelValues(provider, outcome).Inc()
	m.turnDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordToolCall records a dispatched tool call with its terminal status
func RecordToolCall(tool, status string, duration time.Duration) {
	m := getMetrics()
	m.toolCallTotal.WithLabelValues(tool, status).Inc()
	m.toolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordOverride records one multi-action continuation override
func RecordOverride() {
	getMetrics().overrideTotal.Inc()
}

// RecordFlowBuild records a workflow compilation
func RecordFlowBuild(outcome string) {
	getMetrics().flowBuildTotal.WithLabelValues(outcome).Inc()
}

// RecordFlowStep records a workflow step execution
func RecordFlowStep(stepType, outcome string, duration time.Duration) {
	m := getMetrics()
	m.flowStepTotal.WithLabelValues(stepType, outcome).Inc()
	m.flowStepDuration.Observe(duration.Seconds())
}

// SetConnectedClients records the current websocket client count
func SetConnectedClients(n int) {
	getMetrics().connectedClients.Set(float64(n))
}
