package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Execution metrics
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec

	// Tool invocation metrics
	InvocationsTotal *prometheus.CounterVec

	// Policy metrics
	PolicyDecisionsTotal *prometheus.CounterVec

	// Approval metrics
	ApprovalsTotal   *prometheus.CounterVec
	ApprovalsPending prometheus.Gauge
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "executions_total",
				Help: "Total number of code executions",
			},
			[]string{"runtime_kind", "status"},
		),
		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "execution_duration_seconds",
				Help:    "Duration of code executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"runtime_kind"},
		),

		InvocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_invocations_total",
				Help: "Total number of bridged tool invocations",
			},
			[]string{"tool_path", "outcome"},
		),

		PolicyDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "policy_decisions_total",
				Help: "Total number of policy decisions",
			},
			[]string{"effect"},
		),

		ApprovalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "approvals_total",
				Help: "Total number of approval resolutions",
			},
			[]string{"resolution"},
		),
		ApprovalsPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "approvals_pending",
				Help: "Number of approvals currently awaiting review",
			},
		),
	}

	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.ExecutionsTotal)
	m.registry.MustRegister(m.ExecutionDuration)
	m.registry.MustRegister(m.InvocationsTotal)
	m.registry.MustRegister(m.PolicyDecisionsTotal)
	m.registry.MustRegister(m.ApprovalsTotal)
	m.registry.MustRegister(m.ApprovalsPending)
}

// ObserveExecution records one finished execution.
func (m *Metrics) ObserveExecution(runtimeKind, status string, elapsed time.Duration) {
	m.ExecutionsTotal.WithLabelValues(runtimeKind, status).Inc()
	m.ExecutionDuration.WithLabelValues(runtimeKind).Observe(elapsed.Seconds())
}

// ObserveInvocation records one bridged tool call outcome.
func (m *Metrics) ObserveInvocation(toolPath, outcome string) {
	m.InvocationsTotal.WithLabelValues(toolPath, outcome).Inc()
}

// ObservePolicyDecision records one resolver decision.
func (m *Metrics) ObservePolicyDecision(effect string) {
	m.PolicyDecisionsTotal.WithLabelValues(effect).Inc()
}

// ObserveApproval records one approval resolution.
func (m *Metrics) ObserveApproval(resolution string) {
	m.ApprovalsTotal.WithLabelValues(resolution).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
