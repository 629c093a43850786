package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects runtime counters and histograms:
//   - model call latency, count, and token usage by provider and model
//   - tool execution count and latency by tool
//   - errors by component and type
//   - session duration and terminal status
type Metrics struct {
	// ModelRequestDuration measures provider call latency in seconds.
	// Labels: provider, model.
	ModelRequestDuration *prometheus.HistogramVec

	// ModelRequestCounter counts provider calls.
	// Labels: provider, model, status (success|error).
	ModelRequestCounter *prometheus.CounterVec

	// ModelTokensUsed tracks token consumption.
	// Labels: provider, model, type (input|output).
	ModelTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts sandbox executions.
	// Labels: tool_name, status (success|error).
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures sandbox execution time in seconds.
	// Labels: tool_name.
	ToolExecutionDuration *prometheus.HistogramVec

	// ErrorCounter tracks errors by component and type.
	// Labels: component (kernel|router|sandbox|store), error_type.
	ErrorCounter *prometheus.CounterVec

	// SessionCounter counts completed sessions by terminal status.
	// Labels: status.
	SessionCounter *prometheus.CounterVec

	// SessionDuration measures session lifetime in seconds.
	SessionDuration prometheus.Histogram

	// SessionCostUSD measures per-session spend in dollars.
	SessionCostUSD prometheus.Histogram
}

// NewMetrics creates and registers all metrics on the given registerer. Pass
// prometheus.NewRegistry() in tests to avoid default-registry collisions.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ModelRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aria_model_request_duration_seconds",
			Help:    "Model provider call latency.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),
		ModelRequestCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aria_model_requests_total",
			Help: "Model provider calls by status.",
		}, []string{"provider", "model", "status"}),
		ModelTokensUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aria_model_tokens_total",
			Help: "Tokens consumed by direction.",
		}, []string{"provider", "model", "type"}),
		ToolExecutionCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aria_tool_executions_total",
			Help: "Sandboxed tool executions by status.",
		}, []string{"tool_name", "status"}),
		ToolExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aria_tool_execution_duration_seconds",
			Help:    "Sandboxed tool execution time.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool_name"}),
		ErrorCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aria_errors_total",
			Help: "Errors by component and type.",
		}, []string{"component", "error_type"}),
		SessionCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aria_sessions_total",
			Help: "Sessions by terminal status.",
		}, []string{"status"}),
		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aria_session_duration_seconds",
			Help:    "End-to-end session duration.",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		}),
		SessionCostUSD: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aria_session_cost_usd",
			Help:    "Per-session model spend.",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ModelRequestDuration, m.ModelRequestCounter, m.ModelTokensUsed,
			m.ToolExecutionCounter, m.ToolExecutionDuration, m.ErrorCounter,
			m.SessionCounter, m.SessionDuration, m.SessionCostUSD,
		)
	}
	return m
}

// NopMetrics returns unregistered metrics for tests and callers that do not
// scrape.
func NopMetrics() *Metrics { return NewMetrics(nil) }
