// Package metrics provides Prometheus collectors for monitoring the
// concierge orchestration core: request routing, provider fallback behavior
// and tool execution outcomes.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for language model inference
// latencies, ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts orchestrated requests by chosen route and outcome.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_requests_total",
			Help: "Orchestrated requests",
		},
		[]string{"route", "status"},
	)

	// RequestDuration records end-to-end orchestration latency in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "concierge_request_duration_seconds",
			Help:    "Orchestration duration",
			Buckets: LLMBuckets,
		},
		[]string{"route"},
	)

	// ProviderAttemptsTotal counts provider attempts by outcome code.
	ProviderAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_provider_attempts_total",
			Help: "Capability provider attempts",
		},
		[]string{"provider", "status"},
	)

	// ProviderLatency records backend provider latency in seconds.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "concierge_provider_latency_seconds",
			Help:    "Provider latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model"},
	)

	// ProviderTokensTotal counts tokens processed by direction (input/output).
	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_provider_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "direction"},
	)

	// ToolExecutionsTotal counts tool executions by name and outcome.
	ToolExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_tool_executions_total",
			Help: "Tool executions",
		},
		[]string{"tool", "status"},
	)

	// GatesTotal counts gate pauses by kind.
	GatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_gates_total",
			Help: "Orchestration gate pauses",
		},
		[]string{"kind"},
	)
)

// Register registers all collectors with the given registry. Collectors
// remain functional (but unscraped) when never registered, which keeps unit
// tests free of registry collisions.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		RequestsTotal,
		RequestDuration,
		ProviderAttemptsTotal,
		ProviderLatency,
		ProviderTokensTotal,
		ToolExecutionsTotal,
		GatesTotal,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
