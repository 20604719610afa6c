package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	costsTotal      *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

var (
	// promauto registers on the default registry; a second registration of
	// the same collectors panics, so the recorder is a process singleton.
	prometheusInstance *PrometheusRecorder //nolint:gochecknoglobals
	prometheusOnce     sync.Once           //nolint:gochecknoglobals
)

// NewPrometheusRecorder returns the singleton Prometheus-based metrics
// recorder, registering its collectors on first use.
func NewPrometheusRecorder() *PrometheusRecorder {
	prometheusOnce.Do(func() {
		prometheusInstance = newPrometheusRecorder()
	})
	return prometheusInstance
}

func newPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total number of LLM requests by provider, model, session, and status",
			},
			[]string{"provider", "model", "session_id", "agent_id", "status", "error_type"},
		),
		tokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Total number of tokens used in LLM requests",
			},
			[]string{"provider", "model", "session_id", "agent_id", "type"},
		),
		costsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_costs_total",
				Help: "Total cost in USD for LLM requests",
			},
			[]string{"provider", "model", "session_id", "agent_id"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "model"},
		),
	}
}

// ObserveInteraction records metrics for one completed LLM call.
func (p *PrometheusRecorder) ObserveInteraction(
	provider, model, sessionID, agentID string,
	inputTokens, outputTokens int64,
	costUSD float64,
	success bool,
	errorType string,
	duration time.Duration,
) {
	status := "success"
	if !success {
		status = "error"
	}

	p.requestsTotal.WithLabelValues(provider, model, sessionID, agentID, status, errorType).Inc()

	// Tokens and costs only accumulate on success
	if success {
		p.tokensTotal.WithLabelValues(provider, model, sessionID, agentID, "input").Add(float64(inputTokens))
		p.tokensTotal.WithLabelValues(provider, model, sessionID, agentID, "output").Add(float64(outputTokens))
		p.costsTotal.WithLabelValues(provider, model, sessionID, agentID).Add(costUSD)
	}

	p.requestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
}
