// Package metrics provides metrics recording and querying for LLM cost
// tracking. Recorders observe each ledger interaction; the query service
// reads the aggregated series back from Prometheus.
package metrics

import "time"

// Recorder defines the interface for recording per-interaction metrics.
type Recorder interface {
	// ObserveInteraction records metrics for one completed LLM call.
	ObserveInteraction(
		provider, model, sessionID, agentID string,
		inputTokens, outputTokens int64,
		costUSD float64,
		success bool,
		errorType string,
		duration time.Duration,
	)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveInteraction does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveInteraction(
	_, _, _, _ string,
	_, _ int64,
	_ float64,
	_ bool,
	_ string,
	_ time.Duration,
) {
	// No-op
}
