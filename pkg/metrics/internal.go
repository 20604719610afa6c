package metrics

import (
	"sync"
	"time"
)

// InternalRecorder implements the Recorder interface using in-memory
// aggregation. It mirrors the per-session totals the database maintains so
// live sessions can be inspected without a query round-trip.
type InternalRecorder struct {
	sessions map[string]*SessionMetrics // sessionID -> aggregated metrics
	mu       sync.RWMutex
}

// SessionMetrics represents aggregated in-memory metrics for a session.
//
//nolint:govet
type SessionMetrics struct {
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	TotalTokens  int64     `json:"total_tokens"`
	RequestCount int64     `json:"request_count"`
	ErrorCount   int64     `json:"error_count"`
	TotalCost    float64   `json:"total_cost_usd"`
	SessionID    string    `json:"session_id"`
	LastUpdated  time.Time `json:"last_updated"`
}

var (
	// Singleton instance and initialization synchronization.
	internalInstance *InternalRecorder //nolint:gochecknoglobals
	internalOnce     sync.Once         //nolint:gochecknoglobals
)

// NewInternalRecorder returns a singleton internal metrics recorder.
func NewInternalRecorder() *InternalRecorder {
	internalOnce.Do(func() {
		internalInstance = &InternalRecorder{
			sessions: make(map[string]*SessionMetrics),
		}
	})
	return internalInstance
}

// ObserveInteraction records metrics for one completed LLM call.
func (r *InternalRecorder) ObserveInteraction(
	_, _, sessionID, _ string,
	inputTokens, outputTokens int64,
	costUSD float64,
	success bool,
	_ string,
	_ time.Duration,
) {
	if sessionID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[sessionID]
	if !exists {
		session = &SessionMetrics{
			SessionID: sessionID,
		}
		r.sessions[sessionID] = session
	}

	if !success {
		session.ErrorCount++
		session.LastUpdated = time.Now()
		return
	}

	session.InputTokens += inputTokens
	session.OutputTokens += outputTokens
	session.TotalTokens = session.InputTokens + session.OutputTokens
	session.TotalCost += costUSD
	session.RequestCount++
	session.LastUpdated = time.Now()
}

// GetSessionMetrics returns the aggregated metrics for a specific session.
func (r *InternalRecorder) GetSessionMetrics(sessionID string) *SessionMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if session, exists := r.sessions[sessionID]; exists {
		// Return a copy to prevent external modification
		clone := *session
		return &clone
	}
	return nil
}

// GetAllSessionMetrics returns metrics for all sessions.
func (r *InternalRecorder) GetAllSessionMetrics() map[string]*SessionMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*SessionMetrics, len(r.sessions))
	for sessionID, session := range r.sessions {
		clone := *session
		result[sessionID] = &clone
	}
	return result
}

// ClearSessionMetrics removes metrics for a specific session.
func (r *InternalRecorder) ClearSessionMetrics(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// Reset clears all metrics (useful for testing).
func (r *InternalRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = make(map[string]*SessionMetrics)
}
