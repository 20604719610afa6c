// Package ledger records LLM interactions: it prices token usage, appends
// the ledger row with its session and daily aggregates, and feeds the
// metrics recorder.
package ledger

import (
	"fmt"
	"time"

	"costtrack/pkg/logx"
	"costtrack/pkg/metrics"
	"costtrack/pkg/persistence"
	"costtrack/pkg/pricing"
)

// Request describes one completed LLM call to be recorded.
//
//nolint:govet // struct alignment optimization not critical for this type
type Request struct {
	At             time.Time     `json:"at"` // zero means now
	SessionID      string        `json:"session_id"`
	ConversationID string        `json:"conversation_id"`
	TurnID         *string       `json:"turn_id,omitempty"`
	AgentID        *string       `json:"agent_id,omitempty"`
	Provider       string        `json:"provider"`
	Model          string        `json:"model"`
	Usage          Usage         `json:"usage"`
	Metadata       string        `json:"metadata,omitempty"` // JSON blob
	Duration       time.Duration `json:"duration"`
}

// Service prices and persists interactions.
type Service struct {
	store          *persistence.Store
	pricing        *pricing.Resolver
	metrics        metrics.Recorder
	logger         *logx.Logger
	dailyBudgetUSD float64
}

// NewService creates a ledger service. Pass metrics.Nop() when metrics are
// disabled.
func NewService(store *persistence.Store, resolver *pricing.Resolver, recorder metrics.Recorder, dailyBudgetUSD float64) *Service {
	return &Service{
		store:          store,
		pricing:        resolver,
		metrics:        recorder,
		logger:         logx.NewLogger("ledger"),
		dailyBudgetUSD: dailyBudgetUSD,
	}
}

// Record prices the usage at the rate in effect, appends the ledger row with
// its aggregates, and observes metrics. The returned interaction carries the
// generated ID and computed costs.
func (s *Service) Record(req *Request) (*persistence.Interaction, error) {
	at := req.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	inputUSD, outputUSD, err := s.pricing.Cost(req.Provider, req.Model, at, req.Usage.InputTokens, req.Usage.OutputTokens)
	if err != nil {
		s.metrics.ObserveInteraction(req.Provider, req.Model, req.SessionID, deref(req.AgentID),
			req.Usage.InputTokens, req.Usage.OutputTokens, 0, false, "pricing_unresolved", req.Duration)
		return nil, fmt.Errorf("failed to price interaction: %w", err)
	}

	rec := &persistence.Interaction{
		SessionID:       req.SessionID,
		ConversationID:  req.ConversationID,
		TurnID:          req.TurnID,
		AgentID:         req.AgentID,
		Provider:        req.Provider,
		Model:           req.Model,
		InputTokens:     req.Usage.InputTokens,
		OutputTokens:    req.Usage.OutputTokens,
		InputCostUSD:    inputUSD,
		OutputCostUSD:   outputUSD,
		RequestMetadata: req.Metadata,
		CreatedAt:       at,
	}
	if err := s.store.InsertInteraction(rec, s.dailyBudgetUSD); err != nil {
		s.metrics.ObserveInteraction(req.Provider, req.Model, req.SessionID, deref(req.AgentID),
			req.Usage.InputTokens, req.Usage.OutputTokens, 0, false, "persistence_failed", req.Duration)
		return nil, err
	}

	s.metrics.ObserveInteraction(req.Provider, req.Model, req.SessionID, deref(req.AgentID),
		req.Usage.InputTokens, req.Usage.OutputTokens, rec.TotalCostUSD, true, "", req.Duration)

	s.logger.Debug("recorded %s/%s: %d tokens, $%.6f (session %s)",
		req.Provider, req.Model, rec.TotalTokens, rec.TotalCostUSD, req.SessionID)
	return rec, nil
}

// RecordFailure observes a failed LLM call in metrics. Failed calls carry no
// billable usage, so nothing reaches the ledger.
func (s *Service) RecordFailure(provider, model, sessionID, agentID, errorType string, duration time.Duration) {
	s.metrics.ObserveInteraction(provider, model, sessionID, agentID,
		0, 0, 0, false, errorType, duration)
}

// CloseSession marks the session's aggregate closed.
func (s *Service) CloseSession(sessionID string) error {
	return s.store.CloseSession(sessionID)
}

// SessionReport returns the maintained aggregate for a session.
func (s *Service) SessionReport(sessionID string) (*persistence.CostSession, error) {
	return s.store.GetCostSession(sessionID)
}

// DailyReport returns the maintained aggregate for one calendar date.
func (s *Service) DailyReport(date string) (*persistence.DailySummary, error) {
	return s.store.GetDailySummary(date)
}

// Reconcile recomputes a session's totals from the ledger and compares them
// against the maintained aggregate. A mismatch indicates writes outside the
// recording path.
func (s *Service) Reconcile(sessionID string) error {
	sess, err := s.store.GetCostSession(sessionID)
	if err != nil {
		return err
	}
	costUSD, tokens, count, err := s.store.SessionLedgerTotals(sessionID)
	if err != nil {
		return err
	}
	if sess.InteractionCount != count || sess.TotalTokens != tokens {
		return fmt.Errorf("session %s aggregate drift: aggregate %d interactions/%d tokens, ledger %d/%d",
			sessionID, sess.InteractionCount, sess.TotalTokens, count, tokens)
	}
	if diff := sess.TotalCostUSD - costUSD; diff > 1e-9 || diff < -1e-9 {
		return fmt.Errorf("session %s aggregate drift: aggregate $%.9f, ledger $%.9f",
			sessionID, sess.TotalCostUSD, costUSD)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
