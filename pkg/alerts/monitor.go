// Package alerts watches ledger aggregates for threshold breaches and
// records advisory alerts. Alerts never block recording; spend past a limit
// still lands in the ledger.
package alerts

import (
	"errors"
	"fmt"

	"costtrack/pkg/logx"
	"costtrack/pkg/persistence"
)

// Thresholds configures the monitor. Zero values disable the corresponding
// check.
type Thresholds struct {
	DailyBudgetUSD  float64 `json:"daily_budget_usd"`
	SessionLimitUSD float64 `json:"session_limit_usd"`
	SpikeMultiplier float64 `json:"spike_multiplier"`
	SpikeWindowDays int     `json:"spike_window_days"`
}

// warnFraction is the share of a budget at which a warning fires, ahead of
// the critical alert at the budget itself.
const warnFraction = 0.8

// Monitor evaluates thresholds against the maintained aggregates.
type Monitor struct {
	store      *persistence.Store
	logger     *logx.Logger
	thresholds Thresholds
}

// NewMonitor creates a monitor with the given thresholds.
func NewMonitor(store *persistence.Store, thresholds Thresholds) *Monitor {
	return &Monitor{
		store:      store,
		logger:     logx.NewLogger("alerts"),
		thresholds: thresholds,
	}
}

// CheckDaily evaluates the daily budget for one calendar date. At 80% of
// budget a warning fires; at or past the budget, a critical alert. At most
// one open alert exists per date: a breach already alerted on stays silent
// until the alert is resolved.
func (m *Monitor) CheckDaily(date string) (*persistence.Alert, error) {
	if m.thresholds.DailyBudgetUSD <= 0 {
		return nil, nil //nolint:nilnil // no check configured
	}

	summary, err := m.store.GetDailySummary(date)
	if errors.Is(err, persistence.ErrSummaryNotFound) {
		return nil, nil //nolint:nilnil // no spend, nothing to alert on
	}
	if err != nil {
		return nil, err
	}

	budget := m.thresholds.DailyBudgetUSD
	var severity, message string
	switch {
	case summary.TotalCostUSD >= budget:
		severity = persistence.SeverityCritical
		message = fmt.Sprintf("daily spend $%.4f has reached the $%.2f budget", summary.TotalCostUSD, budget)
	case summary.TotalCostUSD >= budget*warnFraction:
		severity = persistence.SeverityWarning
		message = fmt.Sprintf("daily spend $%.4f is at %.0f%% of the $%.2f budget",
			summary.TotalCostUSD, summary.TotalCostUSD/budget*100, budget)
	default:
		return nil, nil //nolint:nilnil // under threshold
	}

	return m.raise(&persistence.Alert{
		AlertType:    persistence.AlertDailyLimit,
		Severity:     severity,
		Message:      message,
		ThresholdUSD: budget,
		ObservedUSD:  summary.TotalCostUSD,
		Date:         &date,
	}, nil, &date)
}

// CheckSession evaluates the per-session spend limit.
func (m *Monitor) CheckSession(sessionID string) (*persistence.Alert, error) {
	if m.thresholds.SessionLimitUSD <= 0 {
		return nil, nil //nolint:nilnil // no check configured
	}

	sess, err := m.store.GetCostSession(sessionID)
	if errors.Is(err, persistence.ErrSessionNotFound) {
		return nil, nil //nolint:nilnil // no spend, nothing to alert on
	}
	if err != nil {
		return nil, err
	}

	limit := m.thresholds.SessionLimitUSD
	var severity, message string
	switch {
	case sess.TotalCostUSD >= limit:
		severity = persistence.SeverityCritical
		message = fmt.Sprintf("session %s spend $%.4f has reached the $%.2f limit", sessionID, sess.TotalCostUSD, limit)
	case sess.TotalCostUSD >= limit*warnFraction:
		severity = persistence.SeverityWarning
		message = fmt.Sprintf("session %s spend $%.4f is at %.0f%% of the $%.2f limit",
			sessionID, sess.TotalCostUSD, sess.TotalCostUSD/limit*100, limit)
	default:
		return nil, nil //nolint:nilnil // under threshold
	}

	return m.raise(&persistence.Alert{
		AlertType:    persistence.AlertSessionLimit,
		Severity:     severity,
		Message:      message,
		ThresholdUSD: limit,
		ObservedUSD:  sess.TotalCostUSD,
		SessionID:    &sessionID,
	}, &sessionID, nil)
}

// CheckSpike compares a date's spend against the trailing daily average. A
// day without history (average zero) never spikes.
func (m *Monitor) CheckSpike(date string) (*persistence.Alert, error) {
	if m.thresholds.SpikeMultiplier <= 0 || m.thresholds.SpikeWindowDays <= 0 {
		return nil, nil //nolint:nilnil // no check configured
	}

	spend, err := m.store.DailyLedgerTotal(date)
	if err != nil {
		return nil, err
	}
	if spend <= 0 {
		return nil, nil //nolint:nilnil // nothing spent
	}

	average, err := m.store.TrailingDailyAverage(date, m.thresholds.SpikeWindowDays)
	if err != nil {
		return nil, err
	}
	threshold := average * m.thresholds.SpikeMultiplier
	if average <= 0 || spend < threshold {
		return nil, nil //nolint:nilnil // under threshold
	}

	return m.raise(&persistence.Alert{
		AlertType: persistence.AlertSpike,
		Severity:  persistence.SeverityCritical,
		Message: fmt.Sprintf("spend $%.4f on %s is %.1fx the trailing %d-day average of $%.4f",
			spend, date, spend/average, m.thresholds.SpikeWindowDays, average),
		ThresholdUSD: threshold,
		ObservedUSD:  spend,
		Date:         &date,
	}, nil, &date)
}

// CheckAll runs the daily and spike checks for a date and returns the alerts
// raised. Session checks run separately on session activity.
func (m *Monitor) CheckAll(date string) ([]*persistence.Alert, error) {
	var raised []*persistence.Alert

	daily, err := m.CheckDaily(date)
	if err != nil {
		return nil, err
	}
	if daily != nil {
		raised = append(raised, daily)
	}

	spike, err := m.CheckSpike(date)
	if err != nil {
		return nil, err
	}
	if spike != nil {
		raised = append(raised, spike)
	}

	return raised, nil
}

// raise inserts the alert unless one of the same type is already open for
// the same scope.
func (m *Monitor) raise(alert *persistence.Alert, sessionID, date *string) (*persistence.Alert, error) {
	open, err := m.store.HasOpenAlert(alert.AlertType, sessionID, date)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, nil //nolint:nilnil // breach already alerted on
	}

	if err := m.store.InsertAlert(alert); err != nil {
		return nil, err
	}
	m.logger.Warn("%s alert raised: %s", alert.Severity, alert.Message)
	return alert, nil
}

// Acknowledge records who acknowledged an alert.
func (m *Monitor) Acknowledge(alertID, acknowledgedBy string) error {
	return m.store.AcknowledgeAlert(alertID, acknowledgedBy)
}

// Resolve closes out an alert with an optional note.
func (m *Monitor) Resolve(alertID, note string) error {
	return m.store.ResolveAlert(alertID, note)
}

// Open lists unresolved alerts, optionally filtered by severity.
func (m *Monitor) Open(severities ...string) ([]*persistence.Alert, error) {
	return m.store.OpenAlerts(severities...)
}
