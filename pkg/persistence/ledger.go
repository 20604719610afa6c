package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for ledger and aggregate lookups.
var (
	ErrSessionNotFound = errors.New("cost session not found")
	ErrSummaryNotFound = errors.New("daily summary not found")
)

// Store provides methods for database operations.
type Store struct {
	db *sql.DB
}

// NewStore creates a new Store instance.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying connection for packages that use the
// free-function operation style (orchestration records).
func (s *Store) DB() *sql.DB {
	return s.db
}

// InsertInteraction appends one ledger row and, in the same transaction,
// creates or increments the session aggregate and the daily summary for the
// row's date. This keeps the aggregates exactly consistent with the ledger:
// there is no path that writes one without the other.
//
// Total tokens and total cost are recomputed from their parts before the
// write, so the ledger invariant total = input + output holds for every row.
func (s *Store) InsertInteraction(rec *Interaction, dailyBudgetUSD float64) error {
	if rec.SessionID == "" {
		return fmt.Errorf("interaction requires a session_id")
	}
	if rec.ConversationID == "" {
		return fmt.Errorf("interaction requires a conversation_id")
	}
	if rec.Provider == "" || rec.Model == "" {
		return fmt.Errorf("interaction requires provider and model")
	}
	if rec.ID == "" {
		rec.ID = GenerateID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.TotalTokens = rec.InputTokens + rec.OutputTokens
	rec.TotalCostUSD = rec.InputCostUSD + rec.OutputCostUSD

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() // Ignore rollback errors
		}
	}()

	_, err = tx.Exec(`
		INSERT INTO cost_tracking (
			id, session_id, conversation_id, turn_id, agent_id, provider, model,
			input_tokens, output_tokens, total_tokens,
			input_cost_usd, output_cost_usd, total_cost_usd,
			request_metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.SessionID, rec.ConversationID, rec.TurnID, rec.AgentID,
		rec.Provider, rec.Model, rec.InputTokens, rec.OutputTokens, rec.TotalTokens,
		rec.InputCostUSD, rec.OutputCostUSD, rec.TotalCostUSD,
		rec.RequestMetadata, FormatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert interaction %s: %w", rec.ID, err)
	}

	if err = applySessionAggregate(tx, rec); err != nil {
		return err
	}

	if err = applyDailyAggregate(tx, rec, dailyBudgetUSD); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit interaction transaction: %w", err)
	}

	return nil
}

// applySessionAggregate creates the session row on the first interaction of a
// session and increments it afterwards.
func applySessionAggregate(tx *sql.Tx, rec *Interaction) error {
	var (
		id                              string
		totalCost                       float64
		totalTokens, interactionCount   int64
		providerJSON, modelJSON, agJSON sql.NullString
	)
	err := tx.QueryRow(`
		SELECT id, total_cost_usd, total_tokens, interaction_count,
		       provider_breakdown, model_breakdown, agent_breakdown
		FROM cost_sessions WHERE session_id = ?
	`, rec.SessionID).Scan(&id, &totalCost, &totalTokens, &interactionCount,
		&providerJSON, &modelJSON, &agJSON)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		provider := NewBreakdown()
		model := NewBreakdown()
		agent := NewBreakdown()
		provider.Add(rec.Provider, rec.TotalCostUSD, rec.TotalTokens)
		model.Add(rec.Model, rec.TotalCostUSD, rec.TotalTokens)
		if rec.AgentID != nil && *rec.AgentID != "" {
			agent.Add(*rec.AgentID, rec.TotalCostUSD, rec.TotalTokens)
		}
		providerStr, mErr := MarshalBreakdown(provider)
		if mErr != nil {
			return mErr
		}
		modelStr, mErr := MarshalBreakdown(model)
		if mErr != nil {
			return mErr
		}
		agentStr, mErr := MarshalBreakdown(agent)
		if mErr != nil {
			return mErr
		}
		_, err = tx.Exec(`
			INSERT INTO cost_sessions (
				id, session_id, status, total_cost_usd, total_tokens, interaction_count,
				provider_breakdown, model_breakdown, agent_breakdown, started_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, GenerateID(), rec.SessionID, SessionOpen, rec.TotalCostUSD, rec.TotalTokens, 1,
			providerStr, modelStr, agentStr, FormatTime(rec.CreatedAt), FormatTime(rec.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to create session aggregate for %s: %w", rec.SessionID, err)
		}
		return nil

	case err != nil:
		return fmt.Errorf("failed to read session aggregate for %s: %w", rec.SessionID, err)
	}

	provider, err := UnmarshalBreakdown(providerJSON.String)
	if err != nil {
		return err
	}
	model, err := UnmarshalBreakdown(modelJSON.String)
	if err != nil {
		return err
	}
	agent, err := UnmarshalBreakdown(agJSON.String)
	if err != nil {
		return err
	}
	provider.Add(rec.Provider, rec.TotalCostUSD, rec.TotalTokens)
	model.Add(rec.Model, rec.TotalCostUSD, rec.TotalTokens)
	if rec.AgentID != nil && *rec.AgentID != "" {
		agent.Add(*rec.AgentID, rec.TotalCostUSD, rec.TotalTokens)
	}
	providerStr, err := MarshalBreakdown(provider)
	if err != nil {
		return err
	}
	modelStr, err := MarshalBreakdown(model)
	if err != nil {
		return err
	}
	agentStr, err := MarshalBreakdown(agent)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		UPDATE cost_sessions SET
			total_cost_usd = ?,
			total_tokens = ?,
			interaction_count = ?,
			provider_breakdown = ?,
			model_breakdown = ?,
			agent_breakdown = ?,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE id = ?
	`, totalCost+rec.TotalCostUSD, totalTokens+rec.TotalTokens, interactionCount+1,
		providerStr, modelStr, agentStr, id)
	if err != nil {
		return fmt.Errorf("failed to update session aggregate for %s: %w", rec.SessionID, err)
	}
	return nil
}

// applyDailyAggregate creates or increments the daily_cost_summary row for
// the interaction's calendar date.
func applyDailyAggregate(tx *sql.Tx, rec *Interaction, dailyBudgetUSD float64) error {
	date := rec.CreatedAt.UTC().Format(DateLayout)

	var (
		id                            string
		totalCost                     float64
		totalTokens, interactionCount int64
		providerJSON                  sql.NullString
	)
	err := tx.QueryRow(`
		SELECT id, total_cost_usd, total_tokens, interaction_count, provider_breakdown
		FROM daily_cost_summary WHERE date = ?
	`, date).Scan(&id, &totalCost, &totalTokens, &interactionCount, &providerJSON)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		provider := NewBreakdown()
		provider.Add(rec.Provider, rec.TotalCostUSD, rec.TotalTokens)
		providerStr, mErr := MarshalBreakdown(provider)
		if mErr != nil {
			return mErr
		}
		_, err = tx.Exec(`
			INSERT INTO daily_cost_summary (
				id, date, total_cost_usd, total_tokens, interaction_count,
				provider_breakdown, daily_budget_usd, budget_utilization_pct, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		`, GenerateID(), date, rec.TotalCostUSD, rec.TotalTokens, 1,
			providerStr, dailyBudgetUSD, utilizationPct(rec.TotalCostUSD, dailyBudgetUSD))
		if err != nil {
			return fmt.Errorf("failed to create daily summary for %s: %w", date, err)
		}
		return nil

	case err != nil:
		return fmt.Errorf("failed to read daily summary for %s: %w", date, err)
	}

	provider, err := UnmarshalBreakdown(providerJSON.String)
	if err != nil {
		return err
	}
	provider.Add(rec.Provider, rec.TotalCostUSD, rec.TotalTokens)
	providerStr, err := MarshalBreakdown(provider)
	if err != nil {
		return err
	}

	newTotal := totalCost + rec.TotalCostUSD
	_, err = tx.Exec(`
		UPDATE daily_cost_summary SET
			total_cost_usd = ?,
			total_tokens = ?,
			interaction_count = ?,
			provider_breakdown = ?,
			daily_budget_usd = ?,
			budget_utilization_pct = ?,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE id = ?
	`, newTotal, totalTokens+rec.TotalTokens, interactionCount+1,
		providerStr, dailyBudgetUSD, utilizationPct(newTotal, dailyBudgetUSD), id)
	if err != nil {
		return fmt.Errorf("failed to update daily summary for %s: %w", date, err)
	}
	return nil
}

// utilizationPct returns spend as a percentage of budget, or 0 when no budget
// is configured.
func utilizationPct(totalUSD, budgetUSD float64) float64 {
	if budgetUSD <= 0 {
		return 0
	}
	return totalUSD / budgetUSD * 100
}

// GetCostSession returns the aggregate row for a session.
// Returns ErrSessionNotFound if no interaction has been recorded for it.
func (s *Store) GetCostSession(sessionID string) (*CostSession, error) {
	row := s.db.QueryRow(`
		SELECT id, session_id, status, total_cost_usd, total_tokens, interaction_count,
		       provider_breakdown, model_breakdown, agent_breakdown,
		       started_at, ended_at, updated_at
		FROM cost_sessions WHERE session_id = ?
	`, sessionID)

	var (
		sess                            CostSession
		providerJSON, modelJSON, agJSON sql.NullString
		endedAt                         sql.NullString
	)
	err := row.Scan(&sess.ID, &sess.SessionID, &sess.Status, &sess.TotalCostUSD,
		&sess.TotalTokens, &sess.InteractionCount,
		&providerJSON, &modelJSON, &agJSON,
		&sess.StartedAt, &endedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cost session %s: %w", sessionID, err)
	}

	if sess.ProviderBreakdown, err = UnmarshalBreakdown(providerJSON.String); err != nil {
		return nil, err
	}
	if sess.ModelBreakdown, err = UnmarshalBreakdown(modelJSON.String); err != nil {
		return nil, err
	}
	if sess.AgentBreakdown, err = UnmarshalBreakdown(agJSON.String); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		if t, parseErr := ParseTime(endedAt.String); parseErr == nil {
			sess.EndedAt = &t
		}
	}
	return &sess, nil
}

// CloseSession marks a session ended. Idempotent for already-closed sessions.
func (s *Store) CloseSession(sessionID string) error {
	result, err := s.db.Exec(`
		UPDATE cost_sessions
		SET status = ?, ended_at = strftime('%Y-%m-%dT%H:%M:%fZ','now'),
		    updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE session_id = ?
	`, SessionClosed, sessionID)
	if err != nil {
		return fmt.Errorf("failed to close session %s: %w", sessionID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// GetDailySummary returns the aggregate for one calendar date (YYYY-MM-DD).
func (s *Store) GetDailySummary(date string) (*DailySummary, error) {
	row := s.db.QueryRow(`
		SELECT id, date, total_cost_usd, total_tokens, interaction_count,
		       provider_breakdown, daily_budget_usd, budget_utilization_pct, updated_at
		FROM daily_cost_summary WHERE date = ?
	`, date)

	var (
		summary      DailySummary
		providerJSON sql.NullString
	)
	err := row.Scan(&summary.ID, &summary.Date, &summary.TotalCostUSD,
		&summary.TotalTokens, &summary.InteractionCount, &providerJSON,
		&summary.DailyBudgetUSD, &summary.BudgetUtilizationPct, &summary.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSummaryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily summary for %s: %w", date, err)
	}

	if summary.ProviderBreakdown, err = UnmarshalBreakdown(providerJSON.String); err != nil {
		return nil, err
	}
	return &summary, nil
}

// GetDailySummaryRange returns the aggregates for dates in [fromDate, toDate]
// inclusive, ascending. Dates with no spend have no row.
func (s *Store) GetDailySummaryRange(fromDate, toDate string) ([]*DailySummary, error) {
	rows, err := s.db.Query(`
		SELECT id, date, total_cost_usd, total_tokens, interaction_count,
		       provider_breakdown, daily_budget_usd, budget_utilization_pct, updated_at
		FROM daily_cost_summary
		WHERE date >= ? AND date <= ?
		ORDER BY date ASC
	`, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily summaries: %w", err)
	}
	defer func() {
		_ = rows.Close() // Ignore error - operation should not fail due to close error
	}()

	var summaries []*DailySummary
	for rows.Next() {
		var (
			summary      DailySummary
			providerJSON sql.NullString
		)
		if err := rows.Scan(&summary.ID, &summary.Date, &summary.TotalCostUSD,
			&summary.TotalTokens, &summary.InteractionCount, &providerJSON,
			&summary.DailyBudgetUSD, &summary.BudgetUtilizationPct, &summary.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan daily summary: %w", err)
		}
		if summary.ProviderBreakdown, err = UnmarshalBreakdown(providerJSON.String); err != nil {
			return nil, err
		}
		summaries = append(summaries, &summary)
	}
	return summaries, rows.Err()
}

// QueryInteractions returns ledger rows matching the given filter criteria,
// oldest first.
func (s *Store) QueryInteractions(filter *InteractionFilter) ([]*Interaction, error) {
	query := `
		SELECT id, session_id, conversation_id, turn_id, agent_id, provider, model,
		       input_tokens, output_tokens, total_tokens,
		       input_cost_usd, output_cost_usd, total_cost_usd,
		       request_metadata, created_at
		FROM cost_tracking WHERE 1=1`
	var args []interface{}

	if filter.SessionID != nil {
		query += " AND session_id = ?"
		args = append(args, *filter.SessionID)
	}
	if filter.ConversationID != nil {
		query += " AND conversation_id = ?"
		args = append(args, *filter.ConversationID)
	}
	if filter.Provider != nil {
		query += " AND provider = ?"
		args = append(args, *filter.Provider)
	}
	if filter.Model != nil {
		query += " AND model = ?"
		args = append(args, *filter.Model)
	}
	if filter.AgentID != nil {
		query += " AND agent_id = ?"
		args = append(args, *filter.AgentID)
	}
	if filter.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, FormatTime(*filter.Since))
	}
	if filter.Until != nil {
		query += " AND created_at < ?"
		args = append(args, FormatTime(*filter.Until))
	}

	query += " ORDER BY created_at ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer func() {
		_ = rows.Close() // Ignore error - operation should not fail due to close error
	}()

	var interactions []*Interaction
	for rows.Next() {
		rec := &Interaction{}
		var metadata sql.NullString
		err := rows.Scan(
			&rec.ID, &rec.SessionID, &rec.ConversationID, &rec.TurnID, &rec.AgentID,
			&rec.Provider, &rec.Model,
			&rec.InputTokens, &rec.OutputTokens, &rec.TotalTokens,
			&rec.InputCostUSD, &rec.OutputCostUSD, &rec.TotalCostUSD,
			&metadata, &rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		rec.RequestMetadata = metadata.String
		interactions = append(interactions, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return interactions, nil
}

// SessionLedgerTotals recomputes a session's totals directly from the ledger.
// Used by the alert monitor and by reconciliation checks; under normal
// operation it matches the cost_sessions aggregate exactly.
func (s *Store) SessionLedgerTotals(sessionID string) (costUSD float64, tokens, count int64, err error) {
	err = s.db.QueryRow(`
		SELECT COALESCE(SUM(total_cost_usd), 0), COALESCE(SUM(total_tokens), 0), COUNT(*)
		FROM cost_tracking WHERE session_id = ?
	`, sessionID).Scan(&costUSD, &tokens, &count)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to total ledger for session %s: %w", sessionID, err)
	}
	return costUSD, tokens, count, nil
}

// buildInClause renders a "col IN (?,...)" fragment for the given values.
func buildInClause(column string, values []string, args *[]interface{}) string {
	placeholders := strings.Repeat("?,", len(values))
	placeholders = placeholders[:len(placeholders)-1] // Remove trailing comma
	for _, v := range values {
		*args = append(*args, v)
	}
	return fmt.Sprintf(" AND %s IN (%s)", column, placeholders)
}
