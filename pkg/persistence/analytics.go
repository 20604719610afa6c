package persistence

import (
	"database/sql"
	"fmt"
	"time"
)

// RefreshAnalytics rebuilds cost_analytics_mv from the ledger in a single
// transaction: readers see either the previous snapshot or the new one, never
// a partial rebuild. Returns the number of aggregate rows produced.
func (s *Store) RefreshAnalytics() (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // No-op if committed
	}()

	if _, err := tx.Exec(`DELETE FROM cost_analytics_mv`); err != nil {
		return 0, fmt.Errorf("failed to clear analytics table: %w", err)
	}

	result, err := tx.Exec(`
		INSERT INTO cost_analytics_mv (
			date, provider, model, agent_id, interaction_count,
			input_tokens, output_tokens, total_tokens,
			total_cost_usd, avg_cost_usd, refreshed_at
		)
		SELECT substr(created_at, 1, 10) AS date,
		       provider,
		       model,
		       COALESCE(agent_id, '') AS agent_id,
		       COUNT(*),
		       SUM(input_tokens),
		       SUM(output_tokens),
		       SUM(total_tokens),
		       SUM(total_cost_usd),
		       AVG(total_cost_usd),
		       strftime('%Y-%m-%dT%H:%M:%fZ','now')
		FROM cost_tracking
		GROUP BY substr(created_at, 1, 10), provider, model, COALESCE(agent_id, '')
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to rebuild analytics table: %w", err)
	}

	rowCount, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit analytics refresh: %w", err)
	}
	return rowCount, nil
}

// AnalyticsFilter narrows QueryAnalytics results. Nil fields match all rows.
type AnalyticsFilter struct {
	Date     *string `json:"date,omitempty"` // YYYY-MM-DD
	Provider *string `json:"provider,omitempty"`
	Model    *string `json:"model,omitempty"`
	AgentID  *string `json:"agent_id,omitempty"`
	FromDate *string `json:"from_date,omitempty"` // inclusive
	ToDate   *string `json:"to_date,omitempty"`   // inclusive
}

// QueryAnalytics returns precomputed aggregate rows matching the filter,
// ordered by date then provider, model, agent. Results reflect the last
// RefreshAnalytics call, not the live ledger.
func (s *Store) QueryAnalytics(filter *AnalyticsFilter) ([]*AnalyticsRow, error) {
	query := `
		SELECT date, provider, model, agent_id, interaction_count,
		       input_tokens, output_tokens, total_tokens,
		       total_cost_usd, avg_cost_usd, refreshed_at
		FROM cost_analytics_mv WHERE 1=1`
	var args []interface{}

	if filter != nil {
		if filter.Date != nil {
			query += " AND date = ?"
			args = append(args, *filter.Date)
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
		if filter.FromDate != nil {
			query += " AND date >= ?"
			args = append(args, *filter.FromDate)
		}
		if filter.ToDate != nil {
			query += " AND date <= ?"
			args = append(args, *filter.ToDate)
		}
	}
	query += " ORDER BY date ASC, provider ASC, model ASC, agent_id ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query analytics: %w", err)
	}
	defer func() {
		_ = rows.Close() // Ignore error - operation should not fail due to close error
	}()

	var results []*AnalyticsRow
	for rows.Next() {
		row, err := scanAnalyticsRow(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return results, nil
}

// TopModelsByCost returns the costliest (provider, model) aggregates over the
// inclusive date range, summed across dates and agents.
func (s *Store) TopModelsByCost(fromDate, toDate string, limit int) ([]*AnalyticsRow, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT MIN(date), provider, model, '' AS agent_id,
		       SUM(interaction_count),
		       SUM(input_tokens), SUM(output_tokens), SUM(total_tokens),
		       SUM(total_cost_usd),
		       SUM(total_cost_usd) / SUM(interaction_count),
		       MAX(refreshed_at)
		FROM cost_analytics_mv
		WHERE date >= ? AND date <= ?
		GROUP BY provider, model
		ORDER BY SUM(total_cost_usd) DESC
		LIMIT ?
	`, fromDate, toDate, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top models: %w", err)
	}
	defer func() {
		_ = rows.Close() // Ignore error - operation should not fail due to close error
	}()

	var results []*AnalyticsRow
	for rows.Next() {
		// Aggregate expressions lose the DATETIME declared type, so
		// refreshed_at comes back as text here.
		row := &AnalyticsRow{}
		var refreshedAt string
		err := rows.Scan(&row.Date, &row.Provider, &row.Model, &row.AgentID,
			&row.InteractionCount, &row.InputTokens, &row.OutputTokens, &row.TotalTokens,
			&row.TotalCostUSD, &row.AvgCostUSD, &refreshedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analytics row: %w", err)
		}
		if t, parseErr := ParseTime(refreshedAt); parseErr == nil {
			row.RefreshedAt = t
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return results, nil
}

// AnalyticsRefreshedAt returns when the analytics rollup was last rebuilt.
// Returns the zero time when the rollup has never been refreshed.
func (s *Store) AnalyticsRefreshedAt() (time.Time, error) {
	// MAX() loses the DATETIME declared type, so scan as text.
	var refreshedAt sql.NullString
	err := s.db.QueryRow(`SELECT MAX(refreshed_at) FROM cost_analytics_mv`).Scan(&refreshedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read analytics refresh time: %w", err)
	}
	if !refreshedAt.Valid {
		return time.Time{}, nil
	}
	t, err := ParseTime(refreshedAt.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse analytics refresh time: %w", err)
	}
	return t, nil
}

// DailyLedgerTotal sums ledger cost for one calendar date directly from
// cost_tracking, independent of aggregates.
func (s *Store) DailyLedgerTotal(date string) (float64, error) {
	var total float64
	err := s.db.QueryRow(`
		SELECT COALESCE(SUM(total_cost_usd), 0)
		FROM cost_tracking
		WHERE substr(created_at, 1, 10) = ?
	`, date).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to total ledger for date %s: %w", date, err)
	}
	return total, nil
}

// TrailingDailyAverage returns the mean daily spend over the given number of
// days ending the day before the reference date. Days with no spend count as
// zero, so a quiet week keeps the baseline honest. Returns 0 when the window
// is empty.
func (s *Store) TrailingDailyAverage(beforeDate string, days int) (float64, error) {
	if days <= 0 {
		return 0, fmt.Errorf("trailing window must be positive, got %d", days)
	}
	ref, err := time.Parse(DateLayout, beforeDate)
	if err != nil {
		return 0, fmt.Errorf("failed to parse date %q: %w", beforeDate, err)
	}
	windowStart := ref.AddDate(0, 0, -days).Format(DateLayout)

	var total float64
	err = s.db.QueryRow(`
		SELECT COALESCE(SUM(total_cost_usd), 0)
		FROM cost_tracking
		WHERE substr(created_at, 1, 10) >= ? AND substr(created_at, 1, 10) < ?
	`, windowStart, beforeDate).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to total trailing window before %s: %w", beforeDate, err)
	}
	return total / float64(days), nil
}

func scanAnalyticsRow(rows *sql.Rows) (*AnalyticsRow, error) {
	var row AnalyticsRow
	err := rows.Scan(&row.Date, &row.Provider, &row.Model, &row.AgentID,
		&row.InteractionCount, &row.InputTokens, &row.OutputTokens, &row.TotalTokens,
		&row.TotalCostUSD, &row.AvgCostUSD, &row.RefreshedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan analytics row: %w", err)
	}
	return &row, nil
}
