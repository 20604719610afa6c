package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for pricing operations.
var (
	ErrPricingNotFound = errors.New("no pricing entry covers the requested instant")
	ErrPricingOverlap  = errors.New("pricing validity window overlaps an existing active entry")
)

// InsertPricing adds a versioned price point. The new entry's validity window
// must not overlap any existing active, non-deprecated window for the same
// (provider, model); overlapping windows would make "current pricing"
// ambiguous, so they are rejected outright.
func (s *Store) InsertPricing(p *PricingEntry) error {
	if p.Provider == "" || p.Model == "" {
		return fmt.Errorf("pricing entry requires provider and model")
	}
	if p.EffectiveFrom.IsZero() {
		return fmt.Errorf("pricing entry requires effective_from")
	}
	if p.EffectiveTo != nil && !p.EffectiveTo.After(p.EffectiveFrom) {
		return fmt.Errorf("pricing entry effective_to must be after effective_from")
	}
	if p.ID == "" {
		p.ID = GenerateID()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() // Ignore rollback errors
		}
	}()

	if p.IsActive && !p.IsDeprecated {
		// An open-ended window ([from, inf)) overlaps anything at or after
		// from; a bounded window overlaps anything that starts before its end
		// and ends after its start.
		var newTo interface{}
		if p.EffectiveTo != nil {
			newTo = FormatTime(*p.EffectiveTo)
		}
		var count int
		err = tx.QueryRow(`
			SELECT COUNT(*) FROM provider_pricing
			WHERE provider = ? AND model = ?
			  AND is_active = 1 AND is_deprecated = 0
			  AND (? IS NULL OR effective_from < ?)
			  AND (effective_to IS NULL OR effective_to > ?)
		`, p.Provider, p.Model, newTo, newTo, FormatTime(p.EffectiveFrom)).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to check pricing overlap: %w", err)
		}
		if count > 0 {
			err = fmt.Errorf("%w: %s/%s from %s", ErrPricingOverlap,
				p.Provider, p.Model, FormatTime(p.EffectiveFrom))
			return err
		}
	}

	var effectiveTo interface{}
	if p.EffectiveTo != nil {
		effectiveTo = FormatTime(*p.EffectiveTo)
	}
	_, err = tx.Exec(`
		INSERT INTO provider_pricing (
			id, provider, model, input_per_1k_usd, output_per_1k_usd, per_request_usd,
			context_window, is_active, is_deprecated, effective_from, effective_to
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Provider, p.Model, p.InputPer1KUSD, p.OutputPer1KUSD, p.PerRequestUSD,
		p.ContextWindow, p.IsActive, p.IsDeprecated, FormatTime(p.EffectiveFrom), effectiveTo)
	if err != nil {
		return fmt.Errorf("failed to insert pricing %s/%s: %w", p.Provider, p.Model, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pricing insert: %w", err)
	}
	return nil
}

// CurrentPricing returns the single price point covering the given instant
// for a (provider, model) pair. When historical data contains overlapping
// windows (imported from systems that allowed them), the most recent
// effective_from wins.
func (s *Store) CurrentPricing(provider, model string, at time.Time) (*PricingEntry, error) {
	row := s.db.QueryRow(`
		SELECT id, provider, model, input_per_1k_usd, output_per_1k_usd, per_request_usd,
		       context_window, is_active, is_deprecated, effective_from, effective_to, created_at
		FROM provider_pricing
		WHERE provider = ? AND model = ?
		  AND is_active = 1 AND is_deprecated = 0
		  AND effective_from <= ?
		  AND (effective_to IS NULL OR effective_to > ?)
		ORDER BY effective_from DESC
		LIMIT 1
	`, provider, model, FormatTime(at), FormatTime(at))

	entry, err := scanPricing(row)
	if err != nil {
		if errors.Is(err, ErrPricingNotFound) {
			return nil, fmt.Errorf("%w: %s/%s at %s", ErrPricingNotFound, provider, model, FormatTime(at))
		}
		return nil, err
	}
	return entry, nil
}

// ListCurrentPricing returns every price point valid right now, via the
// current_pricing view.
func (s *Store) ListCurrentPricing() ([]*PricingEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, provider, model, input_per_1k_usd, output_per_1k_usd, per_request_usd,
		       context_window, is_active, is_deprecated, effective_from, effective_to, created_at
		FROM current_pricing
		ORDER BY provider, model
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query current pricing: %w", err)
	}
	defer func() {
		_ = rows.Close() // Ignore error - operation should not fail due to close error
	}()

	var entries []*PricingEntry
	for rows.Next() {
		entry := &PricingEntry{}
		var effectiveTo sql.NullString
		err := rows.Scan(&entry.ID, &entry.Provider, &entry.Model,
			&entry.InputPer1KUSD, &entry.OutputPer1KUSD, &entry.PerRequestUSD,
			&entry.ContextWindow, &entry.IsActive, &entry.IsDeprecated,
			&entry.EffectiveFrom, &effectiveTo, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pricing entry: %w", err)
		}
		if effectiveTo.Valid {
			if t, parseErr := ParseTime(effectiveTo.String); parseErr == nil {
				entry.EffectiveTo = &t
			}
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return entries, nil
}

// DeprecatePricing marks a price point deprecated; it no longer resolves.
func (s *Store) DeprecatePricing(id string) error {
	result, err := s.db.Exec(`UPDATE provider_pricing SET is_deprecated = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to deprecate pricing %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPricingNotFound
	}
	return nil
}

// ClosePricingWindow sets effective_to on an open-ended entry, typically just
// before inserting its replacement.
func (s *Store) ClosePricingWindow(id string, at time.Time) error {
	result, err := s.db.Exec(`
		UPDATE provider_pricing SET effective_to = ? WHERE id = ? AND effective_to IS NULL
	`, FormatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to close pricing window %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPricingNotFound
	}
	return nil
}

// SeedPricing inserts point-in-time price points, skipping any that already
// exist. Safe to call on every startup.
func (s *Store) SeedPricing(entries []*PricingEntry) error {
	for _, p := range entries {
		if p.ID == "" {
			p.ID = GenerateID()
		}
		var effectiveTo interface{}
		if p.EffectiveTo != nil {
			effectiveTo = FormatTime(*p.EffectiveTo)
		}
		_, err := s.db.Exec(`
			INSERT OR IGNORE INTO provider_pricing (
				id, provider, model, input_per_1k_usd, output_per_1k_usd, per_request_usd,
				context_window, is_active, is_deprecated, effective_from, effective_to
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, p.ID, p.Provider, p.Model, p.InputPer1KUSD, p.OutputPer1KUSD, p.PerRequestUSD,
			p.ContextWindow, p.IsActive, p.IsDeprecated, FormatTime(p.EffectiveFrom), effectiveTo)
		if err != nil {
			return fmt.Errorf("failed to seed pricing %s/%s: %w", p.Provider, p.Model, err)
		}
	}
	return nil
}

// scanPricing scans a pricing row into a PricingEntry.
func scanPricing(row *sql.Row) (*PricingEntry, error) {
	entry := &PricingEntry{}
	var effectiveTo sql.NullString
	err := row.Scan(&entry.ID, &entry.Provider, &entry.Model,
		&entry.InputPer1KUSD, &entry.OutputPer1KUSD, &entry.PerRequestUSD,
		&entry.ContextWindow, &entry.IsActive, &entry.IsDeprecated,
		&entry.EffectiveFrom, &effectiveTo, &entry.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPricingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan pricing entry: %w", err)
	}
	if effectiveTo.Valid {
		if t, parseErr := ParseTime(effectiveTo.String); parseErr == nil {
			entry.EffectiveTo = &t
		}
	}
	return entry, nil
}
