package persistence

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrAlertNotFound is returned when a requested alert does not exist.
var ErrAlertNotFound = errors.New("alert not found")

// InsertAlert creates a new advisory record. Alerts start open:
// unacknowledged and unresolved.
func (s *Store) InsertAlert(alert *Alert) error {
	if !IsValidAlertType(alert.AlertType) {
		return fmt.Errorf("invalid alert type %q", alert.AlertType)
	}
	if !IsValidAlertSeverity(alert.Severity) {
		return fmt.Errorf("invalid alert severity %q", alert.Severity)
	}
	if alert.ID == "" {
		alert.ID = GenerateID()
	}

	_, err := s.db.Exec(`
		INSERT INTO cost_alerts (
			id, alert_type, severity, message, threshold_usd, observed_usd,
			session_id, date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, alert.ID, alert.AlertType, alert.Severity, alert.Message,
		alert.ThresholdUSD, alert.ObservedUSD, alert.SessionID, alert.Date)
	if err != nil {
		return fmt.Errorf("failed to insert alert %s: %w", alert.ID, err)
	}
	return nil
}

// GetAlert returns an alert by ID.
func (s *Store) GetAlert(id string) (*Alert, error) {
	row := s.db.QueryRow(`
		SELECT id, alert_type, severity, message, threshold_usd, observed_usd,
		       session_id, date, is_acknowledged, acknowledged_at, acknowledged_by,
		       is_resolved, resolved_at, resolution_note, created_at
		FROM cost_alerts WHERE id = ?
	`, id)
	return scanAlert(row)
}

// OpenAlerts returns unresolved alerts, newest first, optionally filtered by
// severity.
func (s *Store) OpenAlerts(severities ...string) ([]*Alert, error) {
	query := `
		SELECT id, alert_type, severity, message, threshold_usd, observed_usd,
		       session_id, date, is_acknowledged, acknowledged_at, acknowledged_by,
		       is_resolved, resolved_at, resolution_note, created_at
		FROM cost_alerts WHERE is_resolved = 0`
	var args []interface{}
	if len(severities) > 0 {
		query += buildInClause("severity", severities, &args)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query open alerts: %w", err)
	}
	defer func() {
		_ = rows.Close() // Ignore error - operation should not fail due to close error
	}()

	var alerts []*Alert
	for rows.Next() {
		alert, err := scanAlertRows(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return alerts, nil
}

// HasOpenAlert reports whether an unresolved alert of the given type already
// targets the given session or date scope. Used by the monitor to avoid
// duplicate advisories for the same breach.
func (s *Store) HasOpenAlert(alertType string, sessionID, date *string) (bool, error) {
	query := `SELECT COUNT(*) FROM cost_alerts WHERE alert_type = ? AND is_resolved = 0`
	args := []interface{}{alertType}
	if sessionID != nil {
		query += " AND session_id = ?"
		args = append(args, *sessionID)
	}
	if date != nil {
		query += " AND date = ?"
		args = append(args, *date)
	}

	var count int
	if err := s.db.QueryRow(query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check open alerts: %w", err)
	}
	return count > 0, nil
}

// AcknowledgeAlert records who acknowledged an open alert.
func (s *Store) AcknowledgeAlert(id, acknowledgedBy string) error {
	result, err := s.db.Exec(`
		UPDATE cost_alerts
		SET is_acknowledged = 1,
		    acknowledged_at = strftime('%Y-%m-%dT%H:%M:%fZ','now'),
		    acknowledged_by = ?
		WHERE id = ? AND is_resolved = 0
	`, acknowledgedBy, id)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// ResolveAlert closes out an alert with an optional resolution note.
func (s *Store) ResolveAlert(id, note string) error {
	result, err := s.db.Exec(`
		UPDATE cost_alerts
		SET is_resolved = 1,
		    resolved_at = strftime('%Y-%m-%dT%H:%M:%fZ','now'),
		    resolution_note = ?
		WHERE id = ?
	`, note, id)
	if err != nil {
		return fmt.Errorf("failed to resolve alert %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for alert scanning.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAlertFrom(sc scanner) (*Alert, error) {
	var (
		alert                      Alert
		acknowledgedAt, resolvedAt sql.NullString
	)
	err := sc.Scan(&alert.ID, &alert.AlertType, &alert.Severity, &alert.Message,
		&alert.ThresholdUSD, &alert.ObservedUSD, &alert.SessionID, &alert.Date,
		&alert.IsAcknowledged, &acknowledgedAt, &alert.AcknowledgedBy,
		&alert.IsResolved, &resolvedAt, &alert.ResolutionNote, &alert.CreatedAt)
	if err != nil {
		return nil, err
	}
	if acknowledgedAt.Valid {
		if t, parseErr := ParseTime(acknowledgedAt.String); parseErr == nil {
			alert.AcknowledgedAt = &t
		}
	}
	if resolvedAt.Valid {
		if t, parseErr := ParseTime(resolvedAt.String); parseErr == nil {
			alert.ResolvedAt = &t
		}
	}
	return &alert, nil
}

func scanAlert(row *sql.Row) (*Alert, error) {
	alert, err := scanAlertFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}
	return alert, nil
}

func scanAlertRows(rows *sql.Rows) (*Alert, error) {
	alert, err := scanAlertFrom(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}
	return alert, nil
}
