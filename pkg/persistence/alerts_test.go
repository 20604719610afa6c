package persistence

import (
	"errors"
	"testing"
)

func TestAlerts(t *testing.T) {
	t.Run("Lifecycle", func(t *testing.T) {
		store, cleanup := createTestDB(t)
		defer cleanup()

		date := "2025-06-01"
		alert := &Alert{
			AlertType:    AlertDailyLimit,
			Severity:     SeverityWarning,
			Message:      "daily spend at 85% of budget",
			ThresholdUSD: 10,
			ObservedUSD:  8.5,
			Date:         &date,
		}
		if err := store.InsertAlert(alert); err != nil {
			t.Fatalf("Failed to insert alert: %v", err)
		}

		got, err := store.GetAlert(alert.ID)
		if err != nil {
			t.Fatalf("Failed to get alert: %v", err)
		}
		if got.IsAcknowledged || got.IsResolved {
			t.Error("Expected new alert to be open")
		}
		if got.Date == nil || *got.Date != date {
			t.Errorf("Expected date scope %s, got %v", date, got.Date)
		}

		if err := store.AcknowledgeAlert(alert.ID, "operator"); err != nil {
			t.Fatalf("Failed to acknowledge alert: %v", err)
		}
		got, err = store.GetAlert(alert.ID)
		if err != nil {
			t.Fatalf("Failed to get acknowledged alert: %v", err)
		}
		if !got.IsAcknowledged || got.AcknowledgedAt == nil {
			t.Error("Expected acknowledgement to be recorded")
		}
		if got.AcknowledgedBy == nil || *got.AcknowledgedBy != "operator" {
			t.Errorf("Expected acknowledged_by operator, got %v", got.AcknowledgedBy)
		}

		if err := store.ResolveAlert(alert.ID, "budget raised"); err != nil {
			t.Fatalf("Failed to resolve alert: %v", err)
		}
		got, err = store.GetAlert(alert.ID)
		if err != nil {
			t.Fatalf("Failed to get resolved alert: %v", err)
		}
		if !got.IsResolved || got.ResolvedAt == nil {
			t.Error("Expected resolution to be recorded")
		}
		if got.ResolutionNote == nil || *got.ResolutionNote != "budget raised" {
			t.Errorf("Expected resolution note, got %v", got.ResolutionNote)
		}
	})

	t.Run("OpenAlertsFiltering", func(t *testing.T) {
		store, cleanup := createTestDB(t)
		defer cleanup()

		session := "sess-1"
		warning := &Alert{
			AlertType: AlertSessionLimit, Severity: SeverityWarning,
			Message: "session nearing limit", SessionID: &session,
		}
		critical := &Alert{
			AlertType: AlertSpike, Severity: SeverityCritical,
			Message: "spend spike detected",
		}
		for _, a := range []*Alert{warning, critical} {
			if err := store.InsertAlert(a); err != nil {
				t.Fatalf("Failed to insert alert: %v", err)
			}
		}
		if err := store.ResolveAlert(warning.ID, ""); err != nil {
			t.Fatalf("Failed to resolve warning: %v", err)
		}

		open, err := store.OpenAlerts()
		if err != nil {
			t.Fatalf("Failed to list open alerts: %v", err)
		}
		if len(open) != 1 || open[0].ID != critical.ID {
			t.Errorf("Expected only the critical alert open, got %d rows", len(open))
		}

		criticals, err := store.OpenAlerts(SeverityCritical)
		if err != nil {
			t.Fatalf("Failed to filter by severity: %v", err)
		}
		if len(criticals) != 1 {
			t.Errorf("Expected 1 critical alert, got %d", len(criticals))
		}

		infos, err := store.OpenAlerts(SeverityInfo)
		if err != nil {
			t.Fatalf("Failed to filter by severity: %v", err)
		}
		if len(infos) != 0 {
			t.Errorf("Expected no info alerts, got %d", len(infos))
		}
	})

	t.Run("HasOpenAlertScoping", func(t *testing.T) {
		store, cleanup := createTestDB(t)
		defer cleanup()

		date := "2025-06-01"
		if err := store.InsertAlert(&Alert{
			AlertType: AlertDailyLimit, Severity: SeverityCritical,
			Message: "budget exceeded", Date: &date,
		}); err != nil {
			t.Fatalf("Failed to insert alert: %v", err)
		}

		found, err := store.HasOpenAlert(AlertDailyLimit, nil, &date)
		if err != nil {
			t.Fatalf("Failed to check open alerts: %v", err)
		}
		if !found {
			t.Error("Expected open alert for the scoped date")
		}

		otherDate := "2025-06-02"
		found, err = store.HasOpenAlert(AlertDailyLimit, nil, &otherDate)
		if err != nil {
			t.Fatalf("Failed to check open alerts: %v", err)
		}
		if found {
			t.Error("Expected no open alert for a different date")
		}
	})

	t.Run("RejectsInvalidValues", func(t *testing.T) {
		store, cleanup := createTestDB(t)
		defer cleanup()

		if err := store.InsertAlert(&Alert{AlertType: "smoke", Severity: SeverityInfo, Message: "m"}); err == nil {
			t.Error("Expected error for invalid alert type")
		}
		if err := store.InsertAlert(&Alert{AlertType: AlertSpike, Severity: "panic", Message: "m"}); err == nil {
			t.Error("Expected error for invalid severity")
		}
		if err := store.AcknowledgeAlert("missing", "op"); !errors.Is(err, ErrAlertNotFound) {
			t.Errorf("Expected ErrAlertNotFound, got %v", err)
		}
		if err := store.ResolveAlert("missing", ""); !errors.Is(err, ErrAlertNotFound) {
			t.Errorf("Expected ErrAlertNotFound, got %v", err)
		}
	})
}
