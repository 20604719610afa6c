package persistence

import (
	"testing"
	"time"
)

func TestRefreshAnalytics(t *testing.T) {
	store, cleanup := createTestDB(t)
	defer cleanup()

	day := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	agent := "agent-1"

	// Two gpt-4o calls on the same day by the same agent collapse into one
	// aggregate row.
	for i := 0; i < 2; i++ {
		rec := testInteraction("sess-mv")
		rec.AgentID = &agent
		rec.CreatedAt = day.Add(time.Duration(i) * time.Hour)
		if err := store.InsertInteraction(rec, 0); err != nil {
			t.Fatalf("Failed to insert interaction: %v", err)
		}
	}
	// A different model on the same day gets its own row.
	other := testInteraction("sess-mv")
	other.Model = "gpt-4o-mini"
	other.CreatedAt = day
	if err := store.InsertInteraction(other, 0); err != nil {
		t.Fatalf("Failed to insert interaction: %v", err)
	}
	// A row with no agent groups under the empty agent key.
	noAgent := testInteraction("sess-mv")
	noAgent.CreatedAt = day
	if err := store.InsertInteraction(noAgent, 0); err != nil {
		t.Fatalf("Failed to insert interaction: %v", err)
	}

	rowCount, err := store.RefreshAnalytics()
	if err != nil {
		t.Fatalf("Failed to refresh analytics: %v", err)
	}
	if rowCount != 3 {
		t.Errorf("Expected 3 aggregate rows, got %d", rowCount)
	}

	date := "2025-06-01"
	rows, err := store.QueryAnalytics(&AnalyticsFilter{Date: &date, Model: strPtr("gpt-4o"), AgentID: &agent})
	if err != nil {
		t.Fatalf("Failed to query analytics: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row for gpt-4o/agent-1, got %d", len(rows))
	}
	row := rows[0]
	if row.InteractionCount != 2 {
		t.Errorf("Expected 2 interactions, got %d", row.InteractionCount)
	}
	if row.InputTokens != 2000 || row.OutputTokens != 1000 || row.TotalTokens != 3000 {
		t.Errorf("Expected 2000/1000/3000 tokens, got %d/%d/%d",
			row.InputTokens, row.OutputTokens, row.TotalTokens)
	}
	if diff := row.TotalCostUSD - 0.016; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Expected total cost 0.016, got %f", row.TotalCostUSD)
	}
	if diff := row.AvgCostUSD - 0.008; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Expected avg cost 0.008, got %f", row.AvgCostUSD)
	}
	if row.RefreshedAt.IsZero() {
		t.Error("Expected refreshed_at to be set")
	}

	empty := ""
	rows, err = store.QueryAnalytics(&AnalyticsFilter{Date: &date, Model: strPtr("gpt-4o"), AgentID: &empty})
	if err != nil {
		t.Fatalf("Failed to query agentless analytics: %v", err)
	}
	if len(rows) != 1 || rows[0].InteractionCount != 1 {
		t.Fatalf("Expected 1 agentless aggregate row, got %d", len(rows))
	}

	// A second refresh replaces the snapshot rather than appending.
	rowCount, err = store.RefreshAnalytics()
	if err != nil {
		t.Fatalf("Failed to re-refresh analytics: %v", err)
	}
	if rowCount != 3 {
		t.Errorf("Expected 3 aggregate rows after re-refresh, got %d", rowCount)
	}
	all, err := store.QueryAnalytics(nil)
	if err != nil {
		t.Fatalf("Failed to query all analytics: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 rows total, got %d", len(all))
	}
}

func TestAnalyticsRefreshedAt(t *testing.T) {
	store, cleanup := createTestDB(t)
	defer cleanup()

	// Never refreshed: zero time, no error.
	refreshedAt, err := store.AnalyticsRefreshedAt()
	if err != nil {
		t.Fatalf("Failed to read refresh time: %v", err)
	}
	if !refreshedAt.IsZero() {
		t.Errorf("Expected zero time before first refresh, got %v", refreshedAt)
	}

	rec := testInteraction("sess-fresh")
	rec.CreatedAt = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	if err := store.InsertInteraction(rec, 0); err != nil {
		t.Fatalf("Failed to insert interaction: %v", err)
	}
	before := time.Now().UTC().Add(-time.Minute)
	if _, err := store.RefreshAnalytics(); err != nil {
		t.Fatalf("Failed to refresh analytics: %v", err)
	}

	refreshedAt, err = store.AnalyticsRefreshedAt()
	if err != nil {
		t.Fatalf("Failed to read refresh time: %v", err)
	}
	if refreshedAt.Before(before) {
		t.Errorf("Expected refresh time after %v, got %v", before, refreshedAt)
	}
}

func TestTopModelsByCost(t *testing.T) {
	store, cleanup := createTestDB(t)
	defer cleanup()

	day := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cheap := testInteraction("sess-top")
	cheap.Model = "gpt-4o-mini"
	cheap.InputCostUSD = 0.0001
	cheap.OutputCostUSD = 0.0002
	cheap.CreatedAt = day
	if err := store.InsertInteraction(cheap, 0); err != nil {
		t.Fatalf("Failed to insert cheap interaction: %v", err)
	}

	expensive := testInteraction("sess-top")
	expensive.Provider = "anthropic"
	expensive.Model = "claude-opus-4-1"
	expensive.InputCostUSD = 0.15
	expensive.OutputCostUSD = 0.75
	expensive.CreatedAt = day
	if err := store.InsertInteraction(expensive, 0); err != nil {
		t.Fatalf("Failed to insert expensive interaction: %v", err)
	}

	if _, err := store.RefreshAnalytics(); err != nil {
		t.Fatalf("Failed to refresh analytics: %v", err)
	}

	top, err := store.TopModelsByCost("2025-06-01", "2025-06-01", 1)
	if err != nil {
		t.Fatalf("Failed to query top models: %v", err)
	}
	if len(top) != 1 {
		t.Fatalf("Expected 1 top model, got %d", len(top))
	}
	if top[0].Model != "claude-opus-4-1" {
		t.Errorf("Expected claude-opus-4-1 on top, got %q", top[0].Model)
	}
}

func TestTrailingDailyAverage(t *testing.T) {
	store, cleanup := createTestDB(t)
	defer cleanup()

	ref := time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC)

	// $1/day on three of the seven trailing days; quiet days count as zero.
	for _, offset := range []int{-1, -3, -5} {
		rec := testInteraction("sess-trail")
		rec.InputCostUSD = 0.4
		rec.OutputCostUSD = 0.6
		rec.CreatedAt = ref.AddDate(0, 0, offset).Add(12 * time.Hour)
		if err := store.InsertInteraction(rec, 0); err != nil {
			t.Fatalf("Failed to insert interaction: %v", err)
		}
	}
	// Spend on the reference date itself is excluded from the baseline.
	today := testInteraction("sess-trail")
	today.InputCostUSD = 50
	today.CreatedAt = ref.Add(6 * time.Hour)
	if err := store.InsertInteraction(today, 0); err != nil {
		t.Fatalf("Failed to insert interaction: %v", err)
	}

	avg, err := store.TrailingDailyAverage("2025-06-08", 7)
	if err != nil {
		t.Fatalf("Failed to compute trailing average: %v", err)
	}
	expected := 3.0 / 7.0
	if diff := avg - expected; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Expected trailing average %f, got %f", expected, avg)
	}

	// Empty window.
	avg, err = store.TrailingDailyAverage("2020-01-01", 7)
	if err != nil {
		t.Fatalf("Failed on empty window: %v", err)
	}
	if avg != 0 {
		t.Errorf("Expected 0 for empty window, got %f", avg)
	}

	if _, err := store.TrailingDailyAverage("2025-06-08", 0); err == nil {
		t.Error("Expected error for non-positive window")
	}
}
