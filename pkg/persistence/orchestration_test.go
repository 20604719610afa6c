package persistence

import (
	"database/sql"
	"errors"
	"testing"
	"time"
)

func createTestOrchestration(t *testing.T, db *sql.DB, projectID string) *Orchestration {
	t.Helper()
	orch := &Orchestration{
		ProjectID:           projectID,
		Enabled:             true,
		PrimaryAgent:        "agent-lead",
		CoordinationPattern: PatternHierarchical,
	}
	if err := CreateOrchestration(db, orch); err != nil {
		t.Fatalf("Failed to create orchestration: %v", err)
	}
	return orch
}

func TestCreateOrchestration(t *testing.T) {
	t.Run("SeedsJourneyStages", func(t *testing.T) {
		store, cleanup := createTestDB(t)
		defer cleanup()

		orch := createTestOrchestration(t, store.DB(), "proj-1")

		if orch.Status != OrchestrationInitializing {
			t.Errorf("Expected initializing status, got %q", orch.Status)
		}
		if orch.CurrentStage != StageDiscovery {
			t.Errorf("Expected discovery stage, got %q", orch.CurrentStage)
		}

		stages, err := GetStages(store.DB(), orch.ID)
		if err != nil {
			t.Fatalf("Failed to get stages: %v", err)
		}
		if len(stages) != 6 {
			t.Fatalf("Expected 6 journey stages, got %d", len(stages))
		}

		expected := JourneyStageOrder()
		for i, stage := range stages {
			if stage.StageName != expected[i] {
				t.Errorf("Stage %d: expected %q, got %q", i, expected[i], stage.StageName)
			}
			if stage.StageOrder != i+1 {
				t.Errorf("Stage %q: expected order %d, got %d", stage.StageName, i+1, stage.StageOrder)
			}
		}

		if stages[0].Status != StageStatusActive {
			t.Errorf("Expected discovery active, got %q", stages[0].Status)
		}
		if stages[0].StartedAt == nil {
			t.Error("Expected discovery started_at to be set")
		}
		for _, stage := range stages[1:] {
			if stage.Status != StageStatusPending {
				t.Errorf("Expected stage %q pending, got %q", stage.StageName, stage.Status)
			}
		}
	})

	t.Run("EnforcesProjectUniqueness", func(t *testing.T) {
		store, cleanup := createTestDB(t)
		defer cleanup()

		createTestOrchestration(t, store.DB(), "proj-unique")

		dup := &Orchestration{ProjectID: "proj-unique"}
		if err := CreateOrchestration(store.DB(), dup); err == nil {
			t.Error("Expected error for duplicate project_id")
		}
	})

	t.Run("RejectsInvalidPattern", func(t *testing.T) {
		store, cleanup := createTestDB(t)
		defer cleanup()

		orch := &Orchestration{ProjectID: "proj-bad", CoordinationPattern: "anarchic"}
		if err := CreateOrchestration(store.DB(), orch); err == nil {
			t.Error("Expected error for invalid coordination pattern")
		}
	})
}

func TestGetOrchestration(t *testing.T) {
	store, cleanup := createTestDB(t)
	defer cleanup()

	orch := createTestOrchestration(t, store.DB(), "proj-get")

	byID, err := GetOrchestration(store.DB(), orch.ID)
	if err != nil {
		t.Fatalf("Failed to get orchestration by ID: %v", err)
	}
	if byID.ProjectID != "proj-get" {
		t.Errorf("Expected project proj-get, got %q", byID.ProjectID)
	}

	byProject, err := GetOrchestrationByProject(store.DB(), "proj-get")
	if err != nil {
		t.Fatalf("Failed to get orchestration by project: %v", err)
	}
	if byProject.ID != orch.ID {
		t.Errorf("Expected ID %s, got %s", orch.ID, byProject.ID)
	}

	if _, err := GetOrchestration(store.DB(), "missing"); !errors.Is(err, ErrOrchestrationNotFound) {
		t.Errorf("Expected ErrOrchestrationNotFound, got %v", err)
	}
}

func TestUpdateOrchestrationScores(t *testing.T) {
	store, cleanup := createTestDB(t)
	defer cleanup()

	orch := createTestOrchestration(t, store.DB(), "proj-scores")

	if err := UpdateOrchestrationScores(store.DB(), orch.ID, 0.8, 0.7, 0.6, 0.9); err != nil {
		t.Fatalf("Failed to update scores: %v", err)
	}

	updated, err := GetOrchestration(store.DB(), orch.ID)
	if err != nil {
		t.Fatalf("Failed to get orchestration: %v", err)
	}
	if updated.EfficiencyScore != 0.8 || updated.SatisfactionScore != 0.9 {
		t.Errorf("Scores not persisted: %+v", updated)
	}

	if err := UpdateOrchestrationScores(store.DB(), orch.ID, 1.5, 0, 0, 0); err == nil {
		t.Error("Expected error for score out of range")
	}
}

func TestDeleteOrchestrationCascades(t *testing.T) {
	store, cleanup := createTestDB(t)
	defer cleanup()

	orch := createTestOrchestration(t, store.DB(), "proj-cascade")

	if err := UpsertAssignment(store.DB(), &AgentAssignment{
		OrchestrationID: orch.ID, AgentID: "agent-1", Role: RoleContributor,
	}); err != nil {
		t.Fatalf("Failed to upsert assignment: %v", err)
	}
	if err := InsertTouchpoint(store.DB(), &Touchpoint{
		OrchestrationID: orch.ID, TouchpointType: TouchpointStatusUpdate, Title: "kickoff",
	}); err != nil {
		t.Fatalf("Failed to insert touchpoint: %v", err)
	}
	conv := &Conversation{OrchestrationID: orch.ID, Name: "planning"}
	if err := InsertConversation(store.DB(), conv); err != nil {
		t.Fatalf("Failed to insert conversation: %v", err)
	}
	window := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if err := UpsertCollaborationMetric(store.DB(), &CollaborationMetric{
		OrchestrationID: orch.ID, AgentA: "agent-1", AgentB: "agent-2",
		SynergyScore: 0.5, WindowStart: window, WindowEnd: window.AddDate(0, 0, 7),
	}); err != nil {
		t.Fatalf("Failed to upsert collaboration metric: %v", err)
	}

	if err := DeleteOrchestration(store.DB(), orch.ID); err != nil {
		t.Fatalf("Failed to delete orchestration: %v", err)
	}

	childTables := []string{
		"project_agent_assignments",
		"project_journey_stages",
		"project_touchpoints",
		"project_conversations",
		"agent_collaboration_metrics",
	}
	for _, table := range childTables {
		var count int
		err := store.DB().QueryRow(
			"SELECT COUNT(*) FROM "+table+" WHERE orchestration_id = ?", orch.ID,
		).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to count %s: %v", table, err)
		}
		if count != 0 {
			t.Errorf("Expected %s rows to cascade, found %d", table, count)
		}
	}
}

func TestAgentAssignments(t *testing.T) {
	t.Run("UpsertPreservesUsage", func(t *testing.T) {
		store, cleanup := createTestDB(t)
		defer cleanup()

		orch := createTestOrchestration(t, store.DB(), "proj-assign")

		assignment := &AgentAssignment{OrchestrationID: orch.ID, AgentID: "agent-1", Role: RoleContributor}
		if err := UpsertAssignment(store.DB(), assignment); err != nil {
			t.Fatalf("Failed to upsert assignment: %v", err)
		}
		if err := AddAssignmentUsage(store.DB(), orch.ID, "agent-1", 1.25, 5000, 3, 2); err != nil {
			t.Fatalf("Failed to add usage: %v", err)
		}
		if err := DeactivateAssignment(store.DB(), orch.ID, "agent-1"); err != nil {
			t.Fatalf("Failed to deactivate assignment: %v", err)
		}

		// Re-assigning the same agent reactivates the row with its history.
		again := &AgentAssignment{OrchestrationID: orch.ID, AgentID: "agent-1", Role: RoleReviewer}
		if err := UpsertAssignment(store.DB(), again); err != nil {
			t.Fatalf("Failed to re-upsert assignment: %v", err)
		}

		got, err := GetAssignment(store.DB(), orch.ID, "agent-1")
		if err != nil {
			t.Fatalf("Failed to get assignment: %v", err)
		}
		if !got.Active {
			t.Error("Expected reactivated assignment")
		}
		if got.Role != RoleReviewer {
			t.Errorf("Expected role reviewer, got %q", got.Role)
		}
		if got.TotalCostUSD != 1.25 || got.TotalTokens != 5000 {
			t.Errorf("Expected preserved usage, got cost %f tokens %d", got.TotalCostUSD, got.TotalTokens)
		}
		if got.TasksAssigned != 3 || got.TasksCompleted != 2 {
			t.Errorf("Expected preserved task counters, got %d/%d", got.TasksCompleted, got.TasksAssigned)
		}

		var rowCount int
		err = store.DB().QueryRow(`SELECT COUNT(*) FROM project_agent_assignments WHERE orchestration_id = ?`, orch.ID).Scan(&rowCount)
		if err != nil {
			t.Fatalf("Failed to count assignments: %v", err)
		}
		if rowCount != 1 {
			t.Errorf("Expected single assignment row per (orchestration, agent), got %d", rowCount)
		}
	})

	t.Run("ActiveOnlyFilter", func(t *testing.T) {
		store, cleanup := createTestDB(t)
		defer cleanup()

		orch := createTestOrchestration(t, store.DB(), "proj-filter")

		for _, agent := range []string{"agent-1", "agent-2"} {
			if err := UpsertAssignment(store.DB(), &AgentAssignment{
				OrchestrationID: orch.ID, AgentID: agent, Role: RoleContributor,
			}); err != nil {
				t.Fatalf("Failed to upsert %s: %v", agent, err)
			}
		}
		if err := DeactivateAssignment(store.DB(), orch.ID, "agent-2"); err != nil {
			t.Fatalf("Failed to deactivate: %v", err)
		}

		active, err := GetAssignments(store.DB(), orch.ID, true)
		if err != nil {
			t.Fatalf("Failed to get active assignments: %v", err)
		}
		if len(active) != 1 || active[0].AgentID != "agent-1" {
			t.Errorf("Expected only agent-1 active, got %d rows", len(active))
		}

		all, err := GetAssignments(store.DB(), orch.ID, false)
		if err != nil {
			t.Fatalf("Failed to get all assignments: %v", err)
		}
		if len(all) != 2 {
			t.Errorf("Expected 2 assignment rows, got %d", len(all))
		}
	})
}

func TestJourneyStageTimestamps(t *testing.T) {
	store, cleanup := createTestDB(t)
	defer cleanup()

	orch := createTestOrchestration(t, store.DB(), "proj-stages")

	if err := UpdateStageStatus(store.DB(), orch.ID, StagePlanning, StageStatusActive); err != nil {
		t.Fatalf("Failed to activate planning: %v", err)
	}
	stage, err := GetStage(store.DB(), orch.ID, StagePlanning)
	if err != nil {
		t.Fatalf("Failed to get planning stage: %v", err)
	}
	if stage.StartedAt == nil {
		t.Fatal("Expected started_at after activation")
	}
	firstStart := *stage.StartedAt

	if err := UpdateStageStatus(store.DB(), orch.ID, StagePlanning, StageStatusCompleted); err != nil {
		t.Fatalf("Failed to complete planning: %v", err)
	}
	stage, err = GetStage(store.DB(), orch.ID, StagePlanning)
	if err != nil {
		t.Fatalf("Failed to get completed stage: %v", err)
	}
	if stage.CompletedAt == nil {
		t.Error("Expected completed_at after completion")
	}
	if !stage.StartedAt.Equal(firstStart) {
		t.Error("Expected started_at to be preserved on later transitions")
	}

	quality := 0.85
	if err := SetStageScores(store.DB(), orch.ID, StagePlanning, &quality, nil); err != nil {
		t.Fatalf("Failed to set stage scores: %v", err)
	}
	stage, err = GetStage(store.DB(), orch.ID, StagePlanning)
	if err != nil {
		t.Fatalf("Failed to get scored stage: %v", err)
	}
	if stage.QualityScore == nil || *stage.QualityScore != 0.85 {
		t.Errorf("Expected quality 0.85, got %v", stage.QualityScore)
	}
	if stage.SatisfactionScore != nil {
		t.Errorf("Expected nil satisfaction, got %v", stage.SatisfactionScore)
	}

	if _, err := GetStage(store.DB(), orch.ID, "no-such-stage"); !errors.Is(err, ErrStageNotFound) {
		t.Errorf("Expected ErrStageNotFound, got %v", err)
	}
}

func TestTouchpoints(t *testing.T) {
	store, cleanup := createTestDB(t)
	defer cleanup()

	orch := createTestOrchestration(t, store.DB(), "proj-touch")

	stage := StageDiscovery
	sentiment := 0.4
	early := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	late := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	if err := InsertTouchpoint(store.DB(), &Touchpoint{
		OrchestrationID: orch.ID,
		TouchpointType:  TouchpointClientCheckin,
		Title:           "weekly check-in",
		StageName:       &stage,
		SentimentScore:  &sentiment,
		OccurredAt:      early,
	}); err != nil {
		t.Fatalf("Failed to insert touchpoint: %v", err)
	}
	if err := InsertTouchpoint(store.DB(), &Touchpoint{
		OrchestrationID: orch.ID,
		TouchpointType:  TouchpointEscalation,
		Title:           "blocked on access",
		LinkedAgents:    `["agent-1","agent-2"]`,
		OccurredAt:      late,
	}); err != nil {
		t.Fatalf("Failed to insert escalation: %v", err)
	}

	all, err := ListTouchpoints(store.DB(), orch.ID, nil, 0)
	if err != nil {
		t.Fatalf("Failed to list touchpoints: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 touchpoints, got %d", len(all))
	}
	if all[0].Title != "blocked on access" {
		t.Errorf("Expected newest first, got %q", all[0].Title)
	}

	escType := TouchpointEscalation
	escalations, err := ListTouchpoints(store.DB(), orch.ID, &escType, 0)
	if err != nil {
		t.Fatalf("Failed to filter touchpoints: %v", err)
	}
	if len(escalations) != 1 {
		t.Fatalf("Expected 1 escalation, got %d", len(escalations))
	}
	if escalations[0].LinkedAgents != `["agent-1","agent-2"]` {
		t.Errorf("Expected linked agents to round-trip, got %q", escalations[0].LinkedAgents)
	}

	if err := InsertTouchpoint(store.DB(), &Touchpoint{
		OrchestrationID: orch.ID, TouchpointType: "carrier_pigeon", Title: "nope",
	}); err == nil {
		t.Error("Expected error for invalid touchpoint type")
	}
}

func TestConversations(t *testing.T) {
	store, cleanup := createTestDB(t)
	defer cleanup()

	orch := createTestOrchestration(t, store.DB(), "proj-conv")

	conv := &Conversation{OrchestrationID: orch.ID, Name: "design review"}
	if err := InsertConversation(store.DB(), conv); err != nil {
		t.Fatalf("Failed to insert conversation: %v", err)
	}

	if err := AddConversationUsage(store.DB(), conv.ID, 10, 5, 12000, 0.36); err != nil {
		t.Fatalf("Failed to add conversation usage: %v", err)
	}
	if err := AddConversationUsage(store.DB(), conv.ID, 4, 2, 3000, 0.09); err != nil {
		t.Fatalf("Failed to add more usage: %v", err)
	}

	got, err := GetConversationRecord(store.DB(), conv.ID)
	if err != nil {
		t.Fatalf("Failed to get conversation: %v", err)
	}
	if got.MessageCount != 14 || got.TurnCount != 7 {
		t.Errorf("Expected 14 messages / 7 turns, got %d/%d", got.MessageCount, got.TurnCount)
	}
	if got.TotalTokens != 15000 {
		t.Errorf("Expected 15000 tokens, got %d", got.TotalTokens)
	}
	if got.Status != ConversationActive {
		t.Errorf("Expected active conversation, got %q", got.Status)
	}
	if got.EndedAt != nil {
		t.Error("Expected no ended_at on active conversation")
	}

	if err := UpdateConversationStatus(store.DB(), conv.ID, ConversationCompleted); err != nil {
		t.Fatalf("Failed to complete conversation: %v", err)
	}
	got, err = GetConversationRecord(store.DB(), conv.ID)
	if err != nil {
		t.Fatalf("Failed to get completed conversation: %v", err)
	}
	if got.EndedAt == nil {
		t.Error("Expected ended_at on completed conversation")
	}

	if _, err := GetConversationRecord(store.DB(), "missing"); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("Expected ErrConversationNotFound, got %v", err)
	}
}

func TestCollaborationMetrics(t *testing.T) {
	store, cleanup := createTestDB(t)
	defer cleanup()

	orch := createTestOrchestration(t, store.DB(), "proj-collab")
	window := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// Arguments in the wrong order get canonicalized.
	metric := &CollaborationMetric{
		OrchestrationID: orch.ID,
		AgentA:          "zeta",
		AgentB:          "alpha",
		SynergyScore:    0.6,
		ConflictScore:   0.1,
		JointTasks:      4,
		JointSuccesses:  3,
		WindowStart:     window,
		WindowEnd:       window.AddDate(0, 0, 7),
	}
	if err := UpsertCollaborationMetric(store.DB(), metric); err != nil {
		t.Fatalf("Failed to upsert collaboration metric: %v", err)
	}
	if metric.AgentA != "alpha" || metric.AgentB != "zeta" {
		t.Errorf("Expected canonical pair ordering, got %q/%q", metric.AgentA, metric.AgentB)
	}

	// Recomputing the same pair and window replaces the row.
	update := &CollaborationMetric{
		OrchestrationID: orch.ID,
		AgentA:          "alpha",
		AgentB:          "zeta",
		SynergyScore:    0.8,
		ConflictScore:   0.05,
		JointTasks:      6,
		JointSuccesses:  5,
		WindowStart:     window,
		WindowEnd:       window.AddDate(0, 0, 7),
	}
	if err := UpsertCollaborationMetric(store.DB(), update); err != nil {
		t.Fatalf("Failed to update collaboration metric: %v", err)
	}

	metrics, err := ListCollaborationMetrics(store.DB(), orch.ID)
	if err != nil {
		t.Fatalf("Failed to list collaboration metrics: %v", err)
	}
	if len(metrics) != 1 {
		t.Fatalf("Expected 1 metric row, got %d", len(metrics))
	}
	if metrics[0].SynergyScore != 0.8 || metrics[0].JointTasks != 6 {
		t.Errorf("Expected updated metric, got %+v", metrics[0])
	}

	if err := UpsertCollaborationMetric(store.DB(), &CollaborationMetric{
		OrchestrationID: orch.ID, AgentA: "solo", AgentB: "solo",
		WindowStart: window, WindowEnd: window,
	}); err == nil {
		t.Error("Expected error for identical agents")
	}
}
