package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for orchestration lookups.
var (
	ErrOrchestrationNotFound = errors.New("orchestration not found")
	ErrAssignmentNotFound    = errors.New("agent assignment not found")
	ErrStageNotFound         = errors.New("journey stage not found")
	ErrConversationNotFound  = errors.New("conversation not found")
)

// CreateOrchestration creates the aggregate root for a project together with
// its six journey stage rows, all in one transaction. The first stage starts
// active; the rest start pending.
func CreateOrchestration(db *sql.DB, orch *Orchestration) error {
	if orch.ProjectID == "" {
		return fmt.Errorf("project_id is required")
	}
	if orch.CoordinationPattern == "" {
		orch.CoordinationPattern = PatternHierarchical
	}
	if !IsValidCoordinationPattern(orch.CoordinationPattern) {
		return fmt.Errorf("invalid coordination pattern %q", orch.CoordinationPattern)
	}
	if orch.ID == "" {
		orch.ID = GenerateID()
	}
	if orch.Status == "" {
		orch.Status = OrchestrationInitializing
	}
	if orch.CurrentStage == "" {
		orch.CurrentStage = StageDiscovery
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // No-op if committed
	}()

	_, err = tx.Exec(`
		INSERT INTO project_orchestrations (
			id, project_id, orchestration_enabled, primary_agent,
			coordination_pattern, current_stage, orchestration_status
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, orch.ID, orch.ProjectID, orch.Enabled, orch.PrimaryAgent,
		orch.CoordinationPattern, orch.CurrentStage, orch.Status)
	if err != nil {
		return fmt.Errorf("failed to insert orchestration for project %s: %w", orch.ProjectID, err)
	}

	for i, stage := range JourneyStageOrder() {
		status := StageStatusPending
		var startedAt interface{}
		if i == 0 {
			status = StageStatusActive
			startedAt = FormatTime(time.Now())
		}
		_, err = tx.Exec(`
			INSERT INTO project_journey_stages (
				id, orchestration_id, stage_name, stage_order, status, started_at
			) VALUES (?, ?, ?, ?, ?, ?)
		`, GenerateID(), orch.ID, stage, i+1, status, startedAt)
		if err != nil {
			return fmt.Errorf("failed to seed journey stage %s: %w", stage, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit orchestration create: %w", err)
	}
	return nil
}

// GetOrchestration returns an orchestration by its ID.
func GetOrchestration(db *sql.DB, id string) (*Orchestration, error) {
	return getOrchestrationBy(db, "id", id)
}

// GetOrchestrationByProject returns the orchestration for a project.
func GetOrchestrationByProject(db *sql.DB, projectID string) (*Orchestration, error) {
	return getOrchestrationBy(db, "project_id", projectID)
}

func getOrchestrationBy(db *sql.DB, column, value string) (*Orchestration, error) {
	var orch Orchestration
	err := db.QueryRow(fmt.Sprintf(`
		SELECT id, project_id, orchestration_enabled, primary_agent,
		       coordination_pattern, current_stage, orchestration_status,
		       efficiency_score, collaboration_score, optimization_score,
		       satisfaction_score, created_at, updated_at
		FROM project_orchestrations WHERE %s = ?
	`, column), value).Scan(&orch.ID, &orch.ProjectID, &orch.Enabled, &orch.PrimaryAgent,
		&orch.CoordinationPattern, &orch.CurrentStage, &orch.Status,
		&orch.EfficiencyScore, &orch.CollaborationScore, &orch.OptimizationScore,
		&orch.SatisfactionScore, &orch.CreatedAt, &orch.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrchestrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get orchestration: %w", err)
	}
	return &orch, nil
}

// UpdateOrchestrationStatus sets the root status. Transition legality is
// enforced by the orchestration service, not here.
func UpdateOrchestrationStatus(db *sql.DB, id, status string) error {
	if !IsValidOrchestrationStatus(status) {
		return fmt.Errorf("invalid orchestration status %q", status)
	}
	return updateOrchestrationColumn(db, id, "orchestration_status", status)
}

// SetCurrentStage updates the root's current stage pointer.
func SetCurrentStage(db *sql.DB, id, stage string) error {
	if !IsValidJourneyStage(stage) {
		return fmt.Errorf("invalid journey stage %q", stage)
	}
	return updateOrchestrationColumn(db, id, "current_stage", stage)
}

// SetPrimaryAgent updates the designated lead agent.
func SetPrimaryAgent(db *sql.DB, id, agentID string) error {
	return updateOrchestrationColumn(db, id, "primary_agent", agentID)
}

// SetOrchestrationEnabled toggles orchestration for the project.
func SetOrchestrationEnabled(db *sql.DB, id string, enabled bool) error {
	return updateOrchestrationColumn(db, id, "orchestration_enabled", enabled)
}

func updateOrchestrationColumn(db *sql.DB, id, column string, value interface{}) error {
	result, err := db.Exec(fmt.Sprintf(`
		UPDATE project_orchestrations
		SET %s = ?, updated_at = strftime('%%Y-%%m-%%dT%%H:%%M:%%fZ','now')
		WHERE id = ?
	`, column), value, id)
	if err != nil {
		return fmt.Errorf("failed to update orchestration %s: %w", id, err)
	}
	return requireOneRow(result, ErrOrchestrationNotFound)
}

// UpdateOrchestrationScores replaces the four root score fields.
// Scores must be within [0, 1]; the schema enforces the same range.
func UpdateOrchestrationScores(db *sql.DB, id string, efficiency, collaboration, optimization, satisfaction float64) error {
	for _, score := range []float64{efficiency, collaboration, optimization, satisfaction} {
		if score < 0 || score > 1 {
			return fmt.Errorf("score %f out of range [0,1]", score)
		}
	}
	result, err := db.Exec(`
		UPDATE project_orchestrations
		SET efficiency_score = ?, collaboration_score = ?, optimization_score = ?,
		    satisfaction_score = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE id = ?
	`, efficiency, collaboration, optimization, satisfaction, id)
	if err != nil {
		return fmt.Errorf("failed to update orchestration scores: %w", err)
	}
	return requireOneRow(result, ErrOrchestrationNotFound)
}

// DeleteOrchestration removes the root row. Assignments, stages, touchpoints,
// conversations, and collaboration metrics cascade via foreign keys.
func DeleteOrchestration(db *sql.DB, id string) error {
	result, err := db.Exec(`DELETE FROM project_orchestrations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete orchestration %s: %w", id, err)
	}
	return requireOneRow(result, ErrOrchestrationNotFound)
}

// UpsertAssignment creates or reactivates an agent assignment. Role changes
// on re-assignment are applied; accumulated usage and scores are preserved.
func UpsertAssignment(db *sql.DB, assignment *AgentAssignment) error {
	if !IsValidAgentRole(assignment.Role) {
		return fmt.Errorf("invalid agent role %q", assignment.Role)
	}
	if assignment.ID == "" {
		assignment.ID = GenerateID()
	}
	_, err := db.Exec(`
		INSERT INTO project_agent_assignments (id, orchestration_id, agent_id, role, active)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT (orchestration_id, agent_id) DO UPDATE SET
			role = excluded.role,
			active = 1,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
	`, assignment.ID, assignment.OrchestrationID, assignment.AgentID, assignment.Role)
	if err != nil {
		return fmt.Errorf("failed to upsert assignment for agent %s: %w", assignment.AgentID, err)
	}
	return nil
}

// DeactivateAssignment marks an assignment inactive. History stays intact.
func DeactivateAssignment(db *sql.DB, orchestrationID, agentID string) error {
	result, err := db.Exec(`
		UPDATE project_agent_assignments
		SET active = 0, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE orchestration_id = ? AND agent_id = ?
	`, orchestrationID, agentID)
	if err != nil {
		return fmt.Errorf("failed to deactivate assignment for agent %s: %w", agentID, err)
	}
	return requireOneRow(result, ErrAssignmentNotFound)
}

// AddAssignmentUsage accumulates cost, tokens, and task counters onto an
// assignment row.
func AddAssignmentUsage(db *sql.DB, orchestrationID, agentID string, costUSD float64, tokens, tasksAssigned, tasksCompleted int64) error {
	result, err := db.Exec(`
		UPDATE project_agent_assignments
		SET total_cost_usd = total_cost_usd + ?,
		    total_tokens = total_tokens + ?,
		    tasks_assigned = tasks_assigned + ?,
		    tasks_completed = tasks_completed + ?,
		    updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE orchestration_id = ? AND agent_id = ?
	`, costUSD, tokens, tasksAssigned, tasksCompleted, orchestrationID, agentID)
	if err != nil {
		return fmt.Errorf("failed to add usage for agent %s: %w", agentID, err)
	}
	return requireOneRow(result, ErrAssignmentNotFound)
}

// UpdateAssignmentScores replaces the four per-agent score fields.
func UpdateAssignmentScores(db *sql.DB, orchestrationID, agentID string, task, efficiency, collaboration, quality float64) error {
	for _, score := range []float64{task, efficiency, collaboration, quality} {
		if score < 0 || score > 1 {
			return fmt.Errorf("score %f out of range [0,1]", score)
		}
	}
	result, err := db.Exec(`
		UPDATE project_agent_assignments
		SET task_score = ?, efficiency_score = ?, collaboration_score = ?,
		    quality_score = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE orchestration_id = ? AND agent_id = ?
	`, task, efficiency, collaboration, quality, orchestrationID, agentID)
	if err != nil {
		return fmt.Errorf("failed to update scores for agent %s: %w", agentID, err)
	}
	return requireOneRow(result, ErrAssignmentNotFound)
}

// GetAssignment returns a single assignment by its (orchestration, agent) key.
func GetAssignment(db *sql.DB, orchestrationID, agentID string) (*AgentAssignment, error) {
	var a AgentAssignment
	err := db.QueryRow(`
		SELECT id, orchestration_id, agent_id, role, task_score, efficiency_score,
		       collaboration_score, quality_score, tasks_assigned, tasks_completed,
		       total_cost_usd, total_tokens, active, assigned_at, updated_at
		FROM project_agent_assignments
		WHERE orchestration_id = ? AND agent_id = ?
	`, orchestrationID, agentID).Scan(&a.ID, &a.OrchestrationID, &a.AgentID, &a.Role,
		&a.TaskScore, &a.EfficiencyScore, &a.CollaborationScore, &a.QualityScore,
		&a.TasksAssigned, &a.TasksCompleted, &a.TotalCostUSD, &a.TotalTokens,
		&a.Active, &a.AssignedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAssignmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return &a, nil
}

// GetAssignments returns assignments for an orchestration, optionally only
// active ones, ordered by assignment time.
func GetAssignments(db *sql.DB, orchestrationID string, activeOnly bool) ([]*AgentAssignment, error) {
	query := `
		SELECT id, orchestration_id, agent_id, role, task_score, efficiency_score,
		       collaboration_score, quality_score, tasks_assigned, tasks_completed,
		       total_cost_usd, total_tokens, active, assigned_at, updated_at
		FROM project_agent_assignments
		WHERE orchestration_id = ?`
	if activeOnly {
		query += " AND active = 1"
	}
	query += " ORDER BY assigned_at ASC"

	rows, err := db.Query(query, orchestrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer func() {
		_ = rows.Close() // Ignore error - operation should not fail due to close error
	}()

	var assignments []*AgentAssignment
	for rows.Next() {
		var a AgentAssignment
		err := rows.Scan(&a.ID, &a.OrchestrationID, &a.AgentID, &a.Role,
			&a.TaskScore, &a.EfficiencyScore, &a.CollaborationScore, &a.QualityScore,
			&a.TasksAssigned, &a.TasksCompleted, &a.TotalCostUSD, &a.TotalTokens,
			&a.Active, &a.AssignedAt, &a.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return assignments, nil
}

// GetStages returns all six journey stage rows for an orchestration in
// lifecycle order.
func GetStages(db *sql.DB, orchestrationID string) ([]*JourneyStage, error) {
	rows, err := db.Query(`
		SELECT id, orchestration_id, stage_name, stage_order, status,
		       started_at, completed_at, deliverables, quality_score, satisfaction_score
		FROM project_journey_stages
		WHERE orchestration_id = ?
		ORDER BY stage_order ASC
	`, orchestrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query journey stages: %w", err)
	}
	defer func() {
		_ = rows.Close() // Ignore error - operation should not fail due to close error
	}()

	var stages []*JourneyStage
	for rows.Next() {
		stage, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return stages, nil
}

// GetStage returns one journey stage row.
func GetStage(db *sql.DB, orchestrationID, stageName string) (*JourneyStage, error) {
	rows, err := db.Query(`
		SELECT id, orchestration_id, stage_name, stage_order, status,
		       started_at, completed_at, deliverables, quality_score, satisfaction_score
		FROM project_journey_stages
		WHERE orchestration_id = ? AND stage_name = ?
	`, orchestrationID, stageName)
	if err != nil {
		return nil, fmt.Errorf("failed to query journey stage: %w", err)
	}
	defer func() {
		_ = rows.Close() // Ignore error - operation should not fail due to close error
	}()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("row iteration error: %w", err)
		}
		return nil, ErrStageNotFound
	}
	return scanStage(rows)
}

func scanStage(rows *sql.Rows) (*JourneyStage, error) {
	var (
		stage                  JourneyStage
		startedAt, completedAt sql.NullString
		deliverables           sql.NullString
	)
	err := rows.Scan(&stage.ID, &stage.OrchestrationID, &stage.StageName,
		&stage.StageOrder, &stage.Status, &startedAt, &completedAt,
		&deliverables, &stage.QualityScore, &stage.SatisfactionScore)
	if err != nil {
		return nil, fmt.Errorf("failed to scan journey stage: %w", err)
	}
	if startedAt.Valid {
		if t, parseErr := ParseTime(startedAt.String); parseErr == nil {
			stage.StartedAt = &t
		}
	}
	if completedAt.Valid {
		if t, parseErr := ParseTime(completedAt.String); parseErr == nil {
			stage.CompletedAt = &t
		}
	}
	stage.Deliverables = deliverables.String
	return &stage, nil
}

// UpdateStageStatus sets a stage's status and maintains its timestamps:
// entering active stamps started_at (first time only), entering completed or
// skipped stamps completed_at. Transition legality is enforced by the
// orchestration service.
func UpdateStageStatus(db *sql.DB, orchestrationID, stageName, status string) error {
	if !IsValidStageStatus(status) {
		return fmt.Errorf("invalid stage status %q", status)
	}

	query := `
		UPDATE project_journey_stages
		SET status = ?`
	switch status {
	case StageStatusActive:
		query += `, started_at = COALESCE(started_at, strftime('%Y-%m-%dT%H:%M:%fZ','now'))`
	case StageStatusCompleted, StageStatusSkipped:
		query += `, completed_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')`
	}
	query += ` WHERE orchestration_id = ? AND stage_name = ?`

	result, err := db.Exec(query, status, orchestrationID, stageName)
	if err != nil {
		return fmt.Errorf("failed to update stage %s: %w", stageName, err)
	}
	return requireOneRow(result, ErrStageNotFound)
}

// AdvanceJourney completes one stage and moves the orchestration's
// current-stage pointer to the next, in a single transaction so a partial
// advance never persists. activateNext activates the target stage; pass
// false when it is already active.
func AdvanceJourney(db *sql.DB, orchestrationID, fromStage, toStage string, activateNext bool) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin advance transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // No-op if committed
	}()

	result, err := tx.Exec(`
		UPDATE project_journey_stages
		SET status = ?, completed_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE orchestration_id = ? AND stage_name = ?
	`, StageStatusCompleted, orchestrationID, fromStage)
	if err != nil {
		return fmt.Errorf("failed to complete stage %s: %w", fromStage, err)
	}
	if err := requireOneRow(result, ErrStageNotFound); err != nil {
		return err
	}

	if activateNext {
		result, err = tx.Exec(`
			UPDATE project_journey_stages
			SET status = ?, started_at = COALESCE(started_at, strftime('%Y-%m-%dT%H:%M:%fZ','now'))
			WHERE orchestration_id = ? AND stage_name = ?
		`, StageStatusActive, orchestrationID, toStage)
		if err != nil {
			return fmt.Errorf("failed to activate stage %s: %w", toStage, err)
		}
		if err := requireOneRow(result, ErrStageNotFound); err != nil {
			return err
		}
	}

	result, err = tx.Exec(`
		UPDATE project_orchestrations
		SET current_stage = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE id = ?
	`, toStage, orchestrationID)
	if err != nil {
		return fmt.Errorf("failed to update orchestration %s: %w", orchestrationID, err)
	}
	if err := requireOneRow(result, ErrOrchestrationNotFound); err != nil {
		return err
	}

	return tx.Commit()
}

// SetStageScores records quality and satisfaction for a stage. Either score
// may be nil to leave it unset.
func SetStageScores(db *sql.DB, orchestrationID, stageName string, quality, satisfaction *float64) error {
	result, err := db.Exec(`
		UPDATE project_journey_stages
		SET quality_score = ?, satisfaction_score = ?
		WHERE orchestration_id = ? AND stage_name = ?
	`, quality, satisfaction, orchestrationID, stageName)
	if err != nil {
		return fmt.Errorf("failed to set scores for stage %s: %w", stageName, err)
	}
	return requireOneRow(result, ErrStageNotFound)
}

// SetStageDeliverables replaces the deliverables JSON blob for a stage.
func SetStageDeliverables(db *sql.DB, orchestrationID, stageName, deliverables string) error {
	result, err := db.Exec(`
		UPDATE project_journey_stages
		SET deliverables = ?
		WHERE orchestration_id = ? AND stage_name = ?
	`, deliverables, orchestrationID, stageName)
	if err != nil {
		return fmt.Errorf("failed to set deliverables for stage %s: %w", stageName, err)
	}
	return requireOneRow(result, ErrStageNotFound)
}

// InsertTouchpoint appends one interaction event. Touchpoints are immutable.
func InsertTouchpoint(db *sql.DB, tp *Touchpoint) error {
	if !IsValidTouchpointType(tp.TouchpointType) {
		return fmt.Errorf("invalid touchpoint type %q", tp.TouchpointType)
	}
	if tp.Title == "" {
		return fmt.Errorf("touchpoint title is required")
	}
	if tp.StageName != nil && !IsValidJourneyStage(*tp.StageName) {
		return fmt.Errorf("invalid journey stage %q", *tp.StageName)
	}
	if tp.ID == "" {
		tp.ID = GenerateID()
	}

	var occurredAt interface{}
	if !tp.OccurredAt.IsZero() {
		occurredAt = FormatTime(tp.OccurredAt)
	}

	_, err := db.Exec(`
		INSERT INTO project_touchpoints (
			id, orchestration_id, touchpoint_type, title, summary, stage_name,
			sentiment_score, satisfaction_score, productivity_score,
			linked_agents, linked_tasks, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			COALESCE(?, strftime('%Y-%m-%dT%H:%M:%fZ','now')))
	`, tp.ID, tp.OrchestrationID, tp.TouchpointType, tp.Title, tp.Summary,
		tp.StageName, tp.SentimentScore, tp.SatisfactionScore, tp.ProductivityScore,
		nullIfEmpty(tp.LinkedAgents), nullIfEmpty(tp.LinkedTasks), occurredAt)
	if err != nil {
		return fmt.Errorf("failed to insert touchpoint %s: %w", tp.ID, err)
	}
	return nil
}

// ListTouchpoints returns an orchestration's touchpoints newest first,
// optionally filtered by type. limit <= 0 returns all rows.
func ListTouchpoints(db *sql.DB, orchestrationID string, touchpointType *string, limit int) ([]*Touchpoint, error) {
	query := `
		SELECT id, orchestration_id, touchpoint_type, title, summary, stage_name,
		       sentiment_score, satisfaction_score, productivity_score,
		       linked_agents, linked_tasks, occurred_at, created_at
		FROM project_touchpoints
		WHERE orchestration_id = ?`
	args := []interface{}{orchestrationID}
	if touchpointType != nil {
		query += " AND touchpoint_type = ?"
		args = append(args, *touchpointType)
	}
	query += " ORDER BY occurred_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query touchpoints: %w", err)
	}
	defer func() {
		_ = rows.Close() // Ignore error - operation should not fail due to close error
	}()

	var touchpoints []*Touchpoint
	for rows.Next() {
		var (
			tp                     Touchpoint
			summary, agents, tasks sql.NullString
		)
		err := rows.Scan(&tp.ID, &tp.OrchestrationID, &tp.TouchpointType, &tp.Title,
			&summary, &tp.StageName, &tp.SentimentScore, &tp.SatisfactionScore,
			&tp.ProductivityScore, &agents, &tasks, &tp.OccurredAt, &tp.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan touchpoint: %w", err)
		}
		tp.Summary = summary.String
		tp.LinkedAgents = agents.String
		tp.LinkedTasks = tasks.String
		touchpoints = append(touchpoints, &tp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return touchpoints, nil
}

// InsertConversation creates a new active conversation record.
func InsertConversation(db *sql.DB, conv *Conversation) error {
	if conv.Name == "" {
		return fmt.Errorf("conversation name is required")
	}
	if conv.ID == "" {
		conv.ID = GenerateID()
	}
	if conv.Status == "" {
		conv.Status = ConversationActive
	}
	if !IsValidConversationStatus(conv.Status) {
		return fmt.Errorf("invalid conversation status %q", conv.Status)
	}

	_, err := db.Exec(`
		INSERT INTO project_conversations (id, orchestration_id, name, status)
		VALUES (?, ?, ?, ?)
	`, conv.ID, conv.OrchestrationID, conv.Name, conv.Status)
	if err != nil {
		return fmt.Errorf("failed to insert conversation %s: %w", conv.ID, err)
	}
	return nil
}

// GetConversationRecord returns one conversation row.
func GetConversationRecord(db *sql.DB, id string) (*Conversation, error) {
	var (
		conv    Conversation
		endedAt sql.NullString
	)
	err := db.QueryRow(`
		SELECT id, orchestration_id, name, status, message_count, turn_count,
		       total_cost_usd, total_tokens, efficiency_score, started_at, ended_at
		FROM project_conversations WHERE id = ?
	`, id).Scan(&conv.ID, &conv.OrchestrationID, &conv.Name, &conv.Status,
		&conv.MessageCount, &conv.TurnCount, &conv.TotalCostUSD, &conv.TotalTokens,
		&conv.EfficiencyScore, &conv.StartedAt, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if endedAt.Valid {
		if t, parseErr := ParseTime(endedAt.String); parseErr == nil {
			conv.EndedAt = &t
		}
	}
	return &conv, nil
}

// UpdateConversationStatus sets a conversation's status. Terminal statuses
// stamp ended_at. Transition legality is enforced by the orchestration
// service.
func UpdateConversationStatus(db *sql.DB, id, status string) error {
	if !IsValidConversationStatus(status) {
		return fmt.Errorf("invalid conversation status %q", status)
	}

	query := `UPDATE project_conversations SET status = ?`
	if status == ConversationCompleted || status == ConversationTerminated {
		query += `, ended_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')`
	}
	query += ` WHERE id = ?`

	result, err := db.Exec(query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update conversation %s: %w", id, err)
	}
	return requireOneRow(result, ErrConversationNotFound)
}

// AddConversationUsage accumulates message, turn, token, and cost counters.
func AddConversationUsage(db *sql.DB, id string, messages, turns, tokens int64, costUSD float64) error {
	result, err := db.Exec(`
		UPDATE project_conversations
		SET message_count = message_count + ?,
		    turn_count = turn_count + ?,
		    total_tokens = total_tokens + ?,
		    total_cost_usd = total_cost_usd + ?
		WHERE id = ?
	`, messages, turns, tokens, costUSD, id)
	if err != nil {
		return fmt.Errorf("failed to add usage to conversation %s: %w", id, err)
	}
	return requireOneRow(result, ErrConversationNotFound)
}

// SetConversationEfficiency records a computed efficiency score.
func SetConversationEfficiency(db *sql.DB, id string, score float64) error {
	if score < 0 || score > 1 {
		return fmt.Errorf("score %f out of range [0,1]", score)
	}
	result, err := db.Exec(`
		UPDATE project_conversations SET efficiency_score = ? WHERE id = ?
	`, score, id)
	if err != nil {
		return fmt.Errorf("failed to set efficiency for conversation %s: %w", id, err)
	}
	return requireOneRow(result, ErrConversationNotFound)
}

// UpsertCollaborationMetric writes one pairwise measurement. The agent pair
// is canonicalized so that agent_a < agent_b regardless of argument order.
func UpsertCollaborationMetric(db *sql.DB, metric *CollaborationMetric) error {
	if metric.AgentA == metric.AgentB {
		return fmt.Errorf("collaboration metric requires two distinct agents")
	}
	if metric.AgentA > metric.AgentB {
		metric.AgentA, metric.AgentB = metric.AgentB, metric.AgentA
	}
	if metric.SynergyScore < 0 || metric.SynergyScore > 1 {
		return fmt.Errorf("synergy score %f out of range [0,1]", metric.SynergyScore)
	}
	if metric.ConflictScore < 0 || metric.ConflictScore > 1 {
		return fmt.Errorf("conflict score %f out of range [0,1]", metric.ConflictScore)
	}
	if metric.ID == "" {
		metric.ID = GenerateID()
	}

	_, err := db.Exec(`
		INSERT INTO agent_collaboration_metrics (
			id, orchestration_id, agent_a, agent_b, synergy_score, conflict_score,
			joint_tasks, joint_successes, window_start, window_end
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (orchestration_id, agent_a, agent_b, window_start) DO UPDATE SET
			synergy_score = excluded.synergy_score,
			conflict_score = excluded.conflict_score,
			joint_tasks = excluded.joint_tasks,
			joint_successes = excluded.joint_successes,
			window_end = excluded.window_end,
			computed_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
	`, metric.ID, metric.OrchestrationID, metric.AgentA, metric.AgentB,
		metric.SynergyScore, metric.ConflictScore, metric.JointTasks,
		metric.JointSuccesses, FormatTime(metric.WindowStart), FormatTime(metric.WindowEnd))
	if err != nil {
		return fmt.Errorf("failed to upsert collaboration metric: %w", err)
	}
	return nil
}

// ListCollaborationMetrics returns pairwise metrics for an orchestration,
// most recent window first.
func ListCollaborationMetrics(db *sql.DB, orchestrationID string) ([]*CollaborationMetric, error) {
	rows, err := db.Query(`
		SELECT id, orchestration_id, agent_a, agent_b, synergy_score, conflict_score,
		       joint_tasks, joint_successes, window_start, window_end, computed_at
		FROM agent_collaboration_metrics
		WHERE orchestration_id = ?
		ORDER BY window_start DESC, agent_a ASC, agent_b ASC
	`, orchestrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query collaboration metrics: %w", err)
	}
	defer func() {
		_ = rows.Close() // Ignore error - operation should not fail due to close error
	}()

	var metrics []*CollaborationMetric
	for rows.Next() {
		var m CollaborationMetric
		err := rows.Scan(&m.ID, &m.OrchestrationID, &m.AgentA, &m.AgentB,
			&m.SynergyScore, &m.ConflictScore, &m.JointTasks, &m.JointSuccesses,
			&m.WindowStart, &m.WindowEnd, &m.ComputedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan collaboration metric: %w", err)
		}
		metrics = append(metrics, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return metrics, nil
}

// requireOneRow converts a zero-rows-affected result into notFound.
func requireOneRow(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
