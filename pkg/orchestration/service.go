package orchestration

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"costtrack/pkg/logx"
	"costtrack/pkg/persistence"
)

// Service provides orchestration operations with transition validation.
type Service struct {
	db     *sql.DB
	logger *logx.Logger
}

// NewService creates an orchestration service over the given database.
func NewService(db *sql.DB) *Service {
	return &Service{
		db:     db,
		logger: logx.NewLogger("orchestration"),
	}
}

// Create provisions the orchestration root and its journey stages for a
// project.
func (s *Service) Create(projectID, primaryAgent, pattern string) (*persistence.Orchestration, error) {
	orch := &persistence.Orchestration{
		ProjectID:           projectID,
		Enabled:             true,
		PrimaryAgent:        primaryAgent,
		CoordinationPattern: pattern,
	}
	if err := persistence.CreateOrchestration(s.db, orch); err != nil {
		return nil, err
	}
	if primaryAgent != "" {
		if err := persistence.UpsertAssignment(s.db, &persistence.AgentAssignment{
			OrchestrationID: orch.ID,
			AgentID:         primaryAgent,
			Role:            persistence.RolePrimary,
		}); err != nil {
			return nil, err
		}
	}
	s.logger.Info("orchestration %s created for project %s (%s)", orch.ID, projectID, orch.CoordinationPattern)
	return orch, nil
}

// Get returns the orchestration root by ID.
func (s *Service) Get(orchestrationID string) (*persistence.Orchestration, error) {
	return persistence.GetOrchestration(s.db, orchestrationID)
}

// GetByProject returns the orchestration root for a project.
func (s *Service) GetByProject(projectID string) (*persistence.Orchestration, error) {
	return persistence.GetOrchestrationByProject(s.db, projectID)
}

// Transition moves the orchestration to a new status after validating the
// change against the lifecycle table.
func (s *Service) Transition(orchestrationID, to string) error {
	orch, err := persistence.GetOrchestration(s.db, orchestrationID)
	if err != nil {
		return err
	}
	if err := ValidateOrchestrationTransition(orch.Status, to); err != nil {
		return err
	}
	if err := persistence.UpdateOrchestrationStatus(s.db, orchestrationID, to); err != nil {
		return err
	}
	s.logger.Info("orchestration %s: %s -> %s", orchestrationID, orch.Status, to)
	return nil
}

// TransitionStage moves one journey stage to a new status after validating.
func (s *Service) TransitionStage(orchestrationID, stageName, to string) error {
	stage, err := persistence.GetStage(s.db, orchestrationID, stageName)
	if err != nil {
		return err
	}
	if err := ValidateStageTransition(stage.Status, to); err != nil {
		return err
	}
	return persistence.UpdateStageStatus(s.db, orchestrationID, stageName, to)
}

// AdvanceStage completes the orchestration's current stage, activates the
// next one in journey order, and moves the root's current-stage pointer, all
// in one transaction. Skipped and already-completed stages are passed over;
// a stage activated out of band simply becomes the new current stage. Both
// transitions are validated before anything is written, so a rejected
// advance leaves the journey untouched. Completing the final stage leaves
// the pointer in place; finishing the orchestration itself is a separate
// Transition to completed.
func (s *Service) AdvanceStage(orchestrationID string) (*persistence.JourneyStage, error) {
	orch, err := persistence.GetOrchestration(s.db, orchestrationID)
	if err != nil {
		return nil, err
	}

	current, err := persistence.GetStage(s.db, orchestrationID, orch.CurrentStage)
	if err != nil {
		return nil, err
	}
	if err := ValidateStageTransition(current.Status, persistence.StageStatusCompleted); err != nil {
		return nil, err
	}

	var next *persistence.JourneyStage
	order := persistence.JourneyStageOrder()
	for i, name := range order {
		if name != current.StageName {
			continue
		}
		for _, nextName := range order[i+1:] {
			candidate, err := persistence.GetStage(s.db, orchestrationID, nextName)
			if err != nil {
				return nil, err
			}
			if candidate.Status == persistence.StageStatusSkipped || candidate.Status == persistence.StageStatusCompleted {
				continue
			}
			if candidate.Status != persistence.StageStatusActive {
				if err := ValidateStageTransition(candidate.Status, persistence.StageStatusActive); err != nil {
					return nil, err
				}
			}
			next = candidate
			break
		}
		break
	}

	if next == nil {
		// Final stage completed; the journey is done.
		if err := persistence.UpdateStageStatus(s.db, orchestrationID, current.StageName, persistence.StageStatusCompleted); err != nil {
			return nil, err
		}
		s.logger.Info("orchestration %s completed its final stage %s", orchestrationID, current.StageName)
		return nil, nil //nolint:nilnil // no next stage
	}

	activateNext := next.Status != persistence.StageStatusActive
	if err := persistence.AdvanceJourney(s.db, orchestrationID, current.StageName, next.StageName, activateNext); err != nil {
		return nil, err
	}
	s.logger.Info("orchestration %s advanced: %s -> %s", orchestrationID, current.StageName, next.StageName)
	return persistence.GetStage(s.db, orchestrationID, next.StageName)
}

// Stages returns the orchestration's journey stages in order.
func (s *Service) Stages(orchestrationID string) ([]*persistence.JourneyStage, error) {
	return persistence.GetStages(s.db, orchestrationID)
}

// Assign adds or reactivates an agent on the orchestration.
func (s *Service) Assign(orchestrationID, agentID, role string) error {
	return persistence.UpsertAssignment(s.db, &persistence.AgentAssignment{
		OrchestrationID: orchestrationID,
		AgentID:         agentID,
		Role:            role,
	})
}

// Deactivate removes an agent from active duty, keeping its history.
func (s *Service) Deactivate(orchestrationID, agentID string) error {
	return persistence.DeactivateAssignment(s.db, orchestrationID, agentID)
}

// Assignments lists the orchestration's agent assignments.
func (s *Service) Assignments(orchestrationID string, activeOnly bool) ([]*persistence.AgentAssignment, error) {
	return persistence.GetAssignments(s.db, orchestrationID, activeOnly)
}

// CreditAgentUsage accumulates ledger cost and task counters onto an agent's
// assignment row.
func (s *Service) CreditAgentUsage(orchestrationID, agentID string, costUSD float64, tokens, tasksAssigned, tasksCompleted int64) error {
	return persistence.AddAssignmentUsage(s.db, orchestrationID, agentID, costUSD, tokens, tasksAssigned, tasksCompleted)
}

// LogTouchpoint appends an interaction event to the journey.
func (s *Service) LogTouchpoint(tp *persistence.Touchpoint) error {
	return persistence.InsertTouchpoint(s.db, tp)
}

// Touchpoints lists the orchestration's events, newest first.
func (s *Service) Touchpoints(orchestrationID string, touchpointType *string, limit int) ([]*persistence.Touchpoint, error) {
	return persistence.ListTouchpoints(s.db, orchestrationID, touchpointType, limit)
}

// StartConversation opens a named conversation on the orchestration.
func (s *Service) StartConversation(orchestrationID, name string) (*persistence.Conversation, error) {
	conv := &persistence.Conversation{
		OrchestrationID: orchestrationID,
		Name:            name,
	}
	if err := persistence.InsertConversation(s.db, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// TransitionConversation moves a conversation to a new status after
// validating the change.
func (s *Service) TransitionConversation(conversationID, to string) error {
	conv, err := persistence.GetConversationRecord(s.db, conversationID)
	if err != nil {
		return err
	}
	if err := ValidateConversationTransition(conv.Status, to); err != nil {
		return err
	}
	return persistence.UpdateConversationStatus(s.db, conversationID, to)
}

// RecomputeCollaboration derives pairwise collaboration metrics from the
// touchpoints inside the window. A joint touchpoint is one whose linked
// agents include both members of the pair; synergy averages the productivity
// scores of joint touchpoints, conflict is the escalation share.
func (s *Service) RecomputeCollaboration(orchestrationID string, windowStart, windowEnd time.Time) (int, error) {
	touchpoints, err := persistence.ListTouchpoints(s.db, orchestrationID, nil, 0)
	if err != nil {
		return 0, err
	}

	type pairStats struct {
		productivitySum float64
		scoredCount     int64
		jointTasks      int64
		jointSuccesses  int64
		escalations     int64
	}
	pairs := make(map[[2]string]*pairStats)

	for _, tp := range touchpoints {
		if tp.OccurredAt.Before(windowStart) || !tp.OccurredAt.Before(windowEnd) {
			continue
		}
		agents, err := parseLinkedAgents(tp.LinkedAgents)
		if err != nil {
			return 0, fmt.Errorf("touchpoint %s has malformed linked_agents: %w", tp.ID, err)
		}
		if len(agents) < 2 {
			continue
		}
		for i := 0; i < len(agents); i++ {
			for j := i + 1; j < len(agents); j++ {
				a, b := agents[i], agents[j]
				if a == b {
					continue
				}
				if a > b {
					a, b = b, a
				}
				key := [2]string{a, b}
				stats := pairs[key]
				if stats == nil {
					stats = &pairStats{}
					pairs[key] = stats
				}
				stats.jointTasks++
				if tp.ProductivityScore != nil {
					stats.productivitySum += *tp.ProductivityScore
					stats.scoredCount++
					if *tp.ProductivityScore >= 0.5 {
						stats.jointSuccesses++
					}
				}
				if tp.TouchpointType == persistence.TouchpointEscalation {
					stats.escalations++
				}
			}
		}
	}

	for key, stats := range pairs {
		synergy := 0.0
		if stats.scoredCount > 0 {
			synergy = stats.productivitySum / float64(stats.scoredCount)
		}
		conflict := float64(stats.escalations) / float64(stats.jointTasks)
		if err := persistence.UpsertCollaborationMetric(s.db, &persistence.CollaborationMetric{
			OrchestrationID: orchestrationID,
			AgentA:          key[0],
			AgentB:          key[1],
			SynergyScore:    synergy,
			ConflictScore:   conflict,
			JointTasks:      stats.jointTasks,
			JointSuccesses:  stats.jointSuccesses,
			WindowStart:     windowStart,
			WindowEnd:       windowEnd,
		}); err != nil {
			return 0, err
		}
	}

	s.logger.Debug("orchestration %s: recomputed %d collaboration pairs", orchestrationID, len(pairs))
	return len(pairs), nil
}

// Delete removes the orchestration and everything under it.
func (s *Service) Delete(orchestrationID string) error {
	return persistence.DeleteOrchestration(s.db, orchestrationID)
}

func parseLinkedAgents(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var agents []string
	if err := json.Unmarshal([]byte(raw), &agents); err != nil {
		return nil, err
	}
	return agents, nil
}
