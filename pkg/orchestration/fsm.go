// Package orchestration coordinates project state: the orchestration
// lifecycle, the six-stage journey, agent assignments, touchpoints,
// conversations, and pairwise collaboration metrics. All status changes go
// through explicit transition tables; there are no implicit state jumps.
package orchestration

import (
	"fmt"

	"costtrack/pkg/persistence"
)

// InvalidTransitionError reports a state change the transition table forbids.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition: %s -> %s", e.Entity, e.From, e.To)
}

//nolint:gochecknoglobals // static transition tables
var (
	// Orchestration lifecycle. completed and failed are terminal.
	orchestrationTransitions = map[string][]string{
		persistence.OrchestrationInitializing: {persistence.OrchestrationActive, persistence.OrchestrationFailed},
		persistence.OrchestrationActive:       {persistence.OrchestrationPaused, persistence.OrchestrationOptimizing, persistence.OrchestrationCompleted, persistence.OrchestrationFailed},
		persistence.OrchestrationPaused:       {persistence.OrchestrationActive, persistence.OrchestrationFailed},
		persistence.OrchestrationOptimizing:   {persistence.OrchestrationActive, persistence.OrchestrationCompleted, persistence.OrchestrationFailed},
		persistence.OrchestrationCompleted:    {},
		persistence.OrchestrationFailed:       {},
	}

	// Journey stage lifecycle. completed and skipped are terminal; blocked
	// stages can only resume to active.
	stageTransitions = map[string][]string{
		persistence.StageStatusPending:   {persistence.StageStatusActive, persistence.StageStatusSkipped},
		persistence.StageStatusActive:    {persistence.StageStatusCompleted, persistence.StageStatusBlocked},
		persistence.StageStatusBlocked:   {persistence.StageStatusActive},
		persistence.StageStatusCompleted: {},
		persistence.StageStatusSkipped:   {},
	}

	// Conversation lifecycle. completed and terminated are terminal.
	conversationTransitions = map[string][]string{
		persistence.ConversationActive:     {persistence.ConversationPaused, persistence.ConversationCompleted, persistence.ConversationTerminated},
		persistence.ConversationPaused:     {persistence.ConversationActive, persistence.ConversationTerminated},
		persistence.ConversationCompleted:  {},
		persistence.ConversationTerminated: {},
	}
)

func canTransition(table map[string][]string, from, to string) bool {
	for _, allowed := range table[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidateOrchestrationTransition checks an orchestration status change.
func ValidateOrchestrationTransition(from, to string) error {
	if !canTransition(orchestrationTransitions, from, to) {
		return &InvalidTransitionError{Entity: "orchestration", From: from, To: to}
	}
	return nil
}

// ValidateStageTransition checks a journey stage status change.
func ValidateStageTransition(from, to string) error {
	if !canTransition(stageTransitions, from, to) {
		return &InvalidTransitionError{Entity: "stage", From: from, To: to}
	}
	return nil
}

// ValidateConversationTransition checks a conversation status change.
func ValidateConversationTransition(from, to string) error {
	if !canTransition(conversationTransitions, from, to) {
		return &InvalidTransitionError{Entity: "conversation", From: from, To: to}
	}
	return nil
}

// IsTerminalOrchestrationStatus reports whether no further transitions exist.
func IsTerminalOrchestrationStatus(status string) bool {
	return len(orchestrationTransitions[status]) == 0 && persistence.IsValidOrchestrationStatus(status)
}
