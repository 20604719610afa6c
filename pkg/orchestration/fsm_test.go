package orchestration

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"costtrack/pkg/persistence"
)

func TestOrchestrationTransitions(t *testing.T) {
	allowed := [][2]string{
		{persistence.OrchestrationInitializing, persistence.OrchestrationActive},
		{persistence.OrchestrationInitializing, persistence.OrchestrationFailed},
		{persistence.OrchestrationActive, persistence.OrchestrationPaused},
		{persistence.OrchestrationActive, persistence.OrchestrationOptimizing},
		{persistence.OrchestrationActive, persistence.OrchestrationCompleted},
		{persistence.OrchestrationPaused, persistence.OrchestrationActive},
		{persistence.OrchestrationOptimizing, persistence.OrchestrationActive},
		{persistence.OrchestrationOptimizing, persistence.OrchestrationCompleted},
	}
	for _, tc := range allowed {
		assert.NoError(t, ValidateOrchestrationTransition(tc[0], tc[1]), "%s -> %s", tc[0], tc[1])
	}

	forbidden := [][2]string{
		{persistence.OrchestrationInitializing, persistence.OrchestrationCompleted},
		{persistence.OrchestrationInitializing, persistence.OrchestrationPaused},
		{persistence.OrchestrationPaused, persistence.OrchestrationCompleted},
		{persistence.OrchestrationPaused, persistence.OrchestrationOptimizing},
		{persistence.OrchestrationCompleted, persistence.OrchestrationActive},
		{persistence.OrchestrationFailed, persistence.OrchestrationActive},
		{persistence.OrchestrationActive, persistence.OrchestrationInitializing},
	}
	for _, tc := range forbidden {
		err := ValidateOrchestrationTransition(tc[0], tc[1])
		assert.Error(t, err, "%s -> %s", tc[0], tc[1])
		var invalid *InvalidTransitionError
		assert.ErrorAs(t, err, &invalid)
	}
}

func TestStageTransitions(t *testing.T) {
	assert.NoError(t, ValidateStageTransition(persistence.StageStatusPending, persistence.StageStatusActive))
	assert.NoError(t, ValidateStageTransition(persistence.StageStatusPending, persistence.StageStatusSkipped))
	assert.NoError(t, ValidateStageTransition(persistence.StageStatusActive, persistence.StageStatusCompleted))
	assert.NoError(t, ValidateStageTransition(persistence.StageStatusActive, persistence.StageStatusBlocked))
	assert.NoError(t, ValidateStageTransition(persistence.StageStatusBlocked, persistence.StageStatusActive))

	assert.Error(t, ValidateStageTransition(persistence.StageStatusPending, persistence.StageStatusCompleted))
	assert.Error(t, ValidateStageTransition(persistence.StageStatusActive, persistence.StageStatusSkipped))
	assert.Error(t, ValidateStageTransition(persistence.StageStatusBlocked, persistence.StageStatusCompleted))
	assert.Error(t, ValidateStageTransition(persistence.StageStatusCompleted, persistence.StageStatusActive))
	assert.Error(t, ValidateStageTransition(persistence.StageStatusSkipped, persistence.StageStatusActive))
}

func TestConversationTransitions(t *testing.T) {
	assert.NoError(t, ValidateConversationTransition(persistence.ConversationActive, persistence.ConversationPaused))
	assert.NoError(t, ValidateConversationTransition(persistence.ConversationActive, persistence.ConversationCompleted))
	assert.NoError(t, ValidateConversationTransition(persistence.ConversationActive, persistence.ConversationTerminated))
	assert.NoError(t, ValidateConversationTransition(persistence.ConversationPaused, persistence.ConversationActive))
	assert.NoError(t, ValidateConversationTransition(persistence.ConversationPaused, persistence.ConversationTerminated))

	assert.Error(t, ValidateConversationTransition(persistence.ConversationPaused, persistence.ConversationCompleted))
	assert.Error(t, ValidateConversationTransition(persistence.ConversationCompleted, persistence.ConversationActive))
	assert.Error(t, ValidateConversationTransition(persistence.ConversationTerminated, persistence.ConversationActive))
}

func TestIsTerminalOrchestrationStatus(t *testing.T) {
	assert.True(t, IsTerminalOrchestrationStatus(persistence.OrchestrationCompleted))
	assert.True(t, IsTerminalOrchestrationStatus(persistence.OrchestrationFailed))
	assert.False(t, IsTerminalOrchestrationStatus(persistence.OrchestrationActive))
	assert.False(t, IsTerminalOrchestrationStatus("nonsense"))
}
