package metrics

import (
	"testing"
	"time"
)

func TestInternalRecorder(t *testing.T) {
	recorder := NewInternalRecorder()
	recorder.Reset()

	recorder.ObserveInteraction("openai", "gpt-4o", "sess-1", "agent-1",
		1000, 500, 0.008, true, "", 250*time.Millisecond)
	recorder.ObserveInteraction("openai", "gpt-4o", "sess-1", "agent-1",
		2000, 1000, 0.016, true, "", 300*time.Millisecond)
	recorder.ObserveInteraction("openai", "gpt-4o", "sess-1", "agent-1",
		0, 0, 0, false, "rate_limited", 50*time.Millisecond)

	session := recorder.GetSessionMetrics("sess-1")
	if session == nil {
		t.Fatal("Expected session metrics")
	}
	if session.InputTokens != 3000 || session.OutputTokens != 1500 {
		t.Errorf("Expected 3000/1500 tokens, got %d/%d", session.InputTokens, session.OutputTokens)
	}
	if session.TotalTokens != 4500 {
		t.Errorf("Expected 4500 total tokens, got %d", session.TotalTokens)
	}
	if session.RequestCount != 2 {
		t.Errorf("Expected 2 successful requests, got %d", session.RequestCount)
	}
	if session.ErrorCount != 1 {
		t.Errorf("Expected 1 error, got %d", session.ErrorCount)
	}
	if diff := session.TotalCost - 0.024; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Expected total cost 0.024, got %f", session.TotalCost)
	}

	// Returned metrics are copies; mutating them must not leak back.
	session.TotalCost = 999
	if again := recorder.GetSessionMetrics("sess-1"); again.TotalCost == 999 {
		t.Error("Expected GetSessionMetrics to return a copy")
	}

	if got := recorder.GetSessionMetrics("missing"); got != nil {
		t.Errorf("Expected nil for unknown session, got %+v", got)
	}

	// Empty session IDs are ignored.
	recorder.ObserveInteraction("openai", "gpt-4o", "", "",
		100, 100, 0.001, true, "", time.Millisecond)
	if all := recorder.GetAllSessionMetrics(); len(all) != 1 {
		t.Errorf("Expected 1 tracked session, got %d", len(all))
	}

	recorder.ClearSessionMetrics("sess-1")
	if got := recorder.GetSessionMetrics("sess-1"); got != nil {
		t.Error("Expected cleared session to be gone")
	}
}

func TestNopRecorder(t *testing.T) {
	// Must not panic.
	Nop().ObserveInteraction("openai", "gpt-4o", "sess-1", "",
		1, 1, 0.001, true, "", time.Millisecond)
}
