package stream

import (
	"testing"
	"time"
)

func TestProcessedMessageCloneIsDeep(t *testing.T) {
	now := time.Now()
	thread := &SubagentThread{
		ParentID: "task-1",
		Messages: []*ProcessedMessage{{ID: "sub-1", Type: "assistant", Text: "nested"}},
	}
	msg := &ProcessedMessage{
		ID:        "m1",
		Type:      "assistant",
		Timestamp: now,
		ToolCalls: []*ToolCall{{
			ID:         "task-1",
			Name:       "Task",
			Status:     StatusPending,
			IsSubagent: true,
			Thread:     thread,
		}},
		Usage: &TokenUsage{InputTokens: 100, OutputTokens: 20},
	}

	clone := msg.Clone()

	// Mutations on the original must not show through the clone.
	msg.ToolCalls[0].Status = StatusCompleted
	msg.ToolCalls[0].Result = "done"
	msg.Usage.OutputTokens = 999
	thread.Messages = append(thread.Messages, &ProcessedMessage{ID: "sub-2"})

	got := clone.ToolCalls[0]
	if got.Status != StatusPending {
		t.Errorf("clone status = %s, want pending", got.Status)
	}
	if got.Result != "" {
		t.Errorf("clone result = %q, want empty", got.Result)
	}
	if clone.Usage.OutputTokens != 20 {
		t.Errorf("clone output tokens = %d, want 20", clone.Usage.OutputTokens)
	}
	if len(got.SubagentMessages()) != 1 {
		t.Errorf("clone thread messages = %d, want 1", len(got.SubagentMessages()))
	}
}

func TestCloneNilReceivers(t *testing.T) {
	var tc *ToolCall
	if tc.Clone() != nil {
		t.Error("nil ToolCall clone must be nil")
	}
	var th *SubagentThread
	if th.Clone() != nil {
		t.Error("nil SubagentThread clone must be nil")
	}
}
