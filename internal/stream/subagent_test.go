package stream

import "testing"

func TestSubagentEventsRoutedToThread(t *testing.T) {
	n := NewNormalizer()

	n.Apply(decodeEvent(t, `{"type":"assistant","message":{"content":[{"type":"tool_use","id":"task1","name":"Task","input":{"subagent_type":"worker"}}]}}`))
	n.Apply(decodeEvent(t, `{"type":"user","parent_tool_use_id":"task1","text":"nested prompt"}`))
	n.Apply(decodeEvent(t, `{"type":"assistant","parent_tool_use_id":"task1","message":{"content":[{"type":"text","text":"nested reply"}]}}`))

	// Nested events never appear in the top-level list.
	if len(n.Messages()) != 1 {
		t.Fatalf("top-level messages = %d, want 1", len(n.Messages()))
	}

	tc, _ := n.ToolCall("task1")
	subs := tc.SubagentMessages()
	if len(subs) != 2 {
		t.Fatalf("subagent messages = %d, want 2", len(subs))
	}
	if subs[0].Text != "nested prompt" || subs[1].Text != "nested reply" {
		t.Errorf("thread order wrong: %q, %q", subs[0].Text, subs[1].Text)
	}
}

func TestThreadSharedByReference(t *testing.T) {
	n := NewNormalizer()
	n.Apply(decodeEvent(t, `{"type":"assistant","tool_use":{"id":"task1","name":"Task"}}`))
	n.Apply(decodeEvent(t, `{"type":"user","parent_tool_use_id":"task1","text":"one"}`))

	tc, _ := n.ToolCall("task1")
	before := tc.Thread

	n.Apply(decodeEvent(t, `{"type":"user","parent_tool_use_id":"task1","text":"two"}`))

	if tc.Thread != before {
		t.Fatal("thread pointer changed; holders would lose updates")
	}
	if len(tc.SubagentMessages()) != 2 {
		t.Fatalf("holder sees %d messages, want 2", len(tc.SubagentMessages()))
	}

	// No defensive copy: an external append to the shared slice is visible
	// at the next stats computation.
	tc.Thread.Messages = append(tc.Thread.Messages, &ProcessedMessage{
		ID:   "external",
		Type: "assistant",
		ToolCalls: []*ToolCall{
			{ID: "x1", Name: "Read", Status: StatusCompleted},
		},
	})

	stats := ComputeStats(n.Messages(), NoBoundary, false)
	// task1 itself plus the injected nested call.
	if stats.ToolCallCount != 2 {
		t.Errorf("toolCallCount = %d, want 2", stats.ToolCallCount)
	}
}

func TestNestedEventsBeforeParentToolUse(t *testing.T) {
	n := NewNormalizer()

	// The nested event lands first (interleaved writes); the thread buffers
	// in the arena until the parent call registers.
	n.Apply(decodeEvent(t, `{"type":"user","parent_tool_use_id":"task9","text":"early"}`))
	n.Apply(decodeEvent(t, `{"type":"assistant","message":{"content":[{"type":"tool_use","id":"task9","name":"Task"}]}}`))

	tc, ok := n.ToolCall("task9")
	if !ok {
		t.Fatal("parent call missing")
	}
	if len(tc.SubagentMessages()) != 1 {
		t.Fatalf("buffered thread not bound: %d messages", len(tc.SubagentMessages()))
	}
}

func TestNestedToolCallsIndexedGlobally(t *testing.T) {
	n := NewNormalizer()
	n.Apply(decodeEvent(t, `{"type":"assistant","tool_use":{"id":"task1","name":"Task"}}`))
	n.Apply(decodeEvent(t, `{"type":"assistant","parent_tool_use_id":"task1","message":{"content":[{"type":"tool_use","id":"inner1","name":"Bash"}]}}`))
	n.Apply(decodeEvent(t, `{"type":"tool_result","tool_use_id":"inner1","content":"ok"}`))

	inner, ok := n.ToolCall("inner1")
	if !ok {
		t.Fatal("nested tool call not in global index")
	}
	if inner.Status != StatusCompleted {
		t.Errorf("nested call status = %s", inner.Status)
	}
}
