package stream

import (
	"encoding/json"
	"time"
)

// ToolCallStatus tracks a tool invocation's lifecycle. A call is created
// pending and makes exactly one terminal transition (completed or error)
// when its result event arrives.
type ToolCallStatus string

const (
	StatusPending   ToolCallStatus = "pending"
	StatusRunning   ToolCallStatus = "running"
	StatusCompleted ToolCallStatus = "completed"
	StatusError     ToolCallStatus = "error"
)

func (s ToolCallStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// ToolCall is a single tool invocation extracted from an assistant message.
// It is mutated in place as the matching result arrives; holders of the
// pointer (the message's ToolCalls slice and the global id index) observe
// the same transition.
type ToolCall struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Input  json.RawMessage `json:"input,omitempty"`
	Status ToolCallStatus  `json:"status"`

	Result  string `json:"result,omitempty"`
	IsError bool   `json:"isError,omitempty"`

	IsSubagent          bool   `json:"isSubagent,omitempty"`
	SubagentType        string `json:"subagentType,omitempty"`
	SubagentDescription string `json:"subagentDescription,omitempty"`
	SubagentPrompt      string `json:"subagentPrompt,omitempty"`

	// Thread points into the subagent arena. Set on the first nested
	// event referencing this call; the arena appends to it afterwards, so
	// the slice below must be treated as append-only and read-only by
	// every other holder.
	Thread *SubagentThread `json:"subagentThread,omitempty"`
}

// SubagentMessages returns the nested conversation for a subagent call, or
// nil when no nested events have arrived.
func (tc *ToolCall) SubagentMessages() []*ProcessedMessage {
	if tc.Thread == nil {
		return nil
	}
	return tc.Thread.Messages
}

// Clone returns a deep copy detached from the live pipeline. Input is
// shared: it is raw JSON the normalizer never rewrites.
func (tc *ToolCall) Clone() *ToolCall {
	if tc == nil {
		return nil
	}
	c := *tc
	c.Thread = tc.Thread.Clone()
	return &c
}

// SubagentThread is the arena entry for one parent tool-use id. The arena
// is its only writer.
type SubagentThread struct {
	ParentID string              `json:"parentId"`
	Messages []*ProcessedMessage `json:"messages"`
}

func (t *SubagentThread) Clone() *SubagentThread {
	if t == nil {
		return nil
	}
	c := &SubagentThread{
		ParentID: t.ParentID,
		Messages: make([]*ProcessedMessage, len(t.Messages)),
	}
	for i, m := range t.Messages {
		c.Messages[i] = m.Clone()
	}
	return c
}

// ProcessedMessage is the provider-agnostic form of one log event.
// Immutable once appended, except for in-place mutation of its ToolCalls
// entries as results arrive.
type ProcessedMessage struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Text      string      `json:"text,omitempty"`
	ToolCalls []*ToolCall `json:"toolCalls,omitempty"`
	Usage     *TokenUsage `json:"usage,omitempty"`
}

// Clone returns a deep copy, including tool calls and their subagent
// threads.
func (m *ProcessedMessage) Clone() *ProcessedMessage {
	c := *m
	if m.Usage != nil {
		u := *m.Usage
		c.Usage = &u
	}
	if len(m.ToolCalls) > 0 {
		c.ToolCalls = make([]*ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			c.ToolCalls[i] = tc.Clone()
		}
	}
	return &c
}

// TokenTotals aggregates usage across a stats scope.
type TokenTotals struct {
	Input         int `json:"input"`
	Output        int `json:"output"`
	CacheRead     int `json:"cacheRead"`
	CacheCreation int `json:"cacheCreation"`
}

func (t *TokenTotals) add(u *TokenUsage) {
	if u == nil {
		return
	}
	t.Input += u.InputTokens
	t.Output += u.OutputTokens
	t.CacheRead += u.CacheReadInputTokens
	t.CacheCreation += u.CacheCreationInputTokens
}

// SessionStats is a pure aggregate over the scoped message list. Recomputed
// wholesale on every change; boundary moves invalidate incremental sums.
type SessionStats struct {
	TotalTokens   TokenTotals `json:"totalTokens"`
	ToolCallCount int         `json:"toolCallCount"`
	MessageCount  int         `json:"messageCount"`
	ErrorCount    int         `json:"errorCount"`
	SubagentCount int         `json:"subagentCount"`
	StartTime     *time.Time  `json:"startTime,omitempty"`
	EndTime       *time.Time  `json:"endTime,omitempty"`
}
