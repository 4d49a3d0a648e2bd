package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentdeck/agentdeck/internal/logging"
)

// subagentToolName is the provider's tool for spawning a nested agent.
const subagentToolName = "Task"

// Counters tracks non-fatal anomalies seen by the pipeline. They only ever
// increase within one session; rotation zeroes them.
type Counters struct {
	ParseErrors      int `json:"parseErrors"`
	OrphanResults    int `json:"orphanResults"`
	DuplicateResults int `json:"duplicateResults"`
	Unrecognized     int `json:"unrecognized"`
	IORetries        int `json:"ioRetries"`
}

// Normalizer folds RawEvents into the session's message list, the global
// tool-call index, and the subagent arena. It is the single writer for all
// three; the engine snapshots them between applies.
type Normalizer struct {
	messages  []*ProcessedMessage
	toolIndex map[string]*ToolCall
	arena     *SubagentArena
	counters  Counters
	seq       int
}

func NewNormalizer() *Normalizer {
	return &Normalizer{
		toolIndex: make(map[string]*ToolCall),
		arena:     NewSubagentArena(),
	}
}

// Messages returns the ordered top-level message list. The slice is shared;
// callers must not mutate it.
func (n *Normalizer) Messages() []*ProcessedMessage { return n.messages }

// ToolCall looks up a tool invocation by id across all nesting levels.
func (n *Normalizer) ToolCall(id string) (*ToolCall, bool) {
	tc, ok := n.toolIndex[id]
	return tc, ok
}

// ToolIndex returns the live id index. Read-only for callers.
func (n *Normalizer) ToolIndex() map[string]*ToolCall { return n.toolIndex }

// Arena exposes the subagent arena for stats and tests.
func (n *Normalizer) Arena() *SubagentArena { return n.arena }

// Counters returns the anomaly counters accumulated so far.
func (n *Normalizer) Counters() Counters { return n.counters }

// AddParseErrors merges line-decode failures into the counter set.
func (n *Normalizer) AddParseErrors(count int) { n.counters.ParseErrors += count }

// AddIORetry counts a transient tail failure.
func (n *Normalizer) AddIORetry() { n.counters.IORetries++ }

// Reset drops all session state. Called when the log rotates and the file
// represents a brand-new session.
func (n *Normalizer) Reset() {
	n.messages = nil
	n.toolIndex = make(map[string]*ToolCall)
	n.arena.Reset()
	n.counters = Counters{}
	n.seq = 0
}

// Apply folds one event into the session state. Never fails: anomalies are
// counted and the rest of the pipeline proceeds.
func (n *Normalizer) Apply(ev RawEvent) {
	switch {
	case ev.Type == "tool_result":
		// Standalone result event; also reachable nested under a parent.
		n.applyResults(ev)

	case ev.ParentToolUseID != "":
		n.applySubagent(ev)

	case ev.Type == "system", ev.Type == "user", ev.Type == "assistant":
		msg := n.buildMessage(ev)
		n.messages = append(n.messages, msg)

	default:
		// Unknown type: preserved, not dropped.
		n.counters.Unrecognized++
		msg := n.buildMessage(ev)
		msg.Type = "unrecognized"
		if msg.Text == "" {
			msg.Text = ev.Type
		}
		n.messages = append(n.messages, msg)
	}
}

// applySubagent routes a nested event into the arena and binds the thread
// to the owning ToolCall on first push.
func (n *Normalizer) applySubagent(ev RawEvent) {
	msg := n.buildMessage(ev)
	th := n.arena.Append(ev.ParentToolUseID, msg)

	owner, ok := n.toolIndex[ev.ParentToolUseID]
	if !ok {
		// Parent tool call never seen (log truncated mid-call). The
		// thread stays in the arena; a late-arriving parent would bind it.
		logging.Debug().Str("parent", ev.ParentToolUseID).Msg("subagent event without known parent")
		return
	}
	if owner.Thread == nil {
		owner.Thread = th
		owner.IsSubagent = true
	}
}

// buildMessage constructs a ProcessedMessage from an event, registering any
// tool invocations in the global index and resolving any embedded results.
// It does not append to the top-level list; callers decide placement.
func (n *Normalizer) buildMessage(ev RawEvent) *ProcessedMessage {
	n.seq++
	id := ev.UUID
	if id == "" {
		id = fmt.Sprintf("msg-%d", n.seq)
	}

	msg := &ProcessedMessage{
		ID:        id,
		Type:      ev.Type,
		Timestamp: parseTimestamp(ev.Timestamp),
		Text:      ev.Text,
	}

	if ev.Message != nil {
		if ev.Message.Usage != nil {
			u := *ev.Message.Usage
			msg.Usage = &u
		}
		if blocks, ok := contentBlocks(ev.Message.Content); ok {
			for _, b := range blocks {
				n.applyBlock(msg, b)
			}
		}
	}

	// Compact top-level forms.
	if ev.ToolUse != nil {
		block := *ev.ToolUse
		block.Type = "tool_use"
		n.applyBlock(msg, block)
	}

	return msg
}

func (n *Normalizer) applyBlock(msg *ProcessedMessage, b ContentBlock) {
	switch b.Type {
	case "text":
		if b.Text == "" {
			return
		}
		if msg.Text != "" {
			msg.Text += "\n"
		}
		msg.Text += b.Text

	case "tool_use":
		tc := n.registerToolCall(b)
		msg.ToolCalls = append(msg.ToolCalls, tc)

	case "tool_result":
		n.resolveResult(b.ToolUseID, b.Content, b.IsError)
	}
}

// registerToolCall creates a pending ToolCall and indexes it by id. A
// re-registered id keeps the existing call so result matching stays stable.
func (n *Normalizer) registerToolCall(b ContentBlock) *ToolCall {
	if existing, ok := n.toolIndex[b.ID]; ok && b.ID != "" {
		return existing
	}

	tc := &ToolCall{
		ID:     b.ID,
		Name:   b.Name,
		Input:  b.Input,
		Status: StatusPending,
	}

	if b.Name == subagentToolName {
		tc.IsSubagent = true
		var in struct {
			SubagentType string `json:"subagent_type"`
			Description  string `json:"description"`
			Prompt       string `json:"prompt"`
		}
		if len(b.Input) > 0 && json.Unmarshal(b.Input, &in) == nil {
			tc.SubagentType = in.SubagentType
			tc.SubagentDescription = in.Description
			tc.SubagentPrompt = in.Prompt
		}
		// Bind an already-buffered thread (nested events arrived first).
		if th, ok := n.arena.Thread(b.ID); ok {
			tc.Thread = th
		}
	}

	if tc.ID != "" {
		n.toolIndex[tc.ID] = tc
	}
	return tc
}

// applyResults handles a tool_result event, covering both the compact
// top-level form and results nested in a message content array.
func (n *Normalizer) applyResults(ev RawEvent) {
	handled := false

	if ev.ToolUseID != "" {
		n.resolveResult(ev.ToolUseID, ev.Content, ev.IsError)
		handled = true
	}

	if ev.Message != nil {
		if blocks, ok := contentBlocks(ev.Message.Content); ok {
			for _, b := range blocks {
				if b.Type != "tool_result" {
					continue
				}
				n.resolveResult(b.ToolUseID, b.Content, b.IsError)
				handled = true
			}
		}
	}

	if !handled {
		n.counters.OrphanResults++
		logging.Warn().Msg("tool_result event carries no tool_use_id")
	}
}

// resolveResult performs the single terminal transition for a tool call.
// Unknown ids are orphans (the log may have been truncated mid-call); a
// second result for a terminal call is an anomaly, logged and ignored.
func (n *Normalizer) resolveResult(toolUseID string, content json.RawMessage, isError bool) {
	tc, ok := n.toolIndex[toolUseID]
	if !ok {
		n.counters.OrphanResults++
		logging.Warn().Str("tool_use_id", toolUseID).Msg("orphan tool result")
		return
	}

	if tc.Status.Terminal() {
		n.counters.DuplicateResults++
		logging.Warn().Str("tool_use_id", toolUseID).Msg("duplicate tool result ignored")
		return
	}

	tc.Result = flattenContent(content)
	tc.IsError = isError
	if isError {
		tc.Status = StatusError
	} else {
		tc.Status = StatusCompleted
	}
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
