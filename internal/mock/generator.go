// Package mock emits a synthetic agent session in the provider's JSONL
// format. It stands in for the real agent during demos and manual testing:
// point the engine's agent command at cmd/mockagent and every pipeline
// stage sees realistic traffic.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Event is one scripted JSONL line. Fields mirror the provider's log
// schema; omitted fields stay off the wire.
type Event struct {
	Type            string          `json:"type"`
	UUID            string          `json:"uuid,omitempty"`
	SessionID       string          `json:"session_id,omitempty"`
	ParentToolUseID string          `json:"parent_tool_use_id,omitempty"`
	Timestamp       string          `json:"timestamp,omitempty"`
	Text            string          `json:"text,omitempty"`
	ToolUse         *ToolUse        `json:"tool_use,omitempty"`
	ToolUseID       string          `json:"tool_use_id,omitempty"`
	Content         json.RawMessage `json:"content,omitempty"`
	IsError         bool            `json:"is_error,omitempty"`
	Message         *Message        `json:"message,omitempty"`
}

type ToolUse struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`
}

type Message struct {
	Content json.RawMessage `json:"content,omitempty"`
	Usage   *Usage          `json:"usage,omitempty"`
}

type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}

// Script returns a canned session: a user prompt, assistant turns with
// tool calls and token usage, a Task subagent with its nested thread, and
// a closing summary. Roughly two minutes of believable traffic.
func Script(sessionID string) []Event {
	text := func(s string) json.RawMessage {
		b, _ := json.Marshal(s)
		return b
	}

	return []Event{
		{Type: "user", UUID: "u-1", SessionID: sessionID, Text: "add retry logic to the fetcher"},
		{Type: "assistant", UUID: "a-1", SessionID: sessionID,
			Text:    "Looking at the fetcher first.",
			Message: &Message{Usage: &Usage{InputTokens: 2400, OutputTokens: 80, CacheReadInputTokens: 1800}}},
		{Type: "assistant", UUID: "a-2", SessionID: sessionID,
			ToolUse: &ToolUse{ID: "tu-read-1", Name: "Read", Input: text(`fetcher.go`)},
			Message: &Message{Usage: &Usage{InputTokens: 2600, OutputTokens: 45}}},
		{Type: "tool_result", ToolUseID: "tu-read-1", Content: text("package fetch\n\nfunc Get(url string) ...")},
		{Type: "assistant", UUID: "a-3", SessionID: sessionID,
			ToolUse: &ToolUse{ID: "tu-task-1", Name: "Task",
				Input: []byte(`{"subagent_type":"explorer","description":"find all Get callers","prompt":"list call sites of fetch.Get"}`)},
			Message: &Message{Usage: &Usage{InputTokens: 2900, OutputTokens: 120}}},
		{Type: "assistant", UUID: "sa-1", SessionID: sessionID, ParentToolUseID: "tu-task-1",
			ToolUse: &ToolUse{ID: "tu-grep-1", Name: "Grep", Input: text(`fetch\.Get`)},
			Message: &Message{Usage: &Usage{InputTokens: 900, OutputTokens: 30}}},
		{Type: "tool_result", ToolUseID: "tu-grep-1", Content: text("cmd/sync/main.go:42\ninternal/poll/poll.go:17")},
		{Type: "assistant", UUID: "sa-2", SessionID: sessionID, ParentToolUseID: "tu-task-1",
			Text:    "Two call sites, both retry-safe.",
			Message: &Message{Usage: &Usage{InputTokens: 1100, OutputTokens: 60}}},
		{Type: "tool_result", ToolUseID: "tu-task-1", Content: text("call sites: cmd/sync, internal/poll")},
		{Type: "assistant", UUID: "a-4", SessionID: sessionID,
			ToolUse: &ToolUse{ID: "tu-edit-1", Name: "Edit", Input: text(`fetcher.go`)},
			Message: &Message{Usage: &Usage{InputTokens: 3400, OutputTokens: 220}}},
		{Type: "tool_result", ToolUseID: "tu-edit-1", Content: text("ok")},
		{Type: "assistant", UUID: "a-5", SessionID: sessionID,
			ToolUse: &ToolUse{ID: "tu-bash-1", Name: "Bash", Input: text(`go test ./...`)},
			Message: &Message{Usage: &Usage{InputTokens: 3600, OutputTokens: 40}}},
		{Type: "tool_result", ToolUseID: "tu-bash-1", Content: text("FAIL: TestGetRetries"), IsError: true},
		{Type: "assistant", UUID: "a-6", SessionID: sessionID,
			ToolUse: &ToolUse{ID: "tu-edit-2", Name: "Edit", Input: text(`fetcher_test.go`)},
			Message: &Message{Usage: &Usage{InputTokens: 3900, OutputTokens: 180}}},
		{Type: "tool_result", ToolUseID: "tu-edit-2", Content: text("ok")},
		{Type: "assistant", UUID: "a-7", SessionID: sessionID,
			ToolUse: &ToolUse{ID: "tu-bash-2", Name: "Bash", Input: text(`go test ./...`)},
			Message: &Message{Usage: &Usage{InputTokens: 4100, OutputTokens: 40}}},
		{Type: "tool_result", ToolUseID: "tu-bash-2", Content: text("PASS")},
		{Type: "assistant", UUID: "a-8", SessionID: sessionID,
			Text:    "Retry logic added with exponential backoff; tests pass.",
			Message: &Message{Usage: &Usage{InputTokens: 4300, OutputTokens: 150}}},
	}
}

// Generator appends scripted events to a log file on a fixed cadence.
type Generator struct {
	path     string
	interval time.Duration
	events   []Event
}

func NewGenerator(path string, interval time.Duration, events []Event) *Generator {
	if interval <= 0 {
		interval = time.Second
	}
	return &Generator{path: path, interval: interval, events: events}
}

// Run writes one event per interval until the script ends or ctx is
// cancelled. Each line is stamped at write time so timestamps progress
// like a real session's.
func (g *Generator) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for i := range g.events {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		ev := g.events[i]
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
		if err := appendLine(g.path, ev); err != nil {
			return fmt.Errorf("writing event %d: %w", i, err)
		}
	}
	return nil
}

func appendLine(path string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(data, '\n'))
	return err
}
