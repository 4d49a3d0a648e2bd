package stream

import "encoding/json"

// TokenUsage mirrors the provider's usage block on assistant events.
type TokenUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}

func (t TokenUsage) TotalContext() int {
	return t.InputTokens + t.CacheReadInputTokens + t.CacheCreationInputTokens
}

// RawEvent is one decoded log line. It is a superset of the shapes the
// provider emits: full events carry a nested message with typed content
// blocks, while compact events inline text / tool_use / tool_result fields
// at the top level. Consumed immediately by the normalizer.
type RawEvent struct {
	Type            string      `json:"type"`
	UUID            string      `json:"uuid"`
	SessionID       string      `json:"session_id"`
	ParentToolUseID string      `json:"parent_tool_use_id"`
	Timestamp       string      `json:"timestamp"`
	Message         *RawMessage `json:"message"`

	// Compact single-block forms.
	Text      string          `json:"text"`
	ToolUse   *ContentBlock   `json:"tool_use"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

type RawMessage struct {
	Role    string          `json:"role"`
	Model   string          `json:"model"`
	Content json.RawMessage `json:"content"`
	Usage   *TokenUsage     `json:"usage"`
}

// ContentBlock is one element of a message's content array. The Type field
// discriminates: "text", "tool_use", or "tool_result".
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text"`

	// tool_use
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`

	// tool_result
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

// contentBlocks decodes a message content value, which is either a plain
// string or an array of typed blocks.
func contentBlocks(raw json.RawMessage) ([]ContentBlock, bool) {
	if len(raw) == 0 {
		return nil, false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []ContentBlock{{Type: "text", Text: s}}, true
	}

	var blocks []ContentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, false
	}
	return blocks, true
}

// flattenContent renders a content value as display text: a JSON string
// decodes to itself, a block array joins its text blocks, anything else is
// kept as raw JSON.
func flattenContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	if blocks, ok := contentBlocks(raw); ok {
		text := ""
		for _, b := range blocks {
			if b.Type != "text" || b.Text == "" {
				continue
			}
			if text != "" {
				text += "\n"
			}
			text += b.Text
		}
		return text
	}

	return string(raw)
}
