package ws

import "github.com/agentdeck/agentdeck/internal/engine"

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgError    MessageType = "error"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

type SnapshotPayload struct {
	Session engine.Snapshot `json:"session"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// resumeRequest is the /api/agent/resume body.
type resumeRequest struct {
	Feedback string `json:"feedback"`
}
