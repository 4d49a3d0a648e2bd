package engine

import (
	"errors"

	"github.com/agentdeck/agentdeck/internal/logging"
	"github.com/agentdeck/agentdeck/internal/stream"
	"github.com/agentdeck/agentdeck/internal/supervise"
)

// ErrAgentCrashed is surfaced on snapshots after an unexpected agent exit,
// until the operator acknowledges it.
var ErrAgentCrashed = errors.New("agent exited unexpectedly")

// Snapshot is one published view of the session. Messages and ToolCalls
// are deep copies taken under the engine lock, so subscribers may read and
// marshal them on their own goroutines while the poll loop keeps mutating
// the live state.
type Snapshot struct {
	Seq       uint64                      `json:"seq"`
	Messages  []*stream.ProcessedMessage  `json:"messages"`
	ToolCalls map[string]*stream.ToolCall `json:"toolCalls"`
	Stats     stream.SessionStats         `json:"stats"`
	RunState  supervise.RunState          `json:"runState"`
	PID       int                         `json:"pid,omitempty"`
	Boundary  int                         `json:"boundary"`
	Counters  stream.Counters             `json:"counters"`
	LastError string                      `json:"lastError,omitempty"`
}

// Subscribe registers a snapshot channel and returns it with an unsubscribe
// func. The channel is buffered; a subscriber that falls behind misses
// intermediate snapshots rather than blocking the poll loop.
func (e *Engine) Subscribe() (<-chan Snapshot, func()) {
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	ch := make(chan Snapshot, 8)
	e.subs[id] = ch
	e.mu.Unlock()

	return ch, func() {
		e.mu.Lock()
		if _, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(ch)
		}
		e.mu.Unlock()
	}
}

// Snapshot builds the current view on demand, for request/response surfaces
// that are not subscribed to the push stream.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	state := e.sup.State()
	running := state == supervise.StateRunning || state == supervise.StateStarting

	live := e.norm.Messages()
	messages := make([]*stream.ProcessedMessage, len(live))
	for i, m := range live {
		messages[i] = m.Clone()
	}

	index := e.norm.ToolIndex()
	toolCalls := make(map[string]*stream.ToolCall, len(index))
	for id, tc := range index {
		toolCalls[id] = tc.Clone()
	}

	snap := Snapshot{
		Seq:       e.seq,
		Messages:  messages,
		ToolCalls: toolCalls,
		Stats:     stream.ComputeStats(live, e.boundary, running),
		RunState:  state,
		PID:       e.sup.PID(),
		Boundary:  e.boundary,
		Counters:  e.norm.Counters(),
	}
	if e.lastError != nil {
		snap.LastError = e.lastError.Error()
	}
	return snap
}

// publishLocked stamps a new sequence number and fans the snapshot out.
// Sends never block: full subscriber buffers drop this update, and the
// subscriber catches up on the next one.
func (e *Engine) publishLocked() {
	e.seq++
	snap := e.snapshotLocked()
	for id, ch := range e.subs {
		select {
		case ch <- snap:
		default:
			logging.Debug().Int("subscriber", id).Msg("slow subscriber, snapshot dropped")
		}
	}
}
