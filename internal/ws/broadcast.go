package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentdeck/agentdeck/internal/engine"
	"github.com/agentdeck/agentdeck/internal/logging"
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Broadcaster fans engine snapshots out to connected websocket clients.
// Bursts of snapshots are coalesced: at most one frame per throttle window,
// always carrying the latest state.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	engine   *engine.Engine
	throttle time.Duration

	snapshotInterval time.Duration

	flushMu    sync.Mutex
	pending    *engine.Snapshot
	flushTimer *time.Timer
}

func NewBroadcaster(eng *engine.Engine, throttle, snapshotInterval time.Duration) *Broadcaster {
	if throttle <= 0 {
		throttle = 100 * time.Millisecond
	}
	if snapshotInterval <= 0 {
		snapshotInterval = 5 * time.Second
	}
	return &Broadcaster{
		clients:          make(map[*client]bool),
		engine:           eng,
		throttle:         throttle,
		snapshotInterval: snapshotInterval,
	}
}

// Run consumes the engine's snapshot stream until ctx is cancelled. A
// periodic full snapshot goes out regardless of change traffic so clients
// that missed a dropped frame reconverge.
func (b *Broadcaster) Run(ctx context.Context) {
	snaps, cancel := b.engine.Subscribe()
	defer cancel()

	ticker := time.NewTicker(b.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			b.queue(snap)
		case <-ticker.C:
			if b.ClientCount() > 0 {
				b.queue(b.engine.Snapshot())
			}
		}
	}
}

// queue stores the newest snapshot and arms the flush timer. Later
// snapshots within the window replace earlier ones.
func (b *Broadcaster) queue(snap engine.Snapshot) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.pending = &snap
	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.throttle, b.flush)
	}
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	snap := b.pending
	b.pending = nil
	b.flushTimer = nil
	b.flushMu.Unlock()

	if snap == nil {
		return
	}
	b.broadcast(WSMessage{
		Type:    MsgSnapshot,
		Payload: SnapshotPayload{Session: *snap},
	})
}

// AddClient registers a connection and immediately sends it the current
// full snapshot so it never waits for the next change.
func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	msg := WSMessage{
		Type:    MsgSnapshot,
		Payload: SnapshotPayload{Session: b.engine.Snapshot()},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		logging.Error().Err(err).Msg("connect snapshot marshal failed")
		return c
	}

	select {
	case c.send <- data:
	default:
	}

	return c
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		logging.Error().Err(err).Msg("broadcast marshal failed")
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			// Client can't keep up, disconnect it.
			logging.Warn().Msg("ws client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
