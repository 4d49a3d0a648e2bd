package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentdeck/agentdeck/internal/engine"
)

// dialBroadcaster stands up a minimal upgrade endpoint wired to b and
// returns a connected client side.
func dialBroadcaster(t *testing.T, b *Broadcaster) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.AddClient(conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) engine.Snapshot {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var msg struct {
		Type    MessageType     `json:"type"`
		Payload SnapshotPayload `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != MsgSnapshot {
		t.Fatalf("message type = %s, want snapshot", msg.Type)
	}
	return msg.Payload.Session
}

func TestBurstsCoalesceToLatestSnapshot(t *testing.T) {
	_, eng, _ := newTestServer(t, "")
	b := NewBroadcaster(eng, 20*time.Millisecond, time.Minute)
	conn := dialBroadcaster(t, b)

	// Connect frame first.
	readSnapshot(t, conn)

	// Three rapid-fire snapshots inside one throttle window.
	b.queue(engine.Snapshot{Seq: 1})
	b.queue(engine.Snapshot{Seq: 2})
	b.queue(engine.Snapshot{Seq: 3})

	snap := readSnapshot(t, conn)
	if snap.Seq != 3 {
		t.Errorf("delivered seq = %d, want latest (3)", snap.Seq)
	}

	// No stale intermediate frames follow.
	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("intermediate snapshot leaked through the throttle")
	}
}

func TestSeparateWindowsEachFlush(t *testing.T) {
	_, eng, _ := newTestServer(t, "")
	b := NewBroadcaster(eng, 10*time.Millisecond, time.Minute)
	conn := dialBroadcaster(t, b)
	readSnapshot(t, conn)

	b.queue(engine.Snapshot{Seq: 1})
	if got := readSnapshot(t, conn).Seq; got != 1 {
		t.Fatalf("first window seq = %d, want 1", got)
	}

	b.queue(engine.Snapshot{Seq: 2})
	if got := readSnapshot(t, conn).Seq; got != 2 {
		t.Errorf("second window seq = %d, want 2", got)
	}
}

func TestRemoveClientIsIdempotent(t *testing.T) {
	_, eng, _ := newTestServer(t, "")
	b := NewBroadcaster(eng, 10*time.Millisecond, time.Minute)
	conn := dialBroadcaster(t, b)
	readSnapshot(t, conn)

	var c *client
	deadline := time.Now().Add(2 * time.Second)
	for c == nil && time.Now().Before(deadline) {
		b.mu.RLock()
		for cl := range b.clients {
			c = cl
		}
		b.mu.RUnlock()
		time.Sleep(5 * time.Millisecond)
	}
	if c == nil {
		t.Fatal("no registered client")
	}

	b.RemoveClient(c)
	b.RemoveClient(c)
	if b.ClientCount() != 0 {
		t.Errorf("client count = %d, want 0", b.ClientCount())
	}
}

func TestClientCountTracksConnections(t *testing.T) {
	_, eng, _ := newTestServer(t, "")
	b := NewBroadcaster(eng, 10*time.Millisecond, time.Minute)

	dialBroadcaster(t, b)
	dialBroadcaster(t, b)

	deadline := time.Now().Add(2 * time.Second)
	for b.ClientCount() != 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if b.ClientCount() != 2 {
		t.Errorf("client count = %d, want 2", b.ClientCount())
	}
}
