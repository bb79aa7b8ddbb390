package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"codeshare/internal/cursor"
	"codeshare/internal/metrics"
	"codeshare/internal/presence"
	"codeshare/internal/websocket"
	"codeshare/pkg/types"
)

func newTestHub(t *testing.T) (*Hub, *websocket.Registry) {
	t.Helper()
	registry := websocket.NewRegistry()
	h := NewHub(
		registry,
		presence.NewTracker(),
		cursor.NewTracker(),
		websocket.NewBroadcaster(registry),
		metrics.New(prometheus.NewRegistry()),
	)
	return h, registry
}

func newConnPair(t *testing.T) (*websocket.Connection, *gws.Conn) {
	t.Helper()

	serverCh := make(chan *gws.Conn, 1)
	upgrader := gws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverCh <- c
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := gws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial test server: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	var serverConn *gws.Conn
	select {
	case serverConn = <-serverCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Server side never accepted the connection")
	}

	conn := websocket.NewConnection(serverConn)
	t.Cleanup(func() { conn.Close() })
	return conn, client
}

func nextEvent(t *testing.T, client *gws.Conn) *types.Event {
	t.Helper()
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("Expected an event, read failed: %v", err)
	}
	var evt types.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatalf("Received non-envelope frame: %v", err)
	}
	return &evt
}

func testSession(id string) *types.Session {
	return &types.Session{ID: id, Language: "go", Code: "buffer", CreatedBy: "creator", Admins: []string{}}
}

func TestHub_Join_SendsSnapshotThenRoster(t *testing.T) {
	h, registry := newTestHub(t)

	conn, client := newConnPair(t)
	conn.SetIdentity("alice", "Alice")
	_ = registry.Register(conn)

	if err := h.Join(conn, testSession("sess1")); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	evt := nextEvent(t, client)
	if evt.Event != types.EventJoinSession {
		t.Fatalf("Expected %s first, got %s", types.EventJoinSession, evt.Event)
	}
	var state types.SessionStatePayload
	if err := json.Unmarshal(evt.Data, &state); err != nil || state.Code != "buffer" {
		t.Errorf("Snapshot mismatch: %+v err=%v", state, err)
	}

	evt = nextEvent(t, client)
	if evt.Event != types.EventPresence {
		t.Fatalf("Expected %s second, got %s", types.EventPresence, evt.Event)
	}
}

func TestHub_Join_SecondTabGetsStateWithoutRosterChange(t *testing.T) {
	h, registry := newTestHub(t)
	sess := testSession("sess1")

	tab1, tab1Client := newConnPair(t)
	tab1.SetIdentity("alice", "Alice")
	_ = registry.Register(tab1)
	_ = h.Join(tab1, sess)
	nextEvent(t, tab1Client) // snapshot
	nextEvent(t, tab1Client) // roster

	tab2, tab2Client := newConnPair(t)
	tab2.SetIdentity("alice", "Alice")
	_ = registry.Register(tab2)
	_ = h.Join(tab2, sess)

	// The second tab needs state to render even though the roster is unchanged.
	if evt := nextEvent(t, tab2Client); evt.Event != types.EventJoinSession {
		t.Errorf("Second tab should receive the snapshot, got %s", evt.Event)
	}
	if evt := nextEvent(t, tab2Client); evt.Event != types.EventPresence {
		t.Errorf("Second tab should receive the roster, got %s", evt.Event)
	}

	// First tab must not see a duplicate presence broadcast.
	_ = tab1Client.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := tab1Client.ReadMessage(); err == nil {
		t.Error("Roster did not change; no broadcast should reach the first tab")
	}
}

func TestHub_Join_DuplicateThenDisconnectClearsPresence(t *testing.T) {
	h, registry := newTestHub(t)
	sess := testSession("sess1")

	alice, aliceClient := newConnPair(t)
	alice.SetIdentity("alice", "Alice")
	_ = registry.Register(alice)
	_ = h.Join(alice, sess)
	nextEvent(t, aliceClient) // snapshot
	nextEvent(t, aliceClient) // roster

	// Tab refocus re-sends the join for the session the connection is
	// already bound to. That must not inflate the per-user connection
	// count, or the user lingers on the roster after disconnecting.
	_ = h.Join(alice, sess)
	nextEvent(t, aliceClient) // snapshot again
	nextEvent(t, aliceClient) // roster again

	bob, bobClient := newConnPair(t)
	bob.SetIdentity("bob", "Bob")
	_ = registry.Register(bob)
	_ = h.Join(bob, sess)
	nextEvent(t, bobClient)
	nextEvent(t, bobClient)
	nextEvent(t, aliceClient) // roster update from bob's join

	h.cursors.SetCursor(sess.ID, "alice", types.CursorPosition{LineNumber: 1, Column: 1})
	h.Disconnect(alice)

	// Alice had one live connection, so bob must see her cursor cleared
	// and a roster without her.
	evt := nextEvent(t, bobClient)
	if evt.Event != types.EventRemoveCursor {
		t.Fatalf("Expected %s after disconnect, got %s", types.EventRemoveCursor, evt.Event)
	}

	evt = nextEvent(t, bobClient)
	if evt.Event != types.EventPresence {
		t.Fatalf("Expected presence update after disconnect, got %s", evt.Event)
	}
	var roster types.PresencePayload
	_ = json.Unmarshal(evt.Data, &roster)
	if len(roster.Users) != 1 || roster.Users[0].UserID != "bob" {
		t.Errorf("Expected roster [bob], got %+v", roster.Users)
	}

	if users := h.presence.List(sess.ID); len(users) != 1 {
		t.Errorf("Expected alice removed from presence, got %+v", users)
	}
}

func TestHub_Join_RebindLeavesOldSession(t *testing.T) {
	h, registry := newTestHub(t)

	conn, client := newConnPair(t)
	conn.SetIdentity("alice", "Alice")
	_ = registry.Register(conn)

	_ = h.Join(conn, testSession("sess1"))
	nextEvent(t, client)
	nextEvent(t, client)

	if err := h.Join(conn, testSession("sess2")); err != nil {
		t.Fatalf("Rebind failed: %v", err)
	}
	if conn.SessionID() != "sess2" {
		t.Errorf("Expected binding moved to sess2, got %s", conn.SessionID())
	}
	if got := len(registry.ConnectionsInSession("sess1")); got != 0 {
		t.Errorf("Expected sess1 emptied after rebind, got %d connections", got)
	}
}

func TestHub_Disconnect_LastConnectionClearsState(t *testing.T) {
	h, registry := newTestHub(t)
	sess := testSession("sess1")

	alice, aliceClient := newConnPair(t)
	alice.SetIdentity("alice", "Alice")
	_ = registry.Register(alice)
	_ = h.Join(alice, sess)
	nextEvent(t, aliceClient)
	nextEvent(t, aliceClient)

	bob, bobClient := newConnPair(t)
	bob.SetIdentity("bob", "Bob")
	_ = registry.Register(bob)
	_ = h.Join(bob, sess)
	nextEvent(t, bobClient)
	nextEvent(t, bobClient)
	nextEvent(t, aliceClient) // roster update from bob's join

	h.Disconnect(bob)

	evt := nextEvent(t, aliceClient)
	if evt.Event != types.EventPresence {
		t.Fatalf("Expected presence update after disconnect, got %s", evt.Event)
	}
	var roster types.PresencePayload
	_ = json.Unmarshal(evt.Data, &roster)
	if len(roster.Users) != 1 || roster.Users[0].UserID != "alice" {
		t.Errorf("Expected roster [alice], got %+v", roster.Users)
	}

	if _, exists := registry.GetConnection(bob.ID()); exists {
		t.Error("Disconnected connection should be removed from the registry")
	}
}
