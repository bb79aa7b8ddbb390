package hub

import (
	"log"

	"codeshare/internal/cursor"
	"codeshare/internal/metrics"
	"codeshare/internal/presence"
	"codeshare/internal/websocket"
	"codeshare/pkg/types"
)

// Hub is the session lifecycle manager. It owns the join/leave/disconnect
// cascade across the connection registry, presence tracker, and cursor
// tracker, and emits the membership broadcasts those transitions produce.
//
// Ordering matters on the way out: the connection is unbound first, so the
// presence recompute sees the accurate remaining-connection state.
type Hub struct {
	registry    *websocket.Registry
	presence    *presence.Tracker
	cursors     *cursor.Tracker
	broadcaster *websocket.Broadcaster
	metrics     *metrics.Metrics
}

// NewHub creates a lifecycle manager.
func NewHub(registry *websocket.Registry, presenceTracker *presence.Tracker, cursorTracker *cursor.Tracker, broadcaster *websocket.Broadcaster, m *metrics.Metrics) *Hub {
	return &Hub{
		registry:    registry,
		presence:    presenceTracker,
		cursors:     cursorTracker,
		broadcaster: broadcaster,
		metrics:     m,
	}
}

// Join binds conn to the already-loaded session and broadcasts the updated
// roster. A connection bound to a different session is detached from it
// first; a connection belongs to exactly one session.
//
// The joining connection always receives the full session snapshot plus the
// current roster and cursor list, whether or not the roster changed (a second
// tab still needs state to render).
func (h *Hub) Join(conn *websocket.Connection, sess *types.Session) error {
	if bound := conn.SessionID(); bound != "" && bound != sess.ID {
		h.Leave(conn)
	}

	bound, err := h.registry.Bind(conn, sess.ID)
	if err != nil {
		return err
	}

	// A duplicate join for the already-bound session must not count the
	// connection twice: the presence refcount mirrors live connections, and
	// an extra increment here would leave the user on the roster forever.
	userID := conn.UserID()
	joined := false
	if bound {
		joined = h.presence.Join(sess.ID, userID, conn.Nickname())
	}

	if err := conn.SendEvent(types.EventJoinSession, types.SessionState(sess)); err != nil {
		log.Printf("Failed to send session snapshot: conn=%s session=%s err=%v", conn.ID(), sess.ID, err)
	}

	roster := types.PresencePayload{SessionID: sess.ID, Users: h.presence.List(sess.ID)}
	if joined {
		// Roster changed: everyone, including the joiner, sees the new list.
		h.broadcaster.ToSession(sess.ID, types.EventPresence, roster, "")
		h.metrics.BroadcastsTotal.WithLabelValues(types.EventPresence).Inc()
	} else if err := conn.SendEvent(types.EventPresence, roster); err != nil {
		log.Printf("Failed to send roster: conn=%s session=%s err=%v", conn.ID(), sess.ID, err)
	}

	if cursors := h.cursors.List(sess.ID); len(cursors) > 0 {
		payload := types.CursorListPayload{SessionID: sess.ID, Cursors: cursors}
		if err := conn.SendEvent(types.EventCursorPosition, payload); err != nil {
			log.Printf("Failed to send cursor list: conn=%s session=%s err=%v", conn.ID(), sess.ID, err)
		}
	}

	h.updateSessionGauge()
	log.Printf("Connection joined session: conn=%s user=%s session=%s newPresence=%t",
		conn.ID(), userID, sess.ID, joined)
	return nil
}

// Leave unbinds conn from its session. If that was the user's last connection
// there, the user leaves the roster, their cursor state is dropped, and both
// changes are broadcast to the remaining members.
func (h *Hub) Leave(conn *websocket.Connection) {
	sessionID, userID, ok := h.registry.Unbind(conn)
	if !ok {
		return
	}

	left := h.presence.Leave(sessionID, userID)
	if left {
		if h.cursors.Remove(sessionID, userID) {
			h.broadcaster.ToSession(sessionID, types.EventRemoveCursor,
				types.RemoveCursorPayload{SessionID: sessionID, UserID: userID}, "")
			h.metrics.BroadcastsTotal.WithLabelValues(types.EventRemoveCursor).Inc()
		}
		h.broadcaster.ToSession(sessionID, types.EventPresence,
			types.PresencePayload{SessionID: sessionID, Users: h.presence.List(sessionID)}, "")
		h.metrics.BroadcastsTotal.WithLabelValues(types.EventPresence).Inc()
	}

	h.updateSessionGauge()
	log.Printf("Connection left session: conn=%s user=%s session=%s lastConnection=%t",
		conn.ID(), userID, sessionID, left)
}

// Disconnect runs the leave cascade and removes the connection entirely.
// Graceful unsubscribes and abrupt network drops both land here.
func (h *Hub) Disconnect(conn *websocket.Connection) {
	h.Leave(conn)
	h.registry.Remove(conn)
	h.metrics.ConnectionsActive.Set(float64(h.registry.Stats()["total_connections"]))
	h.updateSessionGauge()
}

// Connected records a freshly registered connection in the gauges.
func (h *Hub) Connected() {
	h.metrics.ConnectionsActive.Set(float64(h.registry.Stats()["total_connections"]))
}

func (h *Hub) updateSessionGauge() {
	h.metrics.SessionsActive.Set(float64(h.registry.Stats()["active_sessions"]))
}
