package websocket

import "sync"

// Registry tracks live connections and which session each belongs to. It is
// pure bookkeeping; presence and session state live elsewhere.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection            // connectionID -> Connection
	sessions    map[string]map[string]*Connection // sessionID -> connectionID -> Connection
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
		sessions:    make(map[string]map[string]*Connection),
	}
}

// Register adds a connection with no session binding. Registering the same
// connection twice is a no-op.
func (r *Registry) Register(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[conn.ID()] = conn
	return nil
}

// Bind associates a connection with a session and reports whether the binding
// changed. Rebinding to the same session is an idempotent no-op that returns
// false; a connection previously bound to a different session is unbound from
// it first, since a connection belongs to exactly one session. Callers that
// count connections per user must only count when bound is true.
func (r *Registry) Bind(conn *Connection, sessionID string) (bool, error) {
	if conn == nil {
		return false, ErrNilConnection
	}
	if sessionID == "" {
		return false, ErrInvalidSessionID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.ID()]; !exists {
		return false, ErrNotRegistered
	}

	current := conn.SessionID()
	if current == sessionID {
		return false, nil
	}
	if current != "" {
		r.removeFromSession(current, conn.ID())
	}

	if r.sessions[sessionID] == nil {
		r.sessions[sessionID] = make(map[string]*Connection)
	}
	r.sessions[sessionID][conn.ID()] = conn
	conn.setSessionID(sessionID)
	return true, nil
}

// Unbind removes the connection from its session's set and returns the
// (sessionID, userID) it was bound to. ok is false if it was unbound.
func (r *Registry) Unbind(conn *Connection) (sessionID, userID string, ok bool) {
	if conn == nil {
		return "", "", false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sessionID = conn.SessionID()
	if sessionID == "" {
		return "", "", false
	}

	r.removeFromSession(sessionID, conn.ID())
	conn.setSessionID("")
	return sessionID, conn.UserID(), true
}

// Remove drops the connection entirely: session binding plus the global
// entry. Idempotent.
func (r *Registry) Remove(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if sessionID := conn.SessionID(); sessionID != "" {
		r.removeFromSession(sessionID, conn.ID())
		conn.setSessionID("")
	}
	delete(r.connections, conn.ID())
}

// ConnectionsInSession returns the live connection set for fan-out. The slice
// is a snapshot; it may be empty.
func (r *Registry) ConnectionsInSession(sessionID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.sessions[sessionID]
	out := make([]*Connection, 0, len(conns))
	for _, conn := range conns {
		out = append(out, conn)
	}
	return out
}

// UserConnectionCount returns how many live connections in sessionID belong
// to userID. Presence removal waits for this to reach zero, so a user with
// two tabs open stays present when one closes.
func (r *Registry) UserConnectionCount(sessionID, userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, conn := range r.sessions[sessionID] {
		if conn.UserID() == userID {
			count++
		}
	}
	return count
}

// GetConnection returns a registered connection by id.
func (r *Registry) GetConnection(connectionID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, exists := r.connections[connectionID]
	return conn, exists
}

// Stats returns registry counters for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.connections),
		"active_sessions":   len(r.sessions),
	}
}

// removeFromSession deletes a connection from a session set and cleans up the
// empty map. Caller holds r.mu.
func (r *Registry) removeFromSession(sessionID, connectionID string) {
	conns, exists := r.sessions[sessionID]
	if !exists {
		return
	}
	delete(conns, connectionID)
	if len(conns) == 0 {
		delete(r.sessions, sessionID)
	}
}
