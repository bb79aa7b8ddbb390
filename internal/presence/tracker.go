package presence

import (
	"sync"

	"codeshare/pkg/types"
)

// entry is one distinct user in a session, reference-counted by live
// connections so a second browser tab never duplicates an avatar and closing
// one tab never removes a user who still has another open.
type entry struct {
	nickname    string
	connections int
}

// roster keeps join order so clients can patch entries without the list
// reshuffling under them.
type roster struct {
	order []string
	users map[string]*entry
}

// Tracker derives the distinct set of present users per session.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]*roster
}

// NewTracker creates an empty presence tracker.
func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[string]*roster)}
}

// Join records one more connection for userID in sessionID. It returns true
// only when this is the user's first connection to the session, i.e. when the
// roster actually changed and a presence broadcast is due.
func (t *Tracker) Join(sessionID, userID, nickname string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, exists := t.sessions[sessionID]
	if !exists {
		r = &roster{users: make(map[string]*entry)}
		t.sessions[sessionID] = r
	}

	if e, present := r.users[userID]; present {
		e.connections++
		if nickname != "" {
			e.nickname = nickname
		}
		return false
	}

	r.users[userID] = &entry{nickname: nickname, connections: 1}
	r.order = append(r.order, userID)
	return true
}

// Leave records one fewer connection for userID. It returns true only when
// the user's last connection is gone and they left the roster.
func (t *Tracker) Leave(sessionID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, exists := t.sessions[sessionID]
	if !exists {
		return false
	}
	e, present := r.users[userID]
	if !present {
		return false
	}

	e.connections--
	if e.connections > 0 {
		return false
	}

	delete(r.users, userID)
	for i, id := range r.order {
		if id == userID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if len(r.users) == 0 {
		delete(t.sessions, sessionID)
	}
	return true
}

// SetNickname updates a present user's display name. Returns false if the
// user is not in the session roster.
func (t *Tracker) SetNickname(sessionID, userID, nickname string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, exists := t.sessions[sessionID]
	if !exists {
		return false
	}
	e, present := r.users[userID]
	if !present {
		return false
	}
	e.nickname = nickname
	return true
}

// List returns the session roster in join order.
func (t *Tracker) List(sessionID string) []types.PresenceEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, exists := t.sessions[sessionID]
	if !exists {
		return []types.PresenceEntry{}
	}

	out := make([]types.PresenceEntry, 0, len(r.order))
	for _, userID := range r.order {
		out = append(out, types.PresenceEntry{UserID: userID, Nickname: r.users[userID].nickname})
	}
	return out
}

// IsPresent reports whether userID has at least one connection in sessionID.
func (t *Tracker) IsPresent(sessionID, userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, exists := t.sessions[sessionID]
	if !exists {
		return false
	}
	_, present := r.users[userID]
	return present
}
