package cursor

import (
	"sync"

	"codeshare/pkg/types"
)

// Tracker holds ephemeral per-user cursor and selection state, keyed by
// session. Nothing here is ever persisted; entries die with the user's last
// connection or on explicit remove-cursor.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]*sessionCursors
}

// sessionCursors keeps insertion order so repeated list broadcasts stay
// stable for clients.
type sessionCursors struct {
	order  []string
	states map[string]*types.CursorState
}

// NewTracker creates an empty cursor tracker.
func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[string]*sessionCursors)}
}

// SetCursor upserts userID's caret position and returns the full cursor list
// for the session. Last update wins.
func (t *Tracker) SetCursor(sessionID, userID string, position types.CursorPosition) []types.CursorState {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.upsert(sessionID, userID)
	state.Cursor = position
	return t.list(sessionID)
}

// SetSelection upserts userID's selection range and returns the full list.
func (t *Tracker) SetSelection(sessionID, userID string, selection types.SelectionRange) []types.CursorState {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.upsert(sessionID, userID)
	sel := selection
	state.Selection = &sel
	return t.list(sessionID)
}

// Remove drops both cursor and selection for userID. Returns true if an
// entry existed, so callers know whether a removal broadcast is due to clear
// ghost cursors on other clients.
func (t *Tracker) Remove(sessionID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	sc, exists := t.sessions[sessionID]
	if !exists {
		return false
	}
	if _, present := sc.states[userID]; !present {
		return false
	}

	delete(sc.states, userID)
	for i, id := range sc.order {
		if id == userID {
			sc.order = append(sc.order[:i], sc.order[i+1:]...)
			break
		}
	}
	if len(sc.states) == 0 {
		delete(t.sessions, sessionID)
	}
	return true
}

// List returns a snapshot of all cursor states in the session.
func (t *Tracker) List(sessionID string) []types.CursorState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.list(sessionID)
}

// upsert returns the entry for (sessionID, userID), creating it at line 1,
// column 1 if absent. Caller holds t.mu.
func (t *Tracker) upsert(sessionID, userID string) *types.CursorState {
	sc, exists := t.sessions[sessionID]
	if !exists {
		sc = &sessionCursors{states: make(map[string]*types.CursorState)}
		t.sessions[sessionID] = sc
	}

	state, present := sc.states[userID]
	if !present {
		state = &types.CursorState{
			UserID: userID,
			Cursor: types.CursorPosition{LineNumber: 1, Column: 1},
		}
		sc.states[userID] = state
		sc.order = append(sc.order, userID)
	}
	return state
}

// list copies out the session's cursor states in insertion order. Caller
// holds t.mu.
func (t *Tracker) list(sessionID string) []types.CursorState {
	sc, exists := t.sessions[sessionID]
	if !exists {
		return []types.CursorState{}
	}

	out := make([]types.CursorState, 0, len(sc.order))
	for _, userID := range sc.order {
		state := sc.states[userID]
		copied := *state
		if state.Selection != nil {
			sel := *state.Selection
			copied.Selection = &sel
		}
		out = append(out, copied)
	}
	return out
}
