package router

import "sync"

// sessionLocks serializes all mutations to one session's state for the
// duration of a single event's apply+broadcast, while leaving unrelated
// sessions fully parallel. There is deliberately no process-wide lock.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sync.Mutex)}
}

// get returns the mutex owning sessionID, creating it on first reference.
// Lock structs are tiny and session ids are bounded in practice, so entries
// are never reclaimed.
func (l *sessionLocks) get(sessionID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, exists := l.locks[sessionID]
	if !exists {
		lock = &sync.Mutex{}
		l.locks[sessionID] = lock
	}
	return lock
}
