package router

import (
	"sync"
	"time"
)

// RateLimiter implements per-connection rate limiting over a fixed one-minute
// window. The default cap is generous: text edits arrive on every keystroke
// batch and cursor moves are frequent, so the limiter only exists to stop a
// runaway or hostile client from flooding a room.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	clients map[string]*clientWindow
}

type clientWindow struct {
	eventCount  int
	windowStart time.Time
}

// NewRateLimiter creates a rate limiter allowing limit events per minute per
// connection.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		clients: make(map[string]*clientWindow),
	}
}

// Allow reports whether the connection may send another event this window.
func (rl *RateLimiter) Allow(connectionID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	window, exists := rl.clients[connectionID]
	if !exists {
		rl.clients[connectionID] = &clientWindow{eventCount: 1, windowStart: now}
		return true
	}

	if now.Sub(window.windowStart) >= time.Minute {
		window.eventCount = 1
		window.windowStart = now
		return true
	}

	if window.eventCount >= rl.limit {
		return false
	}

	window.eventCount++
	return true
}

// Cleanup removes entries idle for more than five minutes. Called
// periodically by the router's maintenance loop.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for connectionID, window := range rl.clients {
		if now.Sub(window.windowStart) > 5*time.Minute {
			delete(rl.clients, connectionID)
		}
	}
}
