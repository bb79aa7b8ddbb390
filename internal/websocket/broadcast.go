package websocket

import "log"

// Broadcaster fans an event out to the connections of one session. Delivery
// failures are logged and skipped; a slow or dead peer must not stall the
// rest of the room.
type Broadcaster struct {
	registry *Registry
}

// NewBroadcaster creates a broadcaster over registry.
func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// ToSession sends event to every connection in sessionID. excludeConnID
// suppresses the echo back to the originating connection; pass "" to include
// everyone.
func (b *Broadcaster) ToSession(sessionID, event string, payload interface{}, excludeConnID string) int {
	delivered := 0
	for _, conn := range b.registry.ConnectionsInSession(sessionID) {
		if excludeConnID != "" && conn.ID() == excludeConnID {
			continue
		}
		if err := conn.SendEvent(event, payload); err != nil {
			log.Printf("Broadcast delivery failed: event=%s session=%s conn=%s err=%v",
				event, sessionID, conn.ID(), err)
			continue
		}
		delivered++
	}
	return delivered
}
