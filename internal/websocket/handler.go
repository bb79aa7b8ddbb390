package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"codeshare/pkg/types"
)

var upgrader = websocket.Upgrader{
	// Clients connect from arbitrary origins; identity is an opaque
	// client-supplied id, so origin checking buys nothing here.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// EventSink is the single entry point for inbound events and the disconnect
// hook. Implemented by the event router.
type EventSink interface {
	HandleEvent(ctx context.Context, conn *Connection, event *types.Event)
	HandleDisconnect(conn *Connection)
}

// Handler upgrades HTTP requests and pumps inbound events into the sink.
type Handler struct {
	registry     *Registry
	sink         EventSink
	pingInterval time.Duration
	readTimeout  time.Duration
}

// NewHandler creates a websocket handler.
func NewHandler(registry *Registry, sink EventSink, pingInterval, readTimeout time.Duration) *Handler {
	return &Handler{
		registry:     registry,
		sink:         sink,
		pingInterval: pingInterval,
		readTimeout:  readTimeout,
	}
}

// HandleWebSocket upgrades the request and registers the connection. No
// credentials are required at upgrade time; the client introduces itself with
// a join event and binds to a room with join-session.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn := NewConnection(wsConn)
	if err := h.registry.Register(conn); err != nil {
		log.Printf("Failed to register connection: %v", err)
		_ = conn.Close()
		return
	}

	log.Printf("Connection opened: conn=%s remote=%s", conn.ID(), r.RemoteAddr)
	go h.handleConnection(conn)
}

// handleConnection runs the read pump with heartbeat monitoring. Graceful
// leaves and abrupt drops both exit the loop and run the same disconnect
// cascade.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.sink.HandleDisconnect(conn)
		_ = conn.Close()
		log.Printf("Connection closed: conn=%s user=%s", conn.ID(), conn.UserID())
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("WebSocket read error: conn=%s err=%v", conn.ID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var event types.Event
		if err := json.Unmarshal(data, &event); err != nil {
			log.Printf("Dropping malformed frame: conn=%s err=%v", conn.ID(), err)
			continue
		}

		h.sink.HandleEvent(conn.ctx, conn, &event)
	}
}
