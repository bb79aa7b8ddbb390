package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"

	"codeshare/pkg/types"
)

// Connection wraps one live websocket link. Writes are serialized through a
// single writer goroutine; gorilla connections do not allow concurrent
// writers.
type Connection struct {
	id      string
	conn    *websocket.Conn
	writeCh chan []byte
	ctx     context.Context
	cancel  context.CancelFunc

	closeOnce sync.Once

	mu        sync.RWMutex
	userID    string // set by the join event, stable across reconnects
	nickname  string
	sessionID string // set while bound to a session, empty otherwise
}

// NewConnection wraps conn and starts its writer goroutine. The connection id
// is transport-assigned and unique per link; ksuids keep them sortable in
// logs.
func NewConnection(conn *websocket.Conn) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:      ksuid.New().String(),
		conn:    conn,
		writeCh: make(chan []byte, 100),
		ctx:     ctx,
		cancel:  cancel,
	}

	go c.writeLoop()

	return c
}

// writeLoop drains writeCh until the context is cancelled. The channel is
// never closed: broadcaster goroutines may race SendEvent against Close, and
// cancellation already stops both sides without a send-on-closed panic.
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				c.cancel()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.cancel()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// SendEvent queues a named event for delivery. Returns ErrConnectionClosed if
// the link is gone and ErrWriteTimeout if the peer cannot drain its buffer.
func (c *Connection) SendEvent(name string, payload interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	evt, err := types.NewEvent(name, payload)
	if err != nil {
		return ErrInvalidJSON
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(5 * time.Second):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close tears down the connection exactly once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Done is closed when the connection is torn down.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// ID returns the transport-assigned connection id.
func (c *Connection) ID() string {
	return c.id
}

// SetIdentity records the client-supplied user id and display name.
func (c *Connection) SetIdentity(userID, nickname string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
	c.nickname = nickname
}

// SetNickname updates the display name only.
func (c *Connection) SetNickname(nickname string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nickname = nickname
}

func (c *Connection) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Connection) Nickname() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nickname
}

// SessionID returns the bound session id, or empty while unbound.
func (c *Connection) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Bound reports whether the connection has joined a session.
func (c *Connection) Bound() bool {
	return c.SessionID() != ""
}

func (c *Connection) setSessionID(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = sessionID
}
