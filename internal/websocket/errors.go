package websocket

import "errors"

// Connection-related errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write timeout after 5 seconds")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Registry-related errors.
var (
	ErrNilConnection    = errors.New("connection cannot be nil")
	ErrNotRegistered    = errors.New("connection is not registered")
	ErrInvalidSessionID = errors.New("session id cannot be empty")
)
