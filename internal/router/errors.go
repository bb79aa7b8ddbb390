package router

import "errors"

// Router-specific error types.
var (
	ErrRouterAlreadyRunning = errors.New("router is already running")
	ErrRouterNotRunning     = errors.New("router is not running")
	ErrNotMember            = errors.New("connection is not a member of this session")
	ErrNotJoined            = errors.New("connection has not joined a session")
	ErrRateLimitExceeded    = errors.New("event rate limit exceeded")
)
