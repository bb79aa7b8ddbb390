package session

import "errors"

// Session store error types.
var (
	ErrSessionNotLoaded = errors.New("session not loaded into memory")
	ErrCreatorImmutable = errors.New("session creator cannot be demoted")
	ErrInvalidUserID    = errors.New("invalid user ID")
	ErrStoreClosed      = errors.New("session store is closed")
)
