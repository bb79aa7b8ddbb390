package types

import "errors"

// Validation errors shared across components.
var (
	ErrInvalidUserID    = errors.New("user ID must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidSessionID = errors.New("session ID must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidEventName = errors.New("unknown event name")
	ErrInvalidPayload   = errors.New("event payload is not valid JSON")
	ErrMissingField     = errors.New("event payload missing required field")
	ErrPayloadTooLarge  = errors.New("event payload exceeds 1MB limit")
	ErrInvalidTitle     = errors.New("template title must be 1-200 characters")
)
