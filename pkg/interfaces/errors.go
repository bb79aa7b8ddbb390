package interfaces

import "errors"

// Common errors shared across component boundaries.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrTemplateNotFound = errors.New("template not found")
	ErrUnauthorized     = errors.New("user not authorized for this action")
)
