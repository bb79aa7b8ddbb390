package interfaces

import (
	"context"

	"codeshare/pkg/types"
)

// SessionRepository is the durable store behind the in-memory session state.
// The server only touches it on first reference (fetch-or-create), on
// write-behind persistence, and on cron-driven reset.
type SessionRepository interface {
	// CreateSession persists a brand-new session record.
	CreateSession(ctx context.Context, session *types.Session) error

	// GetSession returns a session by id, or ErrSessionNotFound.
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)

	// UpdateSession replaces the stored record wholesale.
	UpdateSession(ctx context.Context, session *types.Session) error

	// ListSessions returns every stored session, newest first.
	ListSessions(ctx context.Context) ([]*types.Session, error)

	// DeleteSession removes a session record; deleting a missing id is not
	// an error.
	DeleteSession(ctx context.Context, sessionID string) error
}

// TemplateRepository resolves template ids into starter code, language and
// reference solution for set-solution handling, and backs template CRUD.
type TemplateRepository interface {
	CreateTemplate(ctx context.Context, template *types.Template) error

	// GetTemplate returns a template by id, or ErrTemplateNotFound.
	GetTemplate(ctx context.Context, templateID string) (*types.Template, error)

	UpdateTemplate(ctx context.Context, template *types.Template) error

	ListTemplates(ctx context.Context) ([]*types.Template, error)
}
