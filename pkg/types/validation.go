package types

import "regexp"

// Compiled once; identifier validation runs on every inbound event.
var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// maxPayloadBytes bounds a single event payload. Full-buffer text edits are
// the largest events; 1MB comfortably exceeds anything an editor produces.
const maxPayloadBytes = 1 << 20

// IsValidUserID checks a client-supplied opaque user id. UUIDs and short
// handles both pass; anything with whitespace or punctuation does not.
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 64 {
		return false
	}
	return idRegex.MatchString(userID)
}

// IsValidSessionID applies the same format rules as user ids.
func IsValidSessionID(sessionID string) bool {
	if len(sessionID) < 1 || len(sessionID) > 64 {
		return false
	}
	return idRegex.MatchString(sessionID)
}

// IsValidEventName reports whether name is a client-sendable event.
func IsValidEventName(name string) bool {
	switch name {
	case EventJoin,
		EventJoinSession,
		EventLeaveSession,
		EventTextInput,
		EventLanguageChange,
		EventSetSolution,
		EventSetAdmin,
		EventRemoveAdmin,
		EventSetLinting,
		EventSolutionPresented,
		EventCursorPosition,
		EventSetSelection,
		EventRemoveCursor,
		EventSetNickname:
		return true
	default:
		return false
	}
}

// Validate checks the envelope before any payload decoding happens.
func (e *Event) Validate() error {
	if !IsValidEventName(e.Event) {
		return ErrInvalidEventName
	}
	if len(e.Data) > maxPayloadBytes {
		return ErrPayloadTooLarge
	}
	return nil
}

// Validate checks a template for storage.
func (t *Template) Validate() error {
	if len(t.Title) < 1 || len(t.Title) > 200 {
		return ErrInvalidTitle
	}
	return nil
}

func (p *JoinPayload) Validate() error {
	if !IsValidUserID(p.ID) {
		return ErrInvalidUserID
	}
	return nil
}

func (p *JoinSessionPayload) Validate() error {
	if !IsValidSessionID(p.SessionID) {
		return ErrInvalidSessionID
	}
	if !IsValidUserID(p.UserID) {
		return ErrInvalidUserID
	}
	return nil
}

// Validate for text edits only checks identifiers: an empty Text field is a
// legitimate edit (the user cleared the buffer).
func (p *TextInputPayload) Validate() error {
	if !IsValidSessionID(p.SessionID) {
		return ErrInvalidSessionID
	}
	if !IsValidUserID(p.UserID) {
		return ErrInvalidUserID
	}
	return nil
}

func (p *LanguageChangePayload) Validate() error {
	if !IsValidSessionID(p.SessionID) {
		return ErrInvalidSessionID
	}
	if p.Language == "" {
		return ErrMissingField
	}
	return nil
}

func (p *SetSolutionPayload) Validate() error {
	if !IsValidSessionID(p.SessionID) {
		return ErrInvalidSessionID
	}
	if !IsValidUserID(p.UserID) {
		return ErrInvalidUserID
	}
	if p.TemplateID == "" {
		return ErrMissingField
	}
	return nil
}

func (p *AdminPayload) Validate() error {
	if !IsValidSessionID(p.SessionID) {
		return ErrInvalidSessionID
	}
	if !IsValidUserID(p.UserID) {
		return ErrInvalidUserID
	}
	return nil
}

func (p *SetLintingPayload) Validate() error {
	if !IsValidSessionID(p.SessionID) {
		return ErrInvalidSessionID
	}
	if !IsValidUserID(p.UserID) {
		return ErrInvalidUserID
	}
	return nil
}

func (p *SolutionPresentedPayload) Validate() error {
	if !IsValidSessionID(p.SessionID) {
		return ErrInvalidSessionID
	}
	if !IsValidUserID(p.UserID) {
		return ErrInvalidUserID
	}
	return nil
}

func (p *CursorPositionPayload) Validate() error {
	if !IsValidSessionID(p.SessionID) {
		return ErrInvalidSessionID
	}
	if !IsValidUserID(p.UserID) {
		return ErrInvalidUserID
	}
	if p.Cursor.LineNumber < 1 || p.Cursor.Column < 1 {
		return ErrMissingField
	}
	return nil
}

func (p *SetSelectionPayload) Validate() error {
	if !IsValidSessionID(p.SessionID) {
		return ErrInvalidSessionID
	}
	if !IsValidUserID(p.UserID) {
		return ErrInvalidUserID
	}
	if p.Selection.StartLineNumber < 1 || p.Selection.EndLineNumber < 1 {
		return ErrMissingField
	}
	return nil
}

func (p *RemoveCursorPayload) Validate() error {
	if !IsValidSessionID(p.SessionID) {
		return ErrInvalidSessionID
	}
	if !IsValidUserID(p.UserID) {
		return ErrInvalidUserID
	}
	return nil
}

func (p *SetNicknamePayload) Validate() error {
	if !IsValidUserID(p.UserID) {
		return ErrInvalidUserID
	}
	if p.Nickname == "" {
		return ErrMissingField
	}
	return nil
}
