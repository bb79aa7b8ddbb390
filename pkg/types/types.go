package types

import (
	"encoding/json"
	"time"
)

// Canonical websocket event names. These are the wire contract shared with the
// browser client and must not be renamed.
const (
	EventJoin              = "join"
	EventJoinSession       = "join-session"
	EventLeaveSession      = "leave-session"
	EventTextInput         = "text-input"
	EventLanguageChange    = "language-change"
	EventSetSolution       = "set-solution"
	EventSetAdmin          = "set-admin"
	EventRemoveAdmin       = "remove-admin"
	EventSetLinting        = "set-linting"
	EventSolutionPresented = "solution-presented"
	EventCursorPosition    = "send-cursor-position"
	EventSetSelection      = "set-selection"
	EventRemoveCursor      = "remove-cursor"
	EventSetNickname       = "set-nickname"

	// Server-originated events.
	EventPresence     = "presence"
	EventJoinRejected = "join-rejected"
	EventError        = "error"
)

// Event is the framing envelope for every websocket message in both
// directions: a named event plus a JSON payload.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEvent marshals payload into an Event envelope.
func NewEvent(name string, payload interface{}) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, ErrInvalidPayload
	}
	return &Event{Event: name, Data: data}, nil
}

// Session is the authoritative state of one collaborative room.
// Membership is transient and tracked separately; these fields survive
// every connection coming and going.
type Session struct {
	ID                string    `json:"id"`
	Language          string    `json:"language"`
	Code              string    `json:"code"`
	Solution          string    `json:"solution"`
	LintingEnabled    bool      `json:"lintingEnabled"`
	SolutionPresented bool      `json:"solutionPresented"`
	CreatedBy         string    `json:"createdBy"`
	Admins            []string  `json:"admins"`
	CreatedAt         time.Time `json:"createdAt"`
}

// IsPrivileged reports whether userID may perform admin-gated actions.
// The creator is implicitly privileged and is never stored in Admins.
func (s *Session) IsPrivileged(userID string) bool {
	if userID == "" {
		return false
	}
	if userID == s.CreatedBy {
		return true
	}
	for _, admin := range s.Admins {
		if admin == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand out after the session lock is
// released.
func (s *Session) Clone() *Session {
	dup := *s
	dup.Admins = append([]string(nil), s.Admins...)
	return &dup
}

// Template is a reusable exercise: starter code plus a reference solution.
type Template struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Code     string `json:"code"`
	Language string `json:"language"`
	Solution string `json:"solution"`
}

// CursorPosition mirrors the editor's 1-based caret coordinates.
type CursorPosition struct {
	LineNumber int `json:"lineNumber"`
	Column     int `json:"column"`
}

// SelectionRange is a text selection in editor coordinates.
type SelectionRange struct {
	StartLineNumber int `json:"startLineNumber"`
	StartColumn     int `json:"startColumn"`
	EndLineNumber   int `json:"endLineNumber"`
	EndColumn       int `json:"endColumn"`
}

// CursorState is the ephemeral cursor/selection of one user in one session.
// At most one entry exists per (session, user) pair; last update wins.
type CursorState struct {
	UserID    string          `json:"userId"`
	Cursor    CursorPosition  `json:"cursor"`
	Selection *SelectionRange `json:"selection,omitempty"`
}

// PresenceEntry is one distinct user in a session roster.
type PresenceEntry struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
}

// Client->server payloads.

type JoinPayload struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
}

type JoinSessionPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

type LeaveSessionPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

type TextInputPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Text      string `json:"text"`
}

type LanguageChangePayload struct {
	SessionID string `json:"sessionId"`
	Language  string `json:"language"`
}

type SetSolutionPayload struct {
	SessionID  string `json:"sessionId"`
	UserID     string `json:"userId"`
	TemplateID string `json:"templateId"`
}

// AdminPayload carries the target user of a set-admin / remove-admin request.
type AdminPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

type SetLintingPayload struct {
	SessionID      string `json:"sessionId"`
	LintingEnabled bool   `json:"lintingEnabled"`
	UserID         string `json:"userId"`
}

type SolutionPresentedPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Presented bool   `json:"presented"`
}

type CursorPositionPayload struct {
	SessionID string         `json:"sessionId"`
	UserID    string         `json:"userId"`
	Cursor    CursorPosition `json:"cursor"`
}

type SetSelectionPayload struct {
	SessionID string         `json:"sessionId"`
	UserID    string         `json:"userId"`
	Selection SelectionRange `json:"selection"`
}

type RemoveCursorPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

type SetNicknamePayload struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
}

// Server->client payloads.

// SessionStatePayload carries a full session snapshot. Sent to a connection
// right after it joins and broadcast after a template is applied.
type SessionStatePayload struct {
	SessionID         string   `json:"sessionId"`
	Language          string   `json:"language"`
	Code              string   `json:"code"`
	Solution          string   `json:"solution"`
	LintingEnabled    bool     `json:"lintingEnabled"`
	SolutionPresented bool     `json:"solutionPresented"`
	CreatedBy         string   `json:"createdBy"`
	Admins            []string `json:"admins"`
}

// SessionState builds the wire snapshot for a session.
func SessionState(s *Session) SessionStatePayload {
	return SessionStatePayload{
		SessionID:         s.ID,
		Language:          s.Language,
		Code:              s.Code,
		Solution:          s.Solution,
		LintingEnabled:    s.LintingEnabled,
		SolutionPresented: s.SolutionPresented,
		CreatedBy:         s.CreatedBy,
		Admins:            append([]string(nil), s.Admins...),
	}
}

// AdminListPayload is the confirmed admin set after a promote/demote.
type AdminListPayload struct {
	SessionID string   `json:"sessionId"`
	Admins    []string `json:"admins"`
}

// PresencePayload is the full roster of distinct users in a session.
type PresencePayload struct {
	SessionID string          `json:"sessionId"`
	Users     []PresenceEntry `json:"users"`
}

// CursorListPayload carries the full cursor list for a session; clients
// reconcile against it wholesale rather than patching deltas.
type CursorListPayload struct {
	SessionID string        `json:"sessionId"`
	Cursors   []CursorState `json:"cursors"`
}

// SelectionListPayload is the selection counterpart of CursorListPayload,
// broadcast on its own channel since selections are rarer and heavier.
type SelectionListPayload struct {
	SessionID  string        `json:"sessionId"`
	Selections []CursorState `json:"selections"`
}

// NicknameChangedPayload patches a single roster entry in place.
type NicknameChangedPayload struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
	SocketID string `json:"socketId"`
}

type JoinRejectedPayload struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
