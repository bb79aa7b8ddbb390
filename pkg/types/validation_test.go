package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestIsValidUserID_Formats(t *testing.T) {
	cases := []struct {
		name   string
		userID string
		valid  bool
	}{
		{"simple handle", "alice", true},
		{"uuid", "550e8400-e29b-41d4-a716-446655440000", true},
		{"underscores and digits", "user_42", true},
		{"empty", "", false},
		{"whitespace", "alice smith", false},
		{"punctuation", "alice!", false},
		{"too long", strings.Repeat("a", 65), false},
		{"max length", strings.Repeat("a", 64), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsValidUserID(tc.userID); got != tc.valid {
				t.Errorf("IsValidUserID(%q) = %v, want %v", tc.userID, got, tc.valid)
			}
		})
	}
}

func TestEvent_Validate(t *testing.T) {
	evt := &Event{Event: EventTextInput, Data: json.RawMessage(`{}`)}
	if err := evt.Validate(); err != nil {
		t.Errorf("Expected valid event, got %v", err)
	}

	evt = &Event{Event: "launch-missiles"}
	if err := evt.Validate(); err != ErrInvalidEventName {
		t.Errorf("Expected ErrInvalidEventName, got %v", err)
	}

	// Server-originated names are not client-sendable.
	evt = &Event{Event: EventPresence}
	if err := evt.Validate(); err != ErrInvalidEventName {
		t.Errorf("Expected ErrInvalidEventName for server event, got %v", err)
	}

	evt = &Event{Event: EventTextInput, Data: json.RawMessage(strings.Repeat("x", maxPayloadBytes+1))}
	if err := evt.Validate(); err != ErrPayloadTooLarge {
		t.Errorf("Expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestTextInputPayload_Validate_AllowsEmptyText(t *testing.T) {
	p := &TextInputPayload{SessionID: "sess1", UserID: "alice", Text: ""}
	if err := p.Validate(); err != nil {
		t.Errorf("Clearing the buffer should be a valid edit, got %v", err)
	}

	p = &TextInputPayload{SessionID: "", UserID: "alice"}
	if err := p.Validate(); err != ErrInvalidSessionID {
		t.Errorf("Expected ErrInvalidSessionID, got %v", err)
	}
}

func TestCursorPositionPayload_Validate(t *testing.T) {
	p := &CursorPositionPayload{
		SessionID: "sess1",
		UserID:    "alice",
		Cursor:    CursorPosition{LineNumber: 3, Column: 7},
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Expected valid cursor payload, got %v", err)
	}

	// Editor coordinates are 1-based.
	p.Cursor = CursorPosition{LineNumber: 0, Column: 1}
	if err := p.Validate(); err != ErrMissingField {
		t.Errorf("Expected ErrMissingField for zero line, got %v", err)
	}
}

func TestSession_IsPrivileged(t *testing.T) {
	sess := &Session{
		ID:        "sess1",
		CreatedBy: "creator",
		Admins:    []string{"mod"},
	}

	if !sess.IsPrivileged("creator") {
		t.Error("Creator should be privileged")
	}
	if !sess.IsPrivileged("mod") {
		t.Error("Listed admin should be privileged")
	}
	if sess.IsPrivileged("visitor") {
		t.Error("Regular member should not be privileged")
	}
	if sess.IsPrivileged("") {
		t.Error("Empty user id should never be privileged")
	}
}

func TestSession_Clone_Independent(t *testing.T) {
	sess := &Session{ID: "sess1", Admins: []string{"a"}}
	dup := sess.Clone()

	dup.Admins[0] = "b"
	dup.Code = "changed"

	if sess.Admins[0] != "a" {
		t.Error("Clone should not share the admins slice")
	}
	if sess.Code != "" {
		t.Error("Clone should not alias the original")
	}
}

func TestTemplate_Validate(t *testing.T) {
	tmpl := &Template{Title: "FizzBuzz"}
	if err := tmpl.Validate(); err != nil {
		t.Errorf("Expected valid template, got %v", err)
	}

	tmpl.Title = ""
	if err := tmpl.Validate(); err != ErrInvalidTitle {
		t.Errorf("Expected ErrInvalidTitle, got %v", err)
	}

	tmpl.Title = strings.Repeat("t", 201)
	if err := tmpl.Validate(); err != ErrInvalidTitle {
		t.Errorf("Expected ErrInvalidTitle for oversized title, got %v", err)
	}
}

func TestNewEvent_RoundTrip(t *testing.T) {
	evt, err := NewEvent(EventTextInput, TextInputPayload{SessionID: "s", UserID: "u", Text: "code"})
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}

	var p TextInputPayload
	if err := json.Unmarshal(evt.Data, &p); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if p.Text != "code" || p.SessionID != "s" {
		t.Errorf("Payload did not survive the envelope: %+v", p)
	}
}
