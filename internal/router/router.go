package router

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"codeshare/internal/cursor"
	"codeshare/internal/hub"
	"codeshare/internal/metrics"
	"codeshare/internal/presence"
	"codeshare/internal/session"
	"codeshare/internal/websocket"
	"codeshare/pkg/interfaces"
	"codeshare/pkg/types"
)

// Drop reasons recorded in metrics when an inbound event is discarded.
const (
	dropMalformed        = "malformed"
	dropUnbound          = "unbound"
	dropNotMember        = "not_member"
	dropUnauthorized     = "unauthorized"
	dropSessionNotFound  = "session_not_found"
	dropTemplateNotFound = "template_not_found"
	dropRateLimited      = "rate_limited"
	dropInternal         = "internal"
)

// Router is the single entry point for every inbound event. It validates the
// payload, enforces the per-connection state machine and the admin
// authorization rules, applies the mutation against the owning store, and
// fans the result out according to the per-event echo policy.
//
// Every session-scoped event runs with that session's lock held across
// apply+broadcast, so all members observe racing mutations in the same order.
type Router struct {
	sessions    *session.Store
	templates   interfaces.TemplateRepository
	cursors     *cursor.Tracker
	presence    *presence.Tracker
	lifecycle   *hub.Hub
	broadcaster *websocket.Broadcaster
	metrics     *metrics.Metrics
	limiter     *RateLimiter
	locks       *sessionLocks

	running  bool
	mu       sync.RWMutex
	shutdown chan struct{}
}

// NewRouter creates an event router.
func NewRouter(
	sessions *session.Store,
	templates interfaces.TemplateRepository,
	cursorTracker *cursor.Tracker,
	presenceTracker *presence.Tracker,
	lifecycle *hub.Hub,
	broadcaster *websocket.Broadcaster,
	m *metrics.Metrics,
	eventsPerMinute int,
) *Router {
	return &Router{
		sessions:    sessions,
		templates:   templates,
		cursors:     cursorTracker,
		presence:    presenceTracker,
		lifecycle:   lifecycle,
		broadcaster: broadcaster,
		metrics:     m,
		limiter:     NewRateLimiter(eventsPerMinute),
		locks:       newSessionLocks(),
		shutdown:    make(chan struct{}),
	}
}

// Start launches the router's maintenance loop (rate limiter cleanup).
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrRouterAlreadyRunning
	}
	r.running = true
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.limiter.Cleanup()
			case <-r.shutdown:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop halts the maintenance loop.
func (r *Router) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return ErrRouterNotRunning
	}
	r.running = false

	select {
	case <-r.shutdown:
	default:
		close(r.shutdown)
	}
	return nil
}

// HandleEvent dispatches one inbound event. No inbound event is fatal to the
// connection; invalid ones are dropped and logged.
func (r *Router) HandleEvent(ctx context.Context, conn *websocket.Connection, event *types.Event) {
	if err := event.Validate(); err != nil {
		r.drop(conn, event.Event, dropMalformed, err)
		return
	}
	r.metrics.EventsTotal.WithLabelValues(event.Event).Inc()

	// State machine: an unbound connection may only introduce itself and
	// join a session. Everything else is dropped.
	switch event.Event {
	case types.EventJoin, types.EventJoinSession:
	default:
		if !conn.Bound() {
			r.drop(conn, event.Event, dropUnbound, ErrNotJoined)
			return
		}
	}

	switch event.Event {
	case types.EventJoin:
		r.handleJoin(conn, event.Data)
	case types.EventJoinSession:
		r.handleJoinSession(ctx, conn, event.Data)
	case types.EventLeaveSession:
		r.handleLeaveSession(conn, event.Data)
	case types.EventTextInput:
		r.handleTextInput(conn, event.Data)
	case types.EventLanguageChange:
		r.handleLanguageChange(conn, event.Data)
	case types.EventSetSolution:
		r.handleSetSolution(ctx, conn, event.Data)
	case types.EventSetAdmin:
		r.handleSetAdmin(ctx, conn, event.Data)
	case types.EventRemoveAdmin:
		r.handleRemoveAdmin(ctx, conn, event.Data)
	case types.EventSetLinting:
		r.handleSetLinting(ctx, conn, event.Data)
	case types.EventSolutionPresented:
		r.handleSolutionPresented(ctx, conn, event.Data)
	case types.EventCursorPosition:
		r.handleCursorPosition(conn, event.Data)
	case types.EventSetSelection:
		r.handleSetSelection(conn, event.Data)
	case types.EventRemoveCursor:
		r.handleRemoveCursor(conn, event.Data)
	case types.EventSetNickname:
		r.handleSetNickname(conn, event.Data)
	}
}

// HandleDisconnect runs the disconnect cascade under the session lock, so a
// departing member's presence broadcast cannot interleave with a concurrent
// mutation's broadcast for the same session.
func (r *Router) HandleDisconnect(conn *websocket.Connection) {
	if sessionID := conn.SessionID(); sessionID != "" {
		lock := r.locks.get(sessionID)
		lock.Lock()
		defer lock.Unlock()
	}
	r.lifecycle.Disconnect(conn)
}

// handleJoin records the client's identity. Valid before any session binding.
func (r *Router) handleJoin(conn *websocket.Connection, data json.RawMessage) {
	var p types.JoinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.drop(conn, types.EventJoin, dropMalformed, err)
		return
	}
	if err := p.Validate(); err != nil {
		r.drop(conn, types.EventJoin, dropMalformed, err)
		return
	}

	nickname := p.Nickname
	if nickname == "" {
		nickname = presence.GenerateNickname()
	}
	conn.SetIdentity(p.ID, nickname)
	log.Printf("Client identified: conn=%s user=%s nickname=%q", conn.ID(), p.ID, nickname)
}

func (r *Router) handleJoinSession(ctx context.Context, conn *websocket.Connection, data json.RawMessage) {
	var p types.JoinSessionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.drop(conn, types.EventJoinSession, dropMalformed, err)
		return
	}
	if err := p.Validate(); err != nil {
		r.drop(conn, types.EventJoinSession, dropMalformed, err)
		return
	}

	// A join-session before join still carries the user id; keep any
	// nickname already announced.
	if conn.UserID() == "" {
		conn.SetIdentity(p.UserID, presence.GenerateNickname())
	}

	lock := r.locks.get(p.SessionID)
	lock.Lock()
	defer lock.Unlock()

	// The initial load is the only storage read on the event path.
	sess, err := r.sessions.Load(ctx, p.SessionID)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			r.metrics.EventErrors.WithLabelValues(dropSessionNotFound).Inc()
			r.reply(conn, types.EventJoinRejected, types.JoinRejectedPayload{
				SessionID: p.SessionID,
				Reason:    "session not found",
			})
			return
		}
		r.drop(conn, types.EventJoinSession, dropInternal, err)
		return
	}

	if err := r.lifecycle.Join(conn, sess); err != nil {
		r.drop(conn, types.EventJoinSession, dropInternal, err)
	}
}

func (r *Router) handleLeaveSession(conn *websocket.Connection, data json.RawMessage) {
	var p types.LeaveSessionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.drop(conn, types.EventLeaveSession, dropMalformed, err)
		return
	}
	if p.SessionID != conn.SessionID() {
		r.drop(conn, types.EventLeaveSession, dropNotMember, ErrNotMember)
		return
	}

	lock := r.locks.get(p.SessionID)
	lock.Lock()
	defer lock.Unlock()

	r.lifecycle.Leave(conn)
}

// handleTextInput replaces the shared buffer wholesale and fans it out to
// every other member. The sender never receives its own edit back.
func (r *Router) handleTextInput(conn *websocket.Connection, data json.RawMessage) {
	var p types.TextInputPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.drop(conn, types.EventTextInput, dropMalformed, err)
		return
	}
	if err := p.Validate(); err != nil {
		r.drop(conn, types.EventTextInput, dropMalformed, err)
		return
	}
	if !r.isMember(conn, p.SessionID) {
		r.drop(conn, types.EventTextInput, dropNotMember, ErrNotMember)
		return
	}
	if !r.limiter.Allow(conn.ID()) {
		r.drop(conn, types.EventTextInput, dropRateLimited, ErrRateLimitExceeded)
		return
	}

	lock := r.locks.get(p.SessionID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := r.sessions.ApplyTextEdit(p.SessionID, p.Text); err != nil {
		r.drop(conn, types.EventTextInput, dropInternal, err)
		return
	}

	r.broadcast(p.SessionID, types.EventTextInput, types.TextInputPayload{
		SessionID: p.SessionID,
		UserID:    conn.UserID(),
		Text:      p.Text,
	}, conn.ID())
}

func (r *Router) handleLanguageChange(conn *websocket.Connection, data json.RawMessage) {
	var p types.LanguageChangePayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.drop(conn, types.EventLanguageChange, dropMalformed, err)
		return
	}
	if err := p.Validate(); err != nil {
		r.drop(conn, types.EventLanguageChange, dropMalformed, err)
		return
	}
	if !r.isMember(conn, p.SessionID) {
		r.drop(conn, types.EventLanguageChange, dropNotMember, ErrNotMember)
		return
	}

	lock := r.locks.get(p.SessionID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := r.sessions.ApplyLanguageChange(p.SessionID, p.Language); err != nil {
		r.drop(conn, types.EventLanguageChange, dropInternal, err)
		return
	}

	// Confirmed state echoes to the sender too.
	r.broadcast(p.SessionID, types.EventLanguageChange, types.LanguageChangePayload{
		SessionID: p.SessionID,
		Language:  p.Language,
	}, "")
}

// handleSetSolution resolves the template and swaps the session's code,
// language and solution in one mutation. Selecting a template re-hides the
// solution until an admin presents it again.
func (r *Router) handleSetSolution(ctx context.Context, conn *websocket.Connection, data json.RawMessage) {
	var p types.SetSolutionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.drop(conn, types.EventSetSolution, dropMalformed, err)
		return
	}
	if err := p.Validate(); err != nil {
		r.drop(conn, types.EventSetSolution, dropMalformed, err)
		return
	}
	if !r.isMember(conn, p.SessionID) {
		r.drop(conn, types.EventSetSolution, dropNotMember, ErrNotMember)
		return
	}

	lock := r.locks.get(p.SessionID)
	lock.Lock()
	defer lock.Unlock()

	if !r.isPrivileged(ctx, conn, p.SessionID) {
		r.drop(conn, types.EventSetSolution, dropUnauthorized, interfaces.ErrUnauthorized)
		return
	}

	template, err := r.templates.GetTemplate(ctx, p.TemplateID)
	if err != nil {
		if errors.Is(err, interfaces.ErrTemplateNotFound) {
			r.metrics.EventErrors.WithLabelValues(dropTemplateNotFound).Inc()
			r.reply(conn, types.EventError, types.ErrorPayload{
				Code:    "template-not-found",
				Message: "template " + p.TemplateID + " does not exist",
			})
			return
		}
		r.drop(conn, types.EventSetSolution, dropInternal, err)
		return
	}

	sess, err := r.sessions.ApplyTemplate(p.SessionID, template)
	if err != nil {
		r.drop(conn, types.EventSetSolution, dropInternal, err)
		return
	}

	r.broadcast(p.SessionID, types.EventSetSolution, types.SessionState(sess), "")
}

func (r *Router) handleSetAdmin(ctx context.Context, conn *websocket.Connection, data json.RawMessage) {
	var p types.AdminPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.drop(conn, types.EventSetAdmin, dropMalformed, err)
		return
	}
	if err := p.Validate(); err != nil {
		r.drop(conn, types.EventSetAdmin, dropMalformed, err)
		return
	}
	if !r.isMember(conn, p.SessionID) {
		r.drop(conn, types.EventSetAdmin, dropNotMember, ErrNotMember)
		return
	}

	lock := r.locks.get(p.SessionID)
	lock.Lock()
	defer lock.Unlock()

	if !r.isPrivileged(ctx, conn, p.SessionID) {
		r.drop(conn, types.EventSetAdmin, dropUnauthorized, interfaces.ErrUnauthorized)
		return
	}

	sess, err := r.sessions.AddAdmin(p.SessionID, p.UserID)
	if err != nil {
		r.drop(conn, types.EventSetAdmin, dropInternal, err)
		return
	}

	r.broadcast(p.SessionID, types.EventSetAdmin, types.AdminListPayload{
		SessionID: p.SessionID,
		Admins:    sess.Admins,
	}, "")
}

func (r *Router) handleRemoveAdmin(ctx context.Context, conn *websocket.Connection, data json.RawMessage) {
	var p types.AdminPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.drop(conn, types.EventRemoveAdmin, dropMalformed, err)
		return
	}
	if err := p.Validate(); err != nil {
		r.drop(conn, types.EventRemoveAdmin, dropMalformed, err)
		return
	}
	if !r.isMember(conn, p.SessionID) {
		r.drop(conn, types.EventRemoveAdmin, dropNotMember, ErrNotMember)
		return
	}

	lock := r.locks.get(p.SessionID)
	lock.Lock()
	defer lock.Unlock()

	if !r.isPrivileged(ctx, conn, p.SessionID) {
		r.drop(conn, types.EventRemoveAdmin, dropUnauthorized, interfaces.ErrUnauthorized)
		return
	}

	sess, err := r.sessions.RemoveAdmin(p.SessionID, p.UserID)
	if err != nil {
		// Demoting the creator is a silent no-op: nothing changed, so
		// nothing is broadcast.
		if errors.Is(err, session.ErrCreatorImmutable) {
			log.Printf("Ignoring remove-admin for creator: session=%s user=%s", p.SessionID, p.UserID)
			return
		}
		r.drop(conn, types.EventRemoveAdmin, dropInternal, err)
		return
	}

	r.broadcast(p.SessionID, types.EventRemoveAdmin, types.AdminListPayload{
		SessionID: p.SessionID,
		Admins:    sess.Admins,
	}, "")
}

func (r *Router) handleSetLinting(ctx context.Context, conn *websocket.Connection, data json.RawMessage) {
	var p types.SetLintingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.drop(conn, types.EventSetLinting, dropMalformed, err)
		return
	}
	if err := p.Validate(); err != nil {
		r.drop(conn, types.EventSetLinting, dropMalformed, err)
		return
	}
	if !r.isMember(conn, p.SessionID) {
		r.drop(conn, types.EventSetLinting, dropNotMember, ErrNotMember)
		return
	}

	lock := r.locks.get(p.SessionID)
	lock.Lock()
	defer lock.Unlock()

	if !r.isPrivileged(ctx, conn, p.SessionID) {
		r.drop(conn, types.EventSetLinting, dropUnauthorized, interfaces.ErrUnauthorized)
		return
	}

	if _, err := r.sessions.ApplyLintingToggle(p.SessionID, p.LintingEnabled); err != nil {
		r.drop(conn, types.EventSetLinting, dropInternal, err)
		return
	}

	r.broadcast(p.SessionID, types.EventSetLinting, types.SetLintingPayload{
		SessionID:      p.SessionID,
		LintingEnabled: p.LintingEnabled,
		UserID:         conn.UserID(),
	}, "")
}

func (r *Router) handleSolutionPresented(ctx context.Context, conn *websocket.Connection, data json.RawMessage) {
	var p types.SolutionPresentedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.drop(conn, types.EventSolutionPresented, dropMalformed, err)
		return
	}
	if err := p.Validate(); err != nil {
		r.drop(conn, types.EventSolutionPresented, dropMalformed, err)
		return
	}
	if !r.isMember(conn, p.SessionID) {
		r.drop(conn, types.EventSolutionPresented, dropNotMember, ErrNotMember)
		return
	}

	lock := r.locks.get(p.SessionID)
	lock.Lock()
	defer lock.Unlock()

	if !r.isPrivileged(ctx, conn, p.SessionID) {
		r.drop(conn, types.EventSolutionPresented, dropUnauthorized, interfaces.ErrUnauthorized)
		return
	}

	if _, err := r.sessions.ApplySolutionPresented(p.SessionID, p.Presented); err != nil {
		r.drop(conn, types.EventSolutionPresented, dropInternal, err)
		return
	}

	r.broadcast(p.SessionID, types.EventSolutionPresented, types.SolutionPresentedPayload{
		SessionID: p.SessionID,
		UserID:    conn.UserID(),
		Presented: p.Presented,
	}, "")
}

// handleCursorPosition upserts the sender's caret and broadcasts the full
// cursor list to everyone else. Clients reconcile wholesale.
func (r *Router) handleCursorPosition(conn *websocket.Connection, data json.RawMessage) {
	var p types.CursorPositionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.drop(conn, types.EventCursorPosition, dropMalformed, err)
		return
	}
	if err := p.Validate(); err != nil {
		r.drop(conn, types.EventCursorPosition, dropMalformed, err)
		return
	}
	if !r.isMember(conn, p.SessionID) {
		r.drop(conn, types.EventCursorPosition, dropNotMember, ErrNotMember)
		return
	}

	lock := r.locks.get(p.SessionID)
	lock.Lock()
	defer lock.Unlock()

	cursors := r.cursors.SetCursor(p.SessionID, conn.UserID(), p.Cursor)
	r.broadcast(p.SessionID, types.EventCursorPosition, types.CursorListPayload{
		SessionID: p.SessionID,
		Cursors:   cursors,
	}, conn.ID())
}

func (r *Router) handleSetSelection(conn *websocket.Connection, data json.RawMessage) {
	var p types.SetSelectionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.drop(conn, types.EventSetSelection, dropMalformed, err)
		return
	}
	if err := p.Validate(); err != nil {
		r.drop(conn, types.EventSetSelection, dropMalformed, err)
		return
	}
	if !r.isMember(conn, p.SessionID) {
		r.drop(conn, types.EventSetSelection, dropNotMember, ErrNotMember)
		return
	}

	lock := r.locks.get(p.SessionID)
	lock.Lock()
	defer lock.Unlock()

	selections := r.cursors.SetSelection(p.SessionID, conn.UserID(), p.Selection)
	r.broadcast(p.SessionID, types.EventSetSelection, types.SelectionListPayload{
		SessionID:  p.SessionID,
		Selections: selections,
	}, conn.ID())
}

func (r *Router) handleRemoveCursor(conn *websocket.Connection, data json.RawMessage) {
	var p types.RemoveCursorPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.drop(conn, types.EventRemoveCursor, dropMalformed, err)
		return
	}
	if err := p.Validate(); err != nil {
		r.drop(conn, types.EventRemoveCursor, dropMalformed, err)
		return
	}
	if !r.isMember(conn, p.SessionID) {
		r.drop(conn, types.EventRemoveCursor, dropNotMember, ErrNotMember)
		return
	}

	lock := r.locks.get(p.SessionID)
	lock.Lock()
	defer lock.Unlock()

	if r.cursors.Remove(p.SessionID, conn.UserID()) {
		r.broadcast(p.SessionID, types.EventRemoveCursor, types.RemoveCursorPayload{
			SessionID: p.SessionID,
			UserID:    conn.UserID(),
		}, conn.ID())
	}
}

// handleSetNickname patches the sender's roster entry. Other members get the
// change event to patch in place; the sender gets the same event back as
// confirmation.
func (r *Router) handleSetNickname(conn *websocket.Connection, data json.RawMessage) {
	var p types.SetNicknamePayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.drop(conn, types.EventSetNickname, dropMalformed, err)
		return
	}
	if err := p.Validate(); err != nil {
		r.drop(conn, types.EventSetNickname, dropMalformed, err)
		return
	}

	sessionID := conn.SessionID()
	lock := r.locks.get(sessionID)
	lock.Lock()
	defer lock.Unlock()

	conn.SetNickname(p.Nickname)
	r.presence.SetNickname(sessionID, conn.UserID(), p.Nickname)

	changed := types.NicknameChangedPayload{
		UserID:   conn.UserID(),
		Nickname: p.Nickname,
		SocketID: conn.ID(),
	}
	r.broadcast(sessionID, types.EventSetNickname, changed, conn.ID())
	r.reply(conn, types.EventSetNickname, changed)
}

// isMember reports whether conn is currently bound to sessionID.
func (r *Router) isMember(conn *websocket.Connection, sessionID string) bool {
	return sessionID != "" && conn.SessionID() == sessionID
}

// isPrivileged checks the admin-or-creator rule against the loaded session.
// Caller holds the session lock, so joining must have loaded it already.
func (r *Router) isPrivileged(ctx context.Context, conn *websocket.Connection, sessionID string) bool {
	sess, err := r.sessions.Load(ctx, sessionID)
	if err != nil {
		return false
	}
	return sess.IsPrivileged(conn.UserID())
}

// broadcast fans out with the given echo policy and records the metric.
func (r *Router) broadcast(sessionID, event string, payload interface{}, excludeConnID string) {
	r.broadcaster.ToSession(sessionID, event, payload, excludeConnID)
	r.metrics.BroadcastsTotal.WithLabelValues(event).Inc()
}

// reply sends a direct event to one connection.
func (r *Router) reply(conn *websocket.Connection, event string, payload interface{}) {
	if err := conn.SendEvent(event, payload); err != nil {
		log.Printf("Direct reply failed: event=%s conn=%s err=%v", event, conn.ID(), err)
	}
}

// drop discards an event, logging and counting the reason. Authorization
// failures stay silent on the wire so probing reveals nothing beyond the
// already-broadcast admin list.
func (r *Router) drop(conn *websocket.Connection, event, reason string, err error) {
	r.metrics.EventErrors.WithLabelValues(reason).Inc()
	log.Printf("Dropped event: event=%s conn=%s user=%s reason=%s err=%v",
		event, conn.ID(), conn.UserID(), reason, err)
}
