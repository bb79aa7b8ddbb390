package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"codeshare/pkg/interfaces"
	"codeshare/pkg/types"
)

// DefaultLanguage and DefaultCode seed freshly created sessions so a new room
// never opens onto an empty editor.
const DefaultLanguage = "typescript"

const DefaultCode = `// Welcome! This buffer is shared with everyone in the session.

function greet(name: string): string {
    return ` + "`Hello, ${name}!`" + `;
}

console.log(greet("world"));
`

// Store is the authoritative in-memory state for every active session. The
// durable repository is consulted on first reference; afterwards mutations
// are applied in memory and persisted write-behind through a single ordered
// queue, so no event handler ever blocks on storage.
type Store struct {
	repo interfaces.SessionRepository

	mu       sync.RWMutex
	sessions map[string]*entry

	persistCh chan *types.Session
	shutdown  chan struct{}
	wg        sync.WaitGroup
	closed    bool
}

// entry guards one session's fields. Callers serialize whole events through
// the router's per-session locks; this inner mutex only protects direct
// field access from the REST surface.
type entry struct {
	mu   sync.Mutex
	sess *types.Session
}

// NewStore creates a session store and starts its persistence worker.
func NewStore(repo interfaces.SessionRepository) *Store {
	s := &Store{
		repo:      repo,
		sessions:  make(map[string]*entry),
		persistCh: make(chan *types.Session, 256),
		shutdown:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.persistLoop()
	return s
}

// persistLoop writes session snapshots back to the repository in submission
// order. Snapshots are enqueued while the session entry is locked, so the
// queue order matches the mutation order and the last write to reach the
// repository is the last mutation applied.
func (s *Store) persistLoop() {
	defer s.wg.Done()

	for {
		select {
		case snapshot := <-s.persistCh:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := s.repo.UpdateSession(ctx, snapshot); err != nil {
				log.Printf("Session persist failed: session=%s err=%v", snapshot.ID, err)
			}
			cancel()

		case <-s.shutdown:
			// Drain what is already queued before exiting.
			for {
				select {
				case snapshot := <-s.persistCh:
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					if err := s.repo.UpdateSession(ctx, snapshot); err != nil {
						log.Printf("Session persist failed during shutdown: session=%s err=%v", snapshot.ID, err)
					}
					cancel()
				default:
					return
				}
			}
		}
	}
}

// Close flushes pending persists and stops the worker.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()
}

// Create makes a brand-new session with a server-assigned id, seeds the
// starter buffer, and persists it synchronously (creation is a REST call, not
// an event-loop operation).
func (s *Store) Create(ctx context.Context, createdBy string) (*types.Session, error) {
	sess := &types.Session{
		ID:        uuid.New().String(),
		Language:  DefaultLanguage,
		Code:      DefaultCode,
		Admins:    []string{},
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.mu.Lock()
	s.sessions[sess.ID] = &entry{sess: sess}
	s.mu.Unlock()

	log.Printf("Created session: id=%s createdBy=%s", sess.ID, createdBy)
	return sess.Clone(), nil
}

// Load returns the session, fetching it from the repository on first
// reference. This is the only storage read on the event path; callers that
// need an existing session get interfaces.ErrSessionNotFound passed through.
func (s *Store) Load(ctx context.Context, sessionID string) (*types.Session, error) {
	s.mu.RLock()
	e, exists := s.sessions[sessionID]
	s.mu.RUnlock()
	if exists {
		return s.snapshot(e), nil
	}

	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	s.mu.Lock()
	// Another loader may have won the race; keep the first entry.
	if existing, ok := s.sessions[sessionID]; ok {
		s.mu.Unlock()
		return s.snapshot(existing), nil
	}
	e = &entry{sess: sess}
	s.sessions[sessionID] = e
	s.mu.Unlock()

	log.Printf("Loaded session: id=%s createdBy=%s", sess.ID, sess.CreatedBy)
	return s.snapshot(e), nil
}

// Loaded reports whether the session is resident without touching storage.
func (s *Store) Loaded(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.sessions[sessionID]
	return exists
}

// Evict drops a session from memory. Used by the reset endpoint after the
// stored record is deleted.
func (s *Store) Evict(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

// ApplyTextEdit replaces the code buffer wholesale. Full-text last-write-wins
// by design: there is no merge, and a stale edit arriving late overwrites a
// newer one.
func (s *Store) ApplyTextEdit(sessionID, text string) (*types.Session, error) {
	return s.mutate(sessionID, func(sess *types.Session) error {
		sess.Code = text
		return nil
	})
}

// ApplyLanguageChange replaces the language tag.
func (s *Store) ApplyLanguageChange(sessionID, language string) (*types.Session, error) {
	return s.mutate(sessionID, func(sess *types.Session) error {
		sess.Language = language
		return nil
	})
}

// ApplyTemplate replaces code, language and solution from a resolved template
// and re-hides the solution until an admin presents it again.
func (s *Store) ApplyTemplate(sessionID string, template *types.Template) (*types.Session, error) {
	return s.mutate(sessionID, func(sess *types.Session) error {
		sess.Code = template.Code
		sess.Language = template.Language
		sess.Solution = template.Solution
		sess.SolutionPresented = false
		return nil
	})
}

// ApplyLintingToggle replaces the linting flag.
func (s *Store) ApplyLintingToggle(sessionID string, enabled bool) (*types.Session, error) {
	return s.mutate(sessionID, func(sess *types.Session) error {
		sess.LintingEnabled = enabled
		return nil
	})
}

// ApplySolutionPresented replaces the solution-presented flag.
func (s *Store) ApplySolutionPresented(sessionID string, presented bool) (*types.Session, error) {
	return s.mutate(sessionID, func(sess *types.Session) error {
		sess.SolutionPresented = presented
		return nil
	})
}

// AddAdmin grants userID admin rights. The creator is implicitly privileged
// and is never stored in the admin set, so promoting them is a no-op.
func (s *Store) AddAdmin(sessionID, userID string) (*types.Session, error) {
	return s.mutate(sessionID, func(sess *types.Session) error {
		if !types.IsValidUserID(userID) {
			return ErrInvalidUserID
		}
		if userID == sess.CreatedBy {
			return nil
		}
		for _, admin := range sess.Admins {
			if admin == userID {
				return nil
			}
		}
		sess.Admins = append(sess.Admins, userID)
		return nil
	})
}

// RemoveAdmin revokes userID's admin rights. Demoting the creator is
// rejected; their privilege is not representable in the admin set.
func (s *Store) RemoveAdmin(sessionID, userID string) (*types.Session, error) {
	return s.mutate(sessionID, func(sess *types.Session) error {
		if userID == sess.CreatedBy {
			return ErrCreatorImmutable
		}
		for i, admin := range sess.Admins {
			if admin == userID {
				sess.Admins = append(sess.Admins[:i], sess.Admins[i+1:]...)
				return nil
			}
		}
		return nil
	})
}

// mutate applies fn to a loaded session under its entry lock, enqueues a
// persist snapshot, and returns a clone of the result.
func (s *Store) mutate(sessionID string, fn func(*types.Session) error) (*types.Session, error) {
	s.mu.RLock()
	e, exists := s.sessions[sessionID]
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrStoreClosed
	}
	if !exists {
		return nil, ErrSessionNotLoaded
	}

	e.mu.Lock()
	if err := fn(e.sess); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	snapshot := e.sess.Clone()
	e.mu.Unlock()

	// Non-blocking enqueue: if the persist queue is saturated the in-memory
	// state is still authoritative and a later mutation will re-snapshot.
	select {
	case s.persistCh <- snapshot:
	default:
		log.Printf("Persist queue full, dropping snapshot: session=%s", sessionID)
	}

	return snapshot.Clone(), nil
}

func (s *Store) snapshot(e *entry) *types.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.Clone()
}
