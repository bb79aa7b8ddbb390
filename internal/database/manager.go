package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	dbconfig "codeshare/pkg/database"
	"codeshare/pkg/interfaces"
	"codeshare/pkg/types"
)

// Manager implements interfaces.SessionRepository and
// interfaces.TemplateRepository on top of SQLite. All writes funnel through a
// single goroutine; SQLite tolerates concurrent readers under WAL but only
// one writer.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies pragmas and migrations, and starts
// the writer goroutine.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	if err := dbconfig.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine, retrying
// once after a short delay on failure.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				log.Printf("Database write failed, retrying in 5 seconds: %v", err)
				time.Sleep(5 * time.Second)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion.
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		select {
		case err := <-result:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}
}

// CreateSession persists a new session record.
func (m *Manager) CreateSession(ctx context.Context, session *types.Session) error {
	admins, err := json.Marshal(session.Admins)
	if err != nil {
		return fmt.Errorf("failed to marshal admins: %w", err)
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.Exec(`
			INSERT INTO sessions (id, language, code, solution, linting_enabled, solution_presented, created_by, admins, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			session.ID, session.Language, session.Code, session.Solution,
			session.LintingEnabled, session.SolutionPresented,
			session.CreatedBy, string(admins), session.CreatedAt,
		)
		return err
	})
}

// GetSession returns a session by id, or interfaces.ErrSessionNotFound.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, language, code, solution, linting_enabled, solution_presented, created_by, admins, created_at
		FROM sessions WHERE id = ?`, sessionID)

	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// UpdateSession replaces the stored record wholesale.
func (m *Manager) UpdateSession(ctx context.Context, session *types.Session) error {
	admins, err := json.Marshal(session.Admins)
	if err != nil {
		return fmt.Errorf("failed to marshal admins: %w", err)
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.Exec(`
			UPDATE sessions
			SET language = ?, code = ?, solution = ?, linting_enabled = ?, solution_presented = ?, admins = ?
			WHERE id = ?`,
			session.Language, session.Code, session.Solution,
			session.LintingEnabled, session.SolutionPresented,
			string(admins), session.ID,
		)
		return err
	})
}

// ListSessions returns every stored session, newest first.
func (m *Manager) ListSessions(ctx context.Context) ([]*types.Session, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, language, code, solution, linting_enabled, solution_presented, created_by, admins, created_at
		FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session record. Missing ids are not an error.
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.Exec(`DELETE FROM sessions WHERE id = ?`, sessionID)
		return err
	})
}

// CreateTemplate persists a new template.
func (m *Manager) CreateTemplate(ctx context.Context, template *types.Template) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.Exec(`
			INSERT INTO templates (id, title, code, language, solution)
			VALUES (?, ?, ?, ?, ?)`,
			template.ID, template.Title, template.Code, template.Language, template.Solution,
		)
		return err
	})
}

// GetTemplate returns a template by id, or interfaces.ErrTemplateNotFound.
func (m *Manager) GetTemplate(ctx context.Context, templateID string) (*types.Template, error) {
	var template types.Template
	err := m.db.QueryRowContext(ctx, `
		SELECT id, title, code, language, solution FROM templates WHERE id = ?`, templateID,
	).Scan(&template.ID, &template.Title, &template.Code, &template.Language, &template.Solution)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return &template, nil
}

// UpdateTemplate replaces a stored template.
func (m *Manager) UpdateTemplate(ctx context.Context, template *types.Template) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.Exec(`
			UPDATE templates SET title = ?, code = ?, language = ?, solution = ? WHERE id = ?`,
			template.Title, template.Code, template.Language, template.Solution, template.ID,
		)
		return err
	})
}

// ListTemplates returns all templates ordered by title.
func (m *Manager) ListTemplates(ctx context.Context) ([]*types.Template, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, title, code, language, solution FROM templates ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*types.Template
	for rows.Next() {
		var template types.Template
		if err := rows.Scan(&template.ID, &template.Title, &template.Code, &template.Language, &template.Solution); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, &template)
	}
	return templates, rows.Err()
}

// HealthCheck verifies connectivity and schema.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return dbconfig.NewSchemaValidator(m.db).ValidateTablesExist()
}

// Close stops the writer goroutine and closes the pool.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()
	return m.db.Close()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*types.Session, error) {
	var (
		session   types.Session
		adminsRaw string
	)
	err := row.Scan(
		&session.ID, &session.Language, &session.Code, &session.Solution,
		&session.LintingEnabled, &session.SolutionPresented,
		&session.CreatedBy, &adminsRaw, &session.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(adminsRaw), &session.Admins); err != nil {
		return nil, fmt.Errorf("failed to unmarshal admins: %w", err)
	}
	if session.Admins == nil {
		session.Admins = []string{}
	}
	return &session, nil
}
