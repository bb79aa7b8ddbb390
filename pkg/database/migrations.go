package database

import (
	"database/sql"
	"fmt"
	"log"
)

// Migration is one versioned schema change.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// migrations lists every schema change in application order. Versions are
// compared as strings, so keep them zero-padded.
var migrations = []Migration{
	{
		Version:     "001",
		Description: "create sessions table",
		SQL: `
			CREATE TABLE IF NOT EXISTS sessions (
				id                 TEXT PRIMARY KEY,
				language           TEXT NOT NULL DEFAULT 'typescript',
				code               TEXT NOT NULL DEFAULT '',
				solution           TEXT NOT NULL DEFAULT '',
				linting_enabled    INTEGER NOT NULL DEFAULT 0,
				solution_presented INTEGER NOT NULL DEFAULT 0,
				created_by         TEXT NOT NULL,
				admins             TEXT NOT NULL DEFAULT '[]',
				created_at         DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);
			CREATE INDEX IF NOT EXISTS idx_sessions_created_by ON sessions(created_by);
		`,
	},
	{
		Version:     "002",
		Description: "create templates table",
		SQL: `
			CREATE TABLE IF NOT EXISTS templates (
				id       TEXT PRIMARY KEY,
				title    TEXT NOT NULL,
				code     TEXT NOT NULL DEFAULT '',
				language TEXT NOT NULL DEFAULT 'typescript',
				solution TEXT NOT NULL DEFAULT ''
			);
			CREATE INDEX IF NOT EXISTS idx_templates_title ON templates(title);
		`,
	},
}

// MigrationManager applies pending migrations and tracks schema version.
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a migration manager for db.
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// ApplyMigrations applies all pending migrations inside transactions, so a
// failed migration leaves the schema at the previous version.
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.createMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := m.appliedVersions()
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}
		if err := m.applyOne(migration); err != nil {
			return fmt.Errorf("migration %s (%s) failed: %w", migration.Version, migration.Description, err)
		}
		log.Printf("Applied migration: version=%s description=%q", migration.Version, migration.Description)
	}

	return nil
}

func (m *MigrationManager) createMigrationTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (m *MigrationManager) appliedVersions() (map[string]bool, error) {
	rows, err := m.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (m *MigrationManager) applyOne(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}

	if _, err := tx.Exec(migration.SQL); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, migration.Version); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}
