package database

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestApplyMigrations_CreatesSchema(t *testing.T) {
	db := openTestDB(t)

	if err := NewMigrationManager(db).ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}

	if err := NewSchemaValidator(db).ValidateTablesExist(); err != nil {
		t.Errorf("Expected all tables present, got %v", err)
	}
}

func TestApplyMigrations_Idempotent(t *testing.T) {
	db := openTestDB(t)
	manager := NewMigrationManager(db)

	if err := manager.ApplyMigrations(); err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	if err := manager.ApplyMigrations(); err != nil {
		t.Fatalf("Second run should be a no-op, got %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("Failed to count migrations: %v", err)
	}
	if count != len(migrations) {
		t.Errorf("Expected %d applied migrations, got %d", len(migrations), count)
	}
}

func TestApplyMigrations_RecordsVersions(t *testing.T) {
	db := openTestDB(t)
	if err := NewMigrationManager(db).ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}

	rows, err := db.Query(`SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		versions = append(versions, v)
	}
	for i, migration := range migrations {
		if i >= len(versions) || versions[i] != migration.Version {
			t.Fatalf("Expected version %s at position %d, got %v", migration.Version, i, versions)
		}
	}
}

func TestSchemaValidator_DetectsMissingTable(t *testing.T) {
	db := openTestDB(t)
	// No migrations applied.
	if err := NewSchemaValidator(db).ValidateTablesExist(); err == nil {
		t.Error("Expected validation failure on an empty database")
	}
}

func TestApplySQLiteOptimizations(t *testing.T) {
	db := openTestDB(t)
	if err := ApplySQLiteOptimizations(db); err != nil {
		t.Errorf("Pragmas should apply cleanly, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}

	cfg.DatabasePath = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Expected failure for empty database path")
	}

	cfg = DefaultConfig()
	cfg.MaxConnections = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected failure for zero max connections")
	}
}
