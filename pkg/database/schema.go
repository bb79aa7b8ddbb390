package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator verifies the database schema matches what the repositories
// expect. Used by health checks and deployment smoke tests.
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator.
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist.
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"sessions":          "Session state storage",
		"templates":         "Template storage",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateTableStructure verifies table columns match the repository structs.
func (v *SchemaValidator) ValidateTableStructure() error {
	sessionColumns := map[string]string{
		"id":                 "TEXT",
		"language":           "TEXT",
		"code":               "TEXT",
		"solution":           "TEXT",
		"linting_enabled":    "INTEGER",
		"solution_presented": "INTEGER",
		"created_by":         "TEXT",
		"admins":             "TEXT",
		"created_at":         "DATETIME",
	}
	if err := v.validateColumns("sessions", sessionColumns); err != nil {
		return fmt.Errorf("sessions table structure invalid: %w", err)
	}

	templateColumns := map[string]string{
		"id":       "TEXT",
		"title":    "TEXT",
		"code":     "TEXT",
		"language": "TEXT",
		"solution": "TEXT",
	}
	if err := v.validateColumns("templates", templateColumns); err != nil {
		return fmt.Errorf("templates table structure invalid: %w", err)
	}

	return nil
}

func (v *SchemaValidator) tableExists(name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) validateColumns(table string, expected map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return err
	}
	defer rows.Close()

	found := make(map[string]string)
	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			dfltValue  sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &primaryKey); err != nil {
			return err
		}
		found[name] = colType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for column, colType := range expected {
		actual, ok := found[column]
		if !ok {
			return fmt.Errorf("missing column %s", column)
		}
		if actual != colType {
			return fmt.Errorf("column %s has type %s, expected %s", column, actual, colType)
		}
	}

	return nil
}
