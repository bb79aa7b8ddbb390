package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	dbconfig "codeshare/pkg/database"
	"codeshare/pkg/interfaces"
	"codeshare/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := dbconfig.DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	manager, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })
	return manager
}

func testSession(id string) *types.Session {
	return &types.Session{
		ID:        id,
		Language:  "typescript",
		Code:      "console.log(1)",
		Solution:  "",
		CreatedBy: "creator",
		Admins:    []string{},
		CreatedAt: time.Now().UTC(),
	}
}

func TestManager_SessionLifecycle(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	sess := testSession("sess1")
	if err := m.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	got, err := m.GetSession(ctx, "sess1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Language != "typescript" || got.CreatedBy != "creator" {
		t.Errorf("Stored session mismatch: %+v", got)
	}
	if got.Admins == nil || len(got.Admins) != 0 {
		t.Errorf("Expected empty (non-nil) admin set, got %v", got.Admins)
	}

	got.Code = "updated"
	got.LintingEnabled = true
	got.Admins = []string{"mod"}
	if err := m.UpdateSession(ctx, got); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}

	reloaded, err := m.GetSession(ctx, "sess1")
	if err != nil {
		t.Fatalf("GetSession after update failed: %v", err)
	}
	if reloaded.Code != "updated" || !reloaded.LintingEnabled {
		t.Errorf("Update not applied: %+v", reloaded)
	}
	if len(reloaded.Admins) != 1 || reloaded.Admins[0] != "mod" {
		t.Errorf("Admin set not round-tripped: %v", reloaded.Admins)
	}

	if err := m.DeleteSession(ctx, "sess1"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if _, err := m.GetSession(ctx, "sess1"); !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound after delete, got %v", err)
	}
}

func TestManager_GetSession_NotFound(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.GetSession(context.Background(), "missing"); !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestManager_ListSessions(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := m.CreateSession(ctx, testSession(id)); err != nil {
			t.Fatalf("CreateSession(%s) failed: %v", id, err)
		}
	}

	sessions, err := m.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 3 {
		t.Errorf("Expected 3 sessions, got %d", len(sessions))
	}
}

func TestManager_TemplateLifecycle(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	tmpl := &types.Template{ID: "t1", Title: "FizzBuzz", Code: "starter", Language: "python", Solution: "answer"}
	if err := m.CreateTemplate(ctx, tmpl); err != nil {
		t.Fatalf("CreateTemplate failed: %v", err)
	}

	got, err := m.GetTemplate(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTemplate failed: %v", err)
	}
	if got.Title != "FizzBuzz" || got.Solution != "answer" {
		t.Errorf("Stored template mismatch: %+v", got)
	}

	got.Title = "FizzBuzz v2"
	if err := m.UpdateTemplate(ctx, got); err != nil {
		t.Fatalf("UpdateTemplate failed: %v", err)
	}
	reloaded, _ := m.GetTemplate(ctx, "t1")
	if reloaded.Title != "FizzBuzz v2" {
		t.Errorf("Update not applied: %+v", reloaded)
	}

	if _, err := m.GetTemplate(ctx, "nope"); !errors.Is(err, interfaces.ErrTemplateNotFound) {
		t.Errorf("Expected ErrTemplateNotFound, got %v", err)
	}

	templates, err := m.ListTemplates(ctx)
	if err != nil {
		t.Fatalf("ListTemplates failed: %v", err)
	}
	if len(templates) != 1 {
		t.Errorf("Expected 1 template, got %d", len(templates))
	}
}

func TestManager_HealthCheck(t *testing.T) {
	m := newTestManager(t)
	if err := m.HealthCheck(context.Background()); err != nil {
		t.Errorf("Expected healthy database, got %v", err)
	}
}

func TestManager_Close_RejectsWrites(t *testing.T) {
	cfg := dbconfig.DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "test.db")
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}

	if err := m.CreateSession(context.Background(), testSession("late")); err == nil {
		t.Error("Writes after Close should fail")
	}
}

func TestManager_MigrationsIdempotent(t *testing.T) {
	cfg := dbconfig.DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	m1, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("First open failed: %v", err)
	}
	if err := m1.CreateSession(context.Background(), testSession("survivor")); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	_ = m1.Close()

	// Reopening re-runs the migration pass against an up-to-date schema.
	m2, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("Second open failed: %v", err)
	}
	defer m2.Close()

	if _, err := m2.GetSession(context.Background(), "survivor"); err != nil {
		t.Errorf("Data should survive a reopen, got %v", err)
	}
}
