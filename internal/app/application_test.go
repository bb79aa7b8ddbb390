package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"codeshare/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "app.db")
	return cfg
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.HTTP.Port = -1
	if _, err := New(cfg); err == nil {
		t.Error("Expected error for invalid configuration")
	}
}

func TestNew_WiresComponents(t *testing.T) {
	cfg := testConfig(t)

	application, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestNew_CreatesDatabaseDirectory(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "nested", "deeper", "app.db")

	application, err := New(cfg)
	if err != nil {
		t.Fatalf("New should create missing database directories: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = application.Stop(ctx)
}
