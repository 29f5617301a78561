// Package testsupport provides shared fixtures for package tests.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"squeeze/internal/config"
	"squeeze/internal/history"
)

// NewConfig returns a validated configuration rooted in temp directories.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.RootDir = filepath.Join(base, "media")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.HistoryDB = filepath.Join(base, "history.db")
	if err := os.MkdirAll(cfg.Paths.RootDir, 0o755); err != nil {
		t.Fatalf("create media root: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default test config invalid: %v", err)
	}
	return &cfg
}

// MustOpenStore opens the history store for cfg and closes it on cleanup.
func MustOpenStore(t *testing.T, cfg *config.Config) *history.Store {
	t.Helper()
	store, err := history.Open(cfg.Paths.HistoryDB)
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// WriteFile creates a file of the given size under dir and returns its path.
func WriteFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create parent dir: %v", err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
