package database

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPendingMigrations_OrdersAndFilters(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"010_add_index.sql", "002_runs.sql", "001_initial_schema.sql", "README.md", "abc_bad.sql"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "003_dir.sql"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	got, err := pendingMigrations(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []int{1, 2, 10}
	if len(got) != len(want) {
		t.Fatalf("expected %d migrations, got %+v", len(want), got)
	}
	for i, v := range want {
		if got[i].version != v {
			t.Errorf("position %d: expected version %d, got %d", i, v, got[i].version)
		}
	}
}

func TestPendingMigrations_MissingDir(t *testing.T) {
	if _, err := pendingMigrations(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected an error for a missing directory")
	}
}
