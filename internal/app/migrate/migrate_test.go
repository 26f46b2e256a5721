package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestNewValidatesInputs(t *testing.T) {
	if _, err := New("", Source(""), nil); err == nil {
		t.Fatalf("expected empty dsn rejected")
	}
	if _, err := New("postgres://localhost/teamhub", nil, nil); err == nil {
		t.Fatalf("expected nil source rejected")
	}
	if _, err := New("postgres://localhost/teamhub", Source(""), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSourceFallsBackToEmbedded(t *testing.T) {
	fsys := Source(filepath.Join(t.TempDir(), "missing"))
	if _, err := fs.Stat(fsys, "00001_teams.sql"); err != nil {
		t.Fatalf("expected embedded migration, got %v", err)
	}
}

func TestSourcePrefersDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "00002_extra.sql"), []byte("-- +goose Up\n"), 0o644); err != nil {
		t.Fatalf("write migration: %v", err)
	}
	fsys := Source(dir)
	if _, err := fs.Stat(fsys, "00002_extra.sql"); err != nil {
		t.Fatalf("expected on-disk migration, got %v", err)
	}
	if _, err := fs.Stat(fsys, "00001_teams.sql"); err == nil {
		t.Fatalf("directory source must not include embedded files")
	}
}
