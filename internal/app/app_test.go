package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"dbk-go/internal/config"
	"dbk-go/internal/dbk"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig(t.TempDir())
	cfg.Disks.SearchRoots = []string{filepath.Join(t.TempDir(), "*")}
	cfg.Copy.Accelerate = false
	return cfg
}

func TestNewDBKApp(t *testing.T) {
	cfg := newTestConfig(t)

	a, err := NewDBKApp(cfg, "ListDisks")
	if err != nil {
		t.Fatalf("NewDBKApp() error = %v", err)
	}
	disks, err := a.ListDisks()
	if err != nil {
		t.Fatalf("ListDisks() error = %v", err)
	}
	if len(disks) != 0 {
		t.Errorf("ListDisks() = %v, want none", disks)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(cfg.LogDir, "dbk.log")); err != nil {
		t.Errorf("log file not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Database.DataDir, "dbk.db")); err != nil {
		t.Errorf("database not created: %v", err)
	}
}

func TestDBKApp_RecordsOperations(t *testing.T) {
	cfg := newTestConfig(t)
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("alpha"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	a, err := NewDBKApp(cfg, "MapSource")
	if err != nil {
		t.Fatalf("NewDBKApp() error = %v", err)
	}
	if err := a.MapSource("home", src); err != nil {
		t.Fatalf("MapSource() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	a, err = NewDBKApp(cfg, "Backup")
	if err != nil {
		t.Fatalf("NewDBKApp() error = %v", err)
	}
	if _, err := a.Backup("missing", dbk.BackupOptions{}); !errors.Is(err, dbk.ErrDiskNotFound) {
		t.Fatalf("Backup() error = %v, want ErrDiskNotFound", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Read-only commands leave no record.
	a, err = NewDBKApp(cfg, "History")
	if err != nil {
		t.Fatalf("NewDBKApp() error = %v", err)
	}
	defer a.Close()
	ops, err := a.GetHistory(10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("GetHistory() returned %d operations, want 2", len(ops))
	}
	if ops[0].Operation != "Backup" || ops[0].Status != StatusError || !ops[0].FinishedAt.Valid {
		t.Errorf("ops[0] = %+v, want a finished failed Backup", ops[0])
	}
	if ops[1].Operation != "MapSource" || ops[1].Status != StatusSuccess {
		t.Errorf("ops[1] = %+v, want a successful MapSource", ops[1])
	}
	if ops[1].Parameters == "" {
		t.Error("MapSource parameters not recorded")
	}
}

func TestNewDBKApp_BadDatabase(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Database.Type = "postgres"
	if _, err := NewDBKApp(cfg, "ListDisks"); err == nil {
		t.Error("NewDBKApp() expected error for unknown database type")
	}
}
