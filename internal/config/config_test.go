package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		BaseDir:  "/home/user/.local/share/dbk",
		LogDir:   "/home/user/.local/share/dbk/log",
		Database: DatabaseConfig{Type: "sqlite", DataDir: "/home/user/.local/share/dbk/db"},
		Filesystem: FilesystemConfig{
			Ignore: []string{"*.log", ".git"},
		},
		Disks: DisksConfig{SearchRoots: []string{"/media/user/*"}},
		Copy:  CopyConfig{Sync: true, Accelerate: false, BlockSize: 8192},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if diff := cmp.Diff(original, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_Read_PartialFile(t *testing.T) {
	input := `
base_dir = "/data/dbk"

[copy]
sync = true
`
	m := &Manager{}
	cfg, err := m.Read(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !cfg.Copy.Sync {
		t.Error("Copy.Sync = false, want true")
	}
	if got := cfg.Copy.EffectiveBlockSize(); got != DefaultBlockSize {
		t.Errorf("EffectiveBlockSize() = %d, want %d", got, DefaultBlockSize)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/dbk")

	if cfg.BaseDir != "/data/dbk" {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, "/data/dbk")
	}
	if cfg.LogDir != "/data/dbk/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/dbk/log")
	}
	if cfg.Database.Type != "sqlite" || cfg.Database.DataDir != "/data/dbk/db" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if !cfg.Copy.Accelerate {
		t.Error("Copy.Accelerate = false, want true")
	}
	if cfg.Copy.BlockSize != DefaultBlockSize {
		t.Errorf("Copy.BlockSize = %d, want %d", cfg.Copy.BlockSize, DefaultBlockSize)
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "dbk.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "dbk.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "dbk.toml")
		cfg := NewConfig(dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want %q", got.Database.Type, "memory")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/dbk.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
