package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"dbk-go/internal/dbk"
	"dbk-go/internal/fs"
	"dbk-go/internal/vault"
)

// ServiceEnv is a dbk.Service wired to an in-memory database, the real
// filesystem and disk vaults below a temporary mount root.
type ServiceEnv struct {
	DB      dbk.Database
	Service *dbk.Service
	Clock   *StubClock
	// SourceDir is an empty directory for source trees.
	SourceDir string
	// MountRoot plays the part of /media/<user>: every directory below it
	// is found by the service's disk search.
	MountRoot string
}

// NewServiceEnv creates a ServiceEnv. Everything is removed when the test
// completes.
func NewServiceEnv(t *testing.T) *ServiceEnv {
	t.Helper()
	env := &ServiceEnv{
		DB:        NewTestDatabase(t),
		Clock:     FixedClock(),
		SourceDir: t.TempDir(),
		MountRoot: t.TempDir(),
	}
	env.Service = dbk.NewService(
		env.DB,
		fs.NewOSFilesystemManager(nil),
		vault.Open,
		dbk.Options{SearchRoots: []string{filepath.Join(env.MountRoot, "*")}},
		dbk.NewNopLogger(),
		env.Clock,
		NewStubIDGenerator(),
	)
	return env
}

// NewDiskDir creates an empty directory for a disk below MountRoot.
func (e *ServiceEnv) NewDiskDir(t *testing.T, name string) string {
	t.Helper()
	dir := filepath.Join(e.MountRoot, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	return dir
}

// AddDisk creates a disk directory and registers it under name.
func (e *ServiceEnv) AddDisk(t *testing.T, name string, size int64) string {
	t.Helper()
	dir := e.NewDiskDir(t, name)
	if _, err := e.Service.AddDisk(name, dir, size); err != nil {
		t.Fatalf("AddDisk(%q) error = %v", name, err)
	}
	return dir
}

// WriteTree creates files below dir. Keys are slash-separated relative
// paths; parent directories are created as needed.
func WriteTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("MkdirAll() error = %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}
}

// Touch moves the modification time of path forward so an update sees it
// as changed even when its size is the same.
func Touch(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	later := info.ModTime().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}
}
