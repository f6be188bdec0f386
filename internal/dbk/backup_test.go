package dbk_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"dbk-go/internal/database/sqlc"
	"dbk-go/internal/dbk"
	"dbk-go/internal/model"
	"dbk-go/internal/placement"
	"dbk-go/internal/testutil"
	"dbk-go/internal/vault"
)

func mustBackup(t *testing.T, env *testutil.ServiceEnv, disk string, opts dbk.BackupOptions) *placement.Report {
	t.Helper()
	r, err := env.Service.Backup(disk, opts)
	if err != nil {
		t.Fatalf("Backup(%s) error = %v", disk, err)
	}
	return r
}

func hasCopy(t *testing.T, dir, hash string) bool {
	t.Helper()
	v, err := vault.NewDiskVault(dir)
	if err != nil {
		t.Fatalf("NewDiskVault() error = %v", err)
	}
	ok, err := v.Has(hash)
	if err != nil {
		t.Fatalf("Has() error = %v", err)
	}
	return ok
}

func TestService_Backup(t *testing.T) {
	alpha := testutil.SHA256Hex([]byte("alpha"))
	bravo := testutil.SHA256Hex([]byte("bravo"))

	t.Run("first copy on one disk", func(t *testing.T) {
		env := testutil.NewServiceEnv(t)
		newSource(t, env, "home", map[string]string{"a.txt": "alpha", "b.txt": "bravo", "c.txt": "alpha"})
		mustUpdate(t, env)
		dir := env.AddDisk(t, "d0", 1<<20)

		r := mustBackup(t, env, "d0", dbk.BackupOptions{})
		if r.CopiedObjects != 2 || r.Copied[1] != 2*dbk.DefaultBlockSize {
			t.Errorf("report = %d objects %v, want 2 objects and %d bytes at level 1",
				r.CopiedObjects, r.Copied, 2*dbk.DefaultBlockSize)
		}
		for _, h := range []string{alpha, bravo} {
			if o := mustObject(t, env, h); o.Nexus != "1" || o.Copies != 1 {
				t.Errorf("object %s nexus = %q copies %d, want \"1\" and 1", h[:8], o.Nexus, o.Copies)
			}
			if !hasCopy(t, dir, h) {
				t.Errorf("object %s not on disk", h[:8])
			}
		}
		if _, err := os.Stat(filepath.Join(dir, vault.DatabaseFile)); err != nil {
			t.Errorf("database snapshot missing: %v", err)
		}
		if err := env.Service.Check(); err != nil {
			t.Errorf("Check() error = %v", err)
		}

		if r := mustBackup(t, env, "d0", dbk.BackupOptions{}); r.CopiedObjects != 0 || r.DeletedObjects != 0 {
			t.Errorf("second Backup() = %+v, want nothing to do", r)
		}
	})

	t.Run("second disk raises the level", func(t *testing.T) {
		env := testutil.NewServiceEnv(t)
		newSource(t, env, "home", map[string]string{"a.txt": "alpha", "b.txt": "bravo"})
		mustUpdate(t, env)
		env.AddDisk(t, "d0", 1<<20)
		env.AddDisk(t, "d1", 1<<20)

		mustBackup(t, env, "d0", dbk.BackupOptions{})
		r := mustBackup(t, env, "d1", dbk.BackupOptions{})
		if r.Copied[2] != 2*dbk.DefaultBlockSize {
			t.Errorf("Copied = %v, want %d bytes at level 2", r.Copied, 2*dbk.DefaultBlockSize)
		}
		if o := mustObject(t, env, alpha); o.Nexus != "11" || o.Copies != 2 {
			t.Errorf("nexus = %q copies %d, want \"11\" and 2", o.Nexus, o.Copies)
		}
	})

	t.Run("refuses an incomplete update", func(t *testing.T) {
		env := testutil.NewServiceEnv(t)
		env.AddDisk(t, "d0", 1<<20)
		err := env.DB.SaveFile(&sqlc.FileTree{VirtualPath: "home/a.txt", Size: 5, Metadata: "{}"}, 0)
		if err != nil {
			t.Fatalf("SaveFile() error = %v", err)
		}
		if _, err := env.Service.Backup("d0", dbk.BackupOptions{}); !errors.Is(err, dbk.ErrIncompleteUpdate) {
			t.Errorf("Backup() error = %v, want ErrIncompleteUpdate", err)
		}
	})

	t.Run("simulate leaves the disk alone", func(t *testing.T) {
		env := testutil.NewServiceEnv(t)
		newSource(t, env, "home", map[string]string{"a.txt": "alpha", "b.txt": "bravo"})
		mustUpdate(t, env)
		dir := env.AddDisk(t, "d0", 1<<20)

		r := mustBackup(t, env, "d0", dbk.BackupOptions{Simulate: true})
		if r.CopiedObjects != 2 {
			t.Errorf("CopiedObjects = %d, want 2", r.CopiedObjects)
		}
		if hasCopy(t, dir, alpha) {
			t.Error("simulated backup wrote an object")
		}
		if o := mustObject(t, env, alpha); o.Nexus != "" {
			t.Errorf("nexus = %q after simulation, want empty", o.Nexus)
		}
		if _, err := os.Stat(filepath.Join(dir, vault.DatabaseFile)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("simulated backup saved the database: %v", err)
		}
	})

	t.Run("byte limit", func(t *testing.T) {
		env := testutil.NewServiceEnv(t)
		newSource(t, env, "home", map[string]string{"a.txt": "alpha", "b.txt": "bravo"})
		mustUpdate(t, env)
		dir := env.AddDisk(t, "d0", 1<<20)

		r := mustBackup(t, env, "d0", dbk.BackupOptions{LimitBytes: dbk.DefaultBlockSize})
		if r.CopiedObjects != 1 {
			t.Errorf("CopiedObjects = %d, want 1", r.CopiedObjects)
		}
		if hasCopy(t, dir, alpha) == hasCopy(t, dir, bravo) {
			t.Error("want exactly one of the two objects on disk")
		}
	})

	t.Run("declared size caps the copies", func(t *testing.T) {
		env := testutil.NewServiceEnv(t)
		newSource(t, env, "home", map[string]string{"a.txt": "alpha", "b.txt": "bravo", "c.txt": "charlie"})
		mustUpdate(t, env)
		env.AddDisk(t, "d0", 2*dbk.DefaultBlockSize)

		r := mustBackup(t, env, "d0", dbk.BackupOptions{})
		if r.CopiedObjects != 2 {
			t.Errorf("CopiedObjects = %d, want 2", r.CopiedObjects)
		}
	})

	t.Run("maxcopies removes surplus copies", func(t *testing.T) {
		env := testutil.NewServiceEnv(t)
		newSource(t, env, "home", map[string]string{"a.txt": "alpha", "b.txt": "bravo"})
		mustUpdate(t, env)
		env.AddDisk(t, "d0", 1<<20)
		dir1 := env.AddDisk(t, "d1", 1<<20)
		mustBackup(t, env, "d0", dbk.BackupOptions{})
		mustBackup(t, env, "d1", dbk.BackupOptions{})

		one := model.Limited(1)
		if err := env.Service.SetPathConfig("home/a.txt", dbk.PathConfig{MaxCopies: &one}); err != nil {
			t.Fatalf("SetPathConfig() error = %v", err)
		}
		mustUpdate(t, env)

		r := mustBackup(t, env, "d1", dbk.BackupOptions{})
		if r.DeletedObjects != 1 || r.Deleted[2] != dbk.DefaultBlockSize {
			t.Errorf("report = %d deleted %v, want one object leaving level 2", r.DeletedObjects, r.Deleted)
		}
		if hasCopy(t, dir1, alpha) {
			t.Error("surplus copy still on d1")
		}
		if o := mustObject(t, env, alpha); o.Nexus != "1" {
			t.Errorf("nexus = %q, want \"1\"", o.Nexus)
		}
		if o := mustObject(t, env, bravo); o.Nexus != "11" {
			t.Errorf("bravo nexus = %q, want \"11\"", o.Nexus)
		}
	})

	t.Run("source changed since the update", func(t *testing.T) {
		env := testutil.NewServiceEnv(t)
		dir := newSource(t, env, "home", map[string]string{"a.txt": "alpha"})
		mustUpdate(t, env)
		disk := env.AddDisk(t, "d0", 1<<20)
		testutil.WriteTree(t, dir, map[string]string{"a.txt": "ALPHA"})

		r := mustBackup(t, env, "d0", dbk.BackupOptions{})
		if r.CopiedObjects != 0 || len(r.UnableToCopy) != 1 {
			t.Fatalf("report = %d copied, %d unable, want 0 and 1", r.CopiedObjects, len(r.UnableToCopy))
		}
		if r.UnableToCopy[0].Hash != alpha {
			t.Errorf("UnableToCopy[0] = %s, want alpha", r.UnableToCopy[0].Hash)
		}
		if hasCopy(t, disk, alpha) {
			t.Error("mismatched content stored under the old hash")
		}
		upper := testutil.SHA256Hex([]byte("ALPHA"))
		if f := mustFile(t, env, "home/a.txt"); f.Hash != upper {
			t.Errorf("entry hash = %s, want it corrected to the content read", f.Hash)
		}

		if r := mustBackup(t, env, "d0", dbk.BackupOptions{}); r.CopiedObjects != 1 {
			t.Errorf("next Backup() copied %d, want 1", r.CopiedObjects)
		}
		if !hasCopy(t, disk, upper) {
			t.Error("corrected content not on disk")
		}
	})
}

func TestService_BackupSelection(t *testing.T) {
	env := testutil.NewServiceEnv(t)
	if _, err := env.Service.Backup("", dbk.BackupOptions{}); !errors.Is(err, dbk.ErrNoDiskSelected) {
		t.Errorf("Backup(\"\") error = %v, want ErrNoDiskSelected", err)
	}
	if _, err := env.Service.Backup("nope", dbk.BackupOptions{}); !errors.Is(err, dbk.ErrDiskNotFound) {
		t.Errorf("Backup(nope) error = %v, want ErrDiskNotFound", err)
	}
}
