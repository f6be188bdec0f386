package dbk_test

import (
	"os"
	"path/filepath"
	"testing"

	"dbk-go/internal/dbk"
	"dbk-go/internal/fs"
	"dbk-go/internal/testutil"
	"dbk-go/internal/vault"
)

func TestService_VerifyDisk(t *testing.T) {
	env := testutil.NewServiceEnv(t)
	newSource(t, env, "home", map[string]string{"a.txt": "alpha", "b.txt": "bravo", "c.txt": "charlie"})
	mustUpdate(t, env)
	dir := env.AddDisk(t, "d0", 1<<20)
	mustBackup(t, env, "d0", dbk.BackupOptions{})

	alpha := testutil.SHA256Hex([]byte("alpha"))
	bravo := testutil.SHA256Hex([]byte("bravo"))
	charlie := testutil.SHA256Hex([]byte("charlie"))
	v, err := vault.NewDiskVault(dir)
	if err != nil {
		t.Fatalf("NewDiskVault() error = %v", err)
	}
	if err := os.WriteFile(v.ObjectPath(alpha), []byte("ALPHA"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.Remove(v.ObjectPath(bravo)); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	r, err := env.Service.VerifyDisk("d0")
	if err != nil {
		t.Fatalf("VerifyDisk() error = %v", err)
	}
	if r.Checked != 2 || r.CheckedBytes != 7 {
		t.Errorf("Checked = %d (%d bytes), want 2 (7 bytes)", r.Checked, r.CheckedBytes)
	}
	if len(r.Corrupt) != 1 || r.Corrupt[0] != alpha {
		t.Errorf("Corrupt = %v, want [alpha]", r.Corrupt)
	}
	if len(r.Missing) != 1 || r.Missing[0] != bravo {
		t.Errorf("Missing = %v, want [bravo]", r.Missing)
	}

	if ok, _ := v.Has(alpha); ok {
		t.Error("corrupt copy not removed")
	}
	for hash, want := range map[string]string{alpha: "", bravo: "", charlie: "1"} {
		if o := mustObject(t, env, hash); o.Nexus != want {
			t.Errorf("nexus of %s = %q, want %q", hash[:8], o.Nexus, want)
		}
	}
	if err := env.Service.Check(); err != nil {
		t.Errorf("Check() error = %v", err)
	}

	// A clean disk verifies without findings.
	r, err = env.Service.VerifyDisk("d0")
	if err != nil {
		t.Fatalf("second VerifyDisk() error = %v", err)
	}
	if r.Checked != 1 || len(r.Corrupt) != 0 || len(r.Missing) != 0 {
		t.Errorf("second VerifyDisk() = %+v, want one clean copy", r)
	}
}

// unreadableVault serves a directory in place of one object, so reading
// that copy fails while the copy itself is reported present.
type unreadableVault struct {
	dbk.Vault
	hash string
	dir  string
}

func (v *unreadableVault) ObjectPath(hash string) string {
	if hash == v.hash {
		return v.dir
	}
	return v.Vault.ObjectPath(hash)
}

func TestService_VerifyDiskReadError(t *testing.T) {
	env := testutil.NewServiceEnv(t)
	newSource(t, env, "home", map[string]string{"a.txt": "alpha", "b.txt": "bravo"})
	mustUpdate(t, env)
	env.AddDisk(t, "d0", 1<<20)
	mustBackup(t, env, "d0", dbk.BackupOptions{})

	alpha := testutil.SHA256Hex([]byte("alpha"))
	var opened dbk.Vault
	open := func(root string) (dbk.Vault, error) {
		v, err := vault.Open(root)
		if err != nil {
			return nil, err
		}
		opened = v
		return &unreadableVault{Vault: v, hash: alpha, dir: t.TempDir()}, nil
	}
	svc := dbk.NewService(env.DB, fs.NewOSFilesystemManager(nil), open,
		dbk.Options{SearchRoots: []string{filepath.Join(env.MountRoot, "*")}},
		dbk.NewNopLogger(), env.Clock, testutil.NewStubIDGenerator())

	r, err := svc.VerifyDisk("d0")
	if err != nil {
		t.Fatalf("VerifyDisk() error = %v", err)
	}
	if len(r.Failed) != 1 || r.Failed[0] != alpha {
		t.Errorf("Failed = %v, want [alpha]", r.Failed)
	}
	if len(r.Corrupt) != 0 || len(r.Missing) != 0 {
		t.Errorf("VerifyDisk() = %+v, want no corrupt or missing copies", r)
	}
	if r.Checked != 1 || r.CheckedBytes != 5 {
		t.Errorf("Checked = %d (%d bytes), want 1 (5 bytes)", r.Checked, r.CheckedBytes)
	}

	if o := mustObject(t, env, alpha); o.Nexus != "1" {
		t.Errorf("nexus of unreadable copy = %q, want it kept", o.Nexus)
	}
	if ok, _ := opened.Has(alpha); !ok {
		t.Error("unreadable copy was removed")
	}
}
