package dbk_test

import (
	"os"
	"path/filepath"
	"testing"

	"dbk-go/internal/database/sqlc"
	"dbk-go/internal/dbk"
	"dbk-go/internal/testutil"
)

func TestService_Update(t *testing.T) {
	t.Run("records and deduplicates", func(t *testing.T) {
		env := testutil.NewServiceEnv(t)
		newSource(t, env, "home", map[string]string{
			"a.txt":      "alpha",
			"copy/a.txt": "alpha",
			"b.txt":      "bravo",
			"empty":      "",
		})

		r := mustUpdate(t, env)
		if r.Scanned != 4 || r.Hashed != 4 || r.Failed != 0 {
			t.Errorf("Update() = %+v, want 4 scanned and hashed", r)
		}

		alpha := testutil.SHA256Hex([]byte("alpha"))
		f := mustFile(t, env, "home/copy/a.txt")
		if f.Hash != alpha || f.Size != 5 {
			t.Errorf("entry = %s/%d, want %s/5", f.Hash, f.Size, alpha)
		}
		if f.Metadata != "{}" {
			t.Errorf("Metadata = %q, want {}", f.Metadata)
		}
		o := mustObject(t, env, alpha)
		if o.Refs != 2 {
			t.Errorf("Refs = %d, want 2", o.Refs)
		}
		if o.Blocksize != dbk.DefaultBlockSize {
			t.Errorf("Blocksize = %d, want %d", o.Blocksize, dbk.DefaultBlockSize)
		}
		if e := mustObject(t, env, testutil.SHA256Hex(nil)); e.Blocksize != 0 {
			t.Errorf("empty object Blocksize = %d, want 0", e.Blocksize)
		}
	})

	t.Run("unchanged files are not rehashed", func(t *testing.T) {
		env := testutil.NewServiceEnv(t)
		newSource(t, env, "home", map[string]string{"a.txt": "alpha", "b.txt": "bravo"})
		mustUpdate(t, env)

		r := mustUpdate(t, env)
		if r.Unchanged != 2 || r.Hashed != 0 {
			t.Errorf("second Update() = %+v, want 2 unchanged", r)
		}
	})

	t.Run("modified and deleted files", func(t *testing.T) {
		env := testutil.NewServiceEnv(t)
		dir := newSource(t, env, "home", map[string]string{"a.txt": "alpha", "b.txt": "bravo"})
		mustUpdate(t, env)

		testutil.WriteTree(t, dir, map[string]string{"a.txt": "ALPHA"})
		testutil.Touch(t, filepath.Join(dir, "a.txt"))
		if err := os.Remove(filepath.Join(dir, "b.txt")); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}

		r := mustUpdate(t, env)
		if r.Hashed != 1 || r.Deleted != 1 {
			t.Errorf("Update() = %+v, want 1 hashed and 1 deleted", r)
		}
		if f := mustFile(t, env, "home/a.txt"); f.Hash != testutil.SHA256Hex([]byte("ALPHA")) {
			t.Errorf("hash after modification = %s", f.Hash)
		}
		if f, _ := env.DB.FindFile("home/b.txt"); f != nil {
			t.Error("deleted file still recorded")
		}
		if o := mustObject(t, env, testutil.SHA256Hex([]byte("alpha"))); o.Refs != 0 {
			t.Errorf("old object Refs = %d, want 0", o.Refs)
		}
	})

	t.Run("unhashed entries are completed", func(t *testing.T) {
		env := testutil.NewServiceEnv(t)
		dir := newSource(t, env, "home", map[string]string{"a.txt": "alpha"})
		info, err := os.Stat(filepath.Join(dir, "a.txt"))
		if err != nil {
			t.Fatalf("Stat() error = %v", err)
		}
		// What an interrupted update leaves behind.
		placeholder := &sqlc.FileTree{
			VirtualPath:  "home/a.txt",
			Size:         info.Size(),
			LastModified: info.ModTime().UnixNano(),
			Metadata:     "{}",
		}
		if err := env.DB.SaveFile(placeholder, 0); err != nil {
			t.Fatalf("SaveFile() error = %v", err)
		}

		r := mustUpdate(t, env)
		if r.Hashed != 1 || r.Unchanged != 0 {
			t.Errorf("Update() = %+v, want the placeholder hashed", r)
		}
		if n, _ := env.DB.CountUnhashedFiles(); n != 0 {
			t.Errorf("CountUnhashedFiles() = %d, want 0", n)
		}
	})
}

func TestService_UpdateSidecar(t *testing.T) {
	env := testutil.NewServiceEnv(t)
	claimed := testutil.SHA256Hex([]byte("recorded elsewhere"))
	newSource(t, env, "home", map[string]string{
		"a.bin":          "0123456789",
		"a.bin.meta-inf": `{"hash": "` + claimed + `", "priority": 4, /* keep two */ "maxcopies": 2}`,
		"b.bin":          "bravo",
		"b.bin.meta-inf": `{"maxcopies": "inf", "priority": -3}`,
	})
	mustUpdate(t, env)

	a := mustFile(t, env, "home/a.bin")
	if a.Hash != claimed {
		t.Errorf("hash = %s, want the sidecar hash", a.Hash)
	}
	if a.Priority != 4 || !a.Maxcopies.Valid || a.Maxcopies.Int64 != 2 {
		t.Errorf("overrides = %d/%v, want 4/2", a.Priority, a.Maxcopies)
	}
	o := mustObject(t, env, claimed)
	if o.Priority != 4 || o.Maxcopies.Int64 != 2 {
		t.Errorf("object overrides = %d/%v, want 4/2", o.Priority, o.Maxcopies)
	}

	b := mustFile(t, env, "home/b.bin")
	if b.Priority != 0 || b.Maxcopies.Valid {
		t.Errorf("b overrides = %d/%v, want defaults", b.Priority, b.Maxcopies)
	}

	if f, _ := env.DB.FindFile("home/a.bin.meta-inf"); f != nil {
		t.Error("sidecar recorded as a file")
	}
}

func TestService_UpdateSidecarHashSizeConflict(t *testing.T) {
	env := testutil.NewServiceEnv(t)
	alpha := testutil.SHA256Hex([]byte("alpha"))
	newSource(t, env, "home", map[string]string{
		"a.txt":          "alpha",
		"z.bin":          "0123456789",
		"z.bin.meta-inf": `{"hash": "` + alpha + `", "priority": 2}`,
		"zz.txt":         "zulu",
	})

	r := mustUpdate(t, env)
	if r.Hashed != 3 || r.Failed != 0 {
		t.Errorf("Update() = %+v, want 3 hashed", r)
	}

	z := mustFile(t, env, "home/z.bin")
	if want := testutil.SHA256Hex([]byte("0123456789")); z.Hash != want {
		t.Errorf("z.bin hash = %s, want the content hash %s", z.Hash, want)
	}
	if z.Priority != 2 {
		t.Errorf("z.bin priority = %d, want the sidecar priority 2", z.Priority)
	}
	if o := mustObject(t, env, alpha); o.Size != 5 || o.Refs != 1 {
		t.Errorf("alpha object = size %d refs %d, want 5/1", o.Size, o.Refs)
	}
	if zz := mustFile(t, env, "home/zz.txt"); zz.Hash != testutil.SHA256Hex([]byte("zulu")) {
		t.Errorf("zz.txt hash = %q, want it hashed", zz.Hash)
	}
	if n, _ := env.DB.CountUnhashedFiles(); n != 0 {
		t.Errorf("CountUnhashedFiles() = %d, want 0", n)
	}
}

func TestService_UpdatePathConfig(t *testing.T) {
	t.Run("priority and maxcopies from config", func(t *testing.T) {
		env := testutil.NewServiceEnv(t)
		newSource(t, env, "home", map[string]string{"docs/a.txt": "alpha", "b.txt": "bravo"})
		if err := env.Service.SetPathConfig("home/docs", dbk.PathConfig{Priority: ptr(7)}); err != nil {
			t.Fatalf("SetPathConfig() error = %v", err)
		}
		mustUpdate(t, env)
		if f := mustFile(t, env, "home/docs/a.txt"); f.Priority != 7 {
			t.Errorf("Priority = %d, want 7", f.Priority)
		}
		if f := mustFile(t, env, "home/b.txt"); f.Priority != 0 {
			t.Errorf("Priority = %d, want 0", f.Priority)
		}

		// A config change alone updates entries without rehashing.
		if err := env.Service.SetPathConfig("home", dbk.PathConfig{Priority: ptr(2)}); err != nil {
			t.Fatalf("SetPathConfig() error = %v", err)
		}
		r := mustUpdate(t, env)
		if r.Hashed != 0 || r.Unchanged != 2 {
			t.Errorf("Update() = %+v, want 2 unchanged", r)
		}
		if f := mustFile(t, env, "home/b.txt"); f.Priority != 2 {
			t.Errorf("Priority = %d, want 2", f.Priority)
		}
	})

	t.Run("exclude", func(t *testing.T) {
		env := testutil.NewServiceEnv(t)
		newSource(t, env, "home", map[string]string{
			"a.txt":         "alpha",
			"a.tmp":         "temp",
			"cache/x":       "cached",
			"cache.txt":     "kept",
			"deep/b/c.tmp":  "temp",
			"deep/b/c.keep": "kept",
		})
		mustUpdate(t, env)
		err := env.Service.SetPathConfig("home", dbk.PathConfig{Exclude: []string{"*.tmp", "cache"}})
		if err != nil {
			t.Fatalf("SetPathConfig() error = %v", err)
		}

		r := mustUpdate(t, env)
		if r.Deleted != 3 {
			t.Errorf("Deleted = %d, want 3", r.Deleted)
		}
		for _, vp := range []string{"home/a.tmp", "home/cache/x", "home/deep/b/c.tmp"} {
			if f, _ := env.DB.FindFile(vp); f != nil {
				t.Errorf("%s still recorded", vp)
			}
		}
		for _, vp := range []string{"home/a.txt", "home/cache.txt", "home/deep/b/c.keep"} {
			mustFile(t, env, vp)
		}
	})

	t.Run("lock keeps the recorded subtree", func(t *testing.T) {
		env := testutil.NewServiceEnv(t)
		dir := newSource(t, env, "home", map[string]string{"frozen/a.txt": "alpha", "live/b.txt": "bravo"})
		mustUpdate(t, env)
		if err := env.Service.SetPathConfig("home/frozen", dbk.PathConfig{Lock: ptr(true)}); err != nil {
			t.Fatalf("SetPathConfig() error = %v", err)
		}

		if err := os.RemoveAll(filepath.Join(dir, "frozen")); err != nil {
			t.Fatalf("RemoveAll() error = %v", err)
		}
		testutil.WriteTree(t, dir, map[string]string{"frozen/new.txt": "new"})

		r := mustUpdate(t, env)
		if r.Deleted != 0 {
			t.Errorf("Deleted = %d, want 0", r.Deleted)
		}
		mustFile(t, env, "home/frozen/a.txt")
		if f, _ := env.DB.FindFile("home/frozen/new.txt"); f != nil {
			t.Error("file below a locked path was added")
		}
	})

	t.Run("locked mapping survives being unmapped", func(t *testing.T) {
		env := testutil.NewServiceEnv(t)
		newSource(t, env, "home", map[string]string{"a.txt": "alpha"})
		newSource(t, env, "archive", map[string]string{"old.txt": "old"})
		mustUpdate(t, env)
		if err := env.Service.SetPathConfig("archive", dbk.PathConfig{Lock: ptr(true)}); err != nil {
			t.Fatalf("SetPathConfig() error = %v", err)
		}
		for _, vp := range []string{"home", "archive"} {
			if err := env.Service.UnmapSource(vp); err != nil {
				t.Fatalf("UnmapSource() error = %v", err)
			}
		}

		r := mustUpdate(t, env)
		if r.Deleted != 1 {
			t.Errorf("Deleted = %d, want 1", r.Deleted)
		}
		mustFile(t, env, "archive/old.txt")
		if f, _ := env.DB.FindFile("home/a.txt"); f != nil {
			t.Error("file of an unmapped source still recorded")
		}
	})
}

func TestService_UpdateSymlinks(t *testing.T) {
	env := testutil.NewServiceEnv(t)
	dir := newSource(t, env, "home", map[string]string{"real.txt": "alpha"})
	if err := os.Symlink("real.txt", filepath.Join(dir, "link.txt")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	r := mustUpdate(t, env)
	if r.Symlinks != 1 || r.Scanned != 1 {
		t.Errorf("Update() = %+v, want 1 file and 1 symlink", r)
	}
	links, err := env.DB.ListSymlinks("")
	if err != nil {
		t.Fatalf("ListSymlinks() error = %v", err)
	}
	if len(links) != 1 || links[0].VirtualPath != "home/link.txt" || links[0].Target != "real.txt" {
		t.Errorf("ListSymlinks() = %+v", links)
	}

	if r := mustUpdate(t, env); r.Symlinks != 0 {
		t.Errorf("unchanged symlink saved again: %+v", r)
	}

	if err := env.Service.SetPathConfig("home", dbk.PathConfig{FollowSymlinks: ptr(true)}); err != nil {
		t.Fatalf("SetPathConfig() error = %v", err)
	}
	r = mustUpdate(t, env)
	if r.Deleted != 1 || r.Scanned != 2 {
		t.Errorf("Update() with follow = %+v, want 2 files and the symlink deleted", r)
	}
	f := mustFile(t, env, "home/link.txt")
	if f.Hash != testutil.SHA256Hex([]byte("alpha")) {
		t.Errorf("followed link hash = %s", f.Hash)
	}
	if o := mustObject(t, env, f.Hash); o.Refs != 2 {
		t.Errorf("Refs = %d, want 2", o.Refs)
	}
}
