package vault

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/BurntSushi/toml"
	"github.com/google/renameio"

	"dbk-go/internal/dbk"
)

const (
	// DataDir holds the sharded objects below a disk's data path.
	DataDir = "dbk-data"
	// LegacyDataDir is the unprefixed name older disks used for DataDir.
	LegacyDataDir = "data"
	// DatabaseFile names the database snapshot kept on every disk.
	DatabaseFile = "dbk.db"

	shardLen = 3
)

var objectName = regexp.MustCompile(`^[0-9a-f]{64}$`)

// DiskVault stores objects on one backup disk:
//
//	<root>/
//	  dbk-disk.toml   (identity: uuid and name)
//	  dbk.db          (database snapshot)
//	  dbk-data/
//	    <hash[:3]>/
//	      <hash>      (object content)
type DiskVault struct {
	root           string
	dataDir        string
	legacyMigrated bool
}

// NewDiskVault opens the vault at root, renaming a legacy data directory to
// DataDir first.
func NewDiskVault(root string) (*DiskVault, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("disk data path not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("disk data path is not a directory: %s", root)
	}

	v := &DiskVault{root: root, dataDir: filepath.Join(root, DataDir)}

	legacy := filepath.Join(root, LegacyDataDir)
	if _, err := os.Stat(v.dataDir); errors.Is(err, fs.ErrNotExist) {
		if li, err := os.Stat(legacy); err == nil && li.IsDir() {
			if err := os.Rename(legacy, v.dataDir); err != nil {
				return nil, fmt.Errorf("migrating legacy data directory: %w", err)
			}
			v.legacyMigrated = true
		}
	}

	if err := os.MkdirAll(v.dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return v, nil
}

// LegacyMigrated reports whether NewDiskVault renamed a legacy data directory.
func (v *DiskVault) LegacyMigrated() bool { return v.legacyMigrated }

func (v *DiskVault) Root() string { return v.root }

func (v *DiskVault) ObjectPath(hash string) string {
	return filepath.Join(v.dataDir, shard(hash), hash)
}

func shard(hash string) string {
	if len(hash) < shardLen {
		return hash
	}
	return hash[:shardLen]
}

func (v *DiskVault) Has(hash string) (bool, error) {
	info, err := os.Stat(v.ObjectPath(hash))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("checking object %s: %w", hash, err)
	}
	return info.Mode().IsRegular(), nil
}

// Create returns a pending file in the object's shard. Nothing is visible
// under the object's path until Commit.
func (v *DiskVault) Create(hash string) (dbk.PendingObject, error) {
	if !objectName.MatchString(hash) {
		return nil, fmt.Errorf("invalid object hash %q", hash)
	}
	dir := filepath.Join(v.dataDir, shard(hash))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating shard directory: %w", err)
	}
	pf, err := renameio.TempFile(dir, v.ObjectPath(hash))
	if err != nil {
		return nil, fmt.Errorf("creating pending object: %w", err)
	}
	return &pendingObject{pf: pf}, nil
}

func (v *DiskVault) Open(hash string) (*os.File, error) {
	f, err := os.Open(v.ObjectPath(hash))
	if err != nil {
		return nil, fmt.Errorf("opening object %s: %w", hash, err)
	}
	return f, nil
}

func (v *DiskVault) Remove(hash string) error {
	if err := os.Remove(v.ObjectPath(hash)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing object %s: %w", hash, err)
	}
	return nil
}

// Walk visits objects in hash order. Pending files and anything not named
// like an object in its own shard are skipped.
func (v *DiskVault) Walk(fn func(hash string, size int64) error) error {
	shards, err := os.ReadDir(v.dataDir)
	if err != nil {
		return fmt.Errorf("reading data directory: %w", err)
	}
	for _, s := range shards {
		if !s.IsDir() || len(s.Name()) != shardLen {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(v.dataDir, s.Name()))
		if err != nil {
			return fmt.Errorf("reading shard %s: %w", s.Name(), err)
		}
		for _, e := range entries {
			name := e.Name()
			if !e.Type().IsRegular() || !objectName.MatchString(name) || shard(name) != s.Name() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return fmt.Errorf("stat object %s: %w", name, err)
			}
			if err := fn(name, info.Size()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *DiskVault) Identity() (*dbk.DiskIdentity, error) {
	var id dbk.DiskIdentity
	_, err := toml.DecodeFile(filepath.Join(v.root, dbk.IdentityFileName), &id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading disk identity: %w", err)
	}
	return &id, nil
}

func (v *DiskVault) SetIdentity(id dbk.DiskIdentity) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(id); err != nil {
		return fmt.Errorf("encoding disk identity: %w", err)
	}
	if err := renameio.WriteFile(filepath.Join(v.root, dbk.IdentityFileName), buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing disk identity: %w", err)
	}
	return nil
}

// SaveDatabase replaces the snapshot on the disk. The previous snapshot stays
// in place until the new one is complete.
func (v *DiskVault) SaveDatabase(db dbk.Database) error {
	final := filepath.Join(v.root, DatabaseFile)
	tmp := final + ".tmp"
	if err := os.Remove(tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing stale snapshot: %w", err)
	}
	if err := db.BackupTo(tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing database snapshot: %w", err)
	}
	return nil
}

func (v *DiskVault) Free() (int64, error) {
	return freeSpace(v.root)
}

type pendingObject struct {
	pf *renameio.PendingFile
}

func (p *pendingObject) File() *os.File { return p.pf.File }

func (p *pendingObject) Commit() error {
	if err := p.pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("committing object: %w", err)
	}
	return nil
}

func (p *pendingObject) Discard() error {
	return p.pf.Cleanup()
}

// Compile-time check that DiskVault implements dbk.Vault interface
var _ dbk.Vault = (*DiskVault)(nil)
