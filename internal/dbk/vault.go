package dbk

import "os"

// IdentityFileName names the identity file at the top of a disk's data path.
const IdentityFileName = "dbk-disk.toml"

// DiskIdentity is stored on every backup disk so it can be recognised when
// it is mounted somewhere else.
type DiskIdentity struct {
	UUID string `toml:"uuid"`
	Name string `toml:"name"`
}

// PendingObject is an object being written to a disk. It becomes visible
// under its hash only on Commit.
type PendingObject interface {
	File() *os.File
	Commit() error
	Discard() error
}

// Vault is the object store on one mounted backup disk.
type Vault interface {
	// Root returns the disk's data path.
	Root() string

	// ObjectPath returns where the object with hash is stored.
	ObjectPath(hash string) string

	// Has reports whether a copy of hash is present.
	Has(hash string) (bool, error)

	// Create starts writing a copy of hash.
	Create(hash string) (PendingObject, error)

	// Open opens the stored copy of hash for reading.
	Open(hash string) (*os.File, error)

	// Remove deletes the copy of hash. Removing a missing copy is not an error.
	Remove(hash string) error

	// Walk calls fn for every stored object.
	Walk(fn func(hash string, size int64) error) error

	// Identity reads the identity file. It returns nil if there is none.
	Identity() (*DiskIdentity, error)

	// SetIdentity writes the identity file.
	SetIdentity(id DiskIdentity) error

	// SaveDatabase stores a snapshot of db on the disk.
	SaveDatabase(db Database) error

	// Free returns the bytes available to unprivileged users on the disk.
	Free() (int64, error)
}
