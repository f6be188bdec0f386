package dbk

import "dbk-go/internal/database/sqlc"

// NexusChange records that a copy of an object was added to or removed from
// a disk. Changes are applied to the object's nexus and copies together.
type NexusChange struct {
	Hash    string
	Disk    int
	Present bool
}

// Database provides an interface for metadata storage operations.
// All methods should be implemented with appropriate transaction handling.
type Database interface {
	// Disk operations

	// CreateDisk records a new disk at the lowest free nexus index.
	CreateDisk(name, uuid string, size int64, relativePath string) (*sqlc.Disk, error)

	// ListDisks returns every disk ordered by nexus index.
	ListDisks() ([]*sqlc.Disk, error)

	// FindDiskByName returns nil if no disk has that name.
	FindDiskByName(name string) (*sqlc.Disk, error)

	// FindDiskByUUID returns nil if no disk has that uuid.
	FindDiskByUUID(uuid string) (*sqlc.Disk, error)

	// RenameDisk changes a disk's name.
	RenameDisk(disk *sqlc.Disk, name string) error

	// UpdateDisk stores size, relative path and filesystem hints.
	UpdateDisk(disk *sqlc.Disk) error

	// DropDisk clears the disk's bit from every object and returns the
	// number of objects changed. The disk row is kept.
	DropDisk(disk *sqlc.Disk) (int64, error)

	// DeleteDisk removes the disk row. It fails while any object still has
	// the disk's bit set.
	DeleteDisk(disk *sqlc.Disk) error

	// DiskUsage returns the block size total of the objects on a disk.
	DiskUsage(disk *sqlc.Disk) (int64, error)

	// Object operations

	// FindObject returns nil if the hash is unknown.
	FindObject(hash string) (*sqlc.Object, error)

	// ListObjects returns every object that is referenced or has a copy.
	ListObjects() ([]*sqlc.Object, error)

	// ListObjectsOnDisk returns the objects with a copy on the disk.
	ListObjectsOnDisk(disk *sqlc.Disk) ([]*sqlc.Object, error)

	// ApplyNexusChanges applies a batch of copy changes in one transaction.
	ApplyNexusChanges(changes []NexusChange) error

	// NexusGroups aggregates referenced objects by nexus.
	NexusGroups() ([]*sqlc.ListNexusGroupsRow, error)

	// CopyMismatches returns objects whose copies disagree with their nexus.
	CopyMismatches() ([]*sqlc.Object, error)

	// CleanRefs recomputes every object's references and deletes objects
	// that are neither referenced nor stored anywhere.
	CleanRefs() (int64, error)

	// File tree operations

	// FindFile returns nil if nothing is recorded at the virtual path.
	FindFile(virtualPath string) (*sqlc.FileTree, error)

	// ListFiles returns the entries at or below a virtual path prefix.
	ListFiles(prefix string) ([]*sqlc.FileTree, error)

	// SaveFile inserts or replaces a file tree entry and keeps the objects
	// it stops and starts referencing consistent.
	SaveFile(file *sqlc.FileTree, blocksize int64) error

	// DeleteFiles removes entries and releases their objects.
	DeleteFiles(virtualPaths []string) error

	// ListUnhashedFiles returns entries still waiting for a hash.
	ListUnhashedFiles() ([]*sqlc.FileTree, error)

	// CountUnhashedFiles returns the number of entries without a hash.
	CountUnhashedFiles() (int64, error)

	// ListFileObjects joins entries under a prefix with their object's nexus.
	ListFileObjects(prefix string) ([]*sqlc.ListFileObjectsUnderRow, error)

	// ListFilesByLevel filters entries under a prefix by copy count.
	ListFilesByLevel(prefix string, minCopies, maxCopies int) ([]*sqlc.ListFilesByLevelRow, error)

	// PathsForHash returns the virtual paths that reference a hash.
	PathsForHash(hash string) ([]string, error)

	// Path configuration

	ListPathConfigs() ([]*sqlc.PathConfig, error)
	SetPathConfig(virtualPath, config string) error
	DeletePathConfig(virtualPath string) error

	ListPathMaps() ([]*sqlc.PathMap, error)
	SetPathMap(virtualPath, realPath string) error
	DeletePathMap(virtualPath string) error

	// ImportConfig applies imp in one transaction.
	ImportConfig(imp *ConfigImport) error

	// Symbolic links

	SaveSymlink(virtualPath, target string) error
	DeleteSymlink(virtualPath string) error
	ListSymlinks(prefix string) ([]*sqlc.SymbolicLink, error)

	// Operation history

	CreateBackupOperation(operation string, parameters string) (*sqlc.BackupOperation, error)
	FinishBackupOperation(id int64, status string) error
	ListBackupOperations(limit int) ([]*sqlc.BackupOperation, error)

	// BackupTo writes a consistent copy of the database to destPath.
	BackupTo(destPath string) error

	// Close closes the database connection.
	Close() error
}
