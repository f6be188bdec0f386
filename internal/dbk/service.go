package dbk

import (
	"path"
	"path/filepath"
	"strings"
	"time"

	"dbk-go/internal/sourcefile"
)

// DefaultBlockSize is used to round object sizes when Options.BlockSize is unset.
const DefaultBlockSize = 4096

// flushInterval bounds how long nexus changes are held before being written.
const flushInterval = 200 * time.Millisecond

// Options tune how the service copies and where it looks for disks.
type Options struct {
	// SearchRoots are glob patterns for directories that may contain a
	// disk's data path, such as "/media/*/*".
	SearchRoots []string
	BlockSize   int64
	// Sync flushes object copies to the disk while they are written.
	Sync       bool
	Capability *sourcefile.Capability
	Progress   sourcefile.Progress
}

// VaultOpener opens the object store of a disk mounted at root.
type VaultOpener func(root string) (Vault, error)

// Service is the orchestration layer that coordinates the database, source
// trees and backup disks for the operations the CLI exposes.
type Service struct {
	database  Database
	fsmgr     FilesystemManager
	openVault VaultOpener
	opts      Options
	logger    Logger
	clock     Clock
	idgen     IDGenerator
}

// NewService creates a new Service with the provided dependencies.
func NewService(database Database, fsmgr FilesystemManager, openVault VaultOpener, opts Options, logger Logger, clock Clock, idgen IDGenerator) *Service {
	if opts.BlockSize <= 0 {
		opts.BlockSize = DefaultBlockSize
	}
	return &Service{
		database:  database,
		fsmgr:     fsmgr,
		openVault: openVault,
		opts:      opts,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
	}
}

// blockSize rounds size up to whole blocks. Empty files take no space.
func (s *Service) blockSize(size int64) int64 {
	if size <= 0 {
		return 0
	}
	bs := s.opts.BlockSize
	return (size + bs - 1) / bs * bs
}

// CleanVirtualPath normalizes a virtual path: slash separated, no leading
// or trailing slash, no dot elements. The root is "".
func CleanVirtualPath(p string) string {
	p = path.Clean("/" + filepath.ToSlash(p))
	return strings.TrimPrefix(p, "/")
}

func joinVirtual(root, rel string) string {
	switch {
	case root == "":
		return rel
	case rel == "":
		return root
	}
	return root + "/" + rel
}

// underPrefix reports whether p is prefix or lies below it.
func underPrefix(p, prefix string) bool {
	return prefix == "" || p == prefix || strings.HasPrefix(p, prefix+"/")
}
