package dbk

import "io/fs"

// SourceEntry is one entry found while walking a mapped source directory.
type SourceEntry struct {
	// Path is slash-separated and relative to the walk root.
	Path     string
	RealPath string
	// Info describes the entry itself, or its target for a followed symlink.
	Info fs.FileInfo
	Ino  int64
	// Target is set for symlinks that were not followed.
	Target string
	// Err is set when a directory could not be read. Its children are missing.
	Err error
}

// IsSymlink reports whether the entry is an unfollowed symlink.
func (e *SourceEntry) IsSymlink() bool {
	return e.Info.Mode()&fs.ModeSymlink != 0
}

// FilesystemManager provides an interface for filesystem operations.
// It abstracts source tree access to enable testing the scan logic.
type FilesystemManager interface {
	// Walk visits the entries below root in lexical order, directories
	// before their contents. fn may return fs.SkipDir for a directory.
	// Symlinks are followed when follow returns true for their path.
	Walk(root string, follow func(path string) bool, fn func(*SourceEntry) error) error

	// Stat returns fresh file info for a real path.
	Stat(path string) (fs.FileInfo, error)
}
