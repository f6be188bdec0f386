package fs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"dbk-go/internal/dbk"
	"dbk-go/internal/glob"
)

// IgnoreFileName is read from the root of every walked source directory.
const IgnoreFileName = ".dbkignore"

// OSFilesystemManager is the real filesystem implementation of FilesystemManager.
type OSFilesystemManager struct {
	ignorePatterns []string
}

// NewOSFilesystemManager creates a filesystem manager that skips entries
// matching ignorePatterns in every walk.
func NewOSFilesystemManager(ignorePatterns []string) *OSFilesystemManager {
	return &OSFilesystemManager{ignorePatterns: ignorePatterns}
}

// Stat returns fresh file info for a path.
func (m *OSFilesystemManager) Stat(p string) (fs.FileInfo, error) {
	return os.Stat(p)
}

// Walk visits the entries below root. Devices, sockets and pipes are
// skipped, as is anything matched by the configured patterns, the defaults
// or the root's .dbkignore file.
func (m *OSFilesystemManager) Walk(root string, follow func(string) bool, fn func(*dbk.SourceEntry) error) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("stat source root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source root is not a directory: %s", root)
	}

	filePatterns, err := ParseIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return err
	}
	patterns := append(append(append([]string{}, defaultIgnorePatterns...), m.ignorePatterns...), filePatterns...)

	w := &walker{
		ignore:  glob.NewMatcher(patterns),
		follow:  follow,
		fn:      fn,
		visited: map[string]bool{},
	}
	if full, err := filepath.EvalSymlinks(root); err == nil {
		w.visited[full] = true
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("reading source root: %w", err)
	}
	err = w.walkEntries(root, "", entries)
	if errors.Is(err, fs.SkipDir) || errors.Is(err, fs.SkipAll) {
		return nil
	}
	return err
}

type walker struct {
	ignore  *glob.Matcher
	follow  func(string) bool
	fn      func(*dbk.SourceEntry) error
	visited map[string]bool // resolved paths of directories entered through symlinks
}

func (w *walker) walkEntries(dir, rel string, entries []fs.DirEntry) error {
	for _, d := range entries {
		childRel := path.Join(rel, d.Name())
		if w.ignore.Match(childRel) {
			continue
		}
		full := filepath.Join(dir, d.Name())

		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat %s: %w", full, err)
		}

		entry := &dbk.SourceEntry{Path: childRel, RealPath: full, Info: info}
		descend := info.IsDir()

		if info.Mode()&fs.ModeSymlink != 0 {
			target, err := os.Readlink(full)
			if err != nil {
				return fmt.Errorf("reading link %s: %w", full, err)
			}
			entry.Target = target
			if w.follow != nil && w.follow(childRel) {
				if ti, err := os.Stat(full); err == nil && (ti.Mode().IsRegular() || ti.IsDir()) {
					entry.Info = ti
					entry.Target = ""
					if ti.IsDir() {
						resolved, err := filepath.EvalSymlinks(full)
						if err != nil || w.visited[resolved] {
							continue
						}
						w.visited[resolved] = true
					}
					descend = ti.IsDir()
				}
			}
		} else if !info.Mode().IsRegular() && !info.IsDir() {
			continue
		}
		entry.Ino = inode(entry.Info)

		var children []fs.DirEntry
		if descend {
			children, entry.Err = os.ReadDir(full)
		}

		if err := w.fn(entry); err != nil {
			if descend && errors.Is(err, fs.SkipDir) {
				continue
			}
			return err
		}
		if descend && entry.Err == nil {
			if err := w.walkEntries(full, childRel, children); err != nil {
				return err
			}
		}
	}
	return nil
}

// Compile-time check that OSFilesystemManager implements dbk.FilesystemManager interface
var _ dbk.FilesystemManager = (*OSFilesystemManager)(nil)
