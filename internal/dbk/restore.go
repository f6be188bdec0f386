package dbk

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/renameio"

	"dbk-go/internal/database/sqlc"
	"dbk-go/internal/glob"
	"dbk-go/internal/nexus"
	"dbk-go/internal/restoreset"
)

// RestoreOptions select what to restore and how.
type RestoreOptions struct {
	// Prefix limits the restore to a virtual directory or file.
	Prefix string
	// Pattern further filters by glob, on the basename or, if it contains
	// '/', on the whole virtual path.
	Pattern string
	// Dest is the directory the virtual tree is recreated under.
	Dest string
	// Disk restricts the restore to one disk. Empty means every mounted disk.
	Disk string
	// Link hardlinks files to the stored copies instead of copying them.
	Link bool
}

// RestoreReport lists what was and was not restored. Files already present
// at the destination are skipped, so a restore can be repeated with other
// disks until nothing is missing.
type RestoreReport struct {
	Restored      int
	RestoredBytes int64
	Skipped       int
	Symlinks      int
	// Missing are paths with no copy on any disk that was available.
	Missing []string
	// Failed are paths that had a copy but could not be written.
	Failed []string
}

// RestoreSetResult is the outcome of RestoreSet.
type RestoreSetResult struct {
	// Files is the number of files that matched the filter.
	Files int
	Disks []*sqlc.Disk
	// Unreachable counts matching files with no copy anywhere.
	Unreachable int
}

type mountedDisk struct {
	disk  *sqlc.Disk
	vault Vault
}

func restoreFilter(pattern string) func(string) bool {
	if pattern == "" {
		return func(string) bool { return true }
	}
	m := glob.NewMatcher([]string{pattern})
	return m.Match
}

// Restore recreates the selected part of the file tree under opts.Dest.
func (s *Service) Restore(opts RestoreOptions) (*RestoreReport, error) {
	if opts.Dest == "" {
		return nil, fmt.Errorf("restore destination is required")
	}
	dest, err := filepath.Abs(opts.Dest)
	if err != nil {
		return nil, fmt.Errorf("resolving destination: %w", err)
	}
	mounted, err := s.mountedDisks(opts.Disk)
	if err != nil {
		return nil, err
	}

	prefix := CleanVirtualPath(opts.Prefix)
	match := restoreFilter(opts.Pattern)
	rows, err := s.database.ListFileObjects(prefix)
	if err != nil {
		return nil, err
	}
	s.logger.Info("restore started", "prefix", prefix, "dest", dest, "disks", len(mounted))

	report := &RestoreReport{}
	for _, row := range rows {
		if !match(row.VirtualPath) {
			continue
		}
		target := filepath.Join(dest, filepath.FromSlash(row.VirtualPath))
		mtime := time.Unix(0, row.LastModified)
		n, err := nexus.Parse(row.Nexus)
		if err != nil {
			return report, fmt.Errorf("%w: %v", ErrInvariant, err)
		}
		if present(target, row.Size, mtime) || (opts.Link && linked(target, row.Size, row.Hash, n, mounted)) {
			report.Skipped++
			continue
		}

		restored, tried := false, false
		for _, m := range mounted {
			if !n.Has(int(m.disk.NexusIndex)) {
				continue
			}
			tried = true
			if err := s.restoreFile(m.vault, row.Hash, target, mtime, opts.Link); err != nil {
				s.logger.Warn("restore failed", "path", row.VirtualPath, "disk", m.disk.Name, "error", err)
				continue
			}
			restored = true
			break
		}
		switch {
		case restored:
			report.Restored++
			report.RestoredBytes += row.Size
		case tried:
			report.Failed = append(report.Failed, row.VirtualPath)
		default:
			report.Missing = append(report.Missing, row.VirtualPath)
		}
	}

	links, err := s.database.ListSymlinks(prefix)
	if err != nil {
		return report, fmt.Errorf("listing symlinks: %w", err)
	}
	for _, l := range links {
		if !match(l.VirtualPath) {
			continue
		}
		target := filepath.Join(dest, filepath.FromSlash(l.VirtualPath))
		if err := restoreSymlink(l.Target, target); err != nil {
			s.logger.Warn("restore failed", "path", l.VirtualPath, "error", err)
			report.Failed = append(report.Failed, l.VirtualPath)
			continue
		}
		report.Symlinks++
	}

	s.logger.Info("restore finished", "restored", report.Restored,
		"size", humanize.IBytes(uint64(report.RestoredBytes)), "skipped", report.Skipped,
		"symlinks", report.Symlinks, "missing", len(report.Missing), "failed", len(report.Failed))
	return report, nil
}

// mountedDisks returns the selected disk, or every disk that is mounted.
func (s *Service) mountedDisks(sel string) ([]mountedDisk, error) {
	if sel != "" {
		disk, err := s.selectDisk(sel)
		if err != nil {
			return nil, err
		}
		v, err := s.mountDisk(disk)
		if err != nil {
			return nil, err
		}
		return []mountedDisk{{disk: disk, vault: v}}, nil
	}

	disks, err := s.database.ListDisks()
	if err != nil {
		return nil, fmt.Errorf("listing disks: %w", err)
	}
	var out []mountedDisk
	for _, d := range disks {
		v, err := s.mountDisk(d)
		if errors.Is(err, ErrDiskNotMounted) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, mountedDisk{disk: d, vault: v})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no disk available", ErrDiskNotMounted)
	}
	return out, nil
}

// present reports whether target already holds a restored file.
func present(target string, size int64, mtime time.Time) bool {
	info, err := os.Lstat(target)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() == size && info.ModTime().Equal(mtime)
}

// linked reports whether target is already a hardlink to a copy on one of
// the mounted disks. Linked files keep the copy's mtime, so present cannot
// recognize them.
func linked(target string, size int64, hash string, n nexus.Nexus, mounted []mountedDisk) bool {
	info, err := os.Lstat(target)
	if err != nil || !info.Mode().IsRegular() || info.Size() != size {
		return false
	}
	for _, m := range mounted {
		if !n.Has(int(m.disk.NexusIndex)) {
			continue
		}
		stored, err := os.Stat(m.vault.ObjectPath(hash))
		if err == nil && os.SameFile(info, stored) {
			return true
		}
	}
	return false
}

func (s *Service) restoreFile(v Vault, hash, target string, mtime time.Time, link bool) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	if link {
		if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("replacing %s: %w", target, err)
		}
		if err := os.Link(v.ObjectPath(hash), target); err != nil {
			return fmt.Errorf("linking: %w", err)
		}
		return nil
	}

	src, err := v.Open(hash)
	if err != nil {
		return err
	}
	defer src.Close()

	pf, err := renameio.TempFile(filepath.Dir(target), target)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer pf.Cleanup()

	if _, err := io.Copy(pf, src); err != nil {
		return fmt.Errorf("copying content: %w", err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}
	if err := os.Chtimes(target, mtime, mtime); err != nil {
		return fmt.Errorf("setting modification time: %w", err)
	}
	return nil
}

func restoreSymlink(oldname, target string) error {
	if existing, err := os.Readlink(target); err == nil && existing == oldname {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	return renameio.Symlink(oldname, target)
}

// RestoreSet proposes a small set of disks that together hold a copy of
// every matching file. The search is heuristic and may return more disks
// than strictly needed.
func (s *Service) RestoreSet(prefix, pattern string) (*RestoreSetResult, error) {
	prefix = CleanVirtualPath(prefix)
	match := restoreFilter(pattern)
	rows, err := s.database.ListFileObjects(prefix)
	if err != nil {
		return nil, err
	}

	result := &RestoreSetResult{}
	var sets []uint64
	for _, row := range rows {
		if !match(row.VirtualPath) {
			continue
		}
		n, err := nexus.Parse(row.Nexus)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvariant, err)
		}
		sets = append(sets, n.Bits())
		result.Files++
	}
	if result.Files == 0 {
		return result, nil
	}

	solved := restoreset.Solve(sets)
	result.Unreachable = solved.Unreachable

	disks, err := s.database.ListDisks()
	if err != nil {
		return nil, fmt.Errorf("listing disks: %w", err)
	}
	byIndex := make(map[int]*sqlc.Disk, len(disks))
	for _, d := range disks {
		byIndex[int(d.NexusIndex)] = d
	}
	for _, i := range solved.Disks() {
		d, ok := byIndex[i]
		if !ok {
			return nil, fmt.Errorf("%w: files are stored on unknown disk index %d", ErrInvariant, i)
		}
		result.Disks = append(result.Disks, d)
	}
	return result, nil
}
