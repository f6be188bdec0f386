package dbk

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"dbk-go/internal/database/sqlc"
	"dbk-go/internal/nexus"
)

// DiskInfo describes a known disk and where it is mounted right now.
type DiskInfo struct {
	Disk *sqlc.Disk
	// Used is the block size total of the objects on the disk.
	Used int64
	// Path is the disk's current data path, or "" if it is not mounted.
	Path string
}

// DiskParams holds the disk settings SetDisk can change. Nil fields are
// left alone.
type DiskParams struct {
	Size         *int64
	RelativePath *string
	Fstype       *string
	Fsuuid       *string
}

// RefreshReport summarizes RefreshDisk.
type RefreshReport struct {
	Present int
	Added   int
	Removed int
	// Unknown counts objects on the disk that the database does not know.
	Unknown int
}

// legacyMigrator is implemented by vaults that may have renamed an old
// data directory when they were opened.
type legacyMigrator interface {
	LegacyMigrated() bool
}

// AddDisk registers the directory dataPath as a new backup disk. The disk
// gets the lowest free nexus index and an identity file is written to it.
// A size of 0 means the disk's free space is used instead.
func (s *Service) AddDisk(name, dataPath string, size int64) (*sqlc.Disk, error) {
	if name == "" {
		return nil, fmt.Errorf("disk name is required")
	}
	if size < 0 {
		return nil, fmt.Errorf("disk size must not be negative")
	}
	existing, err := s.database.FindDiskByName(name)
	if err != nil {
		return nil, fmt.Errorf("checking for existing disk: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("disk %q already exists", name)
	}

	abs, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("resolving data path: %w", err)
	}
	v, err := s.openDiskVault(abs)
	if err != nil {
		return nil, err
	}
	id, err := v.Identity()
	if err != nil {
		return nil, err
	}
	if id != nil {
		known, err := s.database.FindDiskByUUID(id.UUID)
		if err != nil {
			return nil, fmt.Errorf("checking disk identity: %w", err)
		}
		if known != nil {
			return nil, fmt.Errorf("%s already holds disk %q", abs, known.Name)
		}
	}

	disk, err := s.database.CreateDisk(name, s.idgen.New(), size, s.relativePath(abs))
	if err != nil {
		return nil, fmt.Errorf("creating disk: %w", err)
	}
	if err := v.SetIdentity(DiskIdentity{UUID: disk.Uuid, Name: disk.Name}); err != nil {
		if derr := s.database.DeleteDisk(disk); derr != nil {
			s.logger.Error("removing disk after failed identity write", "disk", name, "error", derr)
		}
		return nil, err
	}

	s.logger.Info("disk added", "disk", disk.Name, "uuid", disk.Uuid, "index", disk.NexusIndex, "path", abs)
	return disk, nil
}

// relativePath returns abs relative to the first search root that contains
// it, or abs itself when none does.
func (s *Service) relativePath(abs string) string {
	for _, pattern := range s.opts.SearchRoots {
		for dir := abs; ; dir = filepath.Dir(dir) {
			if ok, _ := filepath.Match(pattern, dir); ok {
				if rel, err := filepath.Rel(dir, abs); err == nil {
					return rel
				}
			}
			if filepath.Dir(dir) == dir {
				break
			}
		}
	}
	return abs
}

// findDataPath looks for the disk's data path below every search root. A
// candidate counts only if its identity file carries the disk's uuid.
func (s *Service) findDataPath(disk *sqlc.Disk) (string, error) {
	var candidates []string
	if filepath.IsAbs(disk.RelativePath) {
		candidates = append(candidates, disk.RelativePath)
	} else {
		for _, pattern := range s.opts.SearchRoots {
			roots, err := filepath.Glob(pattern)
			if err != nil {
				return "", fmt.Errorf("bad search root %q: %w", pattern, err)
			}
			for _, root := range roots {
				candidates = append(candidates, filepath.Join(root, disk.RelativePath))
			}
		}
	}

	for _, c := range candidates {
		id, err := s.identityAt(c)
		if err != nil {
			s.logger.Debug("skipping disk candidate", "path", c, "error", err)
			continue
		}
		if id != nil && id.UUID == disk.Uuid {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrDiskNotMounted, disk.Name)
}

// identityAt reads the identity of the disk at dir without touching
// directories that are not disks.
func (s *Service) identityAt(dir string) (*DiskIdentity, error) {
	if _, err := s.fsmgr.Stat(filepath.Join(dir, IdentityFileName)); err != nil {
		return nil, nil
	}
	v, err := s.openVault(dir)
	if err != nil {
		return nil, err
	}
	return v.Identity()
}

func (s *Service) openDiskVault(root string) (Vault, error) {
	v, err := s.openVault(root)
	if err != nil {
		return nil, fmt.Errorf("opening disk: %w", err)
	}
	if m, ok := v.(legacyMigrator); ok && m.LegacyMigrated() {
		s.logger.Info("migrated legacy data directory", "path", root)
	}
	return v, nil
}

// mountDisk opens the vault of a mounted disk.
func (s *Service) mountDisk(disk *sqlc.Disk) (Vault, error) {
	p, err := s.findDataPath(disk)
	if err != nil {
		return nil, err
	}
	return s.openDiskVault(p)
}

// selectDisk resolves a disk by name, uuid or data path.
func (s *Service) selectDisk(sel string) (*sqlc.Disk, error) {
	if sel == "" {
		return nil, ErrNoDiskSelected
	}
	disk, err := s.database.FindDiskByName(sel)
	if err != nil {
		return nil, fmt.Errorf("finding disk: %w", err)
	}
	if disk != nil {
		return disk, nil
	}

	if u, err := uuid.Parse(sel); err == nil {
		disk, err := s.database.FindDiskByUUID(u.String())
		if err != nil {
			return nil, fmt.Errorf("finding disk: %w", err)
		}
		if disk != nil {
			return disk, nil
		}
	}

	if abs, err := filepath.Abs(sel); err == nil {
		if id, err := s.identityAt(abs); err == nil && id != nil {
			disk, err := s.database.FindDiskByUUID(id.UUID)
			if err != nil {
				return nil, fmt.Errorf("finding disk: %w", err)
			}
			if disk != nil {
				return disk, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDiskNotFound, sel)
}

// ListDisks returns every disk with its usage and current data path.
func (s *Service) ListDisks() ([]*DiskInfo, error) {
	disks, err := s.database.ListDisks()
	if err != nil {
		return nil, fmt.Errorf("listing disks: %w", err)
	}
	out := make([]*DiskInfo, 0, len(disks))
	for _, d := range disks {
		used, err := s.database.DiskUsage(d)
		if err != nil {
			return nil, err
		}
		info := &DiskInfo{Disk: d, Used: used}
		if p, err := s.findDataPath(d); err == nil {
			info.Path = p
		}
		out = append(out, info)
	}
	return out, nil
}

// RenameDisk changes a disk's name, in the database and, if the disk is
// mounted, in its identity file.
func (s *Service) RenameDisk(sel, name string) error {
	if name == "" {
		return fmt.Errorf("disk name is required")
	}
	disk, err := s.selectDisk(sel)
	if err != nil {
		return err
	}
	taken, err := s.database.FindDiskByName(name)
	if err != nil {
		return fmt.Errorf("checking for existing disk: %w", err)
	}
	if taken != nil {
		return fmt.Errorf("disk %q already exists", name)
	}
	if err := s.database.RenameDisk(disk, name); err != nil {
		return fmt.Errorf("renaming disk: %w", err)
	}

	v, err := s.mountDisk(disk)
	switch {
	case errors.Is(err, ErrDiskNotMounted):
		s.logger.Warn("disk not mounted, identity file keeps the old name", "disk", disk.Name)
	case err != nil:
		return err
	default:
		if err := v.SetIdentity(DiskIdentity{UUID: disk.Uuid, Name: name}); err != nil {
			return err
		}
	}
	s.logger.Info("disk renamed", "from", disk.Name, "to", name)
	return nil
}

// SetDisk updates a disk's declared size, relative path or filesystem hints.
func (s *Service) SetDisk(sel string, params DiskParams) error {
	disk, err := s.selectDisk(sel)
	if err != nil {
		return err
	}
	if params.Size != nil {
		if *params.Size < 0 {
			return fmt.Errorf("disk size must not be negative")
		}
		disk.Size = *params.Size
	}
	if params.RelativePath != nil {
		disk.RelativePath = *params.RelativePath
	}
	if params.Fstype != nil {
		disk.Fstype = *params.Fstype
	}
	if params.Fsuuid != nil {
		disk.Fsuuid = *params.Fsuuid
	}
	if err := s.database.UpdateDisk(disk); err != nil {
		return fmt.Errorf("updating disk: %w", err)
	}
	s.logger.Info("disk updated", "disk", disk.Name, "size", humanize.IBytes(uint64(disk.Size)), "relative_path", disk.RelativePath)
	return nil
}

// DropDisk forgets every copy on a disk, for example after it failed. The
// disk itself stays registered. It returns the number of objects changed.
func (s *Service) DropDisk(sel string) (int64, error) {
	disk, err := s.selectDisk(sel)
	if err != nil {
		return 0, err
	}
	n, err := s.database.DropDisk(disk)
	if err != nil {
		return 0, err
	}
	s.logger.Info("disk dropped", "disk", disk.Name, "objects", n)
	return n, nil
}

// DeleteDisk unregisters a disk that holds no copies.
func (s *Service) DeleteDisk(sel string) error {
	disk, err := s.selectDisk(sel)
	if err != nil {
		return err
	}
	if err := s.database.DeleteDisk(disk); err != nil {
		return err
	}
	s.logger.Info("disk deleted", "disk", disk.Name, "uuid", disk.Uuid)
	return nil
}

// RefreshDisk rebuilds the disk's bit in every nexus from the objects that
// are actually present on it. Copies with the wrong size count as missing.
func (s *Service) RefreshDisk(sel string) (*RefreshReport, error) {
	disk, err := s.selectDisk(sel)
	if err != nil {
		return nil, err
	}
	v, err := s.mountDisk(disk)
	if err != nil {
		return nil, err
	}
	objs, err := s.database.ListObjects()
	if err != nil {
		return nil, err
	}
	byHash := make(map[string]*sqlc.Object, len(objs))
	for _, o := range objs {
		byHash[o.Hash] = o
	}

	idx := int(disk.NexusIndex)
	report := &RefreshReport{}
	present := make(map[string]bool)
	err = v.Walk(func(hash string, size int64) error {
		o, ok := byHash[hash]
		if !ok {
			report.Unknown++
			return nil
		}
		if o.Size != size {
			s.logger.Warn("copy has wrong size", "disk", disk.Name, "hash", hash, "size", size, "want", o.Size)
			return nil
		}
		present[hash] = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning disk: %w", err)
	}

	var changes []NexusChange
	for _, o := range objs {
		claimed := nexus.DiskIn(o.Nexus, idx)
		switch {
		case present[o.Hash] && !claimed:
			changes = append(changes, NexusChange{Hash: o.Hash, Disk: idx, Present: true})
			report.Added++
		case !present[o.Hash] && claimed:
			changes = append(changes, NexusChange{Hash: o.Hash, Disk: idx, Present: false})
			report.Removed++
		}
	}
	report.Present = len(present)
	if err := s.database.ApplyNexusChanges(changes); err != nil {
		return nil, err
	}
	s.logger.Info("disk refreshed", "disk", disk.Name, "present", report.Present,
		"added", report.Added, "removed", report.Removed, "unknown", report.Unknown)
	return report, nil
}
