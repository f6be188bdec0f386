package dbk

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"dbk-go/internal/database/sqlc"
	"dbk-go/internal/ledger"
	"dbk-go/internal/model"
	"dbk-go/internal/nexus"
	"dbk-go/internal/placement"
	"dbk-go/internal/sourcefile"
)

// BackupOptions limit what one backup run does.
type BackupOptions struct {
	// LimitBytes caps the bytes copied. Zero means no cap.
	LimitBytes int64
	// LimitCopies skips objects that already have this many copies.
	LimitCopies int
	// NoFlush never evicts existing copies to make room.
	NoFlush bool
	// Simulate plans the run and reports it without touching the disk.
	Simulate bool
}

// Backup copies under-replicated objects onto the selected disk and
// removes copies that are no longer wanted there.
func (s *Service) Backup(sel string, opts BackupOptions) (*placement.Report, error) {
	disk, err := s.selectDisk(sel)
	if err != nil {
		return nil, err
	}
	unhashed, err := s.database.CountUnhashedFiles()
	if err != nil {
		return nil, err
	}
	if unhashed > 0 {
		return nil, fmt.Errorf("%w: %d files", ErrIncompleteUpdate, unhashed)
	}
	v, err := s.mountDisk(disk)
	if err != nil {
		return nil, err
	}
	s.logger.Info("backup started", "disk", disk.Name, "path", v.Root(), "simulate", opts.Simulate)

	if !opts.Simulate {
		if err := v.SaveDatabase(s.database); err != nil {
			return nil, fmt.Errorf("saving database to disk: %w", err)
		}
	}

	l, err := s.loadLedger()
	if err != nil {
		return nil, err
	}
	objects, err := s.placementObjects()
	if err != nil {
		return nil, err
	}
	avail, err := s.available(disk, v)
	if err != nil {
		return nil, err
	}
	maps, err := s.database.ListPathMaps()
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}

	exec := &copyExecutor{s: s, disk: disk, vault: v, maps: maps, lastFlush: s.clock.Now()}
	report, err := placement.Run(l, objects, placement.Options{
		Disk:        int(disk.NexusIndex),
		Available:   avail,
		LimitBytes:  opts.LimitBytes,
		LimitCopies: opts.LimitCopies,
		NoFlush:     opts.NoFlush,
		Simulate:    opts.Simulate,
	}, exec, s.logger)
	if ferr := exec.flush(); ferr != nil && err == nil {
		err = ferr
	}
	if err != nil {
		return report, err
	}

	if !opts.Simulate {
		if err := v.SaveDatabase(s.database); err != nil {
			return report, fmt.Errorf("saving database to disk: %w", err)
		}
	}
	s.logger.Info("backup finished", "disk", disk.Name,
		"copied", humanize.IBytes(uint64(report.CopiedBytes())),
		"deleted", humanize.IBytes(uint64(report.DeletedBytes())))
	return report, nil
}

// available returns the space the run may fill: the declared size minus
// current usage, or the free space when no size was declared.
func (s *Service) available(disk *sqlc.Disk, v Vault) (int64, error) {
	if disk.Size > 0 {
		used, err := s.database.DiskUsage(disk)
		if err != nil {
			return 0, err
		}
		return disk.Size - used, nil
	}
	free, err := v.Free()
	if err != nil {
		return 0, fmt.Errorf("reading free space: %w", err)
	}
	return free, nil
}

// loadLedger builds the redundancy ledger from the referenced objects.
func (s *Service) loadLedger() (*ledger.Ledger, error) {
	groups, err := s.database.NexusGroups()
	if err != nil {
		return nil, err
	}
	l := ledger.New()
	for _, g := range groups {
		n, err := nexus.Parse(g.Nexus)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvariant, err)
		}
		l.Load(n, int(g.Objects), g.TotalSize, g.SaturatedSize)
	}
	return l, nil
}

func (s *Service) placementObjects() ([]placement.Object, error) {
	objs, err := s.database.ListObjects()
	if err != nil {
		return nil, err
	}
	out := make([]placement.Object, 0, len(objs))
	for _, o := range objs {
		n, err := nexus.Parse(o.Nexus)
		if err != nil {
			return nil, fmt.Errorf("%w: object %s: %v", ErrInvariant, o.Hash, err)
		}
		if int64(n.Level()) != o.Copies {
			return nil, fmt.Errorf("%w: object %s has nexus %q but %d copies", ErrInvariant, o.Hash, o.Nexus, o.Copies)
		}
		out = append(out, placement.Object{
			Hash:      o.Hash,
			Size:      o.Size,
			BlockSize: o.Blocksize,
			Nexus:     n,
			Refs:      int(o.Refs),
			Priority:  int(o.Priority),
			MaxCopies: model.MaxCopiesFromNull(o.Maxcopies),
			LastPath:  o.LastPath,
		})
	}
	return out, nil
}

// copyExecutor moves object copies on and off one disk and batches the
// resulting nexus changes.
type copyExecutor struct {
	s         *Service
	disk      *sqlc.Disk
	vault     Vault
	maps      []*sqlc.PathMap
	pending   []NexusChange
	lastFlush time.Time
}

func (x *copyExecutor) flush() error {
	x.lastFlush = x.s.clock.Now()
	if len(x.pending) == 0 {
		return nil
	}
	if err := x.s.database.ApplyNexusChanges(x.pending); err != nil {
		return err
	}
	x.pending = x.pending[:0]
	return nil
}

// tick flushes pending changes once flushInterval has passed.
func (x *copyExecutor) tick() error {
	if x.s.clock.Now().Sub(x.lastFlush) < flushInterval {
		return nil
	}
	return x.flush()
}

// Delete records the removal before the file goes, so the database never
// claims a copy that is gone.
func (x *copyExecutor) Delete(e *placement.Entry) error {
	x.pending = append(x.pending, NexusChange{Hash: e.Hash, Disk: int(x.disk.NexusIndex), Present: false})
	if err := x.flush(); err != nil {
		return err
	}
	return x.vault.Remove(e.Hash)
}

// Copy tries every path that references the object until one still holds
// the expected content.
func (x *copyExecutor) Copy(e *placement.Entry, remaining int64) (bool, error) {
	paths, err := x.s.database.PathsForHash(e.Hash)
	if err != nil {
		return false, err
	}
	for _, vp := range paths {
		src, ok := realPath(x.maps, vp)
		if !ok {
			continue
		}
		copied, err := x.copyFrom(e, vp, src)
		if err != nil {
			return false, err
		}
		if copied {
			x.s.logger.Debug("copied", "path", vp, "size", humanize.IBytes(uint64(e.Size)), "remaining", remaining)
			return true, x.tick()
		}
	}
	x.s.logger.Warn("no usable source for object", "hash", shortHash(e.Hash), "path", e.Path)
	return false, nil
}

func (x *copyExecutor) copyFrom(e *placement.Entry, vp, src string) (bool, error) {
	s := x.s
	info, err := s.fsmgr.Stat(src)
	if err != nil || !info.Mode().IsRegular() || info.Size() != e.Size {
		s.logger.Debug("source does not match object", "path", src)
		return false, nil
	}

	po, err := x.vault.Create(e.Hash)
	if err != nil {
		return false, err
	}
	sf, err := sourcefile.New(src, info, s.opts.Capability)
	if err != nil {
		po.Discard()
		return false, nil
	}
	sf.SetDest(po.File())
	sf.SetProgress(s.opts.Progress)

	if err := sf.Copy(x.tick, s.opts.Sync); err != nil {
		po.Discard()
		if errors.Is(err, sourcefile.ErrFileChanged) {
			s.logger.Info("source changed during copy", "path", src)
			return false, nil
		}
		s.logger.Warn("copy failed", "path", src, "error", err)
		return false, nil
	}

	if sf.Hash != e.Hash {
		po.Discard()
		s.logger.Warn("source content differs from its recorded hash", "path", vp,
			"recorded", shortHash(e.Hash), "actual", shortHash(sf.Hash))
		if err := x.correct(vp, sf); err != nil {
			return false, err
		}
		return false, nil
	}

	if err := po.Commit(); err != nil {
		return false, err
	}
	x.pending = append(x.pending, NexusChange{Hash: e.Hash, Disk: int(x.disk.NexusIndex), Present: true})
	return true, nil
}

// correct points the entry at vp to the content that was actually read.
func (x *copyExecutor) correct(vp string, sf *sourcefile.SourceFile) error {
	f, err := x.s.database.FindFile(vp)
	if err != nil || f == nil {
		return err
	}
	f.Hash = sf.Hash
	f.Size = sf.Size
	f.LastModified = sf.Info().ModTime().UnixNano()
	if err := x.s.database.SaveFile(f, x.s.blockSize(f.Size)); err != nil {
		if errors.Is(err, ErrInvariant) {
			return err
		}
		x.s.logger.Warn("cannot correct file entry", "path", vp, "error", err)
	}
	return nil
}
