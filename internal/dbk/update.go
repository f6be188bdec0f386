package dbk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/dustin/go-humanize"

	"dbk-go/internal/database/sqlc"
	"dbk-go/internal/model"
	"dbk-go/internal/sourcefile"
)

// UpdateReport summarizes one update of the file tree.
type UpdateReport struct {
	Scanned     int
	Unchanged   int
	Hashed      int
	HashedBytes int64
	Deleted     int
	Symlinks    int
	// Changed counts files that were modified while they were hashed. They
	// are picked up by the next update.
	Changed int
	Failed  int
}

// hashJob is a file whose content has to be (re)hashed.
type hashJob struct {
	vp    string
	src   string
	info  fs.FileInfo
	meta  model.FileMeta
	entry sqlc.FileTree
	isNew bool
}

type scan struct {
	s        *Service
	configs  *configResolver
	files    map[string]*sqlc.FileTree
	links    map[string]string
	seen     map[string]bool
	seenLink map[string]bool
	jobs     []*hashJob
	report   *UpdateReport
}

// Update scans every mapped source and brings the file tree in line with
// it. New files are recorded without a hash first and hashed in a second
// pass, so an interrupted update leaves entries that make Backup refuse to
// run until the next update completes.
func (s *Service) Update() (*UpdateReport, error) {
	s.logger.Info("update started")

	maps, err := s.database.ListPathMaps()
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	configs, err := s.loadConfigs()
	if err != nil {
		return nil, err
	}
	files, err := s.database.ListFiles("")
	if err != nil {
		return nil, err
	}
	links, err := s.database.ListSymlinks("")
	if err != nil {
		return nil, fmt.Errorf("listing symlinks: %w", err)
	}

	sc := &scan{
		s:        s,
		configs:  configs,
		files:    make(map[string]*sqlc.FileTree, len(files)),
		links:    make(map[string]string, len(links)),
		seen:     make(map[string]bool, len(files)),
		seenLink: make(map[string]bool, len(links)),
		report:   &UpdateReport{},
	}
	for _, f := range files {
		sc.files[f.VirtualPath] = f
	}
	for _, l := range links {
		sc.links[l.VirtualPath] = l.Target
	}

	for _, m := range maps {
		if err := sc.walk(m); err != nil {
			return sc.report, err
		}
	}
	if err := sc.prune(); err != nil {
		return sc.report, err
	}
	if err := sc.hash(); err != nil {
		return sc.report, err
	}

	r := sc.report
	s.logger.Info("update finished", "scanned", r.Scanned, "unchanged", r.Unchanged,
		"hashed", r.Hashed, "hashed_size", humanize.IBytes(uint64(r.HashedBytes)),
		"deleted", r.Deleted, "symlinks", r.Symlinks, "changed", r.Changed, "failed", r.Failed)
	return r, nil
}

func (sc *scan) walk(m *sqlc.PathMap) error {
	follow := func(rel string) bool {
		return sc.configs.Resolve(joinVirtual(m.VirtualPath, rel)).FollowSymlinks
	}
	err := sc.s.fsmgr.Walk(m.RealPath, follow, func(e *SourceEntry) error {
		return sc.visit(joinVirtual(m.VirtualPath, e.Path), e)
	})
	if err != nil {
		return fmt.Errorf("scanning %s: %w", m.RealPath, err)
	}
	return nil
}

func (sc *scan) visit(vp string, e *SourceEntry) error {
	cfg := sc.configs.Resolve(vp)
	isDir := e.Info.IsDir()

	if cfg.Lock {
		sc.keepUnder(vp)
		if isDir {
			return fs.SkipDir
		}
		return nil
	}
	if cfg.Excluded(vp) {
		if isDir {
			return fs.SkipDir
		}
		return nil
	}
	if e.Err != nil {
		sc.s.logger.Warn("cannot read directory", "path", e.RealPath, "error", e.Err)
		sc.report.Failed++
		sc.keepUnder(vp)
		return nil
	}

	switch {
	case e.IsSymlink():
		sc.seenLink[vp] = true
		if target, ok := sc.links[vp]; ok && target == e.Target {
			return nil
		}
		if err := sc.s.database.SaveSymlink(vp, e.Target); err != nil {
			return fmt.Errorf("saving symlink: %w", err)
		}
		sc.report.Symlinks++
		return nil
	case isDir:
		return nil
	}

	sc.report.Scanned++
	sc.seen[vp] = true

	meta := sourcefile.ReadMeta(e.RealPath, sc.s.logger)
	priority := cfg.Priority
	if meta.Priority != nil {
		priority = *meta.Priority
	}
	maxcopies := cfg.MaxCopies
	if meta.MaxCopies != nil {
		maxcopies = *meta.MaxCopies
	}
	metadata, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	entry := sqlc.FileTree{
		VirtualPath:  vp,
		Size:         e.Info.Size(),
		LastModified: e.Info.ModTime().UnixNano(),
		Ino:          e.Ino,
		Metadata:     string(metadata),
		Priority:     int64(priority),
		Maxcopies:    maxcopies.NullInt64(),
	}

	old := sc.files[vp]
	if old != nil && old.Hash != "" && old.Size == entry.Size && old.LastModified == entry.LastModified &&
		old.Ino == entry.Ino && (meta.Hash == "" || meta.Hash == old.Hash) {
		sc.report.Unchanged++
		entry.Hash = old.Hash
		if sameOverrides(old, &entry) {
			return nil
		}
		if err := sc.s.database.SaveFile(&entry, sc.s.blockSize(entry.Size)); err != nil {
			return fmt.Errorf("saving %s: %w", vp, err)
		}
		return nil
	}

	job := &hashJob{vp: vp, src: e.RealPath, info: e.Info, meta: meta, entry: entry, isNew: old == nil}
	if job.isNew {
		if err := sc.s.database.SaveFile(&entry, 0); err != nil {
			return fmt.Errorf("recording %s: %w", vp, err)
		}
	}
	sc.jobs = append(sc.jobs, job)
	return nil
}

func sameOverrides(a, b *sqlc.FileTree) bool {
	return a.Metadata == b.Metadata && a.Priority == b.Priority && a.Maxcopies == b.Maxcopies
}

// keepUnder marks everything recorded at or below vp as seen.
func (sc *scan) keepUnder(vp string) {
	for p := range sc.files {
		if underPrefix(p, vp) {
			sc.seen[p] = true
		}
	}
	for p := range sc.links {
		if underPrefix(p, vp) {
			sc.seenLink[p] = true
		}
	}
}

// prune deletes entries that were not seen, unless a lock protects them.
func (sc *scan) prune() error {
	var gone []string
	for p := range sc.files {
		if !sc.seen[p] && !sc.configs.locked(p) {
			gone = append(gone, p)
		}
	}
	if err := sc.s.database.DeleteFiles(gone); err != nil {
		return fmt.Errorf("deleting vanished files: %w", err)
	}
	sc.report.Deleted += len(gone)

	for p := range sc.links {
		if !sc.seenLink[p] && !sc.configs.locked(p) {
			if err := sc.s.database.DeleteSymlink(p); err != nil {
				return fmt.Errorf("deleting symlink: %w", err)
			}
			sc.report.Deleted++
		}
	}
	return nil
}

func (sc *scan) hash() error {
	for _, job := range sc.jobs {
		if err := sc.hashOne(job); err != nil {
			return err
		}
	}
	return nil
}

func (sc *scan) hashOne(job *hashJob) error {
	s := sc.s
	entry := job.entry

	trusted := job.meta.Hash != ""
	if trusted {
		obj, err := s.database.FindObject(job.meta.Hash)
		if err != nil {
			return fmt.Errorf("checking sidecar hash of %s: %w", job.vp, err)
		}
		if obj != nil && obj.Size != entry.Size {
			s.logger.Warn("ignoring sidecar hash", "path", job.src, "hash", shortHash(job.meta.Hash),
				"object_size", obj.Size, "size", entry.Size)
			trusted = false
		}
	}

	if trusted {
		entry.Hash = job.meta.Hash
	} else {
		sf, err := sourcefile.New(job.src, job.info, s.opts.Capability)
		if err == nil {
			sf.SetProgress(s.opts.Progress)
			err = sf.Copy(nil, false)
		}
		if err != nil {
			if errors.Is(err, sourcefile.ErrFileChanged) {
				s.logger.Debug("file changed while hashing", "path", job.src)
				sc.report.Changed++
			} else {
				s.logger.Warn("cannot hash file", "path", job.src, "error", err)
				sc.report.Failed++
			}
			return sc.abandon(job)
		}
		entry.Hash = sf.Hash
		entry.Size = sf.Size
	}

	if err := s.database.SaveFile(&entry, s.blockSize(entry.Size)); err != nil {
		if errors.Is(err, ErrInvariant) {
			return fmt.Errorf("saving %s: %w", job.vp, err)
		}
		s.logger.Warn("cannot save file", "path", job.vp, "error", err)
		sc.report.Failed++
		return sc.abandon(job)
	}
	sc.report.Hashed++
	sc.report.HashedBytes += entry.Size
	s.logger.Debug("hashed", "path", job.vp, "hash", shortHash(entry.Hash))
	return nil
}

// abandon drops the placeholder of a new file that could not be hashed.
// Existing files keep their previous entry.
func (sc *scan) abandon(job *hashJob) error {
	if !job.isNew {
		return nil
	}
	if err := sc.s.database.DeleteFiles([]string{job.vp}); err != nil {
		return fmt.Errorf("dropping %s: %w", job.vp, err)
	}
	return nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
