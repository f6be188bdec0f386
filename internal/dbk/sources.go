package dbk

import (
	"fmt"
	"path/filepath"
	"strings"

	"dbk-go/internal/database/sqlc"
)

// MapSource makes the real directory realPath appear at virtualPath in the
// file tree. Mappings may not be nested inside each other; remapping the
// same virtual path replaces its directory.
func (s *Service) MapSource(virtualPath, realPath string) error {
	vp := CleanVirtualPath(virtualPath)

	abs, err := filepath.Abs(realPath)
	if err != nil {
		return fmt.Errorf("resolving source path: %w", err)
	}
	info, err := s.fsmgr.Stat(abs)
	if err != nil {
		return fmt.Errorf("source not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source is not a directory: %s", abs)
	}

	maps, err := s.database.ListPathMaps()
	if err != nil {
		return fmt.Errorf("listing sources: %w", err)
	}
	for _, m := range maps {
		if m.VirtualPath == vp {
			continue
		}
		if underPrefix(vp, m.VirtualPath) || underPrefix(m.VirtualPath, vp) {
			return fmt.Errorf("%q overlaps the source mapped at %q", vp, m.VirtualPath)
		}
	}

	if err := s.database.SetPathMap(vp, abs); err != nil {
		return fmt.Errorf("mapping source: %w", err)
	}
	s.logger.Info("source mapped", "virtual_path", vp, "path", abs)
	return nil
}

// UnmapSource removes a mapping. The entries recorded under it stay until
// the next update removes them.
func (s *Service) UnmapSource(virtualPath string) error {
	vp := CleanVirtualPath(virtualPath)
	maps, err := s.database.ListPathMaps()
	if err != nil {
		return fmt.Errorf("listing sources: %w", err)
	}
	if findMap(maps, vp) == nil {
		return fmt.Errorf("no source mapped at %q", vp)
	}
	if err := s.database.DeletePathMap(vp); err != nil {
		return fmt.Errorf("unmapping source: %w", err)
	}
	s.logger.Info("source unmapped", "virtual_path", vp)
	return nil
}

// ListSources returns every mapping ordered by virtual path.
func (s *Service) ListSources() ([]*sqlc.PathMap, error) {
	maps, err := s.database.ListPathMaps()
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	return maps, nil
}

func findMap(maps []*sqlc.PathMap, vp string) *sqlc.PathMap {
	for _, m := range maps {
		if m.VirtualPath == vp {
			return m
		}
	}
	return nil
}

// realPath translates a virtual path into the source file it was read
// from, using the longest mapping that contains it.
func realPath(maps []*sqlc.PathMap, vp string) (string, bool) {
	var best *sqlc.PathMap
	for _, m := range maps {
		if underPrefix(vp, m.VirtualPath) && (best == nil || len(m.VirtualPath) > len(best.VirtualPath)) {
			best = m
		}
	}
	if best == nil {
		return "", false
	}
	rel := strings.TrimPrefix(strings.TrimPrefix(vp, best.VirtualPath), "/")
	return filepath.Join(best.RealPath, filepath.FromSlash(rel)), true
}
