package dbk

import (
	"fmt"
	"strings"

	"dbk-go/internal/database/sqlc"
	"dbk-go/internal/ledger"
	"dbk-go/internal/nexus"
)

// ListOptions filter ListFiles.
type ListOptions struct {
	Prefix    string
	MinCopies int
	// MaxCopies is an inclusive upper bound. Negative means none.
	MaxCopies int
	// ShowHidden includes entries whose path config hides them.
	ShowHidden bool
}

// ListFiles returns the entries under a prefix whose copy count lies in
// the requested range.
func (s *Service) ListFiles(opts ListOptions) ([]*sqlc.ListFilesByLevelRow, error) {
	maxCopies := opts.MaxCopies
	if maxCopies < 0 {
		maxCopies = nexus.MaxDisks
	}
	rows, err := s.database.ListFilesByLevel(CleanVirtualPath(opts.Prefix), opts.MinCopies, maxCopies)
	if err != nil {
		return nil, err
	}
	if opts.ShowHidden {
		return rows, nil
	}
	configs, err := s.loadConfigs()
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, r := range rows {
		if !configs.Resolve(r.VirtualPath).Hide {
			out = append(out, r)
		}
	}
	return out, nil
}

// CopyData returns the stored bytes per copy level, for one disk or, with
// an empty selection, for all of them.
func (s *Service) CopyData(sel string) ([]ledger.CopyData, error) {
	disk := -1
	if sel != "" {
		d, err := s.selectDisk(sel)
		if err != nil {
			return nil, err
		}
		disk = int(d.NexusIndex)
	}
	l, err := s.loadLedger()
	if err != nil {
		return nil, err
	}
	return l.CopyData(disk), nil
}

// Check verifies that every object's copy count matches its nexus.
func (s *Service) Check() error {
	bad, err := s.database.CopyMismatches()
	if err != nil {
		return err
	}
	if len(bad) == 0 {
		return nil
	}
	var hashes []string
	for i, o := range bad {
		if i == 5 {
			hashes = append(hashes, "...")
			break
		}
		hashes = append(hashes, fmt.Sprintf("%s (nexus %q, copies %d)", shortHash(o.Hash), o.Nexus, o.Copies))
	}
	return fmt.Errorf("%w: %d objects with wrong copy count: %s", ErrInvariant, len(bad), strings.Join(hashes, ", "))
}

// CleanObjects recomputes object references and forgets objects that are
// neither referenced nor stored anywhere.
func (s *Service) CleanObjects() (int64, error) {
	n, err := s.database.CleanRefs()
	if err != nil {
		return 0, err
	}
	s.logger.Info("objects cleaned", "deleted", n)
	return n, nil
}

// GetHistory returns the most recent operations, ordered newest first.
func (s *Service) GetHistory(limit int) ([]*sqlc.BackupOperation, error) {
	ops, err := s.database.ListBackupOperations(limit)
	if err != nil {
		return nil, fmt.Errorf("listing backup operations: %w", err)
	}
	return ops, nil
}
