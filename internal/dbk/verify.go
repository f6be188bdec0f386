package dbk

import (
	"github.com/dustin/go-humanize"

	"dbk-go/internal/sourcefile"
)

// VerifyReport lists the copies VerifyDisk found wanting. Missing and
// Corrupt copies were removed from the disk and from its nexus bit. Failed
// copies could not be read and are left as they are.
type VerifyReport struct {
	Checked      int
	CheckedBytes int64
	Missing      []string
	Corrupt      []string
	Failed       []string
}

// VerifyDisk rehashes every copy the disk is supposed to hold.
func (s *Service) VerifyDisk(sel string) (*VerifyReport, error) {
	disk, err := s.selectDisk(sel)
	if err != nil {
		return nil, err
	}
	v, err := s.mountDisk(disk)
	if err != nil {
		return nil, err
	}
	objs, err := s.database.ListObjectsOnDisk(disk)
	if err != nil {
		return nil, err
	}
	s.logger.Info("verify started", "disk", disk.Name, "objects", len(objs))

	idx := int(disk.NexusIndex)
	report := &VerifyReport{}
	var lost []NexusChange
	for _, o := range objs {
		ok, err := v.Has(o.Hash)
		if err != nil {
			return report, err
		}
		if !ok {
			s.logger.Warn("copy missing", "disk", disk.Name, "hash", shortHash(o.Hash), "path", o.LastPath)
			report.Missing = append(report.Missing, o.Hash)
			lost = append(lost, NexusChange{Hash: o.Hash, Disk: idx})
			continue
		}

		sf, err := sourcefile.New(v.ObjectPath(o.Hash), nil, s.opts.Capability)
		if err == nil {
			sf.SetProgress(s.opts.Progress)
			err = sf.Copy(nil, false)
		}
		if err != nil {
			s.logger.Warn("cannot read copy", "disk", disk.Name, "hash", shortHash(o.Hash), "path", o.LastPath, "error", err)
			report.Failed = append(report.Failed, o.Hash)
			continue
		}
		report.Checked++
		if sf.Hash != o.Hash || sf.Size != o.Size {
			s.logger.Warn("copy corrupt", "disk", disk.Name, "hash", shortHash(o.Hash), "path", o.LastPath)
			report.Corrupt = append(report.Corrupt, o.Hash)
			lost = append(lost, NexusChange{Hash: o.Hash, Disk: idx})
			continue
		}
		report.CheckedBytes += sf.Size
	}

	// Clear the bits first so a failed removal leaves an unclaimed file
	// rather than a claimed bad copy.
	if err := s.database.ApplyNexusChanges(lost); err != nil {
		return report, err
	}
	for _, c := range lost {
		if err := v.Remove(c.Hash); err != nil {
			s.logger.Warn("cannot remove bad copy", "disk", disk.Name, "hash", shortHash(c.Hash), "error", err)
		}
	}

	s.logger.Info("verify finished", "disk", disk.Name, "checked", report.Checked,
		"size", humanize.IBytes(uint64(report.CheckedBytes)),
		"missing", len(report.Missing), "corrupt", len(report.Corrupt), "failed", len(report.Failed))
	return report, nil
}
