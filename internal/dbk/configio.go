package dbk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"path/filepath"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/tidwall/jsonc"
)

// ConfigExport is the portable form of the user configuration: source
// mappings, path overrides and disk settings. On import a nil map leaves
// that section untouched and an empty one clears it.
type ConfigExport struct {
	PathMap    map[string]string      `json:"path_map"`
	PathPrefix string                 `json:"path_prefix,omitempty"`
	PathConfig map[string]*PathConfig `json:"path_config"`
	Disks      map[string]*DiskExport `json:"disks"`
}

// DiskExport holds the editable settings of one disk, keyed by uuid in
// ConfigExport. On import only the fields present are changed.
type DiskExport struct {
	Name         *string    `json:"name,omitempty"`
	Size         *ByteCount `json:"size_bytes,omitempty"`
	RelativePath *string    `json:"relative_path,omitempty"`
	Fstype       *string    `json:"fstype,omitempty"`
	Fsuuid       *string    `json:"fsuuid,omitempty"`
}

// ByteCount is a size written with thousands separators. It reads back
// plain numbers as well as anything humanize.ParseBytes accepts.
type ByteCount int64

func (b ByteCount) MarshalJSON() ([]byte, error) {
	return json.Marshal(humanize.Comma(int64(b)))
}

func (b *ByteCount) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*b = ByteCount(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("size must be a number or a string, got %s", data)
	}
	u, err := humanize.ParseBytes(s)
	if err != nil {
		return fmt.Errorf("parsing size %q: %w", s, err)
	}
	*b = ByteCount(u)
	return nil
}

// ConfigImport is a checked configuration import, applied by the database
// in a single transaction.
type ConfigImport struct {
	// PathMaps replaces every source mapping unless nil.
	PathMaps map[string]string
	// PathConfigs replaces the overrides at or below ConfigPrefix unless
	// nil. Values are encoded PathConfig objects.
	PathConfigs  map[string]string
	ConfigPrefix string
	// Disks holds the updated rows of the disks being changed.
	Disks []*DiskUpdate
}

// DiskUpdate is the new state of one disk row in a ConfigImport.
type DiskUpdate struct {
	UUID         string
	Name         string
	Size         int64
	RelativePath string
	Fstype       string
	Fsuuid       string
}

// Replaces reports whether an existing override at vp is dropped by the
// import.
func (c *ConfigImport) Replaces(vp string) bool {
	return c.PathConfigs != nil && underPrefix(vp, c.ConfigPrefix)
}

// ExportConfig collects the configuration. With a prefix only the path
// overrides at or below it are included.
func (s *Service) ExportConfig(prefix string) (*ConfigExport, error) {
	prefix = CleanVirtualPath(prefix)
	out := &ConfigExport{
		PathMap:    make(map[string]string),
		PathPrefix: prefix,
		PathConfig: make(map[string]*PathConfig),
		Disks:      make(map[string]*DiskExport),
	}

	pms, err := s.database.ListPathMaps()
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	for _, m := range pms {
		out.PathMap[m.VirtualPath] = m.RealPath
	}

	cfgs, err := s.PathConfigs()
	if err != nil {
		return nil, err
	}
	for vp, c := range cfgs {
		if underPrefix(vp, prefix) {
			out.PathConfig[vp] = c
		}
	}

	disks, err := s.database.ListDisks()
	if err != nil {
		return nil, fmt.Errorf("listing disks: %w", err)
	}
	for _, d := range disks {
		size := ByteCount(d.Size)
		out.Disks[d.Uuid] = &DiskExport{
			Name:         &d.Name,
			Size:         &size,
			RelativePath: &d.RelativePath,
			Fstype:       &d.Fstype,
			Fsuuid:       &d.Fsuuid,
		}
	}
	return out, nil
}

// ImportConfig applies an exported configuration. Comments and trailing
// commas are allowed, unknown keys are not. Disks must already be
// registered; nothing is changed unless the whole import is valid.
func (s *Service) ImportConfig(data []byte) error {
	var in ConfigExport
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	imp := &ConfigImport{ConfigPrefix: CleanVirtualPath(in.PathPrefix)}

	if in.PathMap != nil {
		imp.PathMaps = make(map[string]string, len(in.PathMap))
		for vp, dir := range in.PathMap {
			if !filepath.IsAbs(dir) {
				return fmt.Errorf("source of %q must be an absolute path, got %q", vp, dir)
			}
			imp.PathMaps[CleanVirtualPath(vp)] = filepath.Clean(dir)
		}
		keys := slices.Sorted(maps.Keys(imp.PathMaps))
		for i, a := range keys {
			for _, b := range keys[i+1:] {
				if underPrefix(b, a) {
					return fmt.Errorf("%q overlaps the source mapped at %q", b, a)
				}
			}
		}
	}

	if in.PathConfig != nil {
		imp.PathConfigs = make(map[string]string, len(in.PathConfig))
		for raw, c := range in.PathConfig {
			vp := CleanVirtualPath(raw)
			if !underPrefix(vp, imp.ConfigPrefix) {
				return fmt.Errorf("config of %q is outside %q", vp, imp.ConfigPrefix)
			}
			if c == nil || c.empty() {
				continue
			}
			if err := c.validate(); err != nil {
				return fmt.Errorf("config of %q: %w", vp, err)
			}
			enc, err := json.Marshal(c)
			if err != nil {
				return fmt.Errorf("encoding path config: %w", err)
			}
			imp.PathConfigs[vp] = string(enc)
		}
	}

	for _, id := range slices.Sorted(maps.Keys(in.Disks)) {
		upd, err := s.diskUpdate(id, in.Disks[id])
		if err != nil {
			return err
		}
		imp.Disks = append(imp.Disks, upd)
	}

	if err := s.database.ImportConfig(imp); err != nil {
		return fmt.Errorf("importing config: %w", err)
	}
	s.logger.Info("config imported",
		"sources", len(imp.PathMaps),
		"path_configs", len(imp.PathConfigs),
		"prefix", imp.ConfigPrefix,
		"disks", len(imp.Disks))
	return nil
}

func (s *Service) diskUpdate(id string, e *DiskExport) (*DiskUpdate, error) {
	disk, err := s.database.FindDiskByUUID(id)
	if err != nil {
		return nil, fmt.Errorf("finding disk: %w", err)
	}
	if disk == nil {
		return nil, fmt.Errorf("%w: %s", ErrDiskNotFound, id)
	}
	upd := &DiskUpdate{
		UUID:         disk.Uuid,
		Name:         disk.Name,
		Size:         disk.Size,
		RelativePath: disk.RelativePath,
		Fstype:       disk.Fstype,
		Fsuuid:       disk.Fsuuid,
	}
	if e == nil {
		return upd, nil
	}
	if e.Name != nil {
		if *e.Name == "" {
			return nil, fmt.Errorf("disk %s: name must not be empty", id)
		}
		upd.Name = *e.Name
	}
	if e.Size != nil {
		if *e.Size < 0 {
			return nil, fmt.Errorf("disk %s: size must not be negative", id)
		}
		upd.Size = int64(*e.Size)
	}
	if e.RelativePath != nil {
		upd.RelativePath = *e.RelativePath
	}
	if e.Fstype != nil {
		upd.Fstype = *e.Fstype
	}
	if e.Fsuuid != nil {
		upd.Fsuuid = *e.Fsuuid
	}
	return upd, nil
}
