package dbk_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"dbk-go/internal/dbk"
	"dbk-go/internal/model"
	"dbk-go/internal/testutil"
)

func mustExport(t *testing.T, env *testutil.ServiceEnv, prefix string) *dbk.ConfigExport {
	t.Helper()
	exp, err := env.Service.ExportConfig(prefix)
	if err != nil {
		t.Fatalf("ExportConfig() error = %v", err)
	}
	return exp
}

func TestService_ExportImportConfig(t *testing.T) {
	env := testutil.NewServiceEnv(t)
	newSource(t, env, "photos", map[string]string{"a.jpg": "jpeg"})
	newSource(t, env, "docs", map[string]string{"b.txt": "text"})
	env.AddDisk(t, "d1", 1000000)
	limit := model.Limited(2)
	if err := env.Service.SetPathConfig("photos", dbk.PathConfig{Priority: ptr(3), MaxCopies: &limit}); err != nil {
		t.Fatalf("SetPathConfig() error = %v", err)
	}
	if err := env.Service.SetPathConfig("docs/old", dbk.PathConfig{Hide: ptr(true)}); err != nil {
		t.Fatalf("SetPathConfig() error = %v", err)
	}

	before := mustExport(t, env, "")
	data, err := json.Marshal(before)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"size_bytes":"1,000,000"`) {
		t.Errorf("export = %s, want size_bytes written with separators", data)
	}

	if err := env.Service.UnmapSource("docs"); err != nil {
		t.Fatalf("UnmapSource() error = %v", err)
	}
	if err := env.Service.ClearPathConfig("photos"); err != nil {
		t.Fatalf("ClearPathConfig() error = %v", err)
	}
	if err := env.Service.SetPathConfig("music", dbk.PathConfig{Lock: ptr(true)}); err != nil {
		t.Fatalf("SetPathConfig() error = %v", err)
	}
	size := int64(5)
	if err := env.Service.SetDisk("d1", dbk.DiskParams{Size: &size}); err != nil {
		t.Fatalf("SetDisk() error = %v", err)
	}
	if err := env.Service.RenameDisk("d1", "spare"); err != nil {
		t.Fatalf("RenameDisk() error = %v", err)
	}

	if err := env.Service.ImportConfig(data); err != nil {
		t.Fatalf("ImportConfig() error = %v", err)
	}
	after := mustExport(t, env, "")
	if diff := cmp.Diff(before, after, cmp.AllowUnexported(model.MaxCopies{})); diff != "" {
		t.Errorf("config after import mismatch (-want +got):\n%s", diff)
	}
}

func TestService_ExportConfigPrefix(t *testing.T) {
	env := testutil.NewServiceEnv(t)
	for _, vp := range []string{"photos", "photos/raw", "photosynthesis", "docs"} {
		if err := env.Service.SetPathConfig(vp, dbk.PathConfig{Priority: ptr(1)}); err != nil {
			t.Fatalf("SetPathConfig(%q) error = %v", vp, err)
		}
	}

	exp := mustExport(t, env, "/photos/")
	if exp.PathPrefix != "photos" {
		t.Errorf("PathPrefix = %q, want photos", exp.PathPrefix)
	}
	var got []string
	for vp := range exp.PathConfig {
		got = append(got, vp)
	}
	if diff := cmp.Diff([]string{"photos", "photos/raw"}, got, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Errorf("exported paths mismatch (-want +got):\n%s", diff)
	}
}

func TestService_ImportConfigPrefix(t *testing.T) {
	env := testutil.NewServiceEnv(t)
	dir := newSource(t, env, "photos", map[string]string{"a.jpg": "jpeg"})
	for _, vp := range []string{"photos", "photos/raw", "docs"} {
		if err := env.Service.SetPathConfig(vp, dbk.PathConfig{Priority: ptr(1)}); err != nil {
			t.Fatalf("SetPathConfig(%q) error = %v", vp, err)
		}
	}

	data := `{
		// only the photos subtree
		"path_prefix": "photos",
		"path_config": {
			"photos/raw": {"priority": 7},
			"photos/tmp": {"exclude": ["*.tmp"],},
		},
	}`
	if err := env.Service.ImportConfig([]byte(data)); err != nil {
		t.Fatalf("ImportConfig() error = %v", err)
	}

	configs, err := env.Service.PathConfigs()
	if err != nil {
		t.Fatalf("PathConfigs() error = %v", err)
	}
	want := map[string]*dbk.PathConfig{
		"docs":       {Priority: ptr(1)},
		"photos/raw": {Priority: ptr(7)},
		"photos/tmp": {Exclude: []string{"*.tmp"}},
	}
	if diff := cmp.Diff(want, configs, cmp.AllowUnexported(model.MaxCopies{})); diff != "" {
		t.Errorf("configs after import mismatch (-want +got):\n%s", diff)
	}

	// path_map was absent, so the mapping stays.
	sources, err := env.Service.ListSources()
	if err != nil {
		t.Fatalf("ListSources() error = %v", err)
	}
	if len(sources) != 1 || sources[0].RealPath != dir {
		t.Errorf("ListSources() = %v, want photos -> %s", sources, dir)
	}
}

func TestService_ImportConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{name: "not json", data: `{"path_map": `},
		{name: "wrong type", data: `{"path_config": {"a": {"lock": "yes"}}}`},
		{name: "config not an object", data: `{"path_config": {"a": 3}}`},
		{name: "unknown key", data: `{"path_config": {"a": {"maxcopy": 1}}}`},
		{name: "negative priority", data: `{"path_config": {"a": {"priority": -1}}}`},
		{name: "bad pattern", data: `{"path_config": {"a": {"exclude": ["[x"]}}}`},
		{name: "outside prefix", data: `{"path_prefix": "a", "path_config": {"b": {"hide": true}}}`},
		{name: "relative source", data: `{"path_map": {"a": "relative/dir"}}`},
		{name: "source not a string", data: `{"path_map": {"a": 1}}`},
		{name: "nested sources", data: `{"path_map": {"a": "/x", "a/b": "/y"}}`},
		{name: "unknown disk", data: `{"disks": {"no-such-disk": {"name": "x"}}}`, wantErr: dbk.ErrDiskNotFound},
		{name: "bad size", data: `{"disks": {"no-such-disk": {"size_bytes": "lots"}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testutil.NewServiceEnv(t)
			newSource(t, env, "photos", map[string]string{"a.jpg": "jpeg"})
			if err := env.Service.SetPathConfig("photos", dbk.PathConfig{Priority: ptr(2)}); err != nil {
				t.Fatalf("SetPathConfig() error = %v", err)
			}
			before := mustExport(t, env, "")

			err := env.Service.ImportConfig([]byte(tt.data))
			if err == nil {
				t.Fatal("ImportConfig() expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("ImportConfig() error = %v, want %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(before, mustExport(t, env, ""), cmp.AllowUnexported(model.MaxCopies{})); diff != "" {
				t.Errorf("failed import changed the config (-want +got):\n%s", diff)
			}
		})
	}
}

func TestService_ImportConfigRollsBack(t *testing.T) {
	env := testutil.NewServiceEnv(t)
	newSource(t, env, "photos", map[string]string{"a.jpg": "jpeg"})
	env.AddDisk(t, "d1", 1000)
	env.AddDisk(t, "d2", 1000)
	d1, err := env.DB.FindDiskByName("d1")
	if err != nil || d1 == nil {
		t.Fatalf("FindDiskByName() = %v, %v", d1, err)
	}
	before := mustExport(t, env, "")

	// The mappings are replaced before the duplicate name fails.
	data := `{"path_map": {}, "disks": {"` + d1.Uuid + `": {"name": "d2"}}}`
	if err := env.Service.ImportConfig([]byte(data)); err == nil {
		t.Fatal("ImportConfig() expected error for a duplicate disk name")
	}
	if diff := cmp.Diff(before, mustExport(t, env, "")); diff != "" {
		t.Errorf("failed import changed the config (-want +got):\n%s", diff)
	}
}

func TestService_ImportConfigDisks(t *testing.T) {
	env := testutil.NewServiceEnv(t)
	env.AddDisk(t, "d1", 1000)
	d1, err := env.DB.FindDiskByName("d1")
	if err != nil || d1 == nil {
		t.Fatalf("FindDiskByName() = %v, %v", d1, err)
	}

	data := `{"disks": {"` + d1.Uuid + `": {"name": "offsite", "size_bytes": "2,000,000", "fstype": "ext4"}}}`
	if err := env.Service.ImportConfig([]byte(data)); err != nil {
		t.Fatalf("ImportConfig() error = %v", err)
	}

	got, err := env.DB.FindDiskByUUID(d1.Uuid)
	if err != nil {
		t.Fatalf("FindDiskByUUID() error = %v", err)
	}
	if got.Name != "offsite" || got.Size != 2000000 || got.Fstype != "ext4" {
		t.Errorf("disk = %+v, want offsite, 2000000 bytes, ext4", got)
	}
	if got.RelativePath != d1.RelativePath || got.Fsuuid != d1.Fsuuid {
		t.Errorf("disk = %+v, fields absent from the import changed", got)
	}
}

func TestByteCount_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    dbk.ByteCount
		wantErr bool
	}{
		{in: `2000`, want: 2000},
		{in: `"2,000"`, want: 2000},
		{in: `"1 MB"`, want: 1000000},
		{in: `"2 GiB"`, want: 2 << 30},
		{in: `"lots"`, wantErr: true},
		{in: `true`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got dbk.ByteCount
			err := json.Unmarshal([]byte(tt.in), &got)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal(%s) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Unmarshal(%s) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
