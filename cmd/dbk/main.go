package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/renameio"
	"github.com/spf13/cobra"

	"dbk-go/internal/app"
	"dbk-go/internal/config"
	"dbk-go/internal/dbk"
	"dbk-go/internal/model"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a DBKApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "AddDisk", "Backup").
func newApp(operation string) (*app.DBKApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewDBKApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

func bytesString(n int64) string {
	return humanize.IBytes(uint64(n))
}

func levelBytes(m map[int]int64) string {
	levels := make([]int, 0, len(m))
	for l := range m {
		levels = append(levels, l)
	}
	sort.Ints(levels)
	parts := make([]string, 0, len(levels))
	for _, l := range levels {
		parts = append(parts, fmt.Sprintf("%d:%s", l, bytesString(m[l])))
	}
	return strings.Join(parts, " ")
}

var rootCmd = &cobra.Command{
	Use:          "dbk",
	Short:        "Deduplicating backup onto a set of disks",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:      %s\n", cfg.LogDir)
		fmt.Printf("Database:     %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Search Roots: %s\n", strings.Join(cfg.Disks.SearchRoots, ", "))
		fmt.Printf("Block Size:   %s\n", bytesString(cfg.Copy.EffectiveBlockSize()))
		return nil
	},
}

var configExportCmd = &cobra.Command{
	Use:   "export [FILE]",
	Short: "Export sources, path configs and disk settings as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix, _ := cmd.Flags().GetString("prefix")

		a, err := newApp("ExportConfig")
		if err != nil {
			return err
		}
		defer a.Close()

		exp, err := a.ExportConfig(prefix)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(exp, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		data = append(data, '\n')

		if len(args) == 0 {
			_, err := os.Stdout.Write(data)
			return err
		}
		if err := renameio.WriteFile(args[0], data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", args[0], err)
		}
		fmt.Printf("Exported config to %s\n", args[0])
		return nil
	},
}

var configImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import a config written by export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}

		a, err := newApp("ImportConfig")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ImportConfig(args[0], data); err != nil {
			return err
		}
		fmt.Printf("Imported config from %s\n", args[0])
		return nil
	},
}

// disk command
var diskCmd = &cobra.Command{
	Use:   "disk",
	Short: "Manage backup disks",
}

var diskAddCmd = &cobra.Command{
	Use:   "add NAME PATH",
	Short: "Register a directory as a backup disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sizeStr, _ := cmd.Flags().GetString("size")
		var size int64
		if sizeStr != "" {
			n, err := humanize.ParseBytes(sizeStr)
			if err != nil {
				return fmt.Errorf("parsing size: %w", err)
			}
			size = int64(n)
		}

		dataPath, err := filepath.Abs(args[1])
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		a, err := newApp("AddDisk")
		if err != nil {
			return err
		}
		defer a.Close()

		disk, err := a.AddDisk(args[0], dataPath, size)
		if err != nil {
			return fmt.Errorf("adding disk: %w", err)
		}
		fmt.Printf("Added disk %s (index %d, uuid %s)\n", disk.Name, disk.NexusIndex, disk.Uuid)
		return nil
	},
}

var diskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known disks",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListDisks")
		if err != nil {
			return err
		}
		defer a.Close()

		disks, err := a.ListDisks()
		if err != nil {
			return err
		}
		if len(disks) == 0 {
			fmt.Println("No disks registered.")
			return nil
		}
		for _, d := range disks {
			size := "free space"
			if d.Disk.Size > 0 {
				size = bytesString(d.Disk.Size)
			}
			path := d.Path
			if path == "" {
				path = "(not mounted)"
			}
			fmt.Printf("%2d  %-15s  %10s used of %-10s  %s\n",
				d.Disk.NexusIndex, d.Disk.Name, bytesString(d.Used), size, path)
		}
		return nil
	},
}

var diskRenameCmd = &cobra.Command{
	Use:   "rename DISK NAME",
	Short: "Rename a disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("RenameDisk")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.RenameDisk(args[0], args[1]); err != nil {
			return fmt.Errorf("renaming disk: %w", err)
		}
		fmt.Printf("Renamed %s to %s\n", args[0], args[1])
		return nil
	},
}

var diskSetCmd = &cobra.Command{
	Use:   "set DISK",
	Short: "Change disk settings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var params dbk.DiskParams
		if cmd.Flags().Changed("size") {
			s, _ := cmd.Flags().GetString("size")
			n, err := humanize.ParseBytes(s)
			if err != nil {
				return fmt.Errorf("parsing size: %w", err)
			}
			size := int64(n)
			params.Size = &size
		}
		for flag, dst := range map[string]**string{
			"relative-path": &params.RelativePath,
			"fstype":        &params.Fstype,
			"fsuuid":        &params.Fsuuid,
		} {
			if cmd.Flags().Changed(flag) {
				v, _ := cmd.Flags().GetString(flag)
				*dst = &v
			}
		}

		a, err := newApp("SetDisk")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.SetDisk(args[0], params)
	},
}

var diskDropCmd = &cobra.Command{
	Use:   "drop DISK",
	Short: "Forget every copy recorded on a disk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("DropDisk")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.DropDisk(args[0])
		if err != nil {
			return fmt.Errorf("dropping disk: %w", err)
		}
		fmt.Printf("Dropped %d object(s) from %s\n", n, args[0])
		return nil
	},
}

var diskDeleteCmd = &cobra.Command{
	Use:   "delete DISK",
	Short: "Remove an empty disk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("DeleteDisk")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteDisk(args[0]); err != nil {
			return fmt.Errorf("deleting disk: %w", err)
		}
		fmt.Printf("Deleted disk %s\n", args[0])
		return nil
	},
}

var diskRefreshCmd = &cobra.Command{
	Use:   "refresh [DISK]",
	Short: "Reconcile the database with the objects on a disk",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("RefreshDisk")
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := a.RefreshDisk(firstArg(args))
		if err != nil {
			return fmt.Errorf("refreshing disk: %w", err)
		}
		fmt.Printf("Present %d, added %d, removed %d, unknown %d\n", r.Present, r.Added, r.Removed, r.Unknown)
		return nil
	},
}

var diskVerifyCmd = &cobra.Command{
	Use:   "verify [DISK]",
	Short: "Rehash every copy on a disk",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("VerifyDisk")
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := a.VerifyDisk(firstArg(args))
		if err != nil {
			return fmt.Errorf("verifying disk: %w", err)
		}
		for _, h := range r.Missing {
			fmt.Printf("missing  %s\n", h)
		}
		for _, h := range r.Corrupt {
			fmt.Printf("corrupt  %s\n", h)
		}
		for _, h := range r.Failed {
			fmt.Printf("failed   %s\n", h)
		}
		fmt.Printf("Checked %d object(s), %s; %d missing, %d corrupt, %d unreadable\n",
			r.Checked, bytesString(r.CheckedBytes), len(r.Missing), len(r.Corrupt), len(r.Failed))
		return nil
	},
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// source command
var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Manage the directories mapped into the virtual tree",
}

var sourceMapCmd = &cobra.Command{
	Use:   "map VIRTUAL_PATH REAL_PATH",
	Short: "Map a directory onto a virtual path",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		realPath, err := filepath.Abs(args[1])
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		a, err := newApp("MapSource")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.MapSource(args[0], realPath); err != nil {
			return fmt.Errorf("mapping source: %w", err)
		}
		fmt.Printf("Mapped %s to %s\n", realPath, dbk.CleanVirtualPath(args[0]))
		return nil
	},
}

var sourceUnmapCmd = &cobra.Command{
	Use:   "unmap VIRTUAL_PATH",
	Short: "Remove a mapping",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("UnmapSource")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.UnmapSource(args[0])
	},
}

var sourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List mappings",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListSources")
		if err != nil {
			return err
		}
		defer a.Close()

		maps, err := a.ListSources()
		if err != nil {
			return err
		}
		if len(maps) == 0 {
			fmt.Println("No sources mapped.")
			return nil
		}
		for _, m := range maps {
			fmt.Printf("%-30s  %s\n", m.VirtualPath, m.RealPath)
		}
		return nil
	},
}

// pathconfig command
var pathConfigCmd = &cobra.Command{
	Use:   "pathconfig",
	Short: "Manage per-path settings",
}

var pathConfigSetCmd = &cobra.Command{
	Use:   "set VIRTUAL_PATH",
	Short: "Set options on a virtual path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pc, err := pathConfigFromFlags(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("SetPathConfig")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.SetPathConfig(args[0], pc)
	},
}

func pathConfigFromFlags(cmd *cobra.Command) (dbk.PathConfig, error) {
	var pc dbk.PathConfig
	flags := cmd.Flags()
	for flag, dst := range map[string]**bool{
		"lock":   &pc.Lock,
		"hide":   &pc.Hide,
		"follow": &pc.FollowSymlinks,
	} {
		if flags.Changed(flag) {
			v, _ := flags.GetBool(flag)
			*dst = &v
		}
	}
	if flags.Changed("include") {
		pc.Include, _ = flags.GetStringSlice("include")
	}
	if flags.Changed("exclude") {
		pc.Exclude, _ = flags.GetStringSlice("exclude")
	}
	if flags.Changed("priority") {
		p, _ := flags.GetInt("priority")
		pc.Priority = &p
	}
	if flags.Changed("maxcopies") {
		s, _ := flags.GetString("maxcopies")
		m, err := model.ParseMaxCopies(s)
		if err != nil {
			return pc, err
		}
		pc.MaxCopies = &m
	}
	return pc, nil
}

var pathConfigClearCmd = &cobra.Command{
	Use:   "clear VIRTUAL_PATH [KEY...]",
	Short: "Clear options on a virtual path (all of them if no key is given)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ClearPathConfig")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.ClearPathConfig(args[0], args[1:]...)
	},
}

var pathConfigShowCmd = &cobra.Command{
	Use:   "show [VIRTUAL_PATH]",
	Short: "Show configured paths, or the effective settings of one path",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("PathConfigs")
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 1 {
			e, err := a.EffectivePathConfig(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("lock:            %t\n", e.Lock)
			fmt.Printf("hide:            %t\n", e.Hide)
			fmt.Printf("follow_symlinks: %t\n", e.FollowSymlinks)
			fmt.Printf("include:         %s\n", strings.Join(e.Include, " "))
			fmt.Printf("exclude:         %s\n", strings.Join(e.Exclude, " "))
			fmt.Printf("priority:        %d\n", e.Priority)
			fmt.Printf("maxcopies:       %s\n", e.MaxCopies)
			return nil
		}

		configs, err := a.PathConfigs()
		if err != nil {
			return err
		}
		paths := make([]string, 0, len(configs))
		for p := range configs {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			c := configs[p]
			var opts []string
			if c.Lock != nil {
				opts = append(opts, fmt.Sprintf("lock=%t", *c.Lock))
			}
			if c.Hide != nil {
				opts = append(opts, fmt.Sprintf("hide=%t", *c.Hide))
			}
			if c.FollowSymlinks != nil {
				opts = append(opts, fmt.Sprintf("follow=%t", *c.FollowSymlinks))
			}
			if c.Include != nil {
				opts = append(opts, "include="+strings.Join(c.Include, ","))
			}
			if c.Exclude != nil {
				opts = append(opts, "exclude="+strings.Join(c.Exclude, ","))
			}
			if c.Priority != nil {
				opts = append(opts, fmt.Sprintf("priority=%d", *c.Priority))
			}
			if c.MaxCopies != nil {
				opts = append(opts, "maxcopies="+c.MaxCopies.String())
			}
			fmt.Printf("%-30s  %s\n", p, strings.Join(opts, " "))
		}
		return nil
	},
}

// update command
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Scan the mapped sources and hash new or changed files",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Update")
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := a.Update()
		if err != nil {
			return fmt.Errorf("update failed: %w", err)
		}
		fmt.Printf("Scanned %d file(s): %d unchanged, %d hashed (%s), %d deleted, %d symlink(s)\n",
			r.Scanned, r.Unchanged, r.Hashed, bytesString(r.HashedBytes), r.Deleted, r.Symlinks)
		if r.Changed > 0 || r.Failed > 0 {
			fmt.Printf("%d file(s) changed while hashing, %d failed; run update again\n", r.Changed, r.Failed)
		}
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup [DISK]",
	Short: "Copy under-replicated objects onto a disk",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts dbk.BackupOptions
		if limit, _ := cmd.Flags().GetString("limit-bytes"); limit != "" {
			n, err := humanize.ParseBytes(limit)
			if err != nil {
				return fmt.Errorf("parsing limit-bytes: %w", err)
			}
			opts.LimitBytes = int64(n)
		}
		opts.LimitCopies, _ = cmd.Flags().GetInt("limit-copies")
		opts.NoFlush, _ = cmd.Flags().GetBool("no-flush")
		opts.Simulate, _ = cmd.Flags().GetBool("simulate")

		a, err := newApp("Backup")
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := a.Backup(firstArg(args), opts)
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		verb := "Copied"
		if opts.Simulate {
			verb = "Would copy"
		}
		fmt.Printf("%s %d object(s), %s [%s]\n", verb, r.CopiedObjects, bytesString(r.CopiedBytes()), levelBytes(r.Copied))
		if r.DeletedObjects > 0 {
			fmt.Printf("Removed %d copy(s), %s [%s]\n", r.DeletedObjects, bytesString(r.DeletedBytes()), levelBytes(r.Deleted))
		}
		for _, e := range r.UnableToCopy {
			fmt.Printf("unable to copy  %s\n", e.Path)
		}
		return nil
	},
}

// restore command
var restoreCmd = &cobra.Command{
	Use:   "restore DEST",
	Short: "Recreate the virtual tree under DEST from the mounted disks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}
		opts := dbk.RestoreOptions{Dest: dest}
		opts.Prefix, _ = cmd.Flags().GetString("prefix")
		opts.Pattern, _ = cmd.Flags().GetString("pattern")
		opts.Disk, _ = cmd.Flags().GetString("disk")
		opts.Link, _ = cmd.Flags().GetBool("link")

		a, err := newApp("Restore")
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := a.Restore(opts)
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}
		for _, p := range r.Failed {
			fmt.Printf("failed   %s\n", p)
		}
		for _, p := range r.Missing {
			fmt.Printf("missing  %s\n", p)
		}
		fmt.Printf("Restored %d file(s), %s; %d skipped, %d symlink(s), %d missing, %d failed\n",
			r.Restored, bytesString(r.RestoredBytes), r.Skipped, r.Symlinks, len(r.Missing), len(r.Failed))
		return nil
	},
}

var restoreSetCmd = &cobra.Command{
	Use:   "restore-set",
	Short: "Show the fewest disks needed to restore a selection",
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix, _ := cmd.Flags().GetString("prefix")
		pattern, _ := cmd.Flags().GetString("pattern")

		a, err := newApp("RestoreSet")
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := a.RestoreSet(prefix, pattern)
		if err != nil {
			return err
		}
		fmt.Printf("%d file(s) need %d disk(s):\n", r.Files, len(r.Disks))
		for _, d := range r.Disks {
			fmt.Printf("  %s\n", d.Name)
		}
		if r.Unreachable > 0 {
			fmt.Printf("%d file(s) have no copy on any disk\n", r.Unreachable)
		}
		return nil
	},
}

// ls command
var lsCmd = &cobra.Command{
	Use:   "ls [PREFIX]",
	Short: "List files by number of copies",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := dbk.ListOptions{Prefix: firstArg(args)}
		opts.MinCopies, _ = cmd.Flags().GetInt("min")
		opts.MaxCopies, _ = cmd.Flags().GetInt("max")
		opts.ShowHidden, _ = cmd.Flags().GetBool("all")

		a, err := newApp("ListFiles")
		if err != nil {
			return err
		}
		defer a.Close()

		rows, err := a.ListFiles(opts)
		if err != nil {
			return err
		}
		for _, r := range rows {
			fmt.Printf("%2d  %10s  %s  %s\n",
				r.Copies, bytesString(r.Size),
				time.Unix(r.LastModified, 0).Format("2006-01-02 15:04"),
				r.VirtualPath)
		}
		return nil
	},
}

var copyDataCmd = &cobra.Command{
	Use:   "copy-data [DISK]",
	Short: "Show stored bytes per copy level",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("CopyData")
		if err != nil {
			return err
		}
		defer a.Close()

		data, err := a.CopyData(firstArg(args))
		if err != nil {
			return err
		}
		for level, cd := range data {
			if cd.TotalSize == 0 {
				continue
			}
			fmt.Printf("%2d copies  %10s  (%s saturated)\n", level, bytesString(cd.TotalSize), bytesString(cd.SaturatedSize))
		}
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the database for inconsistencies",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Check")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Check(); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Forget objects that are neither referenced nor stored",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("CleanObjects")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.CleanObjects()
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d object(s)\n", n)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("GetHistory")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.GetHistory(limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt.Valid {
				d := op.FinishedAt.Time.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-15s  %s  %-8s  %-10s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configExportCmd)
	configExportCmd.Flags().String("prefix", "", "Only export path configs at or below this virtual path")
	configCmd.AddCommand(configImportCmd)

	// disk subcommands
	diskCmd.AddCommand(diskAddCmd)
	diskAddCmd.Flags().String("size", "", "Capacity to use on the disk, e.g. 2TB (default: free space)")
	diskCmd.AddCommand(diskListCmd)
	diskCmd.AddCommand(diskRenameCmd)
	diskCmd.AddCommand(diskSetCmd)
	diskSetCmd.Flags().String("size", "", "Capacity to use on the disk, 0 for free space")
	diskSetCmd.Flags().String("relative-path", "", "Data directory relative to the mount point")
	diskSetCmd.Flags().String("fstype", "", "Filesystem type")
	diskSetCmd.Flags().String("fsuuid", "", "Filesystem uuid")
	diskCmd.AddCommand(diskDropCmd)
	diskCmd.AddCommand(diskDeleteCmd)
	diskCmd.AddCommand(diskRefreshCmd)
	diskCmd.AddCommand(diskVerifyCmd)

	// source subcommands
	sourceCmd.AddCommand(sourceMapCmd)
	sourceCmd.AddCommand(sourceUnmapCmd)
	sourceCmd.AddCommand(sourceListCmd)

	// pathconfig subcommands
	pathConfigCmd.AddCommand(pathConfigSetCmd)
	pathConfigSetCmd.Flags().Bool("lock", false, "Freeze the subtree as last scanned")
	pathConfigSetCmd.Flags().Bool("hide", false, "Hide the subtree from listings")
	pathConfigSetCmd.Flags().Bool("follow", false, "Follow symbolic links")
	pathConfigSetCmd.Flags().StringSlice("include", nil, "Glob patterns to keep")
	pathConfigSetCmd.Flags().StringSlice("exclude", nil, "Glob patterns to skip")
	pathConfigSetCmd.Flags().Int("priority", 0, "Copy priority, higher first")
	pathConfigSetCmd.Flags().String("maxcopies", "", "Maximum copies, a positive number or "+model.UnlimitedLiteral)
	pathConfigCmd.AddCommand(pathConfigClearCmd)
	pathConfigCmd.AddCommand(pathConfigShowCmd)

	// backup and restore
	backupCmd.Flags().String("limit-bytes", "", "Stop after copying this much, e.g. 500GB")
	backupCmd.Flags().Int("limit-copies", 0, "Skip objects that already have this many copies")
	backupCmd.Flags().Bool("no-flush", false, "Never remove copies to make room")
	backupCmd.Flags().BoolP("simulate", "n", false, "Report what would be done")
	for _, c := range []*cobra.Command{restoreCmd, restoreSetCmd} {
		c.Flags().String("prefix", "", "Virtual path to restore")
		c.Flags().String("pattern", "", "Glob filter on the basename, or the path if it contains '/'")
	}
	restoreCmd.Flags().String("disk", "", "Restore only from this disk")
	restoreCmd.Flags().Bool("link", false, "Hardlink to the stored copies instead of copying")

	lsCmd.Flags().Int("min", 0, "Minimum number of copies")
	lsCmd.Flags().Int("max", -1, "Maximum number of copies (-1 for no limit)")
	lsCmd.Flags().BoolP("all", "a", false, "Include hidden paths")

	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(diskCmd)
	rootCmd.AddCommand(sourceCmd)
	rootCmd.AddCommand(pathConfigCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(restoreSetCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(copyDataCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(historyCmd)
}
