package app

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"dbk-go/internal/config"
	"dbk-go/internal/database"
	"dbk-go/internal/database/sqlc"
	"dbk-go/internal/dbk"
	"dbk-go/internal/fs"
	"dbk-go/internal/ledger"
	"dbk-go/internal/placement"
	"dbk-go/internal/sourcefile"
	"dbk-go/internal/vault"
)

// DBKApp is the application layer between the CLI and the dbk Service.
// It constructs all dependencies from config, records the operations that
// change the database, and manages the DB lifecycle on Close.
type DBKApp struct {
	cfg      *config.Config
	db       dbk.Database
	service  *dbk.Service
	op       *BackupOperation
	logFile  *os.File
	progress *Progress
}

// NewDBKApp creates a fully wired DBKApp from the given config.
// operation identifies the CLI command being run (e.g. "Update", "Backup").
// The caller must call Close when done.
func NewDBKApp(cfg *config.Config, operation string) (*DBKApp, error) {
	fsmgr := fs.NewOSFilesystemManager(cfg.Filesystem.Ignore)

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	// Log lines carry the history id this run gets if it is recorded.
	lastID, err := db.MaxBackupOperationID()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("reading operation history: %w", err)
	}
	opID := fmt.Sprintf("%s/%d", time.Now().UTC().Format("20060102T150405Z"), lastID+1)
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	log := &slogAdapter{l: logger}
	log.Debug("database opened", "path", db.Path(), "last_operation", lastID)

	progress := NewProgress(os.Stderr)
	opts := dbk.Options{
		SearchRoots: cfg.Disks.SearchRoots,
		BlockSize:   cfg.Copy.EffectiveBlockSize(),
		Sync:        cfg.Copy.Sync,
		Capability:  sourcefile.Detect(cfg.Copy.Accelerate, log),
	}
	if progress != nil {
		opts.Progress = progress
	}

	svc := dbk.NewService(db, fsmgr, vault.Open, opts, log, dbk.RealClock{}, dbk.UUIDGenerator{})
	op := NewBackupOperation(operation, "")

	return &DBKApp{
		cfg:      cfg,
		db:       db,
		service:  svc,
		op:       op,
		logFile:  logFile,
		progress: progress,
	}, nil
}

// persistOperation saves the backup operation to the database, giving it an
// auto-increment ID. Only DB-mutating commands call it. params is recorded
// as JSON.
func (a *DBKApp) persistOperation(params any) error {
	if a.op.Persisted() {
		return nil
	}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encoding operation parameters: %w", err)
		}
		a.op.Parameters = string(data)
	}
	dbOp, err := a.db.CreateBackupOperation(a.op.Operation, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting backup operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// track persists the operation and marks it failed if fn fails.
func (a *DBKApp) track(params any, fn func() error) error {
	if err := a.persistOperation(params); err != nil {
		return err
	}
	if err := fn(); err != nil {
		a.op.Status = StatusError
		return err
	}
	return nil
}

// Disks

func (a *DBKApp) AddDisk(name, dataPath string, size int64) (*sqlc.Disk, error) {
	var disk *sqlc.Disk
	err := a.track(map[string]any{"name": name, "path": dataPath, "size": size}, func() error {
		var err error
		disk, err = a.service.AddDisk(name, dataPath, size)
		return err
	})
	return disk, err
}

func (a *DBKApp) ListDisks() ([]*dbk.DiskInfo, error) {
	return a.service.ListDisks()
}

func (a *DBKApp) RenameDisk(sel, name string) error {
	return a.track(map[string]string{"disk": sel, "name": name}, func() error {
		return a.service.RenameDisk(sel, name)
	})
}

func (a *DBKApp) SetDisk(sel string, params dbk.DiskParams) error {
	return a.track(map[string]any{"disk": sel, "params": params}, func() error {
		return a.service.SetDisk(sel, params)
	})
}

func (a *DBKApp) DropDisk(sel string) (int64, error) {
	var n int64
	err := a.track(map[string]string{"disk": sel}, func() error {
		var err error
		n, err = a.service.DropDisk(sel)
		return err
	})
	return n, err
}

func (a *DBKApp) DeleteDisk(sel string) error {
	return a.track(map[string]string{"disk": sel}, func() error {
		return a.service.DeleteDisk(sel)
	})
}

func (a *DBKApp) RefreshDisk(sel string) (*dbk.RefreshReport, error) {
	var r *dbk.RefreshReport
	err := a.track(map[string]string{"disk": sel}, func() error {
		var err error
		r, err = a.service.RefreshDisk(sel)
		return err
	})
	return r, err
}

func (a *DBKApp) VerifyDisk(sel string) (*dbk.VerifyReport, error) {
	var r *dbk.VerifyReport
	err := a.track(map[string]string{"disk": sel}, func() error {
		var err error
		r, err = a.service.VerifyDisk(sel)
		return err
	})
	return r, err
}

// Sources and path configuration

func (a *DBKApp) MapSource(virtualPath, realPath string) error {
	return a.track(map[string]string{"virtual_path": virtualPath, "real_path": realPath}, func() error {
		return a.service.MapSource(virtualPath, realPath)
	})
}

func (a *DBKApp) UnmapSource(virtualPath string) error {
	return a.track(map[string]string{"virtual_path": virtualPath}, func() error {
		return a.service.UnmapSource(virtualPath)
	})
}

func (a *DBKApp) ListSources() ([]*sqlc.PathMap, error) {
	return a.service.ListSources()
}

func (a *DBKApp) SetPathConfig(virtualPath string, cfg dbk.PathConfig) error {
	return a.track(map[string]any{"virtual_path": virtualPath, "config": cfg}, func() error {
		return a.service.SetPathConfig(virtualPath, cfg)
	})
}

func (a *DBKApp) ClearPathConfig(virtualPath string, keys ...string) error {
	return a.track(map[string]any{"virtual_path": virtualPath, "keys": keys}, func() error {
		return a.service.ClearPathConfig(virtualPath, keys...)
	})
}

func (a *DBKApp) PathConfigs() (map[string]*dbk.PathConfig, error) {
	return a.service.PathConfigs()
}

func (a *DBKApp) EffectivePathConfig(virtualPath string) (*dbk.EffectiveConfig, error) {
	return a.service.EffectivePathConfig(virtualPath)
}

func (a *DBKApp) ExportConfig(prefix string) (*dbk.ConfigExport, error) {
	return a.service.ExportConfig(prefix)
}

// ImportConfig applies an exported configuration. source only labels the
// operation in the history.
func (a *DBKApp) ImportConfig(source string, data []byte) error {
	return a.track(map[string]string{"source": source}, func() error {
		return a.service.ImportConfig(data)
	})
}

// Update, backup and restore

func (a *DBKApp) Update() (*dbk.UpdateReport, error) {
	var r *dbk.UpdateReport
	err := a.track(nil, func() error {
		var err error
		r, err = a.service.Update()
		return err
	})
	return r, err
}

func (a *DBKApp) Backup(sel string, opts dbk.BackupOptions) (*placement.Report, error) {
	if opts.Simulate {
		return a.service.Backup(sel, opts)
	}
	var r *placement.Report
	err := a.track(map[string]any{"disk": sel, "options": opts}, func() error {
		var err error
		r, err = a.service.Backup(sel, opts)
		return err
	})
	return r, err
}

func (a *DBKApp) Restore(opts dbk.RestoreOptions) (*dbk.RestoreReport, error) {
	return a.service.Restore(opts)
}

func (a *DBKApp) RestoreSet(prefix, pattern string) (*dbk.RestoreSetResult, error) {
	return a.service.RestoreSet(prefix, pattern)
}

// Reports and maintenance

func (a *DBKApp) ListFiles(opts dbk.ListOptions) ([]*sqlc.ListFilesByLevelRow, error) {
	return a.service.ListFiles(opts)
}

func (a *DBKApp) CopyData(sel string) ([]ledger.CopyData, error) {
	return a.service.CopyData(sel)
}

func (a *DBKApp) Check() error {
	return a.service.Check()
}

func (a *DBKApp) CleanObjects() (int64, error) {
	var n int64
	err := a.track(nil, func() error {
		var err error
		n, err = a.service.CleanObjects()
		return err
	})
	return n, err
}

// GetHistory returns the most recent backup operations.
func (a *DBKApp) GetHistory(limit int) ([]*sqlc.BackupOperation, error) {
	return a.service.GetHistory(limit)
}

// Close finishes the operation record, if one was persisted, and closes the
// database and log file.
func (a *DBKApp) Close() error {
	var firstErr error

	if a.progress != nil {
		a.progress.Done()
	}

	if a.op.Persisted() {
		if err := a.db.FinishBackupOperation(a.op.ID, a.op.Status); err != nil {
			firstErr = fmt.Errorf("finishing backup operation: %w", err)
		}
	}

	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
