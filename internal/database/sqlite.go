package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"dbk-go/internal/database/migrations"
	"dbk-go/internal/database/sqlc"
	"dbk-go/internal/dbk"
	"dbk-go/internal/nexus"
)

// SQLiteDatabase implements the Database interface using SQLite.
type SQLiteDatabase struct {
	db      *sql.DB
	queries *sqlc.Queries
	path    string
}

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	return &SQLiteDatabase{
		db:      db,
		queries: sqlc.New(db),
		path:    path,
	}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{
		db:      db,
		queries: sqlc.New(db),
		path:    "",
	}
}

// OpenConnection opens and configures a SQLite database connection with the
// nexus functions registered. This is exported for use in tools and tests
// that need a properly configured SQLite connection.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: an in-memory database exists per connection, and
	// transactions never wait on each other.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// withTx runs fn inside a transaction and commits if it returns nil.
func (s *SQLiteDatabase) withTx(fn func(ctx context.Context, qtx *sqlc.Queries) error) error {
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, s.queries.WithTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func ptrs[T any](items []T) []*T {
	result := make([]*T, len(items))
	for i := range items {
		result[i] = &items[i]
	}
	return result
}

// Disk operations

func (s *SQLiteDatabase) CreateDisk(name, uuid string, size int64, relativePath string) (*sqlc.Disk, error) {
	var disk sqlc.Disk
	err := s.withTx(func(ctx context.Context, qtx *sqlc.Queries) error {
		used, err := qtx.ListNexusIndexes(ctx)
		if err != nil {
			return fmt.Errorf("listing nexus indexes: %w", err)
		}
		index, err := lowestFreeIndex(used)
		if err != nil {
			return err
		}
		disk, err = qtx.InsertDisk(ctx, sqlc.InsertDiskParams{
			Name:         name,
			Uuid:         uuid,
			NexusIndex:   int64(index),
			Size:         size,
			RelativePath: relativePath,
		})
		if err != nil {
			return fmt.Errorf("inserting disk: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &disk, nil
}

// lowestFreeIndex expects used in ascending order.
func lowestFreeIndex(used []int64) (int, error) {
	next := 0
	for _, idx := range used {
		if idx < int64(next) {
			return 0, fmt.Errorf("%w: nexus index %d assigned twice", dbk.ErrInvariant, idx)
		}
		if idx > int64(next) {
			break
		}
		next++
	}
	if next >= nexus.MaxDisks {
		return 0, dbk.ErrTooManyDisks
	}
	return next, nil
}

func (s *SQLiteDatabase) ListDisks() ([]*sqlc.Disk, error) {
	disks, err := s.queries.ListDisks(context.Background())
	if err != nil {
		return nil, fmt.Errorf("listing disks: %w", err)
	}
	return ptrs(disks), nil
}

func (s *SQLiteDatabase) FindDiskByName(name string) (*sqlc.Disk, error) {
	disk, err := s.queries.GetDiskByName(context.Background(), name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding disk by name: %w", err)
	}
	return &disk, nil
}

func (s *SQLiteDatabase) FindDiskByUUID(uuid string) (*sqlc.Disk, error) {
	disk, err := s.queries.GetDiskByUUID(context.Background(), uuid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding disk by uuid: %w", err)
	}
	return &disk, nil
}

func (s *SQLiteDatabase) RenameDisk(disk *sqlc.Disk, name string) error {
	err := s.queries.RenameDisk(context.Background(), sqlc.RenameDiskParams{Name: name, Uuid: disk.Uuid})
	if err != nil {
		return fmt.Errorf("renaming disk: %w", err)
	}
	disk.Name = name
	return nil
}

func (s *SQLiteDatabase) UpdateDisk(disk *sqlc.Disk) error {
	err := s.queries.UpdateDisk(context.Background(), sqlc.UpdateDiskParams{
		Size:         disk.Size,
		RelativePath: disk.RelativePath,
		Fstype:       disk.Fstype,
		Fsuuid:       disk.Fsuuid,
		Uuid:         disk.Uuid,
	})
	if err != nil {
		return fmt.Errorf("updating disk: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) DropDisk(disk *sqlc.Disk) (int64, error) {
	n, err := s.queries.ClearDiskFromObjects(context.Background(), disk.NexusIndex)
	if err != nil {
		return 0, fmt.Errorf("clearing disk from objects: %w", err)
	}
	return n, nil
}

func (s *SQLiteDatabase) DeleteDisk(disk *sqlc.Disk) error {
	return s.withTx(func(ctx context.Context, qtx *sqlc.Queries) error {
		n, err := qtx.CountObjectsOnDisk(ctx, disk.NexusIndex)
		if err != nil {
			return fmt.Errorf("counting objects on disk: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: %s has %d objects", dbk.ErrDiskInUse, disk.Name, n)
		}
		if err := qtx.DeleteDisk(ctx, disk.Uuid); err != nil {
			return fmt.Errorf("deleting disk: %w", err)
		}
		return nil
	})
}

func (s *SQLiteDatabase) DiskUsage(disk *sqlc.Disk) (int64, error) {
	n, err := s.queries.DiskUsage(context.Background(), disk.NexusIndex)
	if err != nil {
		return 0, fmt.Errorf("computing disk usage: %w", err)
	}
	return n, nil
}

// Object operations

func (s *SQLiteDatabase) FindObject(hash string) (*sqlc.Object, error) {
	obj, err := s.queries.GetObject(context.Background(), hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding object: %w", err)
	}
	return &obj, nil
}

func (s *SQLiteDatabase) ListObjects() ([]*sqlc.Object, error) {
	objs, err := s.queries.ListLiveObjects(context.Background())
	if err != nil {
		return nil, fmt.Errorf("listing objects: %w", err)
	}
	return ptrs(objs), nil
}

func (s *SQLiteDatabase) ListObjectsOnDisk(disk *sqlc.Disk) ([]*sqlc.Object, error) {
	objs, err := s.queries.ListObjectsOnDisk(context.Background(), disk.NexusIndex)
	if err != nil {
		return nil, fmt.Errorf("listing objects on disk: %w", err)
	}
	return ptrs(objs), nil
}

func (s *SQLiteDatabase) ApplyNexusChanges(changes []dbk.NexusChange) error {
	if len(changes) == 0 {
		return nil
	}
	return s.withTx(func(ctx context.Context, qtx *sqlc.Queries) error {
		for _, c := range changes {
			var err error
			if c.Present {
				err = qtx.AddObjectDisk(ctx, sqlc.AddObjectDiskParams{NexusIndex: int64(c.Disk), Hash: c.Hash})
			} else {
				err = qtx.RemoveObjectDisk(ctx, sqlc.RemoveObjectDiskParams{NexusIndex: int64(c.Disk), Hash: c.Hash})
			}
			if err != nil {
				return fmt.Errorf("updating nexus of %s: %w", c.Hash, err)
			}
		}
		return nil
	})
}

func (s *SQLiteDatabase) NexusGroups() ([]*sqlc.ListNexusGroupsRow, error) {
	rows, err := s.queries.ListNexusGroups(context.Background())
	if err != nil {
		return nil, fmt.Errorf("listing nexus groups: %w", err)
	}
	return ptrs(rows), nil
}

func (s *SQLiteDatabase) CopyMismatches() ([]*sqlc.Object, error) {
	objs, err := s.queries.ListCopyMismatches(context.Background())
	if err != nil {
		return nil, fmt.Errorf("checking copies: %w", err)
	}
	return ptrs(objs), nil
}

func (s *SQLiteDatabase) CleanRefs() (int64, error) {
	var deleted int64
	err := s.withTx(func(ctx context.Context, qtx *sqlc.Queries) error {
		if err := qtx.RefreshAllObjects(ctx); err != nil {
			return fmt.Errorf("recomputing references: %w", err)
		}
		n, err := qtx.DeleteOrphanObjects(ctx)
		if err != nil {
			return fmt.Errorf("deleting orphan objects: %w", err)
		}
		deleted = n
		return nil
	})
	return deleted, err
}

// File tree operations

func (s *SQLiteDatabase) FindFile(virtualPath string) (*sqlc.FileTree, error) {
	f, err := s.queries.GetFile(context.Background(), virtualPath)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding file: %w", err)
	}
	return &f, nil
}

func (s *SQLiteDatabase) ListFiles(prefix string) ([]*sqlc.FileTree, error) {
	files, err := s.queries.ListFilesUnder(context.Background(), prefix)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	return ptrs(files), nil
}

// SaveFile upserts the entry and refreshes the aggregates (refs, priority,
// maxcopies, last path) of the object it used to reference and of the one it
// references now, all in one transaction.
func (s *SQLiteDatabase) SaveFile(file *sqlc.FileTree, blocksize int64) error {
	return s.withTx(func(ctx context.Context, qtx *sqlc.Queries) error {
		oldHash := ""
		old, err := qtx.GetFile(ctx, file.VirtualPath)
		switch {
		case err == nil:
			oldHash = old.Hash
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("finding file: %w", err)
		}

		if file.Hash != "" {
			obj, err := qtx.GetObject(ctx, file.Hash)
			switch {
			case err == nil:
				if obj.Size != file.Size {
					return fmt.Errorf("%w: object %s has size %d, %s has size %d",
						dbk.ErrInvariant, file.Hash, obj.Size, file.VirtualPath, file.Size)
				}
			case errors.Is(err, sql.ErrNoRows):
				err = qtx.InsertObject(ctx, sqlc.InsertObjectParams{
					Hash:      file.Hash,
					Size:      file.Size,
					Blocksize: blocksize,
				})
				if err != nil {
					return fmt.Errorf("creating object: %w", err)
				}
			default:
				return fmt.Errorf("finding object: %w", err)
			}
		}

		err = qtx.UpsertFile(ctx, sqlc.UpsertFileParams{
			VirtualPath:  file.VirtualPath,
			Hash:         file.Hash,
			Size:         file.Size,
			LastModified: file.LastModified,
			Ino:          file.Ino,
			Metadata:     file.Metadata,
			Priority:     file.Priority,
			Maxcopies:    file.Maxcopies,
		})
		if err != nil {
			return fmt.Errorf("saving file: %w", err)
		}

		if oldHash != "" && oldHash != file.Hash {
			if err := qtx.RefreshObject(ctx, oldHash); err != nil {
				return fmt.Errorf("refreshing previous object: %w", err)
			}
		}
		if file.Hash != "" {
			if err := qtx.RefreshObject(ctx, file.Hash); err != nil {
				return fmt.Errorf("refreshing object: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLiteDatabase) DeleteFiles(virtualPaths []string) error {
	if len(virtualPaths) == 0 {
		return nil
	}
	return s.withTx(func(ctx context.Context, qtx *sqlc.Queries) error {
		for _, p := range virtualPaths {
			f, err := qtx.GetFile(ctx, p)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("finding file %s: %w", p, err)
			}
			if err := qtx.DeleteFile(ctx, p); err != nil {
				return fmt.Errorf("deleting file %s: %w", p, err)
			}
			if f.Hash != "" {
				if err := qtx.RefreshObject(ctx, f.Hash); err != nil {
					return fmt.Errorf("refreshing object: %w", err)
				}
			}
		}
		return nil
	})
}

func (s *SQLiteDatabase) ListUnhashedFiles() ([]*sqlc.FileTree, error) {
	files, err := s.queries.ListUnhashedFiles(context.Background())
	if err != nil {
		return nil, fmt.Errorf("listing unhashed files: %w", err)
	}
	return ptrs(files), nil
}

func (s *SQLiteDatabase) CountUnhashedFiles() (int64, error) {
	n, err := s.queries.CountUnhashedFiles(context.Background())
	if err != nil {
		return 0, fmt.Errorf("counting unhashed files: %w", err)
	}
	return n, nil
}

func (s *SQLiteDatabase) ListFileObjects(prefix string) ([]*sqlc.ListFileObjectsUnderRow, error) {
	rows, err := s.queries.ListFileObjectsUnder(context.Background(), prefix)
	if err != nil {
		return nil, fmt.Errorf("listing file objects: %w", err)
	}
	return ptrs(rows), nil
}

func (s *SQLiteDatabase) ListFilesByLevel(prefix string, minCopies, maxCopies int) ([]*sqlc.ListFilesByLevelRow, error) {
	rows, err := s.queries.ListFilesByLevel(context.Background(), sqlc.ListFilesByLevelParams{
		Prefix:    prefix,
		MinCopies: int64(minCopies),
		MaxCopies: int64(maxCopies),
	})
	if err != nil {
		return nil, fmt.Errorf("listing files by level: %w", err)
	}
	return ptrs(rows), nil
}

func (s *SQLiteDatabase) PathsForHash(hash string) ([]string, error) {
	paths, err := s.queries.ListPathsForHash(context.Background(), hash)
	if err != nil {
		return nil, fmt.Errorf("listing paths for hash: %w", err)
	}
	return paths, nil
}

// Path configuration

func (s *SQLiteDatabase) ListPathConfigs() ([]*sqlc.PathConfig, error) {
	cfgs, err := s.queries.ListPathConfigs(context.Background())
	if err != nil {
		return nil, fmt.Errorf("listing path configs: %w", err)
	}
	return ptrs(cfgs), nil
}

func (s *SQLiteDatabase) SetPathConfig(virtualPath, config string) error {
	err := s.queries.UpsertPathConfig(context.Background(), sqlc.UpsertPathConfigParams{
		VirtualPath: virtualPath,
		Config:      config,
	})
	if err != nil {
		return fmt.Errorf("saving path config: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeletePathConfig(virtualPath string) error {
	if err := s.queries.DeletePathConfig(context.Background(), virtualPath); err != nil {
		return fmt.Errorf("deleting path config: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListPathMaps() ([]*sqlc.PathMap, error) {
	maps, err := s.queries.ListPathMaps(context.Background())
	if err != nil {
		return nil, fmt.Errorf("listing path maps: %w", err)
	}
	return ptrs(maps), nil
}

func (s *SQLiteDatabase) SetPathMap(virtualPath, realPath string) error {
	err := s.queries.UpsertPathMap(context.Background(), sqlc.UpsertPathMapParams{
		VirtualPath: virtualPath,
		RealPath:    realPath,
	})
	if err != nil {
		return fmt.Errorf("saving path map: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeletePathMap(virtualPath string) error {
	if err := s.queries.DeletePathMap(context.Background(), virtualPath); err != nil {
		return fmt.Errorf("deleting path map: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ImportConfig(imp *dbk.ConfigImport) error {
	return s.withTx(func(ctx context.Context, qtx *sqlc.Queries) error {
		if imp.PathMaps != nil {
			old, err := qtx.ListPathMaps(ctx)
			if err != nil {
				return fmt.Errorf("listing path maps: %w", err)
			}
			for _, m := range old {
				if err := qtx.DeletePathMap(ctx, m.VirtualPath); err != nil {
					return fmt.Errorf("deleting path map %q: %w", m.VirtualPath, err)
				}
			}
			for _, vp := range slices.Sorted(maps.Keys(imp.PathMaps)) {
				err := qtx.UpsertPathMap(ctx, sqlc.UpsertPathMapParams{VirtualPath: vp, RealPath: imp.PathMaps[vp]})
				if err != nil {
					return fmt.Errorf("saving path map %q: %w", vp, err)
				}
			}
		}

		if imp.PathConfigs != nil {
			old, err := qtx.ListPathConfigs(ctx)
			if err != nil {
				return fmt.Errorf("listing path configs: %w", err)
			}
			for _, c := range old {
				if !imp.Replaces(c.VirtualPath) {
					continue
				}
				if err := qtx.DeletePathConfig(ctx, c.VirtualPath); err != nil {
					return fmt.Errorf("deleting path config %q: %w", c.VirtualPath, err)
				}
			}
			for _, vp := range slices.Sorted(maps.Keys(imp.PathConfigs)) {
				err := qtx.UpsertPathConfig(ctx, sqlc.UpsertPathConfigParams{VirtualPath: vp, Config: imp.PathConfigs[vp]})
				if err != nil {
					return fmt.Errorf("saving path config %q: %w", vp, err)
				}
			}
		}

		for _, d := range imp.Disks {
			if err := qtx.RenameDisk(ctx, sqlc.RenameDiskParams{Name: d.Name, Uuid: d.UUID}); err != nil {
				return fmt.Errorf("renaming disk %s: %w", d.UUID, err)
			}
			err := qtx.UpdateDisk(ctx, sqlc.UpdateDiskParams{
				Size:         d.Size,
				RelativePath: d.RelativePath,
				Fstype:       d.Fstype,
				Fsuuid:       d.Fsuuid,
				Uuid:         d.UUID,
			})
			if err != nil {
				return fmt.Errorf("updating disk %s: %w", d.UUID, err)
			}
		}
		return nil
	})
}

// Symbolic links

func (s *SQLiteDatabase) SaveSymlink(virtualPath, target string) error {
	err := s.queries.UpsertSymlink(context.Background(), sqlc.UpsertSymlinkParams{
		VirtualPath: virtualPath,
		Target:      target,
	})
	if err != nil {
		return fmt.Errorf("saving symlink: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteSymlink(virtualPath string) error {
	if err := s.queries.DeleteSymlink(context.Background(), virtualPath); err != nil {
		return fmt.Errorf("deleting symlink: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListSymlinks(prefix string) ([]*sqlc.SymbolicLink, error) {
	links, err := s.queries.ListSymlinksUnder(context.Background(), prefix)
	if err != nil {
		return nil, fmt.Errorf("listing symlinks: %w", err)
	}
	return ptrs(links), nil
}

// Backup operation tracking

func (s *SQLiteDatabase) CreateBackupOperation(operation string, parameters string) (*sqlc.BackupOperation, error) {
	op, err := s.queries.InsertBackupOperation(context.Background(), sqlc.InsertBackupOperationParams{
		StartedAt:  time.Now(),
		Operation:  operation,
		Parameters: parameters,
	})
	if err != nil {
		return nil, fmt.Errorf("creating backup operation: %w", err)
	}
	return &op, nil
}

func (s *SQLiteDatabase) FinishBackupOperation(id int64, status string) error {
	err := s.queries.UpdateBackupOperationFinished(context.Background(), sqlc.UpdateBackupOperationFinishedParams{
		FinishedAt: sql.NullTime{Time: time.Now(), Valid: true},
		Status:     status,
		ID:         id,
	})
	if err != nil {
		return fmt.Errorf("finishing backup operation: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListBackupOperations(limit int) ([]*sqlc.BackupOperation, error) {
	ops, err := s.queries.GetBackupOperations(context.Background(), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("listing backup operations: %w", err)
	}
	return ptrs(ops), nil
}

func (s *SQLiteDatabase) MaxBackupOperationID() (int64, error) {
	id, err := s.queries.GetMaxBackupOperationID(context.Background())
	if err != nil {
		return 0, fmt.Errorf("getting max backup operation ID: %w", err)
	}
	return id, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Migrate brings the schema up to date.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
// destPath must not exist.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements dbk.Database interface
var _ dbk.Database = (*SQLiteDatabase)(nil)
