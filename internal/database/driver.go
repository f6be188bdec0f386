package database

import (
	"database/sql"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"dbk-go/internal/nexus"
)

// DriverName is the database/sql driver registered by this package. It is
// the stock SQLite driver with the nexus functions available on every
// connection, so queries can filter and update rows by disk membership.
const DriverName = "sqlite3_dbk"

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: registerNexusFunctions,
	})
}

func registerNexusFunctions(conn *sqlite3.SQLiteConn) error {
	funcs := []struct {
		name string
		impl any
	}{
		{"disk_in_nexus", diskInNexus},
		{"nexus_with_disk", nexusWithDisk},
		{"nexus_without_disk", nexusWithoutDisk},
		{"nexus_level", nexusLevel},
	}
	for _, f := range funcs {
		if err := conn.RegisterFunc(f.name, f.impl, true); err != nil {
			return fmt.Errorf("registering %s: %w", f.name, err)
		}
	}
	return nil
}

// SQLite has no boolean type; predicates return 0 or 1.
func diskInNexus(n string, index int64) int64 {
	if nexus.DiskIn(n, int(index)) {
		return 1
	}
	return 0
}

func nexusWithDisk(n string, index int64) string    { return nexus.WithDisk(n, int(index)) }
func nexusWithoutDisk(n string, index int64) string { return nexus.WithoutDisk(n, int(index)) }
func nexusLevel(n string) int64                     { return int64(nexus.Level(n)) }
