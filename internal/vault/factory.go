package vault

import "dbk-go/internal/dbk"

// Open opens the disk vault at root. It matches the opener the dbk service
// takes, so the service never depends on this package.
func Open(root string) (dbk.Vault, error) {
	v, err := NewDiskVault(root)
	if err != nil {
		return nil, err
	}
	return v, nil
}
