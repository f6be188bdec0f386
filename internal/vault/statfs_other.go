//go:build !(linux || darwin || freebsd)

package vault

import "errors"

func freeSpace(string) (int64, error) {
	return 0, errors.New("free space is not available on this platform")
}
