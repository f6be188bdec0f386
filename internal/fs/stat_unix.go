//go:build unix

package fs

import (
	"io/fs"
	"syscall"
)

// inode extracts the inode number from a FileInfo.
func inode(info fs.FileInfo) int64 {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0
	}
	return int64(stat.Ino)
}
