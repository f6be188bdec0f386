//go:build linux || darwin || freebsd

package sourcefile

import (
	"fmt"
	"hash"
	"os"
	"runtime/debug"

	"golang.org/x/sys/unix"
)

// mmapAccelerator maps the source read-only with sequential read-ahead and
// hashes and writes it straight from the mapping.
type mmapAccelerator struct{}

func platformAccelerator() Accelerator { return mmapAccelerator{} }

func (mmapAccelerator) CopyHash(src *os.File, size int64, dst *os.File, h hash.Hash, step func(int64) error, sync bool) (n int64, err error) {
	if size == 0 {
		return 0, nil
	}
	if int64(int(size)) != size {
		return 0, fmt.Errorf("%w: file too large to map", ErrAcceleratorUnavailable)
	}
	data, err := unix.Mmap(int(src.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return 0, fmt.Errorf("%w: mmap: %v", ErrAcceleratorUnavailable, err)
	}
	defer unix.Munmap(data)
	if err := unix.Madvise(data, unix.MADV_SEQUENTIAL); err != nil {
		return 0, fmt.Errorf("%w: madvise: %v", ErrAcceleratorUnavailable, err)
	}

	// A file truncated underneath the mapping faults on access.
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: fault while reading %s", ErrFileChanged, src.Name())
		}
	}()

	for off := 0; off < len(data); off += ChunkSize {
		end := min(off+ChunkSize, len(data))
		chunk := data[off:end]
		h.Write(chunk)
		if dst != nil {
			if _, err := dst.Write(chunk); err != nil {
				return n, fmt.Errorf("writing destination: %w", err)
			}
			if sync {
				if err := dst.Sync(); err != nil {
					return n, fmt.Errorf("syncing destination: %w", err)
				}
			}
		}
		n = int64(end)
		if err := step(n); err != nil {
			return n, err
		}
	}
	return n, nil
}
