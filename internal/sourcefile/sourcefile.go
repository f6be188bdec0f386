// Package sourcefile hashes source files, optionally copying them at the same
// time, and detects files that change while they are being read.
package sourcefile

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"time"
)

// ChunkSize is the unit of reading, hashing and writing.
const ChunkSize = 512 * 1024

// ErrFileChanged is returned when a file's mode, size or modification time
// differs from the snapshot taken when it was opened.
var ErrFileChanged = errors.New("source file changed")

// State is the lifecycle of a SourceFile.
type State int

const (
	Unopened State = iota
	Hashing
	Finalized
	ChangeDetected
)

func (s State) String() string {
	switch s {
	case Unopened:
		return "unopened"
	case Hashing:
		return "hashing"
	case Finalized:
		return "finalized"
	case ChangeDetected:
		return "change-detected"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Logger is the subset of the service logger used here.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Progress receives best-effort progress updates while a file is copied.
type Progress interface {
	Update(path string, done, total int64)
	Done()
}

// ProgressInterval bounds how often Progress.Update is called.
const ProgressInterval = 200 * time.Millisecond

// SourceFile is one source file being hashed. It owns its open descriptor
// until Reset is called or hashing finishes.
type SourceFile struct {
	Path string
	Hash string
	Size int64

	snapshot fs.FileInfo
	state    State
	file     *os.File
	dest     *os.File
	caps     *Capability
	progress Progress
}

// New returns a SourceFile for path. info is the snapshot later checks are
// compared against; pass nil to stat the file now.
func New(path string, info fs.FileInfo, caps *Capability) (*SourceFile, error) {
	if info == nil {
		var err error
		if info, err = os.Stat(path); err != nil {
			return nil, fmt.Errorf("stat source: %w", err)
		}
	}
	return &SourceFile{Path: path, snapshot: info, caps: caps}, nil
}

// State returns the current lifecycle state.
func (f *SourceFile) State() State { return f.state }

// Info returns the current stat snapshot.
func (f *SourceFile) Info() fs.FileInfo { return f.snapshot }

// SetDest makes Copy write every chunk to w. A nil w means hash only.
func (f *SourceFile) SetDest(w *os.File) { f.dest = w }

// SetProgress attaches a progress sink.
func (f *SourceFile) SetProgress(p Progress) { f.progress = p }

func (f *SourceFile) open() error {
	if f.state == Hashing && f.file != nil {
		return nil
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	f.file = fh
	f.state = Hashing
	return nil
}

// Copy reads the whole file, hashing it and writing it to the destination if
// one is set. periodic, if not nil, runs after every chunk; an error from it
// aborts the copy. With sync set the destination is flushed after every
// chunk on the accelerated path and once at the end otherwise.
//
// On success the file is Finalized and closed. If the file changed while it
// was read, Copy returns ErrFileChanged and the state is ChangeDetected.
func (f *SourceFile) Copy(periodic func() error, sync bool) (err error) {
	if err := f.open(); err != nil {
		return err
	}
	defer func() {
		if f.progress != nil {
			f.progress.Done()
		}
		if errors.Is(err, ErrFileChanged) {
			f.state = ChangeDetected
		}
		if err != nil {
			f.Reset()
		}
	}()

	h := sha256.New()
	tick := newTicker(f.progress, f.Path, f.snapshot.Size())

	n, done, err := f.accelerated(h, periodic, sync, tick)
	if err != nil {
		return err
	}
	if !done {
		n, err = f.portable(h, periodic, tick)
		if err != nil {
			return err
		}
		if sync && f.dest != nil {
			if err := f.dest.Sync(); err != nil {
				return fmt.Errorf("syncing destination: %w", err)
			}
		}
	}

	if err := f.CheckChange(); err != nil {
		return err
	}
	f.Hash = hex.EncodeToString(h.Sum(nil))
	f.Size = n
	f.state = Finalized
	f.close()
	return nil
}

// accelerated tries the platform accelerator. done reports whether it ran
// to completion; when it is false the caller must fall back.
func (f *SourceFile) accelerated(h hash.Hash, periodic func() error, sync bool, tick *ticker) (int64, bool, error) {
	acc := f.caps.accelerator()
	if acc == nil || !f.snapshot.Mode().IsRegular() || f.snapshot.Size() == 0 {
		return 0, false, nil
	}
	n, err := acc.CopyHash(f.file, f.snapshot.Size(), f.dest, h, func(done int64) error {
		tick.update(done)
		if periodic != nil {
			return periodic()
		}
		return nil
	}, sync)
	if errors.Is(err, ErrAcceleratorUnavailable) {
		f.caps.disable(err)
		h.Reset()
		if err := f.rewind(); err != nil {
			return 0, false, err
		}
		return 0, false, nil
	}
	if err != nil {
		return n, false, err
	}
	return n, true, nil
}

func (f *SourceFile) portable(h hash.Hash, periodic func() error, tick *ticker) (int64, error) {
	buf := make([]byte, ChunkSize)
	var total int64
	for {
		n, rerr := io.ReadFull(f.file, buf)
		if n > 0 {
			chunk := buf[:n]
			h.Write(chunk)
			if f.dest != nil {
				if _, err := f.dest.Write(chunk); err != nil {
					return total, fmt.Errorf("writing destination: %w", err)
				}
			}
			total += int64(n)
			tick.update(total)
			if periodic != nil {
				if err := periodic(); err != nil {
					return total, err
				}
			}
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			return total, nil
		}
		if rerr != nil {
			return total, fmt.Errorf("reading source: %w", rerr)
		}
	}
}

func (f *SourceFile) rewind() error {
	if _, err := f.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding source: %w", err)
	}
	if f.dest != nil {
		if _, err := f.dest.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewinding destination: %w", err)
		}
		if err := f.dest.Truncate(0); err != nil {
			return fmt.Errorf("truncating destination: %w", err)
		}
	}
	return nil
}

// CheckChange re-stats the file and compares it with the snapshot. On a
// difference the snapshot is refreshed, the state becomes ChangeDetected and
// ErrFileChanged is returned; a second call with no further change returns nil.
func (f *SourceFile) CheckChange() error {
	info, err := os.Stat(f.Path)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if Changed(f.snapshot, info) {
		f.snapshot = info
		f.state = ChangeDetected
		return fmt.Errorf("%w: %s", ErrFileChanged, f.Path)
	}
	return nil
}

// Changed reports whether mode, size or modification time differ.
func Changed(a, b fs.FileInfo) bool {
	return a.Mode() != b.Mode() || a.Size() != b.Size() || !a.ModTime().Equal(b.ModTime())
}

// Reset releases the descriptor and clears any partial result. The state
// returns to Unopened unless a change was detected. Safe to call in any state.
func (f *SourceFile) Reset() {
	f.close()
	if f.state != ChangeDetected {
		f.state = Unopened
	}
	f.Hash = ""
	f.Size = 0
}

func (f *SourceFile) close() {
	if f.file != nil {
		f.file.Close()
		f.file = nil
	}
}

// ticker throttles progress updates.
type ticker struct {
	p     Progress
	path  string
	total int64
	last  time.Time
}

func newTicker(p Progress, path string, total int64) *ticker {
	return &ticker{p: p, path: path, total: total}
}

func (t *ticker) update(done int64) {
	if t.p == nil {
		return
	}
	now := time.Now()
	if done < t.total && now.Sub(t.last) < ProgressInterval {
		return
	}
	t.last = now
	t.p.Update(t.path, done, t.total)
}
