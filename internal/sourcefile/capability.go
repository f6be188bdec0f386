package sourcefile

import (
	"errors"
	"hash"
	"os"
	"sync"
	"sync/atomic"
)

// ErrAcceleratorUnavailable is returned by an Accelerator that cannot serve
// a request. The capability is then disabled for the rest of the process.
var ErrAcceleratorUnavailable = errors.New("accelerated copy unavailable")

// Accelerator hashes src and copies it to dst (nil for hash only) in a
// single pass. step is called after every chunk with the bytes done so far.
type Accelerator interface {
	CopyHash(src *os.File, size int64, dst *os.File, h hash.Hash, step func(done int64) error, sync bool) (int64, error)
}

// Capability carries the accelerator decision for a process. Once the
// accelerator fails with ErrAcceleratorUnavailable it stays off and the
// failure is logged once. The zero value and a nil pointer mean "portable
// only".
type Capability struct {
	acc      Accelerator
	logger   Logger
	disabled atomic.Bool
	once     sync.Once
}

// NewCapability wraps acc. A nil acc yields a portable-only capability.
func NewCapability(acc Accelerator, logger Logger) *Capability {
	return &Capability{acc: acc, logger: logger}
}

// Detect returns the platform accelerator if enabled and supported.
func Detect(enabled bool, logger Logger) *Capability {
	if !enabled {
		return NewCapability(nil, logger)
	}
	return NewCapability(platformAccelerator(), logger)
}

// Enabled reports whether the accelerated path will be attempted.
func (c *Capability) Enabled() bool {
	return c.accelerator() != nil
}

func (c *Capability) accelerator() Accelerator {
	if c == nil || c.acc == nil || c.disabled.Load() {
		return nil
	}
	return c.acc
}

func (c *Capability) disable(err error) {
	if c == nil {
		return
	}
	c.disabled.Store(true)
	c.once.Do(func() {
		if c.logger != nil {
			c.logger.Warn("accelerated copy disabled, using portable path", "error", err)
		}
	})
}
