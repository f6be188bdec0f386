package nexus

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

// MaxDisks is the number of disk slots a Nexus can address.
const MaxDisks = 64

// ErrInvalid is returned by Parse for strings that are not a nexus.
var ErrInvalid = errors.New("invalid nexus")

// Nexus is the in-process form of a nexus string: a bitset plus the length
// of the string it was built from. Two values with the same bits describe
// the same placement regardless of width; use Key or Equal to compare them.
type Nexus struct {
	bits  uint64
	width uint8
}

// Empty is the nexus of an object with no copies.
var Empty = Nexus{}

// Parse converts a nexus string. Characters past MaxDisks are accepted only
// if they are all '0'.
func Parse(s string) (Nexus, error) {
	var n Nexus
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '0':
		case '1':
			if i >= MaxDisks {
				return Empty, fmt.Errorf("%w: disk index %d out of range in %q", ErrInvalid, i, s)
			}
			n.bits |= 1 << uint(i)
		default:
			return Empty, fmt.Errorf("%w: unexpected character %q in %q", ErrInvalid, s[i], s)
		}
	}
	n.width = uint8(min(len(s), MaxDisks))
	return n, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Nexus {
	n, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}

// FromBits builds a canonical Nexus from a bitset.
func FromBits(b uint64) Nexus {
	return Nexus{bits: b, width: uint8(bits.Len64(b))}
}

// Bits returns the underlying bitset. Bit i is set iff disk i holds a copy.
func (n Nexus) Bits() uint64 { return n.bits }

// Key returns a value suitable as a map key; it ignores trailing zeros.
func (n Nexus) Key() uint64 { return n.bits }

// Equal reports whether both values describe the same set of disks.
func (n Nexus) Equal(o Nexus) bool { return n.bits == o.bits }

// IsEmpty reports whether no disk holds a copy.
func (n Nexus) IsEmpty() bool { return n.bits == 0 }

// Has reports whether the disk at index holds a copy.
func (n Nexus) Has(index int) bool {
	if index < 0 || index >= MaxDisks {
		return false
	}
	return n.bits&(1<<uint(index)) != 0
}

// With returns n with the disk at index added. It panics if index is
// outside [0, MaxDisks).
func (n Nexus) With(index int) Nexus {
	checkIndex(index)
	n.bits |= 1 << uint(index)
	if w := uint8(index + 1); w > n.width {
		n.width = w
	}
	return n
}

// Without returns the canonical form of n with the disk at index removed.
func (n Nexus) Without(index int) Nexus {
	if index < 0 || index >= int(n.width) {
		return n
	}
	n.bits &^= 1 << uint(index)
	n.width = uint8(bits.Len64(n.bits))
	return n
}

// Level returns the number of copies.
func (n Nexus) Level() int { return bits.OnesCount64(n.bits) }

// Canonical strips trailing zeros.
func (n Nexus) Canonical() Nexus { return FromBits(n.bits) }

// Disks returns the indices of the disks holding a copy, ascending.
func (n Nexus) Disks() []int {
	out := make([]int, 0, n.Level())
	for b := n.bits; b != 0; b &= b - 1 {
		out = append(out, bits.TrailingZeros64(b))
	}
	return out
}

// String renders the nexus in its stored string form.
func (n Nexus) String() string {
	if n.width == 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(int(n.width))
	for i := 0; i < int(n.width); i++ {
		if n.bits&(1<<uint(i)) != 0 {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

func checkIndex(index int) {
	if index < 0 || index >= MaxDisks {
		panic(fmt.Sprintf("nexus: disk index %d out of range [0, %d)", index, MaxDisks))
	}
}
