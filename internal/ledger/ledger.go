// Package ledger keeps per-redundancy-level size accounting for content
// objects and estimates how moving one object between nexus groups changes
// the balance of each level.
//
// Objects sharing a nexus form a Group. Groups with the same number of copies
// form a Level. The imbalance of a level is the population standard deviation
// of its members' total sizes; placement prefers moves that keep it low.
package ledger

import (
	"math"
	"math/bits"

	"dbk-go/internal/model"
	"dbk-go/internal/nexus"
)

// Group aggregates all objects that share one nexus value.
type Group struct {
	Nexus         nexus.Nexus
	Level         int
	Refs          int
	TotalSize     int64
	SaturatedSize int64
}

// Level aggregates every group holding the same number of copies.
type Level struct {
	Level         int
	Members       []*Group
	TotalSize     int64
	SaturatedSize int64
	Imbalance     float64

	index map[uint64]int
	cache map[calcKey]float64
}

type calcKey struct {
	group uint64
	sign  int8
	log2  uint8
}

// CopyData is the size accounting for one level.
type CopyData struct {
	TotalSize     int64
	SaturatedSize int64
}

// Ledger holds every known group and level. It is not safe for concurrent
// use; callers sharing one across goroutines must serialize access.
type Ledger struct {
	groups map[uint64]*Group
	levels []*Level
}

// New returns an empty Ledger.
func New() *Ledger {
	return &Ledger{groups: make(map[uint64]*Group)}
}

// SizeLog2 returns the magnitude bucket used to key imbalance estimates.
func SizeLog2(size int64) int {
	if size <= 0 {
		return 0
	}
	return bits.Len64(uint64(size))
}

// Load registers a group with known totals, as read from the object table.
func (l *Ledger) Load(n nexus.Nexus, refs int, total, saturated int64) *Group {
	g := l.Group(n)
	g.Refs += refs
	l.ChangeSize(g, total, false)
	if saturated != 0 {
		l.changeSaturated(g, saturated)
	}
	return g
}

// Group returns the group for n, creating an empty one (and registering it
// with its level) if none exists yet.
func (l *Ledger) Group(n nexus.Nexus) *Group {
	if g, ok := l.groups[n.Key()]; ok {
		return g
	}
	g := &Group{Nexus: n.Canonical(), Level: n.Level()}
	l.groups[n.Key()] = g
	l.AddMember(g)
	return g
}

// Groups returns the number of known groups.
func (l *Ledger) Groups() int { return len(l.groups) }

// Level returns the level with the given number of copies, creating it if
// needed.
func (l *Ledger) Level(level int) *Level {
	for len(l.levels) <= level {
		l.levels = append(l.levels, &Level{
			Level: len(l.levels),
			index: make(map[uint64]int),
			cache: make(map[calcKey]float64),
		})
	}
	return l.levels[level]
}

// Levels returns every level from 0 up to the highest level seen.
func (l *Ledger) Levels() []*Level { return l.levels }

// AddMember registers g under its level and accumulates the level totals.
// Adding a group that is already a member is a no-op.
func (l *Ledger) AddMember(g *Group) {
	lv := l.Level(g.Level)
	if _, ok := lv.index[g.Nexus.Key()]; ok {
		return
	}
	lv.index[g.Nexus.Key()] = len(lv.Members)
	lv.Members = append(lv.Members, g)
	lv.TotalSize += g.TotalSize
	lv.SaturatedSize += g.SaturatedSize
	lv.invalidate()
}

// ChangeSize adjusts g and its level by delta bytes. When saturated is set
// the saturated sub-totals move as well.
func (l *Ledger) ChangeSize(g *Group, delta int64, saturated bool) {
	l.AddMember(g)
	lv := l.levels[g.Level]
	g.TotalSize += delta
	lv.TotalSize += delta
	if saturated {
		g.SaturatedSize += delta
		lv.SaturatedSize += delta
	}
	lv.invalidate()
}

func (l *Ledger) changeSaturated(g *Group, delta int64) {
	lv := l.levels[g.Level]
	g.SaturatedSize += delta
	lv.SaturatedSize += delta
}

// CalcImbalance returns what the imbalance of g's level would be if g grew by
// sign * 2**log2 bytes. State is not modified.
func (l *Ledger) CalcImbalance(g *Group, log2 int, sign int) float64 {
	lv := l.Level(g.Level)
	key := calcKey{group: g.Nexus.Key(), sign: int8(sign), log2: uint8(log2)}
	if v, ok := lv.cache[key]; ok {
		return v
	}
	delta := int64(sign) * (int64(1) << uint(log2))
	v := lv.stddev(g.Nexus.Key(), delta)
	lv.cache[key] = v
	return v
}

// CalcImbalanceChange estimates the total change in imbalance if an object of
// magnitude 2**log2 moved from one group to another. The level with more
// copies counts double. Lower is better.
func (l *Ledger) CalcImbalanceChange(from, to *Group, log2 int) float64 {
	fromLevel := l.Level(from.Level)
	toLevel := l.Level(to.Level)
	fromDelta := l.CalcImbalance(from, log2, -1) - fromLevel.Imbalance
	toDelta := l.CalcImbalance(to, log2, 1) - toLevel.Imbalance
	switch {
	case from.Level > to.Level:
		fromDelta *= 2
	case to.Level > from.Level:
		toDelta *= 2
	}
	return fromDelta + toDelta
}

// MoveObject moves size bytes of one object from one group to another. The
// saturated totals follow whether the object has reached maxcopies at each
// end.
func (l *Ledger) MoveObject(from, to *Group, size int64, maxcopies model.MaxCopies) {
	from.Refs--
	to.Refs++
	l.ChangeSize(from, -size, maxcopies.Reached(from.Level))
	l.ChangeSize(to, size, maxcopies.Reached(to.Level))
}

// CopyData returns per-level totals indexed by level. With disk >= 0 only
// groups that include that disk are counted.
func (l *Ledger) CopyData(disk int) []CopyData {
	out := make([]CopyData, len(l.levels))
	for _, lv := range l.levels {
		if disk < 0 {
			out[lv.Level] = CopyData{TotalSize: lv.TotalSize, SaturatedSize: lv.SaturatedSize}
			continue
		}
		for _, g := range lv.Members {
			if g.Nexus.Has(disk) {
				out[lv.Level].TotalSize += g.TotalSize
				out[lv.Level].SaturatedSize += g.SaturatedSize
			}
		}
	}
	return out
}

func (lv *Level) invalidate() {
	clear(lv.cache)
	lv.Imbalance = lv.stddev(0, 0)
}

// stddev computes the population standard deviation of member sizes with
// delta applied to the member keyed by key. A key that is not a member is
// treated as an extra member of size zero. delta == 0 means "as is".
func (lv *Level) stddev(key uint64, delta int64) float64 {
	n := len(lv.Members)
	sum := lv.TotalSize
	extra := false
	if delta != 0 {
		if _, ok := lv.index[key]; !ok {
			extra = true
			n++
		}
		sum += delta
	}
	if n <= 1 {
		return 0
	}

	mean := float64(sum) / float64(n)
	var acc float64
	for _, g := range lv.Members {
		size := g.TotalSize
		if delta != 0 && g.Nexus.Key() == key {
			size += delta
		}
		d := float64(size) - mean
		acc += d * d
	}
	if extra {
		d := float64(delta) - mean
		acc += d * d
	}
	return math.Sqrt(acc / float64(n))
}
