package placement

import (
	"sort"

	"dbk-go/internal/ledger"
	"dbk-go/internal/model"
)

// Entry is one object that may be copied onto, or removed from, the target
// disk.
type Entry struct {
	Hash      string
	Size      int64
	BlockSize int64
	Refs      int
	Copies    int
	Priority  int
	MaxCopies model.MaxCopies
	Path      string

	// From is the object's current group; To is the group it joins if the
	// move happens.
	From *ledger.Group
	To   *ledger.Group

	change float64
}

// GroupKey orders object groups: fewer copies first, then higher priority.
type GroupKey struct {
	Copies   int
	Priority int
}

// Less reports whether k sorts before o.
func (k GroupKey) Less(o GroupKey) bool {
	if k.Copies != o.Copies {
		return k.Copies < o.Copies
	}
	return k.Priority > o.Priority
}

// LessOrEqual reports whether k sorts before or together with o.
func (k GroupKey) LessOrEqual(o GroupKey) bool { return !o.Less(k) }

// ObjectGroup holds entries sharing a GroupKey, ordered by the imbalance
// change their move would cause. Pops can be rolled back until Commit.
type ObjectGroup struct {
	Key GroupKey

	entries []*Entry
	saved   []*Entry
	sorted  bool
	size    int64
}

// NewObjectGroup returns an empty group for key.
func NewObjectGroup(key GroupKey) *ObjectGroup {
	return &ObjectGroup{Key: key}
}

// Add appends e. The group must be re-sorted before the next pop.
func (g *ObjectGroup) Add(e *Entry) {
	g.entries = append(g.entries, e)
	g.size += e.BlockSize
	g.sorted = false
}

// Len returns the number of entries still in the group.
func (g *ObjectGroup) Len() int { return len(g.entries) }

// TotalSize returns the summed block size of the remaining entries.
func (g *ObjectGroup) TotalSize() int64 { return g.size }

// Sorted reports whether Sort has run since the last Add.
func (g *ObjectGroup) Sorted() bool { return g.sorted }

// Sort orders entries so that the move causing the smallest imbalance change
// comes first. Ties keep hash order.
func (g *ObjectGroup) Sort(l *ledger.Ledger) {
	for _, e := range g.entries {
		e.change = l.CalcImbalanceChange(e.From, e.To, ledger.SizeLog2(e.BlockSize))
	}
	sort.SliceStable(g.entries, func(i, j int) bool {
		a, b := g.entries[i], g.entries[j]
		if a.change != b.change {
			return a.change < b.change
		}
		return a.Hash < b.Hash
	})
	g.sorted = true
}

// Pop removes and returns the best entry whose block size is at most
// maxSize. It returns nil when nothing fits.
func (g *ObjectGroup) Pop(maxSize int64) *Entry {
	for i, e := range g.entries {
		if e.BlockSize > maxSize {
			continue
		}
		if g.saved == nil {
			g.saved = append([]*Entry(nil), g.entries...)
		}
		g.entries = append(g.entries[:i:i], g.entries[i+1:]...)
		g.size -= e.BlockSize
		return e
	}
	return nil
}

// Commit makes every Pop since the last Commit or Rollback permanent.
func (g *ObjectGroup) Commit() { g.saved = nil }

// Rollback restores the entries popped since the last Commit.
func (g *ObjectGroup) Rollback() bool {
	if g.saved == nil {
		return false
	}
	g.entries = g.saved
	g.saved = nil
	g.size = 0
	for _, e := range g.entries {
		g.size += e.BlockSize
	}
	return true
}

// groupSet collects entries into groups keyed by GroupKey.
type groupSet map[GroupKey]*ObjectGroup

func (s groupSet) add(key GroupKey, e *Entry) {
	g, ok := s[key]
	if !ok {
		g = NewObjectGroup(key)
		s[key] = g
	}
	g.Add(e)
}

// ordered returns the groups sorted by key.
func (s groupSet) ordered() []*ObjectGroup {
	out := make([]*ObjectGroup, 0, len(s))
	for _, g := range s {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out
}
