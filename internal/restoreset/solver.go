// Package restoreset picks a small set of disks that together hold at least
// one copy of every file in a selection.
//
// The search is a breadth-first beam search over partial disk choices and is
// not guaranteed to find the minimum; it can return a superset of the best
// answer for adversarial placements.
package restoreset

import (
	"math/bits"
	"sort"
)

// BeamWidth is the number of candidate states kept per search level.
const BeamWidth = 4

// Result is the outcome of Solve.
type Result struct {
	// Mask has bit i set for each chosen disk index i.
	Mask uint64
	// Unreachable counts input sets with no copies anywhere. They are left
	// out of the covering requirement.
	Unreachable int
}

// Disks returns the chosen disk indices in ascending order.
func (r Result) Disks() []int {
	out := make([]int, 0, bits.OnesCount64(r.Mask))
	for b := r.Mask; b != 0; b &= b - 1 {
		out = append(out, bits.TrailingZeros64(b))
	}
	return out
}

// Empty reports whether no disk was needed, which happens when nothing in
// the selection has a copy.
func (r Result) Empty() bool { return r.Mask == 0 }

type state struct {
	chosen  uint64
	pending []uint64
}

// Solve returns a set of disks such that every non-zero input set shares at
// least one bit with it. Duplicate sets are allowed.
func Solve(sets []uint64) Result {
	var res Result
	seen := make(map[uint64]struct{}, len(sets))
	var pending []uint64
	for _, s := range sets {
		if s == 0 {
			res.Unreachable++
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		pending = append(pending, s)
	}
	if len(pending) == 0 {
		return res
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i] < pending[j] })

	frontier := []state{{pending: pending}}
	for len(frontier) > 0 {
		var next []state
		visited := make(map[uint64]struct{})
		for _, st := range frontier {
			for _, child := range expand(st) {
				if len(child.pending) == 0 {
					res.Mask = child.chosen
					return res
				}
				if _, ok := visited[child.chosen]; ok {
					continue
				}
				visited[child.chosen] = struct{}{}
				next = append(next, child)
			}
		}
		sort.SliceStable(next, func(i, j int) bool {
			return len(next[i].pending) < len(next[j].pending)
		})
		if len(next) > BeamWidth {
			next = next[:BeamWidth]
		}
		frontier = next
	}
	// Unreachable: every expansion strictly shrinks pending.
	return res
}

// expand returns the best BeamWidth successors of st, ranked by the number of
// sets still pending, ties broken by lowest disk index.
func expand(st state) []state {
	var union uint64
	for _, s := range st.pending {
		union |= s
	}
	union &^= st.chosen

	var children []state
	for b := union; b != 0; b &= b - 1 {
		disk := uint64(1) << uint(bits.TrailingZeros64(b))
		var rest []uint64
		for _, s := range st.pending {
			if s&disk == 0 {
				rest = append(rest, s)
			}
		}
		children = append(children, state{chosen: st.chosen | disk, pending: rest})
	}
	sort.SliceStable(children, func(i, j int) bool {
		return len(children[i].pending) < len(children[j].pending)
	})
	if len(children) > BeamWidth {
		children = children[:BeamWidth]
	}
	return children
}
