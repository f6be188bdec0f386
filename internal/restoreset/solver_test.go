package restoreset

import (
	"math/bits"
	"testing"

	"github.com/google/go-cmp/cmp"
	"pgregory.net/rapid"
)

func covers(mask uint64, sets []uint64) bool {
	for _, s := range sets {
		if s != 0 && s&mask == 0 {
			return false
		}
	}
	return true
}

// bruteForceMin returns the size of the smallest covering set over the
// disks appearing in sets.
func bruteForceMin(sets []uint64) int {
	var union uint64
	for _, s := range sets {
		union |= s
	}
	if union == 0 {
		return 0
	}
	best := bits.OnesCount64(union)
	// Enumerate submasks of union.
	for m := union; m != 0; m = (m - 1) & union {
		if n := bits.OnesCount64(m); n < best && covers(m, sets) {
			best = n
		}
	}
	return best
}

func TestSolve(t *testing.T) {
	t.Run("each file missing one of three disks needs two", func(t *testing.T) {
		sets := []uint64{0b101, 0b110, 0b011}
		res := Solve(sets)
		if got := len(res.Disks()); got != 2 {
			t.Errorf("Solve() chose %v, want 2 disks", res.Disks())
		}
		if !covers(res.Mask, sets) {
			t.Errorf("Solve() = %b does not cover %v", res.Mask, sets)
		}
		if want := bruteForceMin(sets); len(res.Disks()) != want {
			t.Errorf("Solve() size = %d, brute force = %d", len(res.Disks()), want)
		}
	})

	t.Run("ties resolve to lowest disk index", func(t *testing.T) {
		res := Solve([]uint64{0b101, 0b110, 0b011})
		if diff := cmp.Diff([]int{0, 1}, res.Disks()); diff != "" {
			t.Errorf("Disks() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("files without copies are reported and ignored", func(t *testing.T) {
		res := Solve([]uint64{0, 0b10, 0})
		if res.Unreachable != 2 {
			t.Errorf("Unreachable = %d, want 2", res.Unreachable)
		}
		if diff := cmp.Diff([]int{1}, res.Disks()); diff != "" {
			t.Errorf("Disks() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("only unreachable files", func(t *testing.T) {
		res := Solve([]uint64{0})
		if !res.Empty() || res.Unreachable != 1 {
			t.Errorf("Solve() = %+v, want empty with one unreachable", res)
		}
	})

	t.Run("no input", func(t *testing.T) {
		if res := Solve(nil); !res.Empty() || res.Unreachable != 0 {
			t.Errorf("Solve(nil) = %+v, want zero", res)
		}
	})

	t.Run("disjoint single-disk files need every disk", func(t *testing.T) {
		var sets []uint64
		for i := 0; i < 64; i++ {
			sets = append(sets, uint64(1)<<uint(i))
		}
		res := Solve(sets)
		if res.Mask != ^uint64(0) {
			t.Errorf("Solve() = %x, want all 64 disks", res.Mask)
		}
	})

	t.Run("one disk holding everything", func(t *testing.T) {
		res := Solve([]uint64{0b1100, 0b0100, 0b0110})
		if diff := cmp.Diff([]int{2}, res.Disks()); diff != "" {
			t.Errorf("Disks() mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestSolve_AlwaysCovers(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sets := rapid.SliceOf(rapid.Uint64Range(0, 1<<8-1)).Draw(t, "sets")
		res := Solve(sets)
		if !covers(res.Mask, sets) {
			t.Fatalf("Solve(%v) = %b does not cover", sets, res.Mask)
		}
		var union uint64
		for _, s := range sets {
			union |= s
		}
		if res.Mask&^union != 0 {
			t.Fatalf("Solve(%v) chose disks %b outside the union %b", sets, res.Mask, union)
		}
		if got, best := bits.OnesCount64(res.Mask), bruteForceMin(sets); got < best {
			t.Fatalf("Solve() size %d is below the brute-force minimum %d", got, best)
		}
	})
}
