package filter

import (
	"golang.org/x/exp/slices"
)

// PositionIndex is the ordered position array of one coordinate system.
type PositionIndex []int64

// RangeToIndex returns the half-open index range [lo, hi) of positions p
// with start <= p <= stop. lo == hi when none fall inside.
func (p PositionIndex) RangeToIndex(start, stop int64) (lo, hi int) {
	if stop < start {
		return 0, 0
	}

	lo, _ = slices.BinarySearch(p, start)
	hi, found := slices.BinarySearch(p, stop)
	if found {
		hi++
	}
	if hi < lo {
		hi = lo
	}

	return lo, hi
}

// Lookup finds the index of pos by equality.
func (p PositionIndex) Lookup(pos int64) (int, bool) {
	return slices.BinarySearch(p, pos)
}

// Span is the first and last position, inclusive. ok is false for an empty
// index.
func (p PositionIndex) Span() (span Range, ok bool) {
	if len(p) == 0 {
		return Range{}, false
	}
	return Range{Start: p[0], Stop: p[len(p)-1]}, true
}
