package store

import (
	"fmt"
)

// Selection maps the rows of a view onto rows of the backing chunked array.
// A Selection is either a contiguous range, which costs nothing to hold, or
// an explicit ascending index list produced by Compress. Selections are
// values; Slice and Compress always return new ones.
type Selection struct {
	start, stop int
	index       []int
}

// All selects every one of n backing rows.
func All(n int) Selection {
	return Selection{start: 0, stop: n}
}

func (s Selection) Len() int {
	if s.index != nil {
		return len(s.index)
	}
	return s.stop - s.start
}

// At returns the backing row of view row i.
func (s Selection) At(i int) int {
	if s.index != nil {
		return s.index[i]
	}
	return s.start + i
}

// Contiguous reports whether the selection is a plain range.
func (s Selection) Contiguous() bool {
	return s.index == nil
}

// Slice restricts the selection to view rows [start, stop).
func (s Selection) Slice(start, stop int) (Selection, error) {
	if start < 0 || stop > s.Len() || start > stop {
		return Selection{}, fmt.Errorf("slice [%d, %d) of %d rows: %w", start, stop, s.Len(), ErrOutOfRange)
	}

	if s.index != nil {
		return Selection{index: s.index[start:stop:stop]}, nil
	}
	return Selection{start: s.start + start, stop: s.start + stop}, nil
}

// Compress keeps the view rows where mask is true, in order.
func (s Selection) Compress(mask []bool) (Selection, error) {
	if len(mask) != s.Len() {
		return Selection{}, fmt.Errorf("mask of length %d applied to %d rows: %w", len(mask), s.Len(), ErrOutOfRange)
	}

	index := make([]int, 0, countTrue(mask))
	for i, keep := range mask {
		if keep {
			index = append(index, s.At(i))
		}
	}

	return Selection{index: index}, nil
}

// Runs calls fn for each maximal run of consecutive backing rows, passing
// the view offset of the run and its backing range [lo, hi).
func (s Selection) Runs(fn func(offset, lo, hi int) error) error {
	n := s.Len()
	if n == 0 {
		return nil
	}

	if s.index == nil {
		return fn(0, s.start, s.stop)
	}

	runStart := 0
	for i := 1; i <= n; i++ {
		if i < n && s.index[i] == s.index[i-1]+1 {
			continue
		}
		if err := fn(runStart, s.index[runStart], s.index[i-1]+1); err != nil {
			return err
		}
		runStart = i
	}

	return nil
}

func countTrue(mask []bool) int {
	n := 0
	for _, v := range mask {
		if v {
			n++
		}
	}
	return n
}
