package stats

import (
	"fmt"

	"golang.org/x/exp/slices"
)

const (
	DefaultWindowSize = 1000
	DefaultWindowStep = 100
)

// Window is an inclusive range of genomic positions.
type Window struct {
	Start int64
	End   int64
}

// Mid is the window's x coordinate.
func (w Window) Mid() float64 {
	return float64(w.Start+w.End) / 2
}

// Len is the number of bases covered.
func (w Window) Len() int64 {
	return w.End - w.Start + 1
}

// Windows slides a window of size positions with the given step across
// the dense axis [lo, hi]. There are floor((hi-lo-size)/step)+1 windows, or
// one when the axis is shorter than size. Windows never extend past hi,
// and no partial window follows the last full one, so positions beyond it
// are left out of every window.
func Windows(lo, hi, size, step int64) ([]Window, error) {
	if size <= 0 || step <= 0 {
		return nil, fmt.Errorf("window size %d and step %d must be positive", size, step)
	}
	if hi < lo {
		return nil, fmt.Errorf("window axis [%d, %d] is empty", lo, hi)
	}

	k := int64(1)
	if hi-lo >= size {
		k = (hi-lo-size)/step + 1
	}

	out := make([]Window, 0, k)
	for i := int64(0); i < k; i++ {
		start := lo + i*step
		end := start + size - 1
		if end > hi {
			end = hi
		}
		out = append(out, Window{Start: start, End: end})
	}
	return out, nil
}

// locate returns the index range [i, j) of the sorted positions inside w.
func locate(positions []int64, w Window) (int, int) {
	i, _ := slices.BinarySearch(positions, w.Start)
	j, _ := slices.BinarySearch(positions, w.End+1)
	return i, j
}
