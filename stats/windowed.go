package stats

import (
	"fmt"
	"math"

	"github.com/carbocation/popgen/alleles"
)

// WindowInput is a windowed request against an already filtered,
// segregating working set.
type WindowInput struct {
	Positions []int64
	Counts    *alleles.Table
	Size      int64
	Step      int64
	Statistic string
	Pop1      string
	// Pop2 is optional except for Fst.
	Pop2 string
}

// Point is one value of a windowed series.
type Point struct {
	Position   float64
	Value      float64
	Population string
}

// Series is a windowed statistic with undefined windows left out.
type Series []Point

// Windowed computes one value per window. For a single-population
// statistic with Pop2 set, the Pop1 series is followed by the Pop2 series.
func Windowed(in WindowInput) (Series, error) {
	if in.Size == 0 {
		in.Size = DefaultWindowSize
	}
	if in.Step == 0 {
		in.Step = DefaultWindowStep
	}
	if len(in.Positions) == 0 {
		return nil, fmt.Errorf("no segregating positions to window: %w", ErrInvalidQuery)
	}
	if in.Counts.Len() != len(in.Positions) {
		return nil, fmt.Errorf("%d positions but %d counted variants", len(in.Positions), in.Counts.Len())
	}

	windows, err := Windows(in.Positions[0], in.Positions[len(in.Positions)-1], in.Size, in.Step)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err, ErrInvalidQuery)
	}

	pop1, err := populationCounts(in.Counts, in.Pop1)
	if err != nil {
		return nil, err
	}

	if in.Statistic == StatFst {
		if in.Pop2 == "" {
			return nil, fmt.Errorf("Fst needs two populations: %w", ErrInvalidQuery)
		}
		pop2, err := populationCounts(in.Counts, in.Pop2)
		if err != nil {
			return nil, err
		}
		return windowedFst(in.Positions, windows, pop1, pop2, FstLabel(in.Pop1, in.Pop2)), nil
	}

	var stat windowStat
	switch in.Statistic {
	case StatSeqDiv:
		stat = func(c *alleles.Counts, _ int, w Window) float64 {
			return SequenceDiversity(c, w.Len())
		}
	case StatWattThet:
		// The allele number of the whole range is used in every window.
		stat = func(c *alleles.Counts, n int, w Window) float64 {
			return WattersonTheta(c, n, w.Len())
		}
	case StatTajD:
		stat = func(c *alleles.Counts, _ int, _ Window) float64 {
			return TajimaD(c)
		}
	default:
		return nil, fmt.Errorf("statistic %q cannot be windowed: %w", in.Statistic, ErrInvalidQuery)
	}

	out := windowedSingle(in.Positions, windows, pop1, in.Pop1, stat)
	if in.Pop2 != "" {
		pop2, err := populationCounts(in.Counts, in.Pop2)
		if err != nil {
			return nil, err
		}
		out = append(out, windowedSingle(in.Positions, windows, pop2, in.Pop2, stat)...)
	}

	return out, nil
}

func populationCounts(t *alleles.Table, pop string) (*alleles.Counts, error) {
	if pop == "" {
		return nil, fmt.Errorf("no population given: %w", ErrInvalidQuery)
	}
	c, ok := t.Get(pop)
	if !ok {
		return nil, fmt.Errorf("population %s was not part of the query: %w", pop, ErrInvalidQuery)
	}
	return c, nil
}

// windowStat evaluates a statistic on the counts inside one window. n is
// the largest allele number of the population over the whole range.
type windowStat func(c *alleles.Counts, n int, w Window) float64

func windowedSingle(positions []int64, windows []Window, c *alleles.Counts, label string, stat windowStat) Series {
	n := c.MaxAlleleNumber()

	out := make(Series, 0, len(windows))
	for _, w := range windows {
		i, j := locate(positions, w)
		if i == j {
			continue
		}
		v := stat(c.Slice(i, j), n, w)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, Point{Position: w.Mid(), Value: v, Population: label})
	}
	return out
}

func windowedFst(positions []int64, windows []Window, c1, c2 *alleles.Counts, label string) Series {
	num, den := Hudson(c1, c2)

	out := make(Series, 0, len(windows))
	for _, w := range windows {
		i, j := locate(positions, w)
		if i == j {
			continue
		}
		out = append(out, Point{Position: w.Mid(), Value: RatioOfSums(num[i:j], den[i:j]), Population: label})
	}
	return out
}
