package alleles

import (
	"fmt"

	"github.com/carbocation/popgen/store"
)

// Counts holds, for every variant, how many times each allele value
// 0..NAlleles-1 was called. Rows are stored contiguously.
type Counts struct {
	NAlleles int
	data     []int32
}

// NewCounts allocates zeroed counts for n variants.
func NewCounts(n, nAlleles int) *Counts {
	return &Counts{NAlleles: nAlleles, data: make([]int32, n*nAlleles)}
}

// FromRows builds counts from explicit per-variant rows, which must all have
// the same length.
func FromRows(rows [][]int32) (*Counts, error) {
	if len(rows) == 0 {
		return &Counts{}, nil
	}

	c := NewCounts(len(rows), len(rows[0]))
	for i, r := range rows {
		if len(r) != c.NAlleles {
			return nil, fmt.Errorf("row %d has %d alleles, expected %d", i, len(r), c.NAlleles)
		}
		copy(c.Row(i), r)
	}
	return c, nil
}

// Len is the number of variants.
func (c *Counts) Len() int {
	if c.NAlleles == 0 {
		return 0
	}
	return len(c.data) / c.NAlleles
}

// Row returns the counts of variant i. The slice aliases c.
func (c *Counts) Row(i int) []int32 {
	return c.data[i*c.NAlleles : (i+1)*c.NAlleles : (i+1)*c.NAlleles]
}

// Slice returns variants [lo, hi). The result shares storage with c.
func (c *Counts) Slice(lo, hi int) *Counts {
	return &Counts{NAlleles: c.NAlleles, data: c.data[lo*c.NAlleles : hi*c.NAlleles]}
}

// Compress keeps the variants where mask is true.
func (c *Counts) Compress(mask []bool) (*Counts, error) {
	if len(mask) != c.Len() {
		return nil, fmt.Errorf("mask of length %d applied to %d variants: %w", len(mask), c.Len(), store.ErrOutOfRange)
	}

	out := &Counts{NAlleles: c.NAlleles}
	for i, keep := range mask {
		if keep {
			out.data = append(out.data, c.Row(i)...)
		}
	}
	return out, nil
}

// IsSegregating reports, per variant, whether more than one allele value
// was observed.
func (c *Counts) IsSegregating() []bool {
	out := make([]bool, c.Len())
	for i := range out {
		out[i] = c.segregating(i)
	}
	return out
}

// CountSegregating is the number of segregating variants.
func (c *Counts) CountSegregating() int {
	n := 0
	for i := 0; i < c.Len(); i++ {
		if c.segregating(i) {
			n++
		}
	}
	return n
}

func (c *Counts) segregating(i int) bool {
	seen := 0
	for _, v := range c.Row(i) {
		if v > 0 {
			seen++
		}
	}
	return seen > 1
}

// AlleleNumber is the number of called alleles at variant i.
func (c *Counts) AlleleNumber(i int) int {
	n := 0
	for _, v := range c.Row(i) {
		n += int(v)
	}
	return n
}

// MaxAlleleNumber is the largest AlleleNumber over all variants.
func (c *Counts) MaxAlleleNumber() int {
	max := 0
	for i := 0; i < c.Len(); i++ {
		if n := c.AlleleNumber(i); n > max {
			max = n
		}
	}
	return max
}

// add accumulates the calls of one block into c, counting only the sample
// columns listed in cols. Calls outside [0, NAlleles) are skipped.
func (c *Counts) add(b store.Block, cols []int) {
	for r := 0; r < b.Rows; r++ {
		row := c.Row(b.Offset + r)
		for _, s := range cols {
			for allele := 0; allele < 2; allele++ {
				v := int(b.Call(r, s, allele))
				if v >= 0 && v < c.NAlleles {
					row[v]++
				}
			}
		}
	}
}
