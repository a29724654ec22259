package alleles

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/carbocation/popgen/store"
)

// All is the pooled label covering every selected sample.
const All = "ALL"

// Table holds one Counts per population label, all of the same length.
type Table struct {
	// Labels lists the populations in query order, followed by All.
	Labels []string
	counts map[string]*Counts
}

// NewTable assembles a table from already computed counts.
func NewTable(labels []string, counts map[string]*Counts) (*Table, error) {
	n := -1
	for _, l := range labels {
		c, ok := counts[l]
		if !ok {
			return nil, fmt.Errorf("no counts for population %s", l)
		}
		if n >= 0 && c.Len() != n {
			return nil, fmt.Errorf("population %s has %d variants, expected %d", l, c.Len(), n)
		}
		n = c.Len()
	}
	return &Table{Labels: slices.Clone(labels), counts: counts}, nil
}

// Get returns the counts of one population label.
func (t *Table) Get(label string) (*Counts, bool) {
	c, ok := t.counts[label]
	return c, ok
}

// Len is the number of variants.
func (t *Table) Len() int {
	if len(t.Labels) == 0 {
		return 0
	}
	return t.counts[t.Labels[0]].Len()
}

// Compress keeps the variants where mask is true, in every population.
func (t *Table) Compress(mask []bool) (*Table, error) {
	out := &Table{Labels: t.Labels, counts: make(map[string]*Counts, len(t.counts))}
	for label, c := range t.counts {
		cc, err := c.Compress(mask)
		if err != nil {
			return nil, fmt.Errorf("population %s: %w", label, err)
		}
		out.counts[label] = cc
	}
	return out, nil
}

// CountSubpops counts alleles 0..maxAllele for every population in subpops,
// where subpops maps a label to the sample columns of g that belong to it.
// g is read once, chunk by chunk.
func CountSubpops(g *store.GenotypeMatrix, labels []string, subpops map[string][]int, maxAllele int) (*Table, error) {
	counts := make(map[string]*Counts, len(labels))
	for _, l := range labels {
		if _, ok := subpops[l]; !ok {
			return nil, fmt.Errorf("no sample columns for population %s", l)
		}
		counts[l] = NewCounts(g.Len(), maxAllele+1)
	}

	err := g.Each(func(b store.Block) error {
		for _, l := range labels {
			counts[l].add(b, subpops[l])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return NewTable(labels, counts)
}
