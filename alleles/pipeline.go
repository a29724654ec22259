// Package alleles derives per-population allele counts from a filtered
// genotype matrix and reduces the working set to segregating variants.
package alleles

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/carbocation/popgen/filter"
	"github.com/carbocation/popgen/store"
)

// DefaultMaxAllele is the highest allele value counted unless configured
// otherwise.
const DefaultMaxAllele = 3

// ErrNoSegregatingVariants is returned when the filtered variants are
// monomorphic across the selected populations.
var ErrNoSegregatingVariants = errors.New("No segregating variants for the selected populations.")

// Result is the working set handed to the statistics.
type Result struct {
	// Counts and Positions cover segregating variants only.
	Counts    *Counts
	Table     *Table
	Positions []int64
	Variants  *store.VariantTable

	// Phased is the phased view restricted to the selected samples.
	// Columns maps each population label to its sample columns in both
	// Phased and the sample-selected unphased matrix.
	Phased  *store.GenotypeMatrix
	Columns map[string][]int

	Span filter.Range
}

// Run selects the samples whose super-population is in pops, counts their
// alleles per population and pooled under All, and keeps the variants that
// segregate in the pooled counts.
func Run(filtered *filter.Result, samples []store.Sample, pops []string, maxAllele int) (*Result, error) {
	if len(pops) == 0 {
		return nil, fmt.Errorf("no populations selected")
	}
	if maxAllele < 1 {
		return nil, fmt.Errorf("max allele %d: at least two allele values must be counted", maxAllele)
	}

	selected := make(map[string]bool, len(pops))
	for _, p := range pops {
		selected[p] = true
	}

	mask := make([]bool, len(samples))
	columns := map[string][]int{All: {}}
	for _, p := range pops {
		columns[p] = []int{}
	}
	col := 0
	for i, s := range samples {
		if !selected[s.SuperPopulation] {
			continue
		}
		mask[i] = true
		columns[s.SuperPopulation] = append(columns[s.SuperPopulation], col)
		columns[All] = append(columns[All], col)
		col++
	}

	genotypes, err := filtered.Genotypes.SelectSamples(mask)
	if err != nil {
		return nil, err
	}
	phased, err := filtered.Phased.SelectSamples(mask)
	if err != nil {
		return nil, err
	}

	labels := append(uniq(pops), All)
	table, err := CountSubpops(genotypes, labels, columns, maxAllele)
	if err != nil {
		return nil, err
	}

	pooled, _ := table.Get(All)
	seg := pooled.IsSegregating()

	positions := make([]int64, 0, len(seg))
	for i, ok := range seg {
		if ok {
			positions = append(positions, filtered.Positions[i])
		}
	}

	log.WithFields(log.Fields{
		"populations": pops,
		"samples":     col,
		"variants":    len(seg),
		"segregating": len(positions),
	}).Debug("counted alleles")

	if len(positions) == 0 {
		return nil, ErrNoSegregatingVariants
	}

	table, err = table.Compress(seg)
	if err != nil {
		return nil, err
	}
	variants, err := filtered.Variants.Compress(seg)
	if err != nil {
		return nil, err
	}
	pooled, _ = table.Get(All)

	return &Result{
		Counts:    pooled,
		Table:     table,
		Positions: positions,
		Variants:  variants,
		Phased:    phased,
		Columns:   columns,
		Span:      filtered.Span,
	}, nil
}

func uniq(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
