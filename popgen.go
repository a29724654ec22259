// Package popgen answers range, gene and marker queries against a variant
// store with population-genetic summary statistics.
//
// A query runs in three stages. The filter reduces one chromosome to the
// matching variants in both the unphased and the phased coordinate systems.
// The allele pipeline counts alleles per selected population and keeps the
// segregating variants. Finally the summary engine computes the whole-range
// statistics. Windowed series are computed later, from the persisted working
// set, by stats.Windowed.
package popgen

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/carbocation/popgen/alleles"
	"github.com/carbocation/popgen/filter"
	"github.com/carbocation/popgen/stats"
	"github.com/carbocation/popgen/store"
)

var (
	ErrNotFound              = store.ErrNotFound
	ErrOutOfRange            = store.ErrOutOfRange
	ErrNoMatch               = filter.ErrNoMatch
	ErrNoSegregatingVariants = alleles.ErrNoSegregatingVariants
	ErrInvalidQuery          = stats.ErrInvalidQuery
)

// Store is what Compute reads from; *store.Store satisfies it.
type Store interface {
	filter.Source
	Samples() ([]store.Sample, error)
}

// Result is everything a query produces. Counts and SegregatingPositions
// are the working set later windowed requests are computed from.
type Result struct {
	Summary              *stats.SummaryTable
	Fst                  *stats.FstTable
	Counts               *alleles.Table
	SegregatingPositions []int64
	Variants             []store.Variant
}

type options struct {
	maxAllele int
}

type Option func(*options)

// WithMaxAllele sets the highest allele value counted.
func WithMaxAllele(n int) Option {
	return func(o *options) {
		o.maxAllele = n
	}
}

// AnnotationFields lists the per-population annotation fields carried into
// the variant table for the given populations.
func AnnotationFields(pops []string) []string {
	var out []string
	for _, p := range pops {
		for _, prefix := range []string{"AF", "DAF", "GF_HET", "GF_HOM_REF", "GF_HOM_ALT"} {
			out = append(out, prefix+"_"+p)
		}
	}
	return out
}

// Compute runs q against st. A query that selects nothing returns
// ErrNoMatch; one whose variants are monomorphic in the selected
// populations returns ErrNoSegregatingVariants.
func Compute(st Store, q Query, opts ...Option) (*Result, error) {
	o := &options{maxAllele: alleles.DefaultMaxAllele}
	for _, opt := range opts {
		opt(o)
	}

	if len(q.Populations) == 0 {
		return nil, fmt.Errorf("no populations selected: %w", ErrInvalidQuery)
	}

	criteria := filter.Criteria{
		Chromosome: q.Chromosome,
		Gene:       q.Gene,
		Marker:     q.Marker,
		Fields:     AnnotationFields(q.Populations),
	}
	if q.Start != nil && q.Stop != nil {
		criteria.Range = &filter.Range{Start: *q.Start, Stop: *q.Stop}
	}

	filtered, err := filter.Apply(st, criteria)
	if err != nil {
		return nil, err
	}

	samples, err := st.Samples()
	if err != nil {
		return nil, err
	}

	working, err := alleles.Run(filtered, samples, q.Populations, o.maxAllele)
	if err != nil {
		return nil, err
	}

	summary, fst, err := stats.Summarize(stats.SummaryInput{
		Counts:    working.Table,
		Positions: working.Positions,
		NBases:    working.Span.Len(),
		Phased:    working.Phased,
		Columns:   working.Columns,
	}, q.Statistics, q.Populations)
	if err != nil {
		return nil, err
	}

	variants, err := working.Variants.Records()
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"query":       q.String(),
		"segregating": len(working.Positions),
	}).Info("computed query")

	return &Result{
		Summary:              summary,
		Fst:                  fst,
		Counts:               working.Table,
		SegregatingPositions: working.Positions,
		Variants:             variants,
	}, nil
}

// UserMessage is the text shown for errors a query can legitimately end
// with, or "" for failures that are not the user's.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrNoMatch):
		return ErrNoMatch.Error()
	case errors.Is(err, ErrNoSegregatingVariants):
		return ErrNoSegregatingVariants.Error()
	case errors.Is(err, ErrInvalidQuery), errors.Is(err, ErrNotFound):
		return err.Error()
	}
	return ""
}
