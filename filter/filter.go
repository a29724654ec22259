// Package filter reduces a chromosome of a variant store to the variants a
// query asks for. Range, gene and marker predicates are applied in that
// order, each to the output of the previous one. The unphased and phased
// coordinate systems are reduced separately: phased bounds are always
// re-derived from the genomic span of the unphased result, never from
// unphased indexes.
package filter

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/carbocation/popgen/store"
)

// ErrNoMatch is returned when a predicate selects no variants.
var ErrNoMatch = errors.New("Query returned no matching SNPs.")

// Source is the part of a store the filter reads.
type Source interface {
	Positions(chrom string, kind store.Kind) ([]int64, error)
	Variants(chrom string, fields ...string) (*store.VariantTable, error)
	Genotypes(chrom string, kind store.Kind) (*store.GenotypeMatrix, error)
}

// Range is an inclusive genomic interval.
type Range struct {
	Start int64
	Stop  int64
}

// Len is the number of bases covered.
func (r Range) Len() int64 {
	return r.Stop - r.Start + 1
}

func (r Range) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.Stop)
}

// Criteria selects variants on one chromosome. Empty Gene and Marker and a
// nil Range are not applied. Fields names the annotation fields that the
// resulting variant table carries.
type Criteria struct {
	Chromosome string
	Range      *Range
	Gene       string
	Marker     string
	Fields     []string
}

// Result holds the reduced views. Variants, Genotypes and Positions are
// aligned with each other, as are Phased and PhasedPositions; the two
// groups generally differ in length.
type Result struct {
	Variants        *store.VariantTable
	Genotypes       *store.GenotypeMatrix
	Positions       []int64
	Phased          *store.GenotypeMatrix
	PhasedPositions []int64

	// Span is the genomic interval the statistics are normalized by: the
	// requested range when only a range was given, otherwise the first and
	// last surviving positions.
	Span Range
}

// Apply runs the criteria against src.
func Apply(src Source, c Criteria) (*Result, error) {
	chrom := c.Chromosome

	pos, err := src.Positions(chrom, store.Unphased)
	if err != nil {
		return nil, err
	}
	phPos, err := src.Positions(chrom, store.Phased)
	if err != nil {
		return nil, err
	}
	variants, err := src.Variants(chrom, c.Fields...)
	if err != nil {
		return nil, err
	}
	genotypes, err := src.Genotypes(chrom, store.Unphased)
	if err != nil {
		return nil, err
	}
	phased, err := src.Genotypes(chrom, store.Phased)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Variants:        variants,
		Genotypes:       genotypes,
		Positions:       pos,
		Phased:          phased,
		PhasedPositions: phPos,
	}

	if c.Range != nil {
		if err := res.byRange(*c.Range); err != nil {
			return nil, fmt.Errorf("chromosome %s range %s: %w", chrom, c.Range, err)
		}
		res.Span = *c.Range
	} else if span, ok := PositionIndex(res.Positions).Span(); ok {
		res.Span = span
	}

	if c.Gene != "" {
		if err := res.byAnnotation("gene", c.Gene); err != nil {
			return nil, fmt.Errorf("gene %s: %w", c.Gene, err)
		}
		if err := res.rephase(); err != nil {
			return nil, err
		}
	}

	if c.Marker != "" {
		if err := res.byAnnotation("rsid", c.Marker); err != nil {
			return nil, fmt.Errorf("marker %s: %w", c.Marker, err)
		}
		if err := res.matchPhased(); err != nil {
			return nil, err
		}
	}

	if len(res.Positions) == 0 {
		return nil, fmt.Errorf("chromosome %s: %w", chrom, ErrNoMatch)
	}

	if c.Gene != "" || c.Marker != "" {
		res.Span, _ = PositionIndex(res.Positions).Span()
	}

	log.WithFields(log.Fields{
		"chromosome": chrom,
		"variants":   len(res.Positions),
		"phased":     len(res.PhasedPositions),
		"span":       res.Span.String(),
	}).Debug("filtered variants")

	return res, nil
}

// byRange slices both coordinate systems to [r.Start, r.Stop]. An empty
// unphased selection is ErrNoMatch; an empty phased selection is not.
func (res *Result) byRange(r Range) error {
	lo, hi := PositionIndex(res.Positions).RangeToIndex(r.Start, r.Stop)
	if lo == hi {
		return ErrNoMatch
	}
	if err := res.sliceUnphased(lo, hi); err != nil {
		return err
	}

	return res.slicePhased(r)
}

// rephase re-ranges the phased system against the unphased span.
func (res *Result) rephase() error {
	span, ok := PositionIndex(res.Positions).Span()
	if !ok {
		return ErrNoMatch
	}
	return res.slicePhased(span)
}

// matchPhased keeps the phased variants whose positions equal one of the
// surviving unphased positions. None matching leaves the phased view empty.
func (res *Result) matchPhased() error {
	idx := PositionIndex(res.PhasedPositions)
	mask := make([]bool, len(idx))
	kept := make([]int64, 0, len(res.Positions))
	for _, p := range res.Positions {
		if i, ok := idx.Lookup(p); ok {
			mask[i] = true
			kept = append(kept, p)
		}
	}

	phased, err := res.Phased.Compress(mask)
	if err != nil {
		return err
	}
	res.Phased = phased
	res.PhasedPositions = kept
	return nil
}

func (res *Result) sliceUnphased(lo, hi int) error {
	variants, err := res.Variants.Slice(lo, hi)
	if err != nil {
		return err
	}
	genotypes, err := res.Genotypes.Slice(lo, hi)
	if err != nil {
		return err
	}

	res.Variants = variants
	res.Genotypes = genotypes
	res.Positions = res.Positions[lo:hi:hi]
	return nil
}

func (res *Result) slicePhased(r Range) error {
	lo, hi := PositionIndex(res.PhasedPositions).RangeToIndex(r.Start, r.Stop)
	phased, err := res.Phased.Slice(lo, hi)
	if err != nil {
		return err
	}

	res.Phased = phased
	res.PhasedPositions = res.PhasedPositions[lo:hi:hi]
	return nil
}

// byAnnotation compresses the unphased system to the variants whose text
// column field equals value.
func (res *Result) byAnnotation(field, value string) error {
	values, err := res.Variants.Strings(field)
	if err != nil {
		return err
	}

	mask := make([]bool, len(values))
	kept := make([]int64, 0)
	for i, v := range values {
		if v == value {
			mask[i] = true
			kept = append(kept, res.Positions[i])
		}
	}
	if len(kept) == 0 {
		return ErrNoMatch
	}

	variants, err := res.Variants.Compress(mask)
	if err != nil {
		return err
	}
	genotypes, err := res.Genotypes.Compress(mask)
	if err != nil {
		return err
	}

	res.Variants = variants
	res.Genotypes = genotypes
	res.Positions = kept
	return nil
}
