// Package ingest builds variant stores from VCF or BGEN genotype files and
// a sample panel.
package ingest

import (
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"github.com/carbocation/popgen"
	"github.com/carbocation/popgen/bgen"
	"github.com/carbocation/popgen/store"
)

// DefaultThreshold is the smallest genotype probability turned into a hard
// call when reading BGEN files.
const DefaultThreshold = 0.9

const progressEvery = 100_000

// Options control ingestion.
type Options struct {
	// Name is recorded in the store metadata.
	Name string

	// ChunkSize is the number of variants per genotype record batch.
	ChunkSize int

	// Threshold is the minimum probability for a BGEN hard call.
	Threshold float64

	// Chromosomes restricts ingestion to these chromosomes when set.
	Chromosomes []string
}

func (o Options) threshold() float64 {
	if o.Threshold <= 0 {
		return DefaultThreshold
	}
	return o.Threshold
}

// Summary reports what was written.
type Summary struct {
	Chromosomes int
	Variants    int
	Phased      int
	// Skipped counts records dropped for repeating the previous position.
	Skipped int
}

// writer feeds a store.Builder one chromosome at a time.
type writer struct {
	b    *store.Builder
	keep map[string]bool

	// beforeEnd runs before a chromosome is closed.
	beforeEnd func(chrom string) error

	chrom      string
	lastPos    int64
	lastPhased int64
	sum        Summary
	start      time.Time
}

func newWriter(b *store.Builder, opts Options) *writer {
	w := &writer{b: b, start: time.Now()}
	if len(opts.Chromosomes) > 0 {
		w.keep = make(map[string]bool, len(opts.Chromosomes))
		for _, c := range opts.Chromosomes {
			w.keep[bgen.NormalizeChromosome(c)] = true
		}
	}
	return w
}

func (w *writer) wanted(chrom string) bool {
	return w.keep == nil || w.keep[chrom]
}

// variant adds one record, opening chrom if needed. It reports false when
// the record was skipped.
func (w *writer) variant(chrom string, v store.Variant, calls []int8) (bool, error) {
	if chrom != w.chrom {
		if err := w.end(); err != nil {
			return false, err
		}
		if err := w.b.Begin(chrom); err != nil {
			return false, err
		}
		w.chrom = chrom
		w.lastPos, w.lastPhased = -1, -1
	}

	if v.Position <= w.lastPos {
		w.sum.Skipped++
		log.WithFields(log.Fields{
			"chromosome": chrom,
			"position":   v.Position,
		}).Debug("skipping repeated position")
		return false, nil
	}

	if err := w.b.AddVariant(v, calls); err != nil {
		return false, err
	}
	w.lastPos = v.Position
	w.sum.Variants++

	if w.sum.Variants%progressEvery == 0 {
		log.WithFields(log.Fields{
			"chromosome": chrom,
			"variants":   humanize.Comma(int64(w.sum.Variants)),
			"elapsed":    time.Since(w.start).Round(time.Second),
		}).Info("ingesting")
	}
	return true, nil
}

func (w *writer) phased(pos int64, calls []int8) error {
	if pos <= w.lastPhased {
		return nil
	}
	if err := w.b.AddPhased(pos, calls); err != nil {
		return err
	}
	w.lastPhased = pos
	w.sum.Phased++
	return nil
}

func (w *writer) end() error {
	if w.chrom == "" {
		return nil
	}
	if w.beforeEnd != nil {
		if err := w.beforeEnd(w.chrom); err != nil {
			return err
		}
	}
	if err := w.b.End(); err != nil {
		return err
	}
	w.sum.Chromosomes++
	w.chrom = ""
	return nil
}

func (w *writer) finish() (*Summary, error) {
	if err := w.end(); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"chromosomes": w.sum.Chromosomes,
		"variants":    humanize.Comma(int64(w.sum.Variants)),
		"phased":      humanize.Comma(int64(w.sum.Phased)),
		"skipped":     w.sum.Skipped,
		"elapsed":     time.Since(w.start).Round(time.Millisecond),
	}).Info("ingestion complete")

	sum := w.sum
	return &sum, nil
}

func create(dir, source string, samples []store.Sample, opts Options) (*store.Builder, error) {
	return store.Create(dir, store.Metadata{
		Name:      opts.Name,
		Source:    source,
		ChunkSize: opts.ChunkSize,
	}, samples)
}

// annotationFields are the per-population fields kept from the input for
// the super-populations of samples.
func annotationFields(samples []store.Sample) []string {
	var pops []string
	seen := make(map[string]bool)
	for _, s := range samples {
		if !seen[s.SuperPopulation] {
			seen[s.SuperPopulation] = true
			pops = append(pops, s.SuperPopulation)
		}
	}
	return popgen.AnnotationFields(pops)
}
