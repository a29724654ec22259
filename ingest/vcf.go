package ingest

import (
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/carbocation/popgen/bgen"
	"github.com/carbocation/popgen/store"
	"github.com/carbocation/popgen/vcf"
)

// GeneField is the INFO key holding the gene symbol.
const GeneField = "GENE"

// FromVCF builds a store in dir from the VCF at path. Records must be
// grouped by chromosome and sorted by position. Records whose calls are all
// phased also enter the phased coordinate system. ID becomes the rsid,
// GENE the gene, and the per-population frequency INFO fields the
// annotations.
func FromVCF(dir, path string, panel []store.Sample, opts Options) (*Summary, error) {
	vf, err := vcf.Open(path)
	if err != nil {
		return nil, err
	}
	defer vf.Close()

	samples, cols, err := matchSamples(vf.Header.Samples, panel)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.WithFields(log.Fields{
		"path":    path,
		"samples": len(samples),
		"in_file": len(vf.Header.Samples),
	}).Info("matched VCF samples to the panel")

	b, err := create(dir, path, samples, opts)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	fields := annotationFields(samples)
	w := newWriter(b, opts)
	calls := make([]int8, 0, 2*len(samples))

	for {
		rec, err := vf.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}

		chrom := bgen.NormalizeChromosome(rec.Chromosome)
		if !w.wanted(chrom) {
			continue
		}

		v := store.Variant{
			Position: rec.Position,
			Ref:      rec.Ref,
			Alt:      strings.Join(rec.Alt, ","),
			Gene:     rec.Info[GeneField],
		}
		if rec.ID != "." {
			v.RSID = rec.ID
		}
		for _, field := range fields {
			if val, ok := rec.InfoFloat(field); ok {
				if v.Annotations == nil {
					v.Annotations = make(map[string]float64)
				}
				v.Annotations[field] = val
			}
		}

		calls = remap(rec.Calls, cols, calls)
		added, err := w.variant(chrom, v, calls)
		if err != nil {
			return nil, err
		}
		if added && rec.Phased {
			if err := w.phased(rec.Position, calls); err != nil {
				return nil, err
			}
		}
	}

	sum, err := w.finish()
	if err != nil {
		return nil, err
	}
	if err := b.Close(); err != nil {
		return nil, err
	}
	return sum, nil
}
