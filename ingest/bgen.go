package ingest

import (
	"fmt"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/carbocation/popgen/bgen"
	"github.com/carbocation/popgen/store"
)

const decodeBatch = 1024

// BGENInput names the files of a BGEN ingestion.
type BGENInput struct {
	Path string

	// IndexPath is an optional .bgi index. With it, variant blocks are read
	// chromosome by chromosome in position order and decoded in parallel.
	IndexPath string

	// PhasedPath is an optional second BGEN file holding phased haplotypes
	// of the same samples, with its chromosomes in the same order. Without
	// it, phased variants of the main file enter the phased coordinate
	// system.
	PhasedPath string
}

// FromBGEN builds a store in dir from BGEN v1.2 files. Genotype
// probabilities become hard calls at opts.Threshold.
func FromBGEN(dir string, in BGENInput, panel []store.Sample, opts Options) (*Summary, error) {
	b, err := bgen.Open(in.Path)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	ids, err := sampleIDs(b, panel)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", in.Path, err)
	}
	samples, cols, err := matchSamples(ids, panel)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", in.Path, err)
	}
	log.WithFields(log.Fields{
		"path":        in.Path,
		"samples":     len(samples),
		"in_file":     len(ids),
		"layout":      b.FlagLayout,
		"compression": b.FlagCompression,
	}).Info("matched BGEN samples to the panel")

	var phased *phasedSource
	if in.PhasedPath != "" {
		if phased, err = openPhased(in.PhasedPath, samples, panel, opts.threshold()); err != nil {
			return nil, err
		}
		defer phased.Close()
	}

	builder, err := create(dir, in.Path, samples, opts)
	if err != nil {
		return nil, err
	}
	defer builder.Close()

	w := newWriter(builder, opts)
	if phased != nil {
		w.beforeEnd = func(chrom string) error {
			return phased.each(chrom, w.phased)
		}
	}

	add := func(d decoded) error {
		added, err := w.variant(d.chrom, d.variant, d.calls)
		if err != nil {
			return err
		}
		if added && phased == nil && d.phased {
			return w.phased(d.variant.Position, d.calls)
		}
		return nil
	}

	conv := converter{cols: cols, threshold: opts.threshold()}
	if in.IndexPath != "" {
		err = readIndexed(b, in.IndexPath, w, conv, add)
	} else {
		err = readSequential(b, w, conv, add)
	}
	if err != nil {
		return nil, err
	}

	sum, err := w.finish()
	if err != nil {
		return nil, err
	}
	if phased != nil {
		phased.warnLeftover()
	}
	if err := builder.Close(); err != nil {
		return nil, err
	}
	return sum, nil
}

// sampleIDs falls back to the panel order for files without sample IDs,
// which then must list exactly the panel's samples.
func sampleIDs(b *bgen.BGEN, panel []store.Sample) ([]string, error) {
	if b.FlagHasSampleIDs == 0 {
		if int(b.NSamples) != len(panel) {
			return nil, fmt.Errorf("the file has no sample IDs and %d samples, but the panel lists %d", b.NSamples, len(panel))
		}
		ids := make([]string, len(panel))
		for i, s := range panel {
			ids[i] = s.ID
		}
		return ids, nil
	}

	return bgen.ReadSamples(b)
}

type decoded struct {
	chrom   string
	variant store.Variant
	calls   []int8
	phased  bool
}

type converter struct {
	cols      []int
	threshold float64
}

func (c converter) convert(v *bgen.Variant) (decoded, error) {
	calls, err := v.Probabilities.HardCalls(c.threshold)
	if err != nil {
		return decoded{}, fmt.Errorf("variant %s at %s:%d: %w", v.ID, v.Chromosome, v.Position, err)
	}

	d := decoded{
		chrom: bgen.NormalizeChromosome(v.Chromosome),
		variant: store.Variant{
			Position: int64(v.Position),
			RSID:     v.RSID,
		},
		calls:  remap(calls, c.cols, nil),
		phased: v.Probabilities.Phased,
	}
	if d.variant.RSID == "" || d.variant.RSID == "." {
		d.variant.RSID = v.ID
	}
	if len(v.Alleles) > 0 {
		d.variant.Ref = v.Alleles[0].String()
		alts := make([]string, 0, len(v.Alleles)-1)
		for _, a := range v.Alleles[1:] {
			alts = append(alts, a.String())
		}
		d.variant.Alt = strings.Join(alts, ",")
	}
	return d, nil
}

func readSequential(b *bgen.BGEN, w *writer, conv converter, add func(decoded) error) error {
	vr := b.NewVariantReader()
	for v := vr.Read(); v != nil; v = vr.Read() {
		if !w.wanted(bgen.NormalizeChromosome(v.Chromosome)) {
			continue
		}
		d, err := conv.convert(v)
		if err != nil {
			return err
		}
		if err := add(d); err != nil {
			return err
		}
	}
	return vr.Error()
}

// readIndexed decodes the blocks listed in the index in batches, each batch
// spread over one VariantReader per worker, and adds them in order.
func readIndexed(b *bgen.BGEN, indexPath string, w *writer, conv converter, add func(decoded) error) error {
	bgi, err := bgen.OpenBGI(indexPath)
	if err != nil {
		return err
	}
	defer bgi.Close()

	chroms, err := bgi.Chromosomes()
	if err != nil {
		return err
	}

	workers := runtime.NumCPU()
	readers := make([]*bgen.VariantReader, workers)
	for i := range readers {
		readers[i] = b.NewVariantReader()
	}

	seen := make(map[string]bool)
	for _, chrom := range chroms {
		name := bgen.NormalizeChromosome(chrom)
		if seen[name] || !w.wanted(name) {
			continue
		}
		seen[name] = true

		rows, err := bgi.Variants(name)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"chromosome": name,
			"variants":   len(rows),
		}).Debug("reading indexed chromosome")

		out := make([]decoded, decodeBatch)
		for lo := 0; lo < len(rows); lo += decodeBatch {
			batch := rows[lo:]
			if len(batch) > decodeBatch {
				batch = batch[:decodeBatch]
			}

			var g errgroup.Group
			for k := 0; k < workers; k++ {
				k := k
				g.Go(func() error {
					for i := k; i < len(batch); i += workers {
						v, err := readers[k].ReadAt(int64(batch[i].FileStartPosition))
						if err != nil {
							return err
						}
						if out[i], err = conv.convert(v); err != nil {
							return err
						}
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			for i := range batch {
				if err := add(out[i]); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

// phasedSource walks a phased BGEN file alongside the main one.
type phasedSource struct {
	b       *bgen.BGEN
	vr      *bgen.VariantReader
	conv    converter
	pending *bgen.Variant
}

func openPhased(path string, samples, panel []store.Sample, threshold float64) (*phasedSource, error) {
	b, err := bgen.Open(path)
	if err != nil {
		return nil, err
	}
	ids, err := sampleIDs(b, panel)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cols, err := columnsFor(ids, samples)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &phasedSource{
		b:    b,
		vr:   b.NewVariantReader(),
		conv: converter{cols: cols, threshold: threshold},
	}, nil
}

// each hands fn the phased variants of chrom, which must be the next
// chromosome of the phased file if it has one.
func (p *phasedSource) each(chrom string, fn func(pos int64, calls []int8) error) error {
	for {
		if p.pending == nil {
			if p.pending = p.vr.Read(); p.pending == nil {
				return p.vr.Error()
			}
		}
		if bgen.NormalizeChromosome(p.pending.Chromosome) != chrom {
			return nil
		}

		v := p.pending
		p.pending = nil
		if !v.Probabilities.Phased {
			return fmt.Errorf("%s: variant %s at %s:%d is not phased", p.b.FilePath, v.ID, v.Chromosome, v.Position)
		}
		d, err := p.conv.convert(v)
		if err != nil {
			return err
		}
		if err := fn(d.variant.Position, d.calls); err != nil {
			return err
		}
	}
}

func (p *phasedSource) warnLeftover() {
	if p.pending == nil && p.vr.VariantsSeen >= p.b.NVariants {
		return
	}
	log.WithFields(log.Fields{
		"path":  p.b.FilePath,
		"read":  p.vr.VariantsSeen,
		"total": p.b.NVariants,
	}).Warn("phased variants on chromosomes absent from the main file were not ingested")
}

func (p *phasedSource) Close() error {
	return p.b.Close()
}
