package store

import (
	"fmt"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/carbocation/pfx"
)

// Missing is the allele call stored for absent genotypes.
const Missing int8 = -1

// GenotypeMatrix is a lazy variants × samples × 2 view over one chunked
// Arrow genotype file. Slice, Compress and SelectSamples return new views
// that share the backing file; Each reads only the record batches that the
// view's rows fall into.
type GenotypeMatrix struct {
	path      string
	chunkSize int
	nSamples  int
	rows      Selection
	cols      []int
}

// Block holds the calls of consecutive view rows that share one backing
// chunk. Calls is row-major: (row*Samples+sample)*2+allele. A Block is only
// valid for the duration of the callback it is passed to.
type Block struct {
	Offset  int
	Rows    int
	Samples int
	Calls   []int8
}

func (b Block) Call(row, sample, allele int) int8 {
	return b.Calls[(row*b.Samples+sample)*2+allele]
}

// Len is the number of variants in the view.
func (g *GenotypeMatrix) Len() int {
	return g.rows.Len()
}

// NumSamples is the number of sample columns in the view.
func (g *GenotypeMatrix) NumSamples() int {
	if g.cols != nil {
		return len(g.cols)
	}
	return g.nSamples
}

// Slice restricts the variant axis to view rows [start, stop).
func (g *GenotypeMatrix) Slice(start, stop int) (*GenotypeMatrix, error) {
	rows, err := g.rows.Slice(start, stop)
	if err != nil {
		return nil, err
	}
	return g.with(rows, g.cols), nil
}

// Compress keeps the variants where mask is true.
func (g *GenotypeMatrix) Compress(mask []bool) (*GenotypeMatrix, error) {
	rows, err := g.rows.Compress(mask)
	if err != nil {
		return nil, err
	}
	return g.with(rows, g.cols), nil
}

// SelectSamples keeps the sample columns where mask is true. The variant
// axis is untouched.
func (g *GenotypeMatrix) SelectSamples(mask []bool) (*GenotypeMatrix, error) {
	if len(mask) != g.NumSamples() {
		return nil, fmt.Errorf("sample mask of length %d applied to %d samples: %w", len(mask), g.NumSamples(), ErrOutOfRange)
	}

	cols := make([]int, 0, countTrue(mask))
	for i, keep := range mask {
		if keep {
			cols = append(cols, g.column(i))
		}
	}
	return g.with(g.rows, cols), nil
}

// Empty returns a view with the same columns and no variants.
func (g *GenotypeMatrix) Empty() *GenotypeMatrix {
	return g.with(Selection{}, g.cols)
}

func (g *GenotypeMatrix) with(rows Selection, cols []int) *GenotypeMatrix {
	return &GenotypeMatrix{
		path:      g.path,
		chunkSize: g.chunkSize,
		nSamples:  g.nSamples,
		rows:      rows,
		cols:      cols,
	}
}

func (g *GenotypeMatrix) column(i int) int {
	if g.cols != nil {
		return g.cols[i]
	}
	return i
}

// Chunks lists the backing chunk numbers the view touches, ascending.
func (g *GenotypeMatrix) Chunks() []int {
	var out []int
	for i := 0; i < g.Len(); i++ {
		c := g.rows.At(i) / g.chunkSize
		if len(out) == 0 || out[len(out)-1] != c {
			out = append(out, c)
		}
	}
	return out
}

// Each streams the view one backing chunk at a time. Every call opens its
// own reader, so concurrent passes over the same file do not contend.
func (g *GenotypeMatrix) Each(fn func(Block) error) error {
	n := g.Len()
	if n == 0 {
		return nil
	}

	f, err := os.Open(g.path)
	if err != nil {
		return pfx.Err(err)
	}
	defer f.Close()

	r, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return pfx.Err(err)
	}
	defer r.Close()

	if got, want := r.Schema().NumFields(), 2*g.nSamples; got != want {
		return pfx.Err(fmt.Errorf("%s has %d genotype columns, expected %d", g.path, got, want))
	}

	nSamples := g.NumSamples()
	block := Block{Samples: nSamples}

	for i := 0; i < n; {
		chunk := g.rows.At(i) / g.chunkSize
		j := i + 1
		for j < n && g.rows.At(j)/g.chunkSize == chunk {
			j++
		}

		if chunk >= r.NumRecords() {
			return pfx.Err(fmt.Errorf("%s: chunk %d requested, file holds %d: %w", g.path, chunk, r.NumRecords(), ErrOutOfRange))
		}

		rec, err := r.Record(chunk)
		if err != nil {
			return pfx.Err(err)
		}

		need := 2 * (j - i) * nSamples
		if cap(block.Calls) < need {
			block.Calls = make([]int8, need)
		}
		block.Calls = block.Calls[:need]
		block.Offset = i
		block.Rows = j - i

		if err := g.fill(&block, rec, chunk*g.chunkSize, i, j); err != nil {
			return err
		}

		if err := fn(block); err != nil {
			return err
		}

		i = j
	}

	return nil
}

func (g *GenotypeMatrix) fill(block *Block, rec arrow.Record, base, from, to int) error {
	nRows := int(rec.NumRows())

	for s := 0; s < block.Samples; s++ {
		c := g.column(s)
		for allele := 0; allele < 2; allele++ {
			arr, ok := rec.Column(2*c + allele).(*array.Int8)
			if !ok {
				return pfx.Err(fmt.Errorf("%s: column %d is %s, expected int8", g.path, 2*c+allele, rec.Column(2*c+allele).DataType()))
			}
			values := arr.Int8Values()

			for k := from; k < to; k++ {
				local := g.rows.At(k) - base
				if local >= nRows {
					return pfx.Err(fmt.Errorf("%s: row %d beyond chunk of %d rows: %w", g.path, local, nRows, ErrOutOfRange))
				}
				block.Calls[((k-from)*block.Samples+s)*2+allele] = values[local]
			}
		}
	}

	return nil
}
