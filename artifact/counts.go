package artifact

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/carbocation/pfx"

	"github.com/carbocation/popgen/alleles"
)

// countsBatch is the number of variants per record batch of ac_seg.arrow.
const countsBatch = 8192

// writeCounts stores one int32 column per population and allele value,
// named <population>_<allele>. The schema metadata lists the populations in
// order and the number of allele values.
func writeCounts(path string, t *alleles.Table) error {
	pool := memory.NewGoAllocator()

	nAlleles := 0
	var fields []arrow.Field
	var cols []*alleles.Counts
	for _, label := range t.Labels {
		c, _ := t.Get(label)
		nAlleles = c.NAlleles
		cols = append(cols, c)
		for a := 0; a < c.NAlleles; a++ {
			fields = append(fields, arrow.Field{Name: label + "_" + strconv.Itoa(a), Type: arrow.PrimitiveTypes.Int32})
		}
	}

	md := arrow.NewMetadata(
		[]string{"populations", "n_alleles"},
		[]string{strings.Join(t.Labels, ","), strconv.Itoa(nAlleles)},
	)
	schema := arrow.NewSchema(fields, &md)

	f, err := os.Create(path)
	if err != nil {
		return pfx.Err(err)
	}
	defer f.Close()

	w, err := ipc.NewFileWriter(f, ipc.WithSchema(schema), ipc.WithAllocator(pool), ipc.WithZstd())
	if err != nil {
		return pfx.Err(err)
	}

	b := array.NewRecordBuilder(pool, schema)
	defer b.Release()

	n := t.Len()
	for lo := 0; lo < n; lo += countsBatch {
		hi := lo + countsBatch
		if hi > n {
			hi = n
		}

		field := 0
		for _, c := range cols {
			for a := 0; a < c.NAlleles; a++ {
				fb := b.Field(field).(*array.Int32Builder)
				for i := lo; i < hi; i++ {
					fb.Append(c.Row(i)[a])
				}
				field++
			}
		}

		rec := b.NewRecord()
		err := w.Write(rec)
		rec.Release()
		if err != nil {
			return pfx.Err(err)
		}
	}

	if err := w.Close(); err != nil {
		return pfx.Err(err)
	}
	if err := f.Close(); err != nil {
		return pfx.Err(err)
	}
	return nil
}

func readCounts(path string) (*alleles.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer f.Close()

	r, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer r.Close()

	md := r.Schema().Metadata()
	popIdx, allIdx := md.FindKey("populations"), md.FindKey("n_alleles")
	if popIdx < 0 || allIdx < 0 {
		return nil, fmt.Errorf("%s lacks population metadata", path)
	}
	labels := strings.Split(md.Values()[popIdx], ",")
	nAlleles, err := strconv.Atoi(md.Values()[allIdx])
	if err != nil {
		return nil, pfx.Err(err)
	}
	if got, want := r.Schema().NumFields(), len(labels)*nAlleles; got != want {
		return nil, fmt.Errorf("%s has %d columns, expected %d", path, got, want)
	}

	rows := make(map[string][][]int32, len(labels))
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			return nil, pfx.Err(err)
		}

		nRows := int(rec.NumRows())
		for p, label := range labels {
			base := len(rows[label])
			for k := 0; k < nRows; k++ {
				rows[label] = append(rows[label], make([]int32, nAlleles))
			}
			for a := 0; a < nAlleles; a++ {
				col, ok := rec.Column(p*nAlleles + a).(*array.Int32)
				if !ok {
					return nil, fmt.Errorf("%s: column %s is not int32", path, rec.ColumnName(p*nAlleles+a))
				}
				for k, v := range col.Int32Values() {
					rows[label][base+k][a] = v
				}
			}
		}
	}

	counts := make(map[string]*alleles.Counts, len(labels))
	for _, label := range labels {
		c, err := alleles.FromRows(rows[label])
		if err != nil {
			return nil, err
		}
		if c.Len() == 0 {
			c = alleles.NewCounts(0, nAlleles)
		}
		counts[label] = c
	}

	return alleles.NewTable(labels, counts)
}
