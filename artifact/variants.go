package artifact

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/carbocation/pfx"
	"github.com/klauspost/compress/zstd"

	"github.com/carbocation/popgen/store"
)

var variantColumns = []string{"chromosome", "position", "ref", "alt", "gene", "rsid"}

// writeVariants writes the records as zstd-compressed TSV. Annotation
// fields follow the fixed columns, sorted by name.
func writeVariants(path string, variants []store.Variant) error {
	fieldSet := make(map[string]struct{})
	for _, v := range variants {
		for k := range v.Annotations {
			fieldSet[k] = struct{}{}
		}
	}
	fields := make([]string, 0, len(fieldSet))
	for k := range fieldSet {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	f, err := os.Create(path)
	if err != nil {
		return pfx.Err(err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return pfx.Err(err)
	}

	w := csv.NewWriter(zw)
	w.Comma = '\t'

	if err := w.Write(append(append([]string(nil), variantColumns...), fields...)); err != nil {
		return pfx.Err(err)
	}

	rec := make([]string, len(variantColumns)+len(fields))
	for _, v := range variants {
		rec[0] = v.Chromosome
		rec[1] = strconv.FormatInt(v.Position, 10)
		rec[2] = v.Ref
		rec[3] = v.Alt
		rec[4] = v.Gene
		rec[5] = v.RSID
		for i, k := range fields {
			val, ok := v.Annotations[k]
			if !ok {
				rec[len(variantColumns)+i] = ""
				continue
			}
			rec[len(variantColumns)+i] = strconv.FormatFloat(val, 'g', -1, 64)
		}
		if err := w.Write(rec); err != nil {
			return pfx.Err(err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return pfx.Err(err)
	}
	if err := zw.Close(); err != nil {
		return pfx.Err(err)
	}
	if err := f.Close(); err != nil {
		return pfx.Err(err)
	}
	return nil
}

// Variants reads back the variant records saved under id.
func (d Dir) Variants(id string) ([]store.Variant, error) {
	dir, err := d.path(id)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(dir, VariantsFile))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("query %s: %w", id, ErrNotFound)
	} else if err != nil {
		return nil, pfx.Err(err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer zr.Close()

	r := csv.NewReader(zr)
	r.Comma = '\t'
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return nil, pfx.Err(err)
	}
	if len(header) < len(variantColumns) {
		return nil, fmt.Errorf("%s: header has %d columns", VariantsFile, len(header))
	}
	fields := append([]string(nil), header[len(variantColumns):]...)

	var out []store.Variant
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, pfx.Err(err)
		}

		pos, err := strconv.ParseInt(rec[1], 10, 64)
		if err != nil {
			return nil, pfx.Err(err)
		}
		v := store.Variant{
			Chromosome: rec[0],
			Index:      len(out),
			Position:   pos,
			Ref:        rec[2],
			Alt:        rec[3],
			Gene:       rec[4],
			RSID:       rec[5],
		}
		if len(fields) > 0 {
			v.Annotations = make(map[string]float64, len(fields))
			for i, k := range fields {
				s := rec[len(variantColumns)+i]
				if s == "" {
					continue
				}
				val, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return nil, pfx.Err(err)
				}
				v.Annotations[k] = val
			}
		}
		out = append(out, v)
	}

	return out, nil
}
