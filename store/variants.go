package store

import (
	"fmt"

	"github.com/carbocation/pfx"
	"github.com/jmoiron/sqlx"
)

const (
	// Selected rows that are not part of a run at least this long are
	// fetched by explicit idx lists instead of by range.
	minRangeRun = 8

	// Upper bound on the number of idx values bound in a single IN clause.
	inBatch = 500
)

var stringColumns = map[string]string{
	"chromosome": "chromosome",
	"ref":        "ref",
	"alt":        "alt",
	"gene":       "gene",
	"rsid":       "rsid",
}

// VariantTable is a lazy view over the variant records of one chromosome.
// Nothing is read from the catalog until Records, Strings or Positions is
// called, and then only the selected rows.
type VariantTable struct {
	db     *sqlx.DB
	chrom  string
	fields []string
	rows   Selection
}

func (t *VariantTable) Len() int {
	return t.rows.Len()
}

func (t *VariantTable) Chromosome() string {
	return t.chrom
}

// Fields lists the annotation fields this table carries.
func (t *VariantTable) Fields() []string {
	return t.fields
}

func (t *VariantTable) Slice(start, stop int) (*VariantTable, error) {
	rows, err := t.rows.Slice(start, stop)
	if err != nil {
		return nil, err
	}
	return t.with(rows), nil
}

func (t *VariantTable) Compress(mask []bool) (*VariantTable, error) {
	rows, err := t.rows.Compress(mask)
	if err != nil {
		return nil, err
	}
	return t.with(rows), nil
}

func (t *VariantTable) with(rows Selection) *VariantTable {
	return &VariantTable{
		db:     t.db,
		chrom:  t.chrom,
		fields: t.fields,
		rows:   rows,
	}
}

// Records materializes the selected variants, in order.
func (t *VariantTable) Records() ([]Variant, error) {
	out := make([]Variant, 0, t.Len())

	err := t.batches(func(where string, args []interface{}) error {
		var batch []Variant
		query := "SELECT chromosome, idx, position, ref, alt, gene, rsid FROM Variant WHERE chromosome=? AND " + where + " ORDER BY idx"
		if err := t.db.Select(&batch, t.db.Rebind(query), append([]interface{}{t.chrom}, args...)...); err != nil {
			return pfx.Err(err)
		}

		if len(t.fields) > 0 {
			if err := t.annotate(batch, where, args); err != nil {
				return err
			}
		}

		out = append(out, batch...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(out) != t.Len() {
		return nil, pfx.Err(fmt.Errorf("catalog returned %d variants for %d selected rows on chromosome %s", len(out), t.Len(), t.chrom))
	}

	return out, nil
}

func (t *VariantTable) annotate(batch []Variant, where string, args []interface{}) error {
	byIdx := make(map[int]*Variant, len(batch))
	for i := range batch {
		batch[i].Annotations = make(map[string]float64, len(t.fields))
		byIdx[batch[i].Index] = &batch[i]
	}

	query, qargs, err := sqlx.In(
		"SELECT idx, field, value FROM Annotation WHERE chromosome=? AND "+where+" AND field IN (?)",
		append(append([]interface{}{t.chrom}, args...), t.fields)...,
	)
	if err != nil {
		return pfx.Err(err)
	}

	rows, err := t.db.Queryx(t.db.Rebind(query), qargs...)
	if err != nil {
		return pfx.Err(err)
	}
	defer rows.Close()

	var (
		idx   int
		field string
		value float64
	)
	for rows.Next() {
		if err := rows.Scan(&idx, &field, &value); err != nil {
			return pfx.Err(err)
		}
		if v, ok := byIdx[idx]; ok {
			v.Annotations[field] = value
		}
	}

	if err := rows.Err(); err != nil {
		return pfx.Err(err)
	}
	return nil
}

// Strings reads one text column ("gene", "rsid", "ref", "alt" or
// "chromosome") for the selected rows.
func (t *VariantTable) Strings(field string) ([]string, error) {
	col, ok := stringColumns[field]
	if !ok {
		return nil, pfx.Err(fmt.Errorf("%q is not a text column of the variant table", field))
	}

	out := make([]string, 0, t.Len())
	err := t.batches(func(where string, args []interface{}) error {
		var batch []string
		query := "SELECT " + col + " FROM Variant WHERE chromosome=? AND " + where + " ORDER BY idx"
		if err := t.db.Select(&batch, t.db.Rebind(query), append([]interface{}{t.chrom}, args...)...); err != nil {
			return pfx.Err(err)
		}
		out = append(out, batch...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(out) != t.Len() {
		return nil, pfx.Err(fmt.Errorf("catalog returned %d %s values for %d selected rows", len(out), field, t.Len()))
	}

	return out, nil
}

// Positions re-derives the position array of the selected rows from the
// catalog.
func (t *VariantTable) Positions() ([]int64, error) {
	out := make([]int64, 0, t.Len())
	err := t.batches(func(where string, args []interface{}) error {
		var batch []int64
		query := "SELECT position FROM Variant WHERE chromosome=? AND " + where + " ORDER BY idx"
		if err := t.db.Select(&batch, t.db.Rebind(query), append([]interface{}{t.chrom}, args...)...); err != nil {
			return pfx.Err(err)
		}
		out = append(out, batch...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// batches calls fn with a WHERE fragment (and its arguments) for successive
// groups of selected rows, in ascending idx order. Long runs are fetched by
// range, scattered rows by bounded idx lists.
func (t *VariantTable) batches(fn func(where string, args []interface{}) error) error {
	pending := make([]int, 0, inBatch)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		where, args, err := sqlx.In("idx IN (?)", pending)
		if err != nil {
			return pfx.Err(err)
		}
		pending = pending[:0]
		return fn(where, args)
	}

	err := t.rows.Runs(func(_, lo, hi int) error {
		if hi-lo < minRangeRun {
			for i := lo; i < hi; i++ {
				pending = append(pending, i)
				if len(pending) == inBatch {
					if err := flush(); err != nil {
						return err
					}
				}
			}
			return nil
		}

		if err := flush(); err != nil {
			return err
		}
		return fn("idx >= ? AND idx < ?", []interface{}{lo, hi})
	})
	if err != nil {
		return err
	}

	return flush()
}
