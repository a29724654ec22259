// Package stats computes population-genetic statistics from allele counts:
// whole-range summaries and sliding-window series.
package stats

import (
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/carbocation/popgen/alleles"
	"github.com/carbocation/popgen/store"
)

// SummaryInput is the segregating working set of one query.
type SummaryInput struct {
	Counts    *alleles.Table
	Positions []int64

	// NBases normalizes the per-base estimators.
	NBases int64

	// Phased and Columns are needed for haplotype diversity only.
	Phased  *store.GenotypeMatrix
	Columns map[string][]int
}

// Summarize computes every requested statistic for every population over
// the whole working set. The Fst table is nil unless StatFst is requested.
// Populations are computed concurrently.
func Summarize(in SummaryInput, statistics, populations []string) (*SummaryTable, *FstTable, error) {
	requested := make(map[string]bool, len(statistics))
	for _, s := range statistics {
		if _, ok := StatisticNames[s]; !ok {
			return nil, nil, fmt.Errorf("unknown statistic %q: %w", s, ErrInvalidQuery)
		}
		requested[s] = true
	}

	var columns []string
	for _, s := range SummaryStatistics {
		if requested[s] {
			columns = append(columns, s)
		}
	}

	counts := make([]*alleles.Counts, len(populations))
	for i, pop := range populations {
		c, err := populationCounts(in.Counts, pop)
		if err != nil {
			return nil, nil, err
		}
		counts[i] = c
	}

	table := &SummaryTable{Statistics: columns, Rows: make([]SummaryRow, len(populations))}

	var g errgroup.Group
	for i, pop := range populations {
		i, pop := i, pop
		g.Go(func() error {
			row := SummaryRow{Population: pop, Cells: make([]Cell, len(columns))}
			for k, stat := range columns {
				cell, err := summaryCell(in, counts[i], pop, stat)
				if err != nil {
					return fmt.Errorf("%s for %s: %w", stat, pop, err)
				}
				row.Cells[k] = cell
			}
			table.Rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var fst *FstTable
	if requested[StatFst] {
		fst = &FstTable{}
		for i := 0; i < len(populations); i++ {
			for j := i + 1; j < len(populations); j++ {
				num, den := Hudson(counts[i], counts[j])
				fst.Rows = append(fst.Rows, FstRow{
					Populations: FstLabel(populations[i], populations[j]),
					Fst:         Round(RatioOfSums(num, den)),
				})
			}
		}
	}

	log.WithFields(log.Fields{
		"populations": len(populations),
		"statistics":  columns,
		"variants":    len(in.Positions),
		"bases":       in.NBases,
	}).Debug("summarized working set")

	return table, fst, nil
}

func summaryCell(in SummaryInput, c *alleles.Counts, pop, stat string) (Cell, error) {
	switch stat {
	case StatSeqDiv:
		return valueCell(SequenceDiversity(c, in.NBases)), nil
	case StatWattThet:
		return valueCell(WattersonTheta(c, c.MaxAlleleNumber(), in.NBases)), nil
	case StatTajD:
		return valueCell(TajimaD(c)), nil
	case StatHapDiv:
		if in.Phased == nil || in.Phased.Len() == 0 {
			return Cell{Placeholder: Unavailable}, nil
		}
		h, err := HaplotypeDiversity(in.Phased, in.Columns[pop])
		if err != nil {
			return Cell{}, err
		}
		return valueCell(h), nil
	}
	return Cell{Value: math.NaN()}, fmt.Errorf("statistic %q has no summary: %w", stat, ErrInvalidQuery)
}
