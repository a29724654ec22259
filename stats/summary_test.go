package stats_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbocation/popgen/alleles"
	"github.com/carbocation/popgen/filter"
	"github.com/carbocation/popgen/internal/storetest"
	"github.com/carbocation/popgen/stats"
	"github.com/carbocation/popgen/store"
)

// buildPhased writes 2 AFR and 2 EUR samples. AFR haplotypes over the
// three phased variants are 001, 001, 110, 001; every EUR haplotype is 000.
func buildPhased(t *testing.T) *store.Store {
	samples := storetest.Samples(2, "AFR", "EUR")
	c := storetest.Chromosome{Name: "1"}

	phased := [][]int8{
		{0, 0, 1, 0, 0, 0, 0, 0},
		{0, 0, 1, 0, 0, 0, 0, 0},
		{1, 1, 0, 1, 0, 0, 0, 0},
	}
	for i, calls := range phased {
		pos := int64(100 * (i + 1))
		c.Variants = append(c.Variants, store.Variant{Position: pos})
		c.Calls = append(c.Calls, calls)
		c.PhasedPositions = append(c.PhasedPositions, pos)
		c.PhasedCalls = append(c.PhasedCalls, calls)
	}

	return storetest.Build(t, samples, 2, c)
}

func TestHaplotypeDiversity(t *testing.T) {
	st := buildPhased(t)

	g, err := st.Genotypes("1", store.Phased)
	require.NoError(t, err)

	h, err := stats.HaplotypeDiversity(g, []int{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, h, 1e-12)

	h, err = stats.HaplotypeDiversity(g, []int{2, 3})
	require.NoError(t, err)
	assert.Equal(t, 0.0, h)
}

func summaryInput(t *testing.T, st *store.Store, pops []string) stats.SummaryInput {
	filtered, err := filter.Apply(st, filter.Criteria{Chromosome: "1"})
	require.NoError(t, err)

	samples, err := st.Samples()
	require.NoError(t, err)

	res, err := alleles.Run(filtered, samples, pops, alleles.DefaultMaxAllele)
	require.NoError(t, err)

	return stats.SummaryInput{
		Counts:    res.Table,
		Positions: res.Positions,
		NBases:    res.Span.Len(),
		Phased:    res.Phased,
		Columns:   res.Columns,
	}
}

func TestSummarize(t *testing.T) {
	st := buildPhased(t)
	in := summaryInput(t, st, []string{"EUR", "AFR"})

	table, fst, err := stats.Summarize(in, []string{stats.StatHapDiv, stats.StatTajD, stats.StatSeqDiv, stats.StatFst}, []string{"EUR", "AFR"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Population", "seq_div", "taj_d", "hap_div"}, table.Header())
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "EUR", table.Rows[0].Population)
	assert.Equal(t, "AFR", table.Rows[1].Population)

	// EUR is monomorphic: zero diversity, too few sites for Tajima's D.
	cell, ok := table.Get("EUR", stats.StatSeqDiv)
	require.True(t, ok)
	assert.Equal(t, "0", cell.String())
	cell, _ = table.Get("EUR", stats.StatTajD)
	assert.Equal(t, stats.Undefined, cell.String())

	cell, _ = table.Get("AFR", stats.StatHapDiv)
	assert.Equal(t, 0.5, cell.Value)

	// Three sites, each with mpd 1/2, over the 201 bases 100..300.
	cell, _ = table.Get("AFR", stats.StatSeqDiv)
	assert.Equal(t, stats.Round(1.5 / 201), cell.Value)

	require.NotNil(t, fst)
	require.Len(t, fst.Rows, 1)
	assert.Equal(t, "EUR vs. AFR", fst.Rows[0].Populations)
	assert.Greater(t, fst.Rows[0].Fst, 0.0)

	back, err := stats.SummaryFromRecords(table.Records())
	require.NoError(t, err)
	assert.Equal(t, table, back)
}

func TestSummarizeWithoutPhasedVariants(t *testing.T) {
	st := buildPhased(t)
	in := summaryInput(t, st, []string{"AFR"})
	in.Phased = in.Phased.Empty()

	table, fst, err := stats.Summarize(in, []string{stats.StatHapDiv}, []string{"AFR"})
	require.NoError(t, err)
	assert.Nil(t, fst)

	cell, _ := table.Get("AFR", stats.StatHapDiv)
	assert.Equal(t, stats.Unavailable, cell.String())
}

func TestSummarizeRejectsUnknownStatistic(t *testing.T) {
	st := buildPhased(t)
	in := summaryInput(t, st, []string{"AFR"})

	_, _, err := stats.Summarize(in, []string{"pi"}, []string{"AFR"})
	assert.ErrorIs(t, err, stats.ErrInvalidQuery)
}
