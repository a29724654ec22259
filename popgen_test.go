package popgen

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbocation/popgen/config"
	"github.com/carbocation/popgen/internal/storetest"
	"github.com/carbocation/popgen/stats"
	"github.com/carbocation/popgen/store"
)

func i64(v int64) *int64 {
	return &v
}

// buildChr22 writes 120 variants on chromosome 22 from 2,000,000 with a
// spacing of 37 bases. Variants 30..79 belong to gene APOL1.
func buildChr22(t *testing.T) *store.Store {
	rng := rand.New(rand.NewSource(22))
	samples := storetest.Samples(10, "AFR", "EUR", "EAS")

	c := storetest.Random(rng, "22", len(samples), 120, 2_000_000, 37, 0.3)
	for i := range c.Variants {
		if i >= 30 && i < 80 {
			c.Variants[i].Gene = "APOL1"
		}
		c.Variants[i].Annotations = map[string]float64{"AF_AFR": 0.3, "AF_EUR": 0.3}
	}

	return storetest.Build(t, samples, 16, c)
}

func TestEmptyRangeIsNoMatch(t *testing.T) {
	st := buildChr22(t)

	_, err := Compute(st, Query{
		Chromosome:  "22",
		Start:       i64(1),
		Stop:        i64(1_000_000),
		Populations: []string{"AFR", "EUR"},
		Statistics:  []string{stats.StatSeqDiv, stats.StatTajD},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoMatch))
	assert.Equal(t, "Query returned no matching SNPs.", UserMessage(err))
}

func TestGeneQuery(t *testing.T) {
	st := buildChr22(t)

	res, err := Compute(st, Query{
		Chromosome:  "22",
		Gene:        "APOL1",
		Populations: []string{"AFR"},
		Statistics:  []string{stats.StatSeqDiv, stats.StatWattThet, stats.StatTajD},
	})
	require.NoError(t, err)

	require.Len(t, res.Summary.Rows, 1)
	row := res.Summary.Rows[0]
	assert.Equal(t, "AFR", row.Population)
	require.Len(t, row.Cells, 3)
	for i, c := range row.Cells {
		assert.Empty(t, c.Placeholder, res.Summary.Statistics[i])
		assert.Equal(t, stats.Round(c.Value), c.Value, res.Summary.Statistics[i])
	}
	assert.Nil(t, res.Fst)

	assert.NotEmpty(t, res.SegregatingPositions)
	assert.LessOrEqual(t, len(res.SegregatingPositions), 50)
	require.Len(t, res.Variants, len(res.SegregatingPositions))
	for i, v := range res.Variants {
		assert.Equal(t, "APOL1", v.Gene)
		assert.Equal(t, res.SegregatingPositions[i], v.Position)
		assert.Contains(t, v.Annotations, "AF_AFR")
		assert.NotContains(t, v.Annotations, "AF_EUR", "only selected populations are loaded")
	}

	assert.Equal(t, []string{"AFR", "ALL"}, res.Counts.Labels)
}

func TestFstQuery(t *testing.T) {
	st := buildChr22(t)

	res, err := Compute(st, Query{
		Chromosome:  "22",
		Start:       i64(2_000_000),
		Stop:        i64(2_002_000),
		Populations: []string{"AFR", "EUR", "EAS"},
		Statistics:  []string{stats.StatFst, stats.StatHapDiv},
	})
	require.NoError(t, err)

	require.NotNil(t, res.Fst)
	labels := make([]string, len(res.Fst.Rows))
	for i, r := range res.Fst.Rows {
		labels[i] = r.Populations
		assert.GreaterOrEqual(t, r.Fst, 0.0)
	}
	assert.Equal(t, []string{"AFR vs. EUR", "AFR vs. EAS", "EUR vs. EAS"}, labels)

	assert.Equal(t, []string{"Population", "hap_div"}, res.Summary.Header())
	for _, r := range res.Summary.Rows {
		assert.Empty(t, r.Cells[0].Placeholder)
	}
}

func TestUnknownChromosome(t *testing.T) {
	st := buildChr22(t)

	_, err := Compute(st, Query{Chromosome: "Y", Populations: []string{"AFR"}, Statistics: []string{stats.StatSeqDiv}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMaxAlleleOption(t *testing.T) {
	samples := storetest.Samples(2, "AFR")
	c := storetest.Chromosome{Name: "1"}
	for i := 0; i < 4; i++ {
		c.Variants = append(c.Variants, store.Variant{Position: int64(10 + i)})
		c.Calls = append(c.Calls, []int8{0, 0, 0, 5})
	}
	st := storetest.Build(t, samples, 4, c)

	q := Query{Chromosome: "1", Populations: []string{"AFR"}, Statistics: []string{stats.StatSeqDiv}}

	_, err := Compute(st, q)
	assert.ErrorIs(t, err, ErrNoSegregatingVariants)

	res, err := Compute(st, q, WithMaxAllele(5))
	require.NoError(t, err)
	assert.Len(t, res.SegregatingPositions, 4)
}

func TestValidate(t *testing.T) {
	cfg := config.Default()
	cfg.MaxRangeBP = 1000

	ok := Query{Chromosome: "22", Start: i64(10), Stop: i64(1010), Populations: []string{"AFR", "EUR"}, Statistics: []string{stats.StatFst}}
	require.NoError(t, Validate(ok, cfg))

	bad := []Query{
		{Populations: []string{"AFR"}, Statistics: []string{stats.StatSeqDiv}},
		{Chromosome: "22", Start: i64(10), Populations: []string{"AFR"}, Statistics: []string{stats.StatSeqDiv}},
		{Chromosome: "22", Start: i64(10), Stop: i64(5), Populations: []string{"AFR"}, Statistics: []string{stats.StatSeqDiv}},
		{Chromosome: "22", Start: i64(10), Stop: i64(1011), Populations: []string{"AFR"}, Statistics: []string{stats.StatSeqDiv}},
		{Chromosome: "22", Statistics: []string{stats.StatSeqDiv}},
		{Chromosome: "22", Populations: []string{"XYZ"}, Statistics: []string{stats.StatSeqDiv}},
		{Chromosome: "22", Populations: []string{"AFR", "AFR"}, Statistics: []string{stats.StatSeqDiv}},
		{Chromosome: "22", Populations: []string{"AFR"}},
		{Chromosome: "22", Populations: []string{"AFR"}, Statistics: []string{"pi"}},
		{Chromosome: "22", Populations: []string{"AFR"}, Statistics: []string{stats.StatFst}},
	}
	for _, q := range bad {
		assert.ErrorIs(t, Validate(q, cfg), ErrInvalidQuery, q.String())
	}
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "No segregating variants for the selected populations.", UserMessage(ErrNoSegregatingVariants))
	assert.Equal(t, "", UserMessage(errors.New("disk on fire")))
}
