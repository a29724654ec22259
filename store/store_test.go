package store_test

import (
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbocation/popgen/internal/storetest"
	"github.com/carbocation/popgen/store"
)

// buildSmall writes 20 variants at 100, 110, ..., 290 over 4 samples, with
// chunks of 6 rows. The first allele of sample s at variant i is i%2 and
// the second is s%2. Every other variant is phased.
func buildSmall(t *testing.T) *store.Store {
	samples := storetest.Samples(2, "AFR", "EUR")

	c := storetest.Chromosome{Name: "22"}
	for i := 0; i < 20; i++ {
		pos := int64(100 + 10*i)
		calls := make([]int8, 2*len(samples))
		for s := range samples {
			calls[2*s] = int8(i % 2)
			calls[2*s+1] = int8(s % 2)
		}
		c.Variants = append(c.Variants, store.Variant{
			Position: pos,
			Ref:      "C",
			Alt:      "T",
			Gene:     fmt.Sprintf("G%d", i/5),
			RSID:     fmt.Sprintf("rs%d", i),
			Annotations: map[string]float64{
				"AF_AFR": float64(i) / 100,
				"AF_EUR": float64(i) / 50,
			},
		})
		c.Calls = append(c.Calls, calls)
		if i%2 == 0 {
			c.PhasedPositions = append(c.PhasedPositions, pos)
			c.PhasedCalls = append(c.PhasedCalls, calls)
		}
	}

	return storetest.Build(t, samples, 6, c)
}

func TestOpen(t *testing.T) {
	st := buildSmall(t)

	assert.Equal(t, []string{"22"}, st.Chromosomes())
	assert.Equal(t, 4, st.Metadata.NSamples)
	assert.Equal(t, 6, st.Metadata.ChunkSize)
	assert.False(t, st.Metadata.CreatedAt.Unix() == 0)

	samples, err := st.Samples()
	require.NoError(t, err)
	require.Len(t, samples, 4)
	assert.Equal(t, "AFR0", samples[0].ID)
	assert.Equal(t, 3, samples[3].Index)
	assert.Equal(t, "EUR", samples[3].SuperPopulation)

	c, err := st.Chromosome("22")
	require.NoError(t, err)
	assert.Equal(t, 20, c.NVariants)
	assert.Equal(t, 10, c.NPhased)
}

func TestUnknownChromosome(t *testing.T) {
	st := buildSmall(t)

	_, err := st.Positions("X", store.Unphased)
	assert.True(t, errors.Is(err, store.ErrNotFound))

	_, err = st.Variants("X")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	_, err = st.Genotypes("X", store.Phased)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestPositions(t *testing.T) {
	st := buildSmall(t)

	pos, err := st.Positions("22", store.Unphased)
	require.NoError(t, err)
	require.Len(t, pos, 20)
	assert.Equal(t, int64(100), pos[0])
	assert.Equal(t, int64(290), pos[19])

	phased, err := st.Positions("22", store.Phased)
	require.NoError(t, err)
	require.Len(t, phased, 10)
	assert.Equal(t, int64(280), phased[9])

	again, err := st.Positions("22", store.Unphased)
	require.NoError(t, err)
	assert.Same(t, &pos[0], &again[0], "positions are cached")
}

func TestVariantTable(t *testing.T) {
	st := buildSmall(t)

	vt, err := st.Variants("22", "AF_EUR")
	require.NoError(t, err)
	assert.Equal(t, 20, vt.Len())

	sub, err := vt.Slice(3, 17)
	require.NoError(t, err)

	mask := make([]bool, sub.Len())
	var want []int64
	for i := range mask {
		// Mix scattered rows with one run long enough to be read by range.
		mask[i] = i%3 == 0 || (i >= 4 && i < 13)
		if mask[i] {
			want = append(want, int64(100+10*(i+3)))
		}
	}
	compressed, err := sub.Compress(mask)
	require.NoError(t, err)

	got, err := compressed.Positions()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	records, err := compressed.Records()
	require.NoError(t, err)
	require.Len(t, records, len(want))
	for i, v := range records {
		assert.Equal(t, want[i], v.Position)
		assert.Equal(t, "22", v.Chromosome)
		assert.Equal(t, map[string]float64{"AF_EUR": float64(v.Index) / 50}, v.Annotations)
	}

	genes, err := compressed.Strings("gene")
	require.NoError(t, err)
	assert.Equal(t, "G0", genes[0])

	_, err = compressed.Strings("position; DROP TABLE Variant")
	assert.Error(t, err)

	_, err = vt.Compress([]bool{true})
	assert.ErrorIs(t, err, store.ErrOutOfRange)

	_, err = vt.Slice(5, 30)
	assert.ErrorIs(t, err, store.ErrOutOfRange)
}

func collect(t *testing.T, g *store.GenotypeMatrix) [][]int8 {
	var out [][]int8
	require.NoError(t, g.Each(func(b store.Block) error {
		for r := 0; r < b.Rows; r++ {
			row := make([]int8, 0, 2*b.Samples)
			for s := 0; s < b.Samples; s++ {
				row = append(row, b.Call(r, s, 0), b.Call(r, s, 1))
			}
			out = append(out, row)
		}
		return nil
	}))
	return out
}

func TestGenotypes(t *testing.T) {
	st := buildSmall(t)

	g, err := st.Genotypes("22", store.Unphased)
	require.NoError(t, err)
	assert.Equal(t, 20, g.Len())
	assert.Equal(t, 4, g.NumSamples())
	assert.Equal(t, []int{0, 1, 2, 3}, g.Chunks())

	all := collect(t, g)
	require.Len(t, all, 20)
	assert.Equal(t, []int8{1, 0, 1, 1, 1, 0, 1, 1}, all[7])

	sub, err := g.Slice(7, 11)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, sub.Chunks(), "rows 7..10 lie in one chunk")
	assert.Equal(t, all[7:11], collect(t, sub))

	cols, err := sub.SelectSamples([]bool{false, true, false, true})
	require.NoError(t, err)
	assert.Equal(t, 2, cols.NumSamples())
	assert.Equal(t, [][]int8{{1, 1, 1, 1}, {0, 1, 0, 1}, {1, 1, 1, 1}, {0, 1, 0, 1}}, collect(t, cols))

	mask := make([]bool, 20)
	mask[2], mask[13], mask[19] = true, true, true
	sparse, err := g.Compress(mask)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 3}, sparse.Chunks())
	assert.Equal(t, [][]int8{all[2], all[13], all[19]}, collect(t, sparse))

	assert.Equal(t, 0, g.Empty().Len())
	assert.Empty(t, collect(t, g.Empty()))

	_, err = g.SelectSamples([]bool{true})
	assert.ErrorIs(t, err, store.ErrOutOfRange)
}

func TestPhasedGenotypes(t *testing.T) {
	st := buildSmall(t)

	g, err := st.Genotypes("22", store.Phased)
	require.NoError(t, err)
	require.Equal(t, 10, g.Len())

	rows := collect(t, g)
	for _, row := range rows {
		// Only even variants were phased, so the first allele is always 0.
		assert.Equal(t, []int8{0, 0, 0, 1, 0, 0, 0, 1}, row)
	}
}

func TestConcurrentReads(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	samples := storetest.Samples(3, "AFR", "EAS")
	st := storetest.Build(t, samples, 16, storetest.Random(rng, "1", len(samples), 200, 1000, 7, 0.3))

	g, err := st.Genotypes("1", store.Unphased)
	require.NoError(t, err)
	want := collect(t, g)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n := 0
			errs[i] = g.Each(func(b store.Block) error {
				for r := 0; r < b.Rows; r++ {
					for s := 0; s < b.Samples; s++ {
						if b.Call(r, s, 0) != want[n][2*s] || b.Call(r, s, 1) != want[n][2*s+1] {
							return fmt.Errorf("row %d sample %d differs", n, s)
						}
					}
					n++
				}
				return nil
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestBuilderRejectsUnorderedPositions(t *testing.T) {
	samples := storetest.Samples(1, "AFR")
	b, err := store.Create(filepath.Join(t.TempDir(), "s"), store.Metadata{}, samples)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Begin("1"))
	require.NoError(t, b.AddVariant(store.Variant{Position: 10}, storetest.Uniform(1, 0)))
	assert.Error(t, b.AddVariant(store.Variant{Position: 10}, storetest.Uniform(1, 0)))
	assert.Error(t, b.AddVariant(store.Variant{Position: 9}, storetest.Uniform(1, 0)))
	assert.Error(t, b.AddVariant(store.Variant{Position: 11}, storetest.Uniform(2, 0)), "wrong call count")

	require.NoError(t, b.AddPhased(10, storetest.Uniform(1, 0)))
	assert.Error(t, b.AddPhased(5, storetest.Uniform(1, 0)))
}

func TestCreateRefusesExistingStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "s")
	storetest.Write(t, dir, storetest.Samples(1, "AFR"), 4)

	_, err := store.Create(dir, store.Metadata{}, storetest.Samples(1, "AFR"))
	assert.Error(t, err)
}
