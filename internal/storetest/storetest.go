// Package storetest builds small variant stores in temporary directories
// for tests.
package storetest

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/carbocation/popgen/store"
)

// Chromosome is the content of one chromosome. Calls[i] belongs to
// Variants[i] and PhasedCalls[i] to PhasedPositions[i]; each holds two
// calls per sample.
type Chromosome struct {
	Name            string
	Variants        []store.Variant
	Calls           [][]int8
	PhasedPositions []int64
	PhasedCalls     [][]int8
}

// Build writes a store under t.TempDir() and opens it. The store is closed
// when the test finishes.
func Build(t testing.TB, samples []store.Sample, chunkSize int, chroms ...Chromosome) *store.Store {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "store")
	Write(t, dir, samples, chunkSize, chroms...)

	st, err := store.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return st
}

// Write writes a store into dir without opening it.
func Write(t testing.TB, dir string, samples []store.Sample, chunkSize int, chroms ...Chromosome) {
	t.Helper()

	b, err := store.Create(dir, store.Metadata{Name: "test", Source: "storetest", ChunkSize: chunkSize}, samples)
	require.NoError(t, err)

	for _, c := range chroms {
		require.Len(t, c.Calls, len(c.Variants), "chromosome %s", c.Name)
		require.Len(t, c.PhasedCalls, len(c.PhasedPositions), "chromosome %s", c.Name)

		require.NoError(t, b.Begin(c.Name))
		for i, v := range c.Variants {
			require.NoError(t, b.AddVariant(v, c.Calls[i]))
		}
		for i, pos := range c.PhasedPositions {
			require.NoError(t, b.AddPhased(pos, c.PhasedCalls[i]))
		}
		require.NoError(t, b.End())
	}

	require.NoError(t, b.Close())
}

// Samples makes n samples per super-population, in the order given.
// Sample IDs are <POP><k>.
func Samples(n int, superPops ...string) []store.Sample {
	out := make([]store.Sample, 0, n*len(superPops))
	for _, pop := range superPops {
		for k := 0; k < n; k++ {
			out = append(out, store.Sample{
				ID:              fmt.Sprintf("%s%d", pop, k),
				Population:      pop + "_SUB",
				SuperPopulation: pop,
				Sex:             "female",
			})
		}
	}
	return out
}

// Uniform returns calls where every allele of every sample is allele.
func Uniform(nSamples int, allele int8) []int8 {
	out := make([]int8, 2*nSamples)
	for i := range out {
		out[i] = allele
	}
	return out
}

// Random fills a chromosome with n biallelic variants starting at first and
// spaced by step, every variant also present in the phased index. Alleles
// are drawn from rng with the given alternate allele frequency.
func Random(rng *rand.Rand, name string, nSamples, n int, first, step int64, altFreq float64) Chromosome {
	c := Chromosome{Name: name}
	for i := 0; i < n; i++ {
		pos := first + int64(i)*step
		calls := make([]int8, 2*nSamples)
		for j := range calls {
			if rng.Float64() < altFreq {
				calls[j] = 1
			}
		}

		c.Variants = append(c.Variants, store.Variant{
			Position: pos,
			Ref:      "A",
			Alt:      "G",
			RSID:     fmt.Sprintf("rs%d", pos),
		})
		c.Calls = append(c.Calls, calls)
		c.PhasedPositions = append(c.PhasedPositions, pos)
		c.PhasedCalls = append(c.PhasedCalls, calls)
	}
	return c
}
