package stats

import (
	"math"

	"github.com/zeebo/xxh3"

	"github.com/carbocation/popgen/store"
)

// HaplotypeDiversity is (1 - Σf²)·n/(n-1) over the 2·len(cols) haplotypes
// of the given sample columns of g, where f are the frequencies of distinct
// haplotypes. Each haplotype is hashed as it streams past, so g is read
// once and never held in memory. NaN when fewer than two haplotypes exist.
func HaplotypeDiversity(g *store.GenotypeMatrix, cols []int) (float64, error) {
	n := 2 * len(cols)
	if n < 2 {
		return math.NaN(), nil
	}

	hashers := make([]*xxh3.Hasher, n)
	for i := range hashers {
		hashers[i] = xxh3.New()
	}

	buf := make([]byte, 0, 1024)
	err := g.Each(func(b store.Block) error {
		for k, s := range cols {
			for allele := 0; allele < 2; allele++ {
				buf = buf[:0]
				for r := 0; r < b.Rows; r++ {
					buf = append(buf, byte(b.Call(r, s, allele)))
				}
				hashers[2*k+allele].Write(buf)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	distinct := make(map[xxh3.Uint128]int, n)
	for _, h := range hashers {
		distinct[h.Sum128()]++
	}

	var sumSq float64
	for _, count := range distinct {
		f := float64(count) / float64(n)
		sumSq += f * f
	}

	return (1 - sumSq) * float64(n) / float64(n-1), nil
}
