package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/carbocation/popgen/alleles"
)

// tajimaMinSites is the fewest segregating sites for which Tajima's D is
// reported.
const tajimaMinSites = 3

// MeanPairwiseDifference is, per variant, the fraction of distinct pairs of
// called alleles that differ. Variants with fewer than two calls are NaN.
func MeanPairwiseDifference(c *alleles.Counts) []float64 {
	out := make([]float64, c.Len())
	for i := range out {
		out[i] = mpd(c.Row(i))
	}
	return out
}

func mpd(row []int32) float64 {
	var an, same float64
	for _, v := range row {
		x := float64(v)
		an += x
		same += x * (x - 1) / 2
	}
	pairs := an * (an - 1) / 2
	if pairs == 0 {
		return math.NaN()
	}
	return (pairs - same) / pairs
}

// MeanPairwiseDifferenceBetween is, per variant, the fraction of pairs made
// of one allele from each population that differ.
func MeanPairwiseDifferenceBetween(c1, c2 *alleles.Counts) []float64 {
	out := make([]float64, c1.Len())
	for i := range out {
		out[i] = mpdBetween(c1.Row(i), c2.Row(i))
	}
	return out
}

func mpdBetween(r1, r2 []int32) float64 {
	var an1, an2, same float64
	for a := range r1 {
		an1 += float64(r1[a])
		an2 += float64(r2[a])
		same += float64(r1[a]) * float64(r2[a])
	}
	pairs := an1 * an2
	if pairs == 0 {
		return math.NaN()
	}
	return (pairs - same) / pairs
}

// SequenceDiversity is nucleotide diversity over nBases bases.
func SequenceDiversity(c *alleles.Counts, nBases int64) float64 {
	if nBases <= 0 {
		return math.NaN()
	}
	return floats.Sum(fillNaN(MeanPairwiseDifference(c), 0)) / float64(nBases)
}

// WattersonTheta is Watterson's estimator over nBases bases, with n the
// number of sampled alleles. It is NaN when fewer than two alleles were
// sampled.
func WattersonTheta(c *alleles.Counts, n int, nBases int64) float64 {
	a1 := harmonic(n, 1)
	if a1 == 0 || nBases <= 0 {
		return math.NaN()
	}
	s := float64(c.CountSegregating())
	return s / a1 / float64(nBases)
}

// TajimaD is Tajima's D over every variant in c. It is NaN when fewer than
// three sites segregate or fewer than two alleles were sampled.
func TajimaD(c *alleles.Counts) float64 {
	n := float64(c.MaxAlleleNumber())
	S := float64(c.CountSegregating())
	if S < tajimaMinSites || n < 2 {
		return math.NaN()
	}

	pi := floats.Sum(fillNaN(MeanPairwiseDifference(c), 0))

	a1 := harmonic(int(n), 1)
	a2 := harmonic(int(n), 2)
	thetaW := S / a1

	b1 := (n + 1) / (3 * (n - 1))
	b2 := 2 * (n*n + n + 3) / (9 * n * (n - 1))
	c1 := b1 - 1/a1
	c2 := b2 - (n+2)/(a1*n) + a2/(a1*a1)
	e1 := c1 / a1
	e2 := c2 / (a1*a1 + a2)

	return (pi - thetaW) / math.Sqrt(e1*S+e2*S*(S-1))
}

// Hudson returns the per-variant numerator and denominator of Hudson's Fst
// between two populations.
func Hudson(c1, c2 *alleles.Counts) (num, den []float64) {
	within1 := MeanPairwiseDifference(c1)
	within2 := MeanPairwiseDifference(c2)
	between := MeanPairwiseDifferenceBetween(c1, c2)

	num = make([]float64, len(between))
	den = between
	for i := range num {
		num[i] = between[i] - (within1[i]+within2[i])/2
	}
	return num, den
}

// RatioOfSums is Σnum/Σden with NaN terms skipped. Negative ratios are
// clipped to 0, whether they come from identical populations or from
// distinct populations whose within-population diversity exceeds the
// between-population diversity. A zero denominator is also reported as 0.
func RatioOfSums(num, den []float64) float64 {
	n, d := nanSum(num), nanSum(den)
	if d == 0 {
		return 0
	}
	fst := n / d
	if fst < 0 || math.IsNaN(fst) {
		return 0
	}
	return fst
}

// harmonic is Σ 1/i^p for i in [1, n).
func harmonic(n, p int) float64 {
	var sum float64
	for i := 1; i < n; i++ {
		sum += 1 / math.Pow(float64(i), float64(p))
	}
	return sum
}

func nanSum(x []float64) float64 {
	var sum float64
	for _, v := range x {
		if !math.IsNaN(v) {
			sum += v
		}
	}
	return sum
}

func fillNaN(x []float64, fill float64) []float64 {
	for i, v := range x {
		if math.IsNaN(v) {
			x[i] = fill
		}
	}
	return x
}
