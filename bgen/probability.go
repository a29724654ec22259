package bgen

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

type Probability struct {
	NSamples            uint32
	NAlleles            uint16
	MinimumPloidy       uint8
	MaximumPloidy       uint8
	Phased              bool
	NProbabilityBits    uint8 // nbits. Must be 1-32 inclusive (there is no uint4 which would otherwise suffice)
	SampleProbabilities []*SampleProbability
}

// SampleProbability represents the variant data for one specific individual at
// one specific locus, including information on whether this data is missing,
// what that individual's ploidy is, and then either (1) the probabilities for
// the phased haplotype or (2) the probabilies for the genotypes.
//
// Probabilities holds every value, including the last one per genotype or
// haplotype, which the file leaves implied.
type SampleProbability struct {
	Missing       bool
	Ploidy        uint8 // Limited to 0-63
	Probabilities []float64
}

// parseLayout2Probabilities decodes an uncompressed Layout 2 genotype block.
func parseLayout2Probabilities(data []byte, nAlleles uint16) (*Probability, error) {
	if len(data) < 10 {
		return nil, fmt.Errorf("genotype block is %d bytes, too short for its header", len(data))
	}

	p := &Probability{
		NSamples:      binary.LittleEndian.Uint32(data[0:4]),
		NAlleles:      binary.LittleEndian.Uint16(data[4:6]),
		MinimumPloidy: data[6],
		MaximumPloidy: data[7],
	}
	if p.NAlleles != nAlleles {
		return nil, fmt.Errorf("genotype block has %d alleles, variant has %d", p.NAlleles, nAlleles)
	}
	if p.NAlleles < 2 {
		return nil, fmt.Errorf("genotype block has %d alleles", p.NAlleles)
	}

	n := int(p.NSamples)
	offset := 8
	if len(data) < offset+n+2 {
		return nil, fmt.Errorf("genotype block is %d bytes, too short for %d samples", len(data), n)
	}

	p.SampleProbabilities = make([]*SampleProbability, n)
	for i := 0; i < n; i++ {
		b := data[offset+i]
		p.SampleProbabilities[i] = &SampleProbability{
			Missing: b&0x80 != 0,
			Ploidy:  b & 0x3f,
		}
	}
	offset += n

	p.Phased = data[offset] == 1
	p.NProbabilityBits = data[offset+1]
	offset += 2
	if p.NProbabilityBits < 1 || p.NProbabilityBits > 32 {
		return nil, fmt.Errorf("%d bits per probability is outside 1-32", p.NProbabilityBits)
	}

	br := newBitReader(bytes.NewReader(data[offset:]))
	scale := math.Exp2(float64(p.NProbabilityBits)) - 1
	k := int(p.NAlleles)

	for _, sp := range p.SampleProbabilities {
		// Each group is a distribution whose last entry is implied.
		groups, size := 1, 0
		if p.Phased {
			groups, size = int(sp.Ploidy), k
		} else {
			size = Choose(int(sp.Ploidy)+k-1, k-1)
		}

		sp.Probabilities = make([]float64, 0, groups*size)
		for g := 0; g < groups; g++ {
			remaining := 1.0
			for j := 0; j < size-1; j++ {
				v, err := br.ReadUint(int(p.NProbabilityBits))
				if err != nil {
					return nil, fmt.Errorf("probability data ends early: %w", err)
				}
				prob := float64(v) / scale
				remaining -= prob
				sp.Probabilities = append(sp.Probabilities, prob)
			}
			if remaining < 0 {
				remaining = 0
			}
			sp.Probabilities = append(sp.Probabilities, remaining)
		}
	}

	return p, nil
}

// parseLayout1Probabilities decodes an uncompressed Layout 1 block: three
// 16-bit probabilities per diploid, biallelic sample. A sample whose three
// values are all zero is missing.
func parseLayout1Probabilities(data []byte, nSamples uint32) (*Probability, error) {
	n := int(nSamples)
	if len(data) < 6*n {
		return nil, fmt.Errorf("genotype block is %d bytes, expected %d", len(data), 6*n)
	}

	p := &Probability{
		NSamples:            nSamples,
		NAlleles:            2,
		MinimumPloidy:       2,
		MaximumPloidy:       2,
		NProbabilityBits:    16,
		SampleProbabilities: make([]*SampleProbability, n),
	}

	for i := 0; i < n; i++ {
		sp := &SampleProbability{Ploidy: 2, Probabilities: make([]float64, 3)}
		var total uint32
		for j := 0; j < 3; j++ {
			v := binary.LittleEndian.Uint16(data[6*i+2*j:])
			total += uint32(v)
			sp.Probabilities[j] = float64(v) / 32768
		}
		sp.Missing = total == 0
		p.SampleProbabilities[i] = sp
	}

	return p, nil
}

// HardCalls converts the probabilities into two allele calls per sample,
// the layout the variant store uses. A call is made only when the most
// likely genotype (or haplotype allele, when phased) has probability of at
// least threshold; otherwise, and for missing samples, the call is -1.
// Haploid samples get -1 as their second call. Ploidy above 2 is an error.
func (p *Probability) HardCalls(threshold float64) ([]int8, error) {
	if p.NAlleles > math.MaxInt8 {
		return nil, fmt.Errorf("%d alleles do not fit the call encoding", p.NAlleles)
	}

	k := int(p.NAlleles)
	out := make([]int8, 2*len(p.SampleProbabilities))
	for i := range out {
		out[i] = -1
	}

	for i, sp := range p.SampleProbabilities {
		if sp.Missing || sp.Ploidy == 0 {
			continue
		}
		if sp.Ploidy > 2 {
			return nil, fmt.Errorf("sample %d has ploidy %d", i, sp.Ploidy)
		}

		if p.Phased {
			for h := 0; h < int(sp.Ploidy); h++ {
				if a, ok := argmax(sp.Probabilities[h*k:(h+1)*k], threshold); ok {
					out[2*i+h] = int8(a)
				}
			}
			continue
		}

		g, ok := argmax(sp.Probabilities, threshold)
		if !ok {
			continue
		}
		if sp.Ploidy == 1 {
			out[2*i] = int8(g)
			continue
		}
		a, b := diploidGenotype(g)
		out[2*i], out[2*i+1] = int8(a), int8(b)
	}

	return out, nil
}

func argmax(probs []float64, threshold float64) (int, bool) {
	best := -1
	for j, v := range probs {
		if best < 0 || v > probs[best] {
			best = j
		}
	}
	if best < 0 || probs[best] < threshold {
		return 0, false
	}
	return best, true
}

// diploidGenotype returns the alleles of the g-th unphased diploid
// genotype in BGEN order: 0/0, 0/1, 1/1, 0/2, 1/2, 2/2, ...
func diploidGenotype(g int) (int, int) {
	b := 0
	for (b+1)*(b+2)/2 <= g {
		b++
	}
	return g - b*(b+1)/2, b
}
