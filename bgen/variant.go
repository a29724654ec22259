package bgen

// Allele is one allele string of a variant.
type Allele string

func (a Allele) String() string {
	return string(a)
}

type Variant struct {
	ID            string
	RSID          string
	Chromosome    string
	Position      uint32
	NAlleles      uint16
	Alleles       []Allele
	Probabilities *Probability
}
