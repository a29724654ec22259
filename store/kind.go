package store

// Kind selects one of the two coordinate systems held per chromosome.
type Kind uint8

const (
	// Unphased genotypes are aligned with the Variant table.
	Unphased Kind = iota
	// Phased genotypes are aligned with their own, usually sparser,
	// PhasedVariant position index.
	Phased
)

func (k Kind) String() string {
	switch k {
	case Unphased:
		return "unphased"
	case Phased:
		return "phased"

	default:
		return "Illegal selection"
	}
}
