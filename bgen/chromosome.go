package bgen

import (
	"strconv"
	"strings"
)

// NormalizeChromosome maps the chromosome spellings found in BGEN files
// ("01", "chr1", "23", "0X") onto the plain names used by the store ("1",
// "X"). Unrecognized names are returned unchanged.
func NormalizeChromosome(chr string) string {
	chr = strings.TrimPrefix(strings.TrimPrefix(chr, "chr"), "CHR")

	if n, err := strconv.Atoi(chr); err == nil {
		switch {
		case n >= 1 && n <= 22:
			return strconv.Itoa(n)
		case n == 23:
			return "X"
		case n == 24:
			return "Y"
		case n == 25 || n == 253:
			return "XY"
		case n == 26 || n == 254:
			return "MT"
		}
		return chr
	}

	switch trimmed := strings.TrimLeft(chr, "0"); trimmed {
	case "X", "Y", "XY", "MT":
		return trimmed
	case "M":
		return "MT"
	}

	return chr
}
