package bgen

import (
	"encoding/binary"
	"fmt"

	"github.com/carbocation/pfx"
)

// ReadSamples returns the sample IDs stored in the sample identifier block,
// in file order. The block must list exactly the header's number of
// samples, account for every one of its bytes, and hold no duplicate or
// empty IDs.
func ReadSamples(b *BGEN) ([]string, error) {
	if b.File == nil {
		return nil, pfx.Err(fmt.Errorf("b.File is nil"))
	}

	if b.FlagHasSampleIDs == 0 {
		return nil, pfx.Err(fmt.Errorf("This file indicates that it does not have sample IDs"))
	}

	// SamplesStart is at sample_block_length, and SamplesStart+4 is at
	// number_samples
	head := make([]byte, 8)
	if err := b.parseAtOffsetWithBuffer(int64(b.SamplesStart), head); err != nil {
		return nil, pfx.Err(err)
	}
	blockLength := binary.LittleEndian.Uint32(head[0:4])
	nSamples := binary.LittleEndian.Uint32(head[4:8])

	if nSamples != b.NSamples {
		return nil, fmt.Errorf("The sample block lists %d samples but the header declares %d", nSamples, b.NSamples)
	}
	if blockLength < 8 || int64(b.SamplesStart)+int64(blockLength) > int64(b.VariantsStart) {
		return nil, fmt.Errorf("The sample block length %d does not fit between offsets %d and %d", blockLength, b.SamplesStart, b.VariantsStart)
	}

	block := make([]byte, blockLength-8)
	if err := b.parseAtOffsetWithBuffer(int64(b.SamplesStart)+8, block); err != nil {
		return nil, pfx.Err(err)
	}

	samples := make([]string, 0, nSamples)
	seen := make(map[string]struct{}, nSamples)
	pos := 0
	for i := 0; i < int(nSamples); i++ {
		if pos+2 > len(block) {
			return nil, fmt.Errorf("The sample block ends after %d of %d samples", i, nSamples)
		}
		size := int(binary.LittleEndian.Uint16(block[pos:]))
		pos += 2
		if pos+size > len(block) {
			return nil, fmt.Errorf("Sample %d has length %d, past the end of the sample block", i, size)
		}

		id := string(block[pos : pos+size])
		pos += size
		if id == "" {
			return nil, fmt.Errorf("Sample %d has an empty ID", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("Sample ID %q appears more than once", id)
		}
		seen[id] = struct{}{}
		samples = append(samples, id)
	}

	if pos != len(block) {
		return nil, fmt.Errorf("The sample block has %d bytes after the last sample", len(block)-pos)
	}

	return samples, nil
}
