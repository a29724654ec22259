package bgen

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/carbocation/pfx"
)

type VariantReader struct {
	VariantsSeen  uint32
	b             *BGEN
	currentOffset int64
	err           error

	// Cached values
	buffer       []byte
	decompressed []byte
}

func (b *BGEN) NewVariantReader() *VariantReader {
	vr := &VariantReader{
		currentOffset: int64(b.VariantsStart),
		b:             b,
	}

	return vr
}

func (vr *VariantReader) Error() error {
	return vr.err
}

// Read returns the next variant, or nil once every variant announced by the
// header has been read or an error occurred. Check Error after a nil.
func (vr *VariantReader) Read() *Variant {
	if vr.err != nil || vr.VariantsSeen >= vr.b.NVariants {
		return nil
	}

	v, newOffset, err := vr.parseVariantAtOffset(vr.currentOffset)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		vr.err = pfx.Err(fmt.Errorf("variant %d at offset %d: %w", vr.VariantsSeen, vr.currentOffset, err))
		return nil
	}

	vr.VariantsSeen++
	vr.currentOffset = newOffset

	return v
}

// ReadAt parses the variant block starting at offset, such as a
// FileStartPosition from the .bgi index. It does not move the sequential
// reader.
func (vr *VariantReader) ReadAt(offset int64) (*Variant, error) {
	v, _, err := vr.parseVariantAtOffset(offset)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("variant at offset %d: %w", offset, err))
	}
	return v, nil
}

// parseVariantAtOffset does not mutate the VariantReader except for its
// scratch buffers.
func (vr *VariantReader) parseVariantAtOffset(offset int64) (*Variant, int64, error) {
	v := &Variant{}
	var err error

	readString := func() (string, error) {
		if err := vr.readNBytesAtOffset(2, offset); err != nil {
			return "", err
		}
		offset += 2
		stringSize := int(binary.LittleEndian.Uint16(vr.buffer[:2]))
		if err := vr.readNBytesAtOffset(stringSize, offset); err != nil {
			return "", err
		}
		offset += int64(stringSize)
		return string(vr.buffer[:stringSize]), nil
	}

	if vr.b.FlagLayout == Layout1 {
		// Layout1 repeats the number of samples in every variant
		if err = vr.readNBytesAtOffset(4, offset); err != nil {
			return nil, offset, err
		}
		offset += 4
		if n := binary.LittleEndian.Uint32(vr.buffer[:4]); n != vr.b.NSamples {
			return nil, offset, fmt.Errorf("variant declares %d samples, header has %d", n, vr.b.NSamples)
		}
	}

	if v.ID, err = readString(); err != nil {
		return nil, offset, err
	}
	if v.RSID, err = readString(); err != nil {
		return nil, offset, err
	}
	if v.Chromosome, err = readString(); err != nil {
		return nil, offset, err
	}

	// Position
	if err = vr.readNBytesAtOffset(4, offset); err != nil {
		return nil, offset, err
	}
	offset += 4
	v.Position = binary.LittleEndian.Uint32(vr.buffer[:4])

	// NAlleles
	if vr.b.FlagLayout == Layout1 {
		// Assumed to be 2 in Layout1
		v.NAlleles = 2
	} else {
		if err = vr.readNBytesAtOffset(2, offset); err != nil {
			return nil, offset, err
		}
		offset += 2
		v.NAlleles = binary.LittleEndian.Uint16(vr.buffer[:2])
	}

	// Allele slice
	v.Alleles = make([]Allele, 0, v.NAlleles)
	for i := uint16(0); i < v.NAlleles; i++ {
		if err = vr.readNBytesAtOffset(4, offset); err != nil {
			return nil, offset, err
		}
		offset += 4
		alleleLength := int(binary.LittleEndian.Uint32(vr.buffer[:4]))

		if err = vr.readNBytesAtOffset(alleleLength, offset); err != nil {
			return nil, offset, err
		}
		offset += int64(alleleLength)
		v.Alleles = append(v.Alleles, Allele(string(vr.buffer[:alleleLength])))
	}

	// Genotype data
	var block []byte
	if vr.b.FlagLayout == Layout1 {
		// From the BGEN format docs: "If CompressedSNPBlocks=0 this field is omitted
		// and the length of the uncompressed data is C=6N."
		size := 6 * int(vr.b.NSamples)
		if vr.b.FlagCompression == CompressionDisabled {
			if err = vr.readNBytesAtOffset(size, offset); err != nil {
				return nil, offset, err
			}
			offset += int64(size)
			block = vr.buffer[:size]
		} else {
			if err = vr.readNBytesAtOffset(4, offset); err != nil {
				return nil, offset, err
			}
			offset += 4
			genoBlockLength := int(binary.LittleEndian.Uint32(vr.buffer[:4]))

			if err = vr.readNBytesAtOffset(genoBlockLength, offset); err != nil {
				return nil, offset, err
			}
			offset += int64(genoBlockLength)
			if block, err = vr.inflate(vr.buffer[:genoBlockLength], size); err != nil {
				return nil, offset, err
			}
		}

		if v.Probabilities, err = parseLayout1Probabilities(block, vr.b.NSamples); err != nil {
			return nil, offset, err
		}
		return v, offset, nil
	}

	// The genotype layout data block for Layout2 is guaranteed to have a 4
	// byte chunk that indicates how much data is left for this block
	// (skipping ahead by this much will bring you to the next chunk).
	if err = vr.readNBytesAtOffset(4, offset); err != nil {
		return nil, offset, err
	}
	offset += 4
	nextDataOffset := int(binary.LittleEndian.Uint32(vr.buffer[:4]))

	if vr.b.FlagCompression == CompressionDisabled {
		// If compression is disabled, it will not have the second 4 byte
		// chunk that indicates how large the data chunk is after
		// decompression.
		if err = vr.readNBytesAtOffset(nextDataOffset, offset); err != nil {
			return nil, offset, err
		}
		offset += int64(nextDataOffset)
		block = vr.buffer[:nextDataOffset]
	} else {
		if nextDataOffset < 4 {
			return nil, offset, fmt.Errorf("compressed genotype block of %d bytes", nextDataOffset)
		}
		if err = vr.readNBytesAtOffset(4, offset); err != nil {
			return nil, offset, err
		}
		offset += 4
		decompressedDataLength := int(binary.LittleEndian.Uint32(vr.buffer[:4]))

		// From the BGEN format docs: "If CompressedSNPBlocks is nonzero, this is C-4
		// bytes which can be uncompressed to form D bytes in the format
		// described below." For us, "C" is nextDataOffset.
		genoBlockDataSizeToDecompress := nextDataOffset - 4
		if err = vr.readNBytesAtOffset(genoBlockDataSizeToDecompress, offset); err != nil {
			return nil, offset, err
		}
		offset += int64(genoBlockDataSizeToDecompress)
		if block, err = vr.inflate(vr.buffer[:genoBlockDataSizeToDecompress], decompressedDataLength); err != nil {
			return nil, offset, err
		}
	}

	if v.Probabilities, err = parseLayout2Probabilities(block, v.NAlleles); err != nil {
		return nil, offset, err
	}
	if v.Probabilities.NSamples != vr.b.NSamples {
		return nil, offset, fmt.Errorf("genotype block has %d samples, header has %d", v.Probabilities.NSamples, vr.b.NSamples)
	}

	return v, offset, nil
}

func (vr *VariantReader) inflate(src []byte, size int) ([]byte, error) {
	out, err := decompress(vr.b.FlagCompression, vr.decompressed, src, size)
	if err != nil {
		return nil, err
	}
	vr.decompressed = out
	return out, nil
}

func (vr *VariantReader) readNBytesAtOffset(N int, offset int64) error {
	if vr.buffer == nil || len(vr.buffer) < N {
		vr.buffer = make([]byte, N)
	}

	_, err := vr.b.File.ReadAt(vr.buffer[:N], offset)
	return err
}
