package bgen

import (
	"io"
)

// Via https://play.golang.org/p/rn0bAjeEGtK, reworked for BGEN's packing:
// values are stored least significant bit first, starting from the least
// significant bit of each byte.

type bitReader struct {
	reader io.ByteReader
	byte   byte
	offset byte

	errCache    error
	lastBit     bool
	resultCache uint64
}

func newBitReader(r io.ByteReader) *bitReader {
	return &bitReader{r, 0, 0, nil, false, 0}
}

func (r *bitReader) ReadBit() (bool, error) {
	if r.offset == 8 {
		r.offset = 0
	}
	if r.offset == 0 {
		if r.byte, r.errCache = r.reader.ReadByte(); r.errCache != nil {
			return false, r.errCache
		}
	}
	r.lastBit = (r.byte>>r.offset)&1 != 0
	r.offset++
	return r.lastBit, nil
}

// ReadUint reads an nbits wide unsigned value, nbits <= 64.
func (r *bitReader) ReadUint(nbits int) (uint64, error) {
	r.resultCache = 0
	for i := 0; i < nbits; i++ {
		r.lastBit, r.errCache = r.ReadBit()
		if r.errCache != nil {
			return 0, r.errCache
		}
		if r.lastBit {
			r.resultCache |= 1 << uint(i)
		}
	}
	return r.resultCache, nil
}
