package bgen

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Compression indicates how (and whether) the SNP block probability is compressed
type Compression uint32

const (
	CompressionDisabled Compression = iota
	CompressionZLIB
	CompressionZStandard
)

func (c Compression) String() string {
	switch c {
	case CompressionDisabled:
		return "none"
	case CompressionZLIB:
		return "zlib"
	case CompressionZStandard:
		return "zstd"
	default:
		return "Illegal selection"
	}
}

// Safe for concurrent DecodeAll calls.
var zstdDecoder, _ = zstd.NewReader(nil)

// decompress inflates src, which must expand to exactly size bytes. dst is
// reused when it is large enough.
func decompress(c Compression, dst, src []byte, size int) ([]byte, error) {
	switch c {
	case CompressionDisabled:
		return src, nil

	case CompressionZLIB:
		zr, err := zlib.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, err
		}
		defer zr.Close()

		if cap(dst) < size {
			dst = make([]byte, size)
		}
		dst = dst[:size]
		if _, err := io.ReadFull(zr, dst); err != nil {
			return nil, fmt.Errorf("zlib block: %w", err)
		}
		return dst, nil

	case CompressionZStandard:
		out, err := zstdDecoder.DecodeAll(src, dst[:0])
		if err != nil {
			return nil, err
		}
		if len(out) != size {
			return nil, fmt.Errorf("zstd block decompressed to %d bytes, expected %d", len(out), size)
		}
		return out, nil
	}

	return nil, fmt.Errorf("Compression %d is not supported", uint32(c))
}
