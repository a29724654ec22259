// Package bgentest writes small BGEN v1.2 Layout 2 files for tests.
package bgentest

import (
	"bytes"
	"encoding/binary"
	"os"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	"github.com/carbocation/popgen/internal/sqlitedb"
)

// Compression flag values.
const (
	None = 0
	ZLIB = 1
	ZSTD = 2
)

// Variant is one biallelic diploid variant. Calls holds two allele calls
// per sample, -1 for a missing sample; they are written as 8-bit
// probabilities of exactly 0 or 1.
type Variant struct {
	ID, RSID, Chromosome string
	Position             uint32
	Alleles              []string
	Phased               bool
	Calls                []int8
}

func put16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func put32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func putString16(buf *bytes.Buffer, s string) {
	put16(buf, uint16(len(s)))
	buf.WriteString(s)
}

func block(v Variant) []byte {
	n := len(v.Calls) / 2
	var buf bytes.Buffer
	put32(&buf, uint32(n))
	put16(&buf, uint16(len(v.Alleles)))
	buf.WriteByte(2)
	buf.WriteByte(2)
	for i := 0; i < n; i++ {
		ploidy := byte(2)
		if v.Calls[2*i] < 0 {
			ploidy |= 0x80
		}
		buf.WriteByte(ploidy)
	}
	if v.Phased {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	buf.WriteByte(8)

	for i := 0; i < n; i++ {
		a, b := v.Calls[2*i], v.Calls[2*i+1]
		switch {
		case a < 0:
			// Missing samples still carry their values.
			buf.Write([]byte{0, 0})
		case v.Phased:
			for _, h := range []int8{a, b} {
				if h == 0 {
					buf.WriteByte(255)
				} else {
					buf.WriteByte(0)
				}
			}
		default:
			switch a + b {
			case 0:
				buf.Write([]byte{255, 0})
			case 1:
				buf.Write([]byte{0, 255})
			default:
				buf.Write([]byte{0, 0})
			}
		}
	}
	return buf.Bytes()
}

func compress(t testing.TB, c uint32, data []byte) []byte {
	switch c {
	case ZLIB:
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		_, err := zw.Write(data)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		return buf.Bytes()
	case ZSTD:
		enc, err := zstd.NewWriter(nil)
		require.NoError(t, err)
		defer enc.Close()
		return enc.EncodeAll(data, nil)
	}
	return data
}

// Write writes a BGEN file with sample IDs and returns the offset and size
// of every variant block. A nil samples slice leaves the IDs out; nSamples
// is then taken from the first variant.
func Write(t testing.TB, path string, compression uint32, samples []string, variants []Variant) (offsets, sizes []int64) {
	var body bytes.Buffer

	nSamples := len(samples)
	var flags uint32 = compression | 2<<2
	var sampleBlock bytes.Buffer
	if samples != nil {
		flags |= 1 << 31
		put32(&sampleBlock, 0) // length, patched below
		put32(&sampleBlock, uint32(len(samples)))
		for _, s := range samples {
			putString16(&sampleBlock, s)
		}
		binary.LittleEndian.PutUint32(sampleBlock.Bytes(), uint32(sampleBlock.Len()))
	} else if len(variants) > 0 {
		nSamples = len(variants[0].Calls) / 2
	}

	const headerLength = 20
	put32(&body, uint32(headerLength+sampleBlock.Len()))
	put32(&body, headerLength)
	put32(&body, uint32(len(variants)))
	put32(&body, uint32(nSamples))
	body.WriteString("bgen")
	put32(&body, flags)
	body.Write(sampleBlock.Bytes())

	for _, v := range variants {
		start := body.Len()
		offsets = append(offsets, int64(start))

		putString16(&body, v.ID)
		putString16(&body, v.RSID)
		putString16(&body, v.Chromosome)
		put32(&body, v.Position)
		put16(&body, uint16(len(v.Alleles)))
		for _, a := range v.Alleles {
			put32(&body, uint32(len(a)))
			body.WriteString(a)
		}

		data := block(v)
		if compression == None {
			put32(&body, uint32(len(data)))
			body.Write(data)
		} else {
			packed := compress(t, compression, data)
			put32(&body, uint32(len(packed)+4))
			put32(&body, uint32(len(data)))
			body.Write(packed)
		}
		sizes = append(sizes, int64(body.Len()-start))
	}

	require.NoError(t, os.WriteFile(path, body.Bytes(), 0644))
	return offsets, sizes
}

// WriteIndex writes a .bgi index for variants written at offsets.
func WriteIndex(t testing.TB, path string, variants []Variant, offsets, sizes []int64) {
	db, err := sqlitedb.Connect(path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE Variant (
		chromosome TEXT NOT NULL,
		position INT NOT NULL,
		rsid TEXT,
		number_of_alleles INT NOT NULL,
		allele1 TEXT NOT NULL,
		allele2 TEXT NULL,
		file_start_position INT NOT NULL,
		size_in_bytes INT NOT NULL
	)`)
	require.NoError(t, err)

	for i, v := range variants {
		_, err := db.Exec("INSERT INTO Variant VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			v.Chromosome, v.Position, v.RSID, len(v.Alleles), v.Alleles[0], v.Alleles[1], offsets[i], sizes[i])
		require.NoError(t, err)
	}
}
