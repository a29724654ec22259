package bgen

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbocation/popgen/internal/bgentest"
)

func testVariants() []bgentest.Variant {
	return []bgentest.Variant{
		{ID: "v1", RSID: "rs1", Chromosome: "01", Position: 100, Alleles: []string{"A", "G"},
			Calls: []int8{0, 0, 0, 1, 1, 1}},
		{ID: "v2", RSID: "rs2", Chromosome: "01", Position: 250, Alleles: []string{"C", "T"},
			Calls: []int8{1, 1, -1, -1, 0, 0}},
		{ID: "v3", RSID: "rs3", Chromosome: "01", Position: 400, Alleles: []string{"G", "GA"}, Phased: true,
			Calls: []int8{1, 0, 0, 1, 1, 1}},
	}
}

// Layout 1 files are written by hand; bgentest only writes Layout 2.

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

func TestReadLayout2(t *testing.T) {
	samples := []string{"S1", "S2", "S3"}

	for _, c := range []Compression{CompressionDisabled, CompressionZLIB, CompressionZStandard} {
		t.Run(c.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "test.bgen")
			bgentest.Write(t, path, uint32(c), samples, testVariants())

			b, err := Open(path)
			require.NoError(t, err)
			defer b.Close()

			assert.Equal(t, uint32(3), b.NVariants)
			assert.Equal(t, uint32(3), b.NSamples)
			assert.Equal(t, Layout2, b.FlagLayout)
			assert.Equal(t, c, b.FlagCompression)
			assert.Equal(t, uint32(1), b.FlagHasSampleIDs)

			got, err := ReadSamples(b)
			require.NoError(t, err)
			assert.Equal(t, samples, got)

			vr := b.NewVariantReader()
			for _, want := range testVariants() {
				v := vr.Read()
				require.NotNil(t, v, vr.Error())
				assert.Equal(t, want.ID, v.ID)
				assert.Equal(t, want.RSID, v.RSID)
				assert.Equal(t, "1", NormalizeChromosome(v.Chromosome))
				assert.Equal(t, want.Position, v.Position)
				assert.Len(t, v.Alleles, 2)
				assert.Equal(t, Allele(want.Alleles[1]), v.Alleles[1])
				assert.Equal(t, want.Phased, v.Probabilities.Phased)

				calls, err := v.Probabilities.HardCalls(0.9)
				require.NoError(t, err)
				assert.Equal(t, want.Calls, calls)
			}
			assert.Nil(t, vr.Read())
			assert.NoError(t, vr.Error())
			assert.Equal(t, uint32(3), vr.VariantsSeen)
		})
	}
}

func TestReadAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bgen")
	offsets, _ := bgentest.Write(t, path, uint32(CompressionZLIB), []string{"S1", "S2", "S3"}, testVariants())

	b, err := Open(path)
	require.NoError(t, err)
	defer b.Close()

	vr := b.NewVariantReader()
	v, err := vr.ReadAt(offsets[2])
	require.NoError(t, err)
	assert.Equal(t, "rs3", v.RSID)

	// The sequential reader is unaffected.
	first := vr.Read()
	require.NotNil(t, first)
	assert.Equal(t, "rs1", first.RSID)
}

func TestOpenRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bgen")
	bgentest.Write(t, path, uint32(CompressionDisabled), []string{"S1"}, nil)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	copy(data[offsetMagicNumber:], "nope")
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err = Open(path)
	assert.Error(t, err)
}

func TestReadSamplesRejectsBadBlock(t *testing.T) {
	samples := []string{"S1", "S2", "S3"}

	cases := []struct {
		name  string
		patch func(data []byte, samplesStart int)
	}{
		{"count differs from header", func(data []byte, at int) {
			binary.LittleEndian.PutUint32(data[at+4:], 2)
		}},
		{"length past the variants", func(data []byte, at int) {
			binary.LittleEndian.PutUint32(data[at:], 4096)
		}},
		{"duplicate ID", func(data []byte, at int) {
			// second ID "S2" -> "S1"
			data[at+8+4+3] = '1'
		}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "test.bgen")
			bgentest.Write(t, path, uint32(CompressionDisabled), samples, testVariants())

			b, err := Open(path)
			require.NoError(t, err)
			at := int(b.SamplesStart)
			b.Close()

			got, err := func() ([]string, error) {
				data, err := os.ReadFile(path)
				require.NoError(t, err)
				c.patch(data, at)
				require.NoError(t, os.WriteFile(path, data, 0644))

				b, err := Open(path)
				require.NoError(t, err)
				defer b.Close()
				return ReadSamples(b)
			}()
			assert.Error(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestReadLayout1(t *testing.T) {
	var body bytes.Buffer
	const headerLength = 20
	put32(&body, headerLength)
	put32(&body, headerLength)
	put32(&body, 1)
	put32(&body, 2)
	body.WriteString(MagicNumber)
	put32(&body, uint32(CompressionDisabled)|uint32(Layout1)<<2)

	put32(&body, 2)
	putString16(&body, "v1")
	putString16(&body, "rs9")
	putString16(&body, "22")
	put32(&body, 5000)
	for _, a := range []string{"A", "T"} {
		put32(&body, uint32(len(a)))
		body.WriteString(a)
	}
	// Sample 1 is a heterozygote; sample 2 is missing.
	for _, p := range []uint16{0, 32768, 0, 0, 0, 0} {
		put16(&body, p)
	}

	path := filepath.Join(t.TempDir(), "layout1.bgen")
	require.NoError(t, os.WriteFile(path, body.Bytes(), 0644))

	b, err := Open(path)
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, Layout1, b.FlagLayout)

	_, err = ReadSamples(b)
	assert.Error(t, err)

	vr := b.NewVariantReader()
	v := vr.Read()
	require.NotNil(t, v, vr.Error())
	assert.Equal(t, "22", v.Chromosome)
	assert.Equal(t, uint32(5000), v.Position)

	calls, err := v.Probabilities.HardCalls(0.9)
	require.NoError(t, err)
	assert.Equal(t, []int8{0, 1, -1, -1}, calls)
}

func TestHardCallsThreshold(t *testing.T) {
	p := &Probability{
		NAlleles: 2,
		SampleProbabilities: []*SampleProbability{
			{Ploidy: 2, Probabilities: []float64{0.5, 0.5, 0}},
			{Ploidy: 2, Probabilities: []float64{0.05, 0.05, 0.9}},
			{Ploidy: 1, Probabilities: []float64{0, 1}},
		},
	}

	calls, err := p.HardCalls(0.9)
	require.NoError(t, err)
	assert.Equal(t, []int8{-1, -1, 1, 1, 1, -1}, calls)

	calls, err = p.HardCalls(0.5)
	require.NoError(t, err)
	assert.Equal(t, []int8{0, 0, 1, 1, 1, -1}, calls)

	p.SampleProbabilities[0].Ploidy = 3
	_, err = p.HardCalls(0.9)
	assert.Error(t, err)
}

func TestDiploidGenotypeOrder(t *testing.T) {
	want := [][2]int{{0, 0}, {0, 1}, {1, 1}, {0, 2}, {1, 2}, {2, 2}, {0, 3}}
	for g, w := range want {
		a, b := diploidGenotype(g)
		assert.Equal(t, w, [2]int{a, b}, "genotype %d", g)
	}
}

func TestChoose(t *testing.T) {
	assert.Equal(t, 3, Choose(3, 1))
	assert.Equal(t, 6, Choose(4, 2))
	assert.Equal(t, 10, Choose(5, 2))
	assert.Equal(t, 1, Choose(1, 1))
}

func TestNormalizeChromosome(t *testing.T) {
	for in, want := range map[string]string{
		"01":    "1",
		"1":     "1",
		"chr22": "22",
		"23":    "X",
		"0X":    "X",
		"chrX":  "X",
		"MT":    "MT",
		"chrM":  "MT",
		"254":   "MT",
		"HLA":   "HLA",
	} {
		assert.Equal(t, want, NormalizeChromosome(in), in)
	}
}
