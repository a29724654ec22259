// Package vcf reads genotype VCF files for ingestion into a variant store.
// Parsing is done by vcfgo; this package turns its variants into the
// int8 allele calls the store holds.
package vcf

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/biogo/hts/bgzf"
	"github.com/brentp/vcfgo"
	"github.com/carbocation/pfx"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Missing is the call returned for "." alleles and absent second alleles
// of haploid genotypes.
const Missing int8 = -1

const versionPrefix = "##fileformat=VCFv4"

// Header holds the file version, the sample columns and the declared INFO
// fields. INFO fields met in records without a declaration are added to
// Infos as strings.
type Header struct {
	Version string
	Samples []string
	Infos   map[string]*vcfgo.Info
}

// Record is one VCF data line.
type Record struct {
	Chromosome string
	Position   int64
	ID         string
	Ref        string
	Alt        []string
	Filter     string
	Info       map[string]string

	// Calls holds two allele calls per sample in header order.
	Calls []int8

	// Phased is true when every called diploid genotype used '|'.
	Phased bool
}

// Reader reads records sequentially.
type Reader struct {
	Header Header

	vr *vcfgo.Reader
}

// NewReader consumes the header from r. The header must name at least one
// sample.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReaderSize(r, 1<<20)

	first, err := peekLine(br)
	if !strings.HasPrefix(first, versionPrefix) {
		if err != nil {
			return nil, fmt.Errorf("Not a VCF file: %w", err)
		}
		return nil, fmt.Errorf("Not a VCF file: first line is %q", first)
	}

	vr, err := vcfgo.NewReader(br, false)
	if err != nil {
		return nil, pfx.Err(err)
	}
	if vr.Header == nil || len(vr.Header.SampleNames) == 0 {
		return nil, fmt.Errorf("The VCF header has no #CHROM line with sample columns")
	}
	if vr.Header.Infos == nil {
		vr.Header.Infos = make(map[string]*vcfgo.Info)
	}

	return &Reader{
		Header: Header{
			Version: strings.TrimPrefix(first, "##fileformat="),
			Samples: vr.Header.SampleNames,
			Infos:   vr.Header.Infos,
		},
		vr: vr,
	}, nil
}

// peekLine returns the first line of br without consuming it.
func peekLine(br *bufio.Reader) (string, error) {
	for n := 64; ; n *= 2 {
		b, err := br.Peek(n)
		if i := bytes.IndexByte(b, '\n'); i >= 0 {
			return strings.TrimRight(string(b[:i]), "\r"), nil
		}
		if err != nil {
			return string(b), err
		}
	}
}

// Read returns the next record, or io.EOF.
func (r *Reader) Read() (*Record, error) {
	v := r.vr.Read()
	if err := r.vr.Error(); err != nil {
		r.vr.Clear()
		return nil, pfx.Err(err)
	}
	if v == nil {
		return nil, io.EOF
	}

	rec := &Record{
		Chromosome: v.Chromosome,
		Position:   int64(v.Pos),
		ID:         v.Id(),
		Ref:        v.Reference,
		Alt:        v.Alternate,
		Filter:     v.Filter,
		Info:       r.info(v),
	}

	if !hasGT(v.Format) {
		return nil, fmt.Errorf("%s:%d: FORMAT %q has no GT field", rec.Chromosome, rec.Position, strings.Join(v.Format, ":"))
	}
	if len(v.Samples) != len(r.Header.Samples) {
		return nil, fmt.Errorf("%s:%d: %d samples, expected %d", rec.Chromosome, rec.Position, len(v.Samples), len(r.Header.Samples))
	}

	rec.Calls = make([]int8, 2*len(v.Samples))
	rec.Phased = true
	nAlleles := len(rec.Alt) + 1
	for i, s := range v.Samples {
		a, b, phased, err := genotype(s, nAlleles)
		if err != nil {
			return nil, fmt.Errorf("%s:%d, sample %s: %w", rec.Chromosome, rec.Position, r.Header.Samples[i], err)
		}
		rec.Calls[2*i], rec.Calls[2*i+1] = a, b
		if !phased {
			rec.Phased = false
		}
	}

	return rec, nil
}

func hasGT(format []string) bool {
	for _, key := range format {
		if key == "GT" {
			return true
		}
	}
	return false
}

// genotype converts a sample's GT. phased is false only for a diploid
// genotype with both alleles called and not marked phased.
func genotype(s *vcfgo.SampleGenotype, nAlleles int) (a, b int8, phased bool, err error) {
	if s == nil || len(s.GT) == 0 {
		return Missing, Missing, false, fmt.Errorf("no genotype")
	}
	if len(s.GT) > 2 {
		return Missing, Missing, false, fmt.Errorf("genotype %v has ploidy above 2", s.GT)
	}

	if a, err = allele(s.GT[0], nAlleles); err != nil {
		return Missing, Missing, false, err
	}
	if len(s.GT) == 1 {
		return a, Missing, true, nil
	}
	if b, err = allele(s.GT[1], nAlleles); err != nil {
		return Missing, Missing, false, err
	}

	phased = s.Phased || a == Missing || b == Missing
	return a, b, phased, nil
}

func allele(v, nAlleles int) (int8, error) {
	if v < 0 {
		return Missing, nil
	}
	if v >= nAlleles || v > 127 {
		return Missing, fmt.Errorf("allele %d is out of range for %d alleles", v, nAlleles)
	}
	return int8(v), nil
}

// info renders every INFO field of v as text. Flags map to "".
func (r *Reader) info(v *vcfgo.Variant) map[string]string {
	out := make(map[string]string)
	info := v.Info()
	if info == nil {
		return out
	}

	for _, key := range info.Keys() {
		if key == "" || key == "." {
			continue
		}
		if _, ok := r.Header.Infos[key]; !ok {
			r.Header.Infos[key] = &vcfgo.Info{Id: key, Number: "1", Type: "String", Description: "undeclared"}
		}

		val, err := info.Get(key)
		if err != nil {
			out[key] = ""
			continue
		}
		out[key] = infoString(val)
	}
	return out
}

func infoString(val interface{}) string {
	switch x := val.(type) {
	case nil, bool:
		return ""
	case string:
		return x
	case []string:
		return strings.Join(x, ",")
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case int:
		return strconv.Itoa(x)
	case []float64:
		parts := make([]string, len(x))
		for i, f := range x {
			parts[i] = infoString(f)
		}
		return strings.Join(parts, ",")
	case []float32:
		parts := make([]string, len(x))
		for i, f := range x {
			parts[i] = infoString(f)
		}
		return strings.Join(parts, ",")
	case []int:
		parts := make([]string, len(x))
		for i, n := range x {
			parts[i] = strconv.Itoa(n)
		}
		return strings.Join(parts, ",")
	case []interface{}:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = infoString(e)
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprint(val)
}

// InfoFloat returns the first value of a numeric INFO field.
func (r *Record) InfoFloat(key string) (float64, bool) {
	s, ok := r.Info[key]
	if !ok || s == "" || s == "." {
		return 0, false
	}
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[:i]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// File is a Reader over a file on disk.
type File struct {
	*Reader
	closers []io.Closer
}

// Open opens path, decompressing .bgz (BGZF), .gz and .zst files.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pfx.Err(err)
	}
	out := &File{closers: []io.Closer{f}}

	var r io.Reader = f
	switch {
	case strings.HasSuffix(path, ".bgz"):
		zr, err := bgzf.NewReader(f, 1)
		if err != nil {
			f.Close()
			return nil, pfx.Err(err)
		}
		out.closers = append([]io.Closer{zr}, out.closers...)
		r = zr
	case strings.HasSuffix(path, ".gz"):
		// bgzip output is a series of gzip members, which gzip reads as one stream
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, pfx.Err(err)
		}
		out.closers = append([]io.Closer{zr}, out.closers...)
		r = zr
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, pfx.Err(err)
		}
		out.closers = append([]io.Closer{zr.IOReadCloser()}, out.closers...)
		r = zr
	}

	if out.Reader, err = NewReader(r); err != nil {
		out.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

func (f *File) Close() error {
	var first error
	for _, c := range f.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
