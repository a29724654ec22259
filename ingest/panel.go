package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/carbocation/pfx"

	"github.com/carbocation/popgen/store"
)

// Panel column names, as in the 1000 Genomes integrated call sample panel.
const (
	PanelSample   = "sample"
	PanelPop      = "pop"
	PanelSuperPop = "super_pop"
	PanelGender   = "gender"
)

// ReadPanel reads a tab-separated sample panel whose header names the
// sample, pop, super_pop and gender columns. Extra columns are ignored.
func ReadPanel(path string) ([]store.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer f.Close()

	samples, err := readPanel(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return samples, nil
}

func readPanel(r io.Reader) ([]store.Sample, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty panel")
	} else if err != nil {
		return nil, pfx.Err(err)
	}

	cols := make(map[string]int)
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	idx := make([]int, 4)
	for i, name := range []string{PanelSample, PanelPop, PanelSuperPop, PanelGender} {
		col, ok := cols[name]
		if !ok {
			return nil, fmt.Errorf("panel header has no %q column", name)
		}
		idx[i] = col
	}

	var out []store.Sample
	seen := make(map[string]struct{})
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, pfx.Err(err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}

		for _, col := range idx {
			if col >= len(rec) {
				return nil, fmt.Errorf("line %d has %d columns", line, len(rec))
			}
		}

		s := store.Sample{
			ID:              strings.TrimSpace(rec[idx[0]]),
			Population:      strings.TrimSpace(rec[idx[1]]),
			SuperPopulation: strings.TrimSpace(rec[idx[2]]),
			Sex:             strings.TrimSpace(rec[idx[3]]),
		}
		if s.ID == "" {
			return nil, fmt.Errorf("line %d has no sample id", line)
		}
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("line %d: sample %s listed twice", line, s.ID)
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("panel lists no samples")
	}
	return out, nil
}

// matchSamples keeps the panel entries present in the file, in file order.
// cols[i] is the file column of the i-th kept sample.
func matchSamples(fileSamples []string, panel []store.Sample) ([]store.Sample, []int, error) {
	byID := make(map[string]store.Sample, len(panel))
	for _, s := range panel {
		byID[s.ID] = s
	}

	var samples []store.Sample
	var cols []int
	for col, id := range fileSamples {
		s, ok := byID[id]
		if !ok {
			continue
		}
		samples = append(samples, s)
		cols = append(cols, col)
		delete(byID, id)
	}

	if len(samples) == 0 {
		return nil, nil, fmt.Errorf("none of the %d file samples are in the panel", len(fileSamples))
	}
	return samples, cols, nil
}

// columnsFor finds the file column of every sample, which must all be
// present.
func columnsFor(fileSamples []string, samples []store.Sample) ([]int, error) {
	pos := make(map[string]int, len(fileSamples))
	for col, id := range fileSamples {
		pos[id] = col
	}
	cols := make([]int, len(samples))
	for i, s := range samples {
		col, ok := pos[s.ID]
		if !ok {
			return nil, fmt.Errorf("sample %s is missing", s.ID)
		}
		cols[i] = col
	}
	return cols, nil
}

// remap picks the calls of the kept samples out of a file's calls.
func remap(calls []int8, cols []int, out []int8) []int8 {
	out = out[:0]
	for _, col := range cols {
		out = append(out, calls[2*col], calls[2*col+1])
	}
	return out
}
