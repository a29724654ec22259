// Package artifact persists the outcome of a query under a caller-chosen
// identifier, so that windowed statistics can later be computed without
// repeating the filtering.
//
// Each query gets its own directory:
//
//	query.toml         the query
//	stats.csv          summary table
//	fst.csv            pairwise Fst, when requested
//	seg_pos.npy        segregating positions, int64
//	ac_seg.arrow       allele counts per population at those positions
//	variants.tsv.zst   the segregating variant records
package artifact

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/BurntSushi/toml"
	"github.com/carbocation/pfx"
	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"

	"github.com/carbocation/popgen"
	"github.com/carbocation/popgen/alleles"
	"github.com/carbocation/popgen/stats"
)

const (
	QueryFile     = "query.toml"
	StatsFile     = "stats.csv"
	FstFile       = "fst.csv"
	PositionsFile = "seg_pos.npy"
	CountsFile    = "ac_seg.arrow"
	VariantsFile  = "variants.tsv.zst"
)

// ErrNotFound is returned for identifiers with no saved artifacts.
var ErrNotFound = errors.New("artifact not found")

var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Dir is a directory of saved queries.
type Dir struct {
	Root string
}

// Saved is what Load returns.
type Saved struct {
	Query     popgen.Query
	Summary   *stats.SummaryTable
	Fst       *stats.FstTable
	Positions []int64
	Counts    *alleles.Table
}

func (d Dir) path(id string) (string, error) {
	if !validID.MatchString(id) {
		return "", fmt.Errorf("%q is not a valid query id", id)
	}
	return filepath.Join(d.Root, id), nil
}

// Save writes every artifact of r under id, replacing earlier ones.
func (d Dir) Save(id string, q popgen.Query, r *popgen.Result) error {
	dir, err := d.path(id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return pfx.Err(err)
	}

	if err := writeQuery(filepath.Join(dir, QueryFile), q); err != nil {
		return err
	}
	if err := writeCSV(filepath.Join(dir, StatsFile), r.Summary.Records()); err != nil {
		return err
	}

	fstPath := filepath.Join(dir, FstFile)
	if r.Fst != nil {
		if err := writeCSV(fstPath, r.Fst.Records()); err != nil {
			return err
		}
	} else if err := os.Remove(fstPath); err != nil && !os.IsNotExist(err) {
		return pfx.Err(err)
	}

	if err := writePositions(filepath.Join(dir, PositionsFile), r.SegregatingPositions); err != nil {
		return err
	}
	if err := writeCounts(filepath.Join(dir, CountsFile), r.Counts); err != nil {
		return err
	}
	if err := writeVariants(filepath.Join(dir, VariantsFile), r.Variants); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"id":          id,
		"dir":         dir,
		"segregating": len(r.SegregatingPositions),
	}).Info("saved query artifacts")

	return nil
}

// Load reads back everything Save wrote except the variant records.
func (d Dir) Load(id string) (*Saved, error) {
	dir, err := d.path(id)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(dir, QueryFile)); os.IsNotExist(err) {
		return nil, fmt.Errorf("query %s: %w", id, ErrNotFound)
	}

	s := &Saved{}
	if _, err := toml.DecodeFile(filepath.Join(dir, QueryFile), &s.Query); err != nil {
		return nil, pfx.Err(err)
	}

	records, err := readCSV(filepath.Join(dir, StatsFile))
	if err != nil {
		return nil, err
	}
	if s.Summary, err = stats.SummaryFromRecords(records); err != nil {
		return nil, pfx.Err(err)
	}

	if records, err := readCSV(filepath.Join(dir, FstFile)); err == nil {
		if s.Fst, err = stats.FstFromRecords(records); err != nil {
			return nil, pfx.Err(err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if s.Positions, err = readPositions(filepath.Join(dir, PositionsFile)); err != nil {
		return nil, err
	}
	if s.Counts, err = readCounts(filepath.Join(dir, CountsFile)); err != nil {
		return nil, err
	}
	if s.Counts.Len() != len(s.Positions) {
		return nil, fmt.Errorf("query %s: %d positions but %d counted variants", id, len(s.Positions), s.Counts.Len())
	}

	return s, nil
}

// Window computes a windowed series from the working set saved under id.
// pop2 may be empty except for Fst.
func (d Dir) Window(id string, size, step int64, statistic, pop1, pop2 string) (stats.Series, error) {
	s, err := d.Load(id)
	if err != nil {
		return nil, err
	}

	return stats.Windowed(stats.WindowInput{
		Positions: s.Positions,
		Counts:    s.Counts,
		Size:      size,
		Step:      step,
		Statistic: statistic,
		Pop1:      pop1,
		Pop2:      pop2,
	})
}

func writeQuery(path string, q popgen.Query) error {
	f, err := os.Create(path)
	if err != nil {
		return pfx.Err(err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(q); err != nil {
		return pfx.Err(err)
	}
	if err := f.Close(); err != nil {
		return pfx.Err(err)
	}
	return nil
}

func writeCSV(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return pfx.Err(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		return pfx.Err(err)
	}
	if err := f.Close(); err != nil {
		return pfx.Err(err)
	}
	return nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, pfx.Err(err)
	}
	return records, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

func writePositions(path string, pos []int64) error {
	output, err := os.Create(path)
	if err != nil {
		return pfx.Err(err)
	}
	defer output.Close()

	bufw := bufio.NewWriter(output)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return pfx.Err(err)
	}
	npw.Shape = []int{len(pos)}
	if err := npw.WriteInt64(pos); err != nil {
		return pfx.Err(err)
	}
	if err := bufw.Flush(); err != nil {
		return pfx.Err(err)
	}
	if err := output.Close(); err != nil {
		return pfx.Err(err)
	}
	return nil
}

func readPositions(path string) ([]int64, error) {
	r, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, pfx.Err(err)
	}
	if len(r.Shape) != 1 {
		return nil, fmt.Errorf("%s: expected a 1-d array, got shape %v", path, r.Shape)
	}

	pos, err := r.GetInt64()
	if err != nil {
		return nil, pfx.Err(err)
	}
	return pos, nil
}
