package stats

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Statistic codes.
const (
	StatSeqDiv   = "seq_div"
	StatWattThet = "watt_thet"
	StatTajD     = "taj_d"
	StatHapDiv   = "hap_div"
	StatFst      = "fst"
)

// Placeholders written in place of values.
const (
	Undefined   = "*"
	Unavailable = "**"
)

// ErrInvalidQuery is returned for statistic and population requests that
// cannot be answered.
var ErrInvalidQuery = errors.New("invalid query")

// SummaryStatistics is the column order of summary tables.
var SummaryStatistics = []string{StatSeqDiv, StatWattThet, StatTajD, StatHapDiv}

// StatisticNames maps statistic codes to display names.
var StatisticNames = map[string]string{
	StatSeqDiv:   "Nucleotide Diversity",
	StatWattThet: "Watterson's Theta",
	StatTajD:     "Tajima's D",
	StatHapDiv:   "Haplotype Diversity",
	StatFst:      "Fst (Hudson's)",
}

// Populations is the closed set of super-population labels.
var Populations = []string{"AFR", "AMR", "EAS", "EUR", "SAS"}

// PopulationNames maps super-population labels to display names.
var PopulationNames = map[string]string{
	"AFR": "African",
	"AMR": "Ad Mixed American",
	"EAS": "East Asian",
	"EUR": "European",
	"SAS": "South Asian",
}

// Decimals is the precision of reported values.
const Decimals = 4

// Round rounds v to Decimals places.
func Round(v float64) float64 {
	p := math.Pow10(Decimals)
	r := math.Round(v*p) / p
	if r == 0 {
		// No negative zero.
		return 0
	}
	return r
}

// Cell is one summary table entry: a value, or a placeholder when the
// value could not be computed.
type Cell struct {
	Value       float64
	Placeholder string
}

func valueCell(v float64) Cell {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Cell{Placeholder: Undefined}
	}
	return Cell{Value: Round(v)}
}

func (c Cell) String() string {
	if c.Placeholder != "" {
		return c.Placeholder
	}
	return strconv.FormatFloat(c.Value, 'f', -1, 64)
}

// ParseCell reads a cell written by String.
func ParseCell(s string) (Cell, error) {
	if s == Undefined || s == Unavailable {
		return Cell{Placeholder: s}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Cell{}, fmt.Errorf("summary cell %q: %w", s, err)
	}
	return Cell{Value: v}, nil
}

type SummaryRow struct {
	Population string
	Cells      []Cell
}

// SummaryTable has one row per population and one column per statistic.
type SummaryTable struct {
	Statistics []string
	Rows       []SummaryRow
}

// Header is "Population" followed by the statistic codes.
func (t *SummaryTable) Header() []string {
	return append([]string{"Population"}, t.Statistics...)
}

// Records renders the header and every row as text.
func (t *SummaryTable) Records() [][]string {
	out := [][]string{t.Header()}
	for _, r := range t.Rows {
		rec := []string{r.Population}
		for _, c := range r.Cells {
			rec = append(rec, c.String())
		}
		out = append(out, rec)
	}
	return out
}

// Get returns the cell of one population and statistic.
func (t *SummaryTable) Get(pop, stat string) (Cell, bool) {
	col := -1
	for i, s := range t.Statistics {
		if s == stat {
			col = i
		}
	}
	if col < 0 {
		return Cell{}, false
	}
	for _, r := range t.Rows {
		if r.Population == pop {
			return r.Cells[col], true
		}
	}
	return Cell{}, false
}

// SummaryFromRecords parses the output of Records.
func SummaryFromRecords(records [][]string) (*SummaryTable, error) {
	if len(records) == 0 || len(records[0]) == 0 || records[0][0] != "Population" {
		return nil, fmt.Errorf("summary table has no Population header")
	}

	t := &SummaryTable{Statistics: append([]string(nil), records[0][1:]...)}
	for i, rec := range records[1:] {
		if len(rec) != len(records[0]) {
			return nil, fmt.Errorf("summary row %d has %d fields, expected %d", i+1, len(rec), len(records[0]))
		}
		row := SummaryRow{Population: rec[0]}
		for _, s := range rec[1:] {
			c, err := ParseCell(s)
			if err != nil {
				return nil, err
			}
			row.Cells = append(row.Cells, c)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// FstLabel names a population pair.
func FstLabel(pop1, pop2 string) string {
	return pop1 + " vs. " + pop2
}

type FstRow struct {
	Populations string
	Fst         float64
}

// FstTable holds Hudson's Fst for every unordered pair of populations.
type FstTable struct {
	Rows []FstRow
}

func (t *FstTable) Records() [][]string {
	out := [][]string{{"Populations", StatFst}}
	for _, r := range t.Rows {
		out = append(out, []string{r.Populations, strconv.FormatFloat(r.Fst, 'f', -1, 64)})
	}
	return out
}

// FstFromRecords parses the output of Records.
func FstFromRecords(records [][]string) (*FstTable, error) {
	if len(records) == 0 || len(records[0]) != 2 {
		return nil, fmt.Errorf("fst table header malformed")
	}

	t := &FstTable{}
	for i, rec := range records[1:] {
		if len(rec) != 2 {
			return nil, fmt.Errorf("fst row %d has %d fields, expected 2", i+1, len(rec))
		}
		v, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("fst row %d: %w", i+1, err)
		}
		t.Rows = append(t.Rows, FstRow{Populations: rec[0], Fst: v})
	}
	return t, nil
}
