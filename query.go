package popgen

import (
	"fmt"
	"strings"

	"github.com/carbocation/popgen/config"
	"github.com/carbocation/popgen/stats"
)

// Query describes what to compute. Start and Stop are inclusive and are
// only applied when both are set.
type Query struct {
	Chromosome  string   `toml:"chromosome"`
	Start       *int64   `toml:"start,omitempty"`
	Stop        *int64   `toml:"stop,omitempty"`
	Gene        string   `toml:"gene,omitempty"`
	Marker      string   `toml:"marker,omitempty"`
	Statistics  []string `toml:"statistics"`
	Populations []string `toml:"populations"`
}

// Validate applies the checks made before a query reaches Compute.
func Validate(q Query, cfg config.Config) error {
	if q.Chromosome == "" {
		return fmt.Errorf("no chromosome given: %w", ErrInvalidQuery)
	}

	if (q.Start == nil) != (q.Stop == nil) {
		return fmt.Errorf("start and stop must be given together: %w", ErrInvalidQuery)
	}
	if q.Start != nil {
		if *q.Start > *q.Stop {
			return fmt.Errorf("start %d is after stop %d: %w", *q.Start, *q.Stop, ErrInvalidQuery)
		}
		if *q.Stop-*q.Start > cfg.MaxRangeBP {
			return fmt.Errorf("range of %d bases exceeds the limit of %d: %w", *q.Stop-*q.Start, cfg.MaxRangeBP, ErrInvalidQuery)
		}
	}

	if len(q.Populations) == 0 {
		return fmt.Errorf("no populations selected: %w", ErrInvalidQuery)
	}
	seen := make(map[string]bool, len(q.Populations))
	for _, p := range q.Populations {
		if _, ok := stats.PopulationNames[p]; !ok {
			return fmt.Errorf("unknown population %q: %w", p, ErrInvalidQuery)
		}
		if seen[p] {
			return fmt.Errorf("population %s selected twice: %w", p, ErrInvalidQuery)
		}
		seen[p] = true
	}

	if len(q.Statistics) == 0 {
		return fmt.Errorf("no statistics selected: %w", ErrInvalidQuery)
	}
	for _, s := range q.Statistics {
		if _, ok := stats.StatisticNames[s]; !ok {
			return fmt.Errorf("unknown statistic %q: %w", s, ErrInvalidQuery)
		}
		if s == stats.StatFst && len(q.Populations) < 2 {
			return fmt.Errorf("Fst needs at least two populations: %w", ErrInvalidQuery)
		}
	}

	return nil
}

func (q Query) String() string {
	var b strings.Builder
	b.WriteString("chr")
	b.WriteString(q.Chromosome)
	if q.Start != nil && q.Stop != nil {
		fmt.Fprintf(&b, ":%d-%d", *q.Start, *q.Stop)
	}
	if q.Gene != "" {
		fmt.Fprintf(&b, " gene=%s", q.Gene)
	}
	if q.Marker != "" {
		fmt.Fprintf(&b, " marker=%s", q.Marker)
	}
	fmt.Fprintf(&b, " pops=%s stats=%s", strings.Join(q.Populations, ","), strings.Join(q.Statistics, ","))
	return b.String()
}
