// Package store is a read-only, chunk-preserving accessor over variant
// records and genotype matrices. A store is a directory holding a SQLite
// catalog (samples, variant annotations and both position indexes) and, per
// chromosome, two Arrow IPC files whose record batches are the genotype
// chunks.
package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/carbocation/pfx"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"github.com/carbocation/popgen/internal/sqlitedb"
)

// Store is safe for concurrent use by multiple queries. Nothing in it is
// mutated after Open except the positions cache, which only ever gains
// entries.
type Store struct {
	Path     string
	DB       *sqlx.DB
	Metadata *Metadata

	chromosomes map[string]Chromosome

	mu        sync.RWMutex
	positions map[positionKey][]int64
}

type positionKey struct {
	chrom string
	kind  Kind
}

type options struct {
	cacheDir string
}

// Option configures Open.
type Option func(*options)

// WithCacheDir sets where remote (gs://) stores are mirrored.
func WithCacheDir(dir string) Option {
	return func(o *options) {
		o.cacheDir = dir
	}
}

// Open attempts to open the store located at path, which is either a local
// directory or a gs://bucket/prefix URI. If successful, this returns a new
// Store. Otherwise, it returns an error.
func Open(path string, opts ...Option) (*Store, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if strings.HasPrefix(path, "gs://") {
		local, err := mirror(path, o.cacheDir)
		if err != nil {
			return nil, pfx.Err(err)
		}
		path = local
	}

	db, err := sqlitedb.Connect(catalogPath(path))
	if err != nil {
		return nil, pfx.Err(err)
	}

	s := &Store{
		Path:        path,
		DB:          db,
		Metadata:    &Metadata{},
		chromosomes: make(map[string]Chromosome),
		positions:   make(map[positionKey][]int64),
	}

	if err := db.Get(s.Metadata, "SELECT name, source, created_at, n_samples, chunk_size FROM Metadata LIMIT 1"); err != nil {
		db.Close()
		return nil, pfx.Err(fmt.Errorf("%s has no readable Metadata table: %w", path, err))
	}

	var chroms []Chromosome
	if err := db.Select(&chroms, "SELECT chromosome, n_variants, n_phased, chunk_size FROM Chromosome"); err != nil {
		db.Close()
		return nil, pfx.Err(err)
	}
	for _, c := range chroms {
		s.chromosomes[c.Name] = c
	}

	log.WithFields(log.Fields{
		"path":        path,
		"driver":      sqlitedb.Driver(),
		"chromosomes": len(chroms),
		"samples":     s.Metadata.NSamples,
	}).Debug("opened variant store")

	return s, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// Chromosomes lists the chromosome names held, sorted.
func (s *Store) Chromosomes() []string {
	out := make([]string, 0, len(s.chromosomes))
	for name := range s.chromosomes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Chromosome returns the catalog entry for chrom, or ErrNotFound.
func (s *Store) Chromosome(chrom string) (Chromosome, error) {
	c, ok := s.chromosomes[chrom]
	if !ok {
		return Chromosome{}, fmt.Errorf("chromosome %q: %w", chrom, ErrNotFound)
	}
	return c, nil
}

// Samples returns the sample table in column order.
func (s *Store) Samples() ([]Sample, error) {
	var out []Sample
	if err := s.DB.Select(&out, "SELECT sample_idx, sample_id, population, super_population, sex FROM Sample ORDER BY sample_idx"); err != nil {
		return nil, pfx.Err(err)
	}
	return out, nil
}

// Positions returns the ordered position index of one coordinate system.
// The slice is shared between callers and must not be modified.
func (s *Store) Positions(chrom string, kind Kind) ([]int64, error) {
	if _, err := s.Chromosome(chrom); err != nil {
		return nil, err
	}

	key := positionKey{chrom: chrom, kind: kind}
	s.mu.RLock()
	pos, ok := s.positions[key]
	s.mu.RUnlock()
	if ok {
		return pos, nil
	}

	table := "Variant"
	if kind == Phased {
		table = "PhasedVariant"
	}

	pos = []int64{}
	if err := s.DB.Select(&pos, "SELECT position FROM "+table+" WHERE chromosome=? ORDER BY idx", chrom); err != nil {
		return nil, pfx.Err(err)
	}

	s.mu.Lock()
	if cached, ok := s.positions[key]; ok {
		pos = cached
	} else {
		s.positions[key] = pos
	}
	s.mu.Unlock()

	return pos, nil
}

// Variants returns a lazy table over every variant of chrom. Core fields are
// always read; fields names the annotation fields to carry along.
func (s *Store) Variants(chrom string, fields ...string) (*VariantTable, error) {
	c, err := s.Chromosome(chrom)
	if err != nil {
		return nil, err
	}

	return &VariantTable{
		db:     s.DB,
		chrom:  chrom,
		fields: append([]string(nil), fields...),
		rows:   All(c.NVariants),
	}, nil
}

// Genotypes returns a lazy view over all genotype calls of one coordinate
// system of chrom.
func (s *Store) Genotypes(chrom string, kind Kind) (*GenotypeMatrix, error) {
	c, err := s.Chromosome(chrom)
	if err != nil {
		return nil, err
	}

	n := c.NVariants
	if kind == Phased {
		n = c.NPhased
	}

	return &GenotypeMatrix{
		path:      genotypeFile(s.Path, chrom, kind),
		chunkSize: c.ChunkSize,
		nSamples:  s.Metadata.NSamples,
		rows:      All(n),
	}, nil
}
