package store

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/carbocation/pfx"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"github.com/carbocation/popgen/internal/sqlitedb"
)

// DefaultChunkSize is the number of variants per Arrow record batch when the
// builder is not told otherwise.
const DefaultChunkSize = 8192

// Builder writes a new store. Chromosomes are written one at a time:
// Begin, any number of AddVariant and AddPhased calls, then End. Positions
// within each coordinate system must be strictly increasing.
type Builder struct {
	Path string

	db        *sqlx.DB
	samples   []Sample
	chunkSize int
	done      map[string]struct{}

	chrom       string
	tx          *sqlx.Tx
	variantStmt *sqlx.Stmt
	annotStmt   *sqlx.Stmt
	phasedStmt  *sqlx.Stmt
	unphased    *chunkWriter
	phased      *chunkWriter
	nVariants   int
	nPhased     int
	lastPos     int64
	lastPhased  int64
}

// Create starts a store in dir, which must not already hold a catalog.
// Sample indexes are assigned in the order given. meta.NSamples is ignored
// and meta.ChunkSize falls back to DefaultChunkSize.
func Create(dir string, meta Metadata, samples []Sample) (*Builder, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("a store needs at least one sample")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, pfx.Err(err)
	}

	if _, err := os.Stat(catalogPath(dir)); err == nil {
		return nil, fmt.Errorf("%s already exists", catalogPath(dir))
	}

	if meta.ChunkSize <= 0 {
		meta.ChunkSize = DefaultChunkSize
	}
	if time.Time(meta.CreatedAt).IsZero() {
		meta.CreatedAt = sqlitedb.Time(time.Now())
	}

	seen := make(map[string]struct{}, len(samples))
	for _, s := range samples {
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("sample %q listed twice", s.ID)
		}
		seen[s.ID] = struct{}{}
	}

	db, err := sqlitedb.Connect(catalogPath(dir))
	if err != nil {
		return nil, pfx.Err(err)
	}

	if _, err := db.Exec(catalogSchema); err != nil {
		db.Close()
		return nil, pfx.Err(err)
	}

	if _, err := db.Exec("INSERT INTO Metadata (name, source, created_at, n_samples, chunk_size) VALUES (?, ?, ?, ?, ?)",
		meta.Name, meta.Source, meta.CreatedAt.Unix(), len(samples), meta.ChunkSize); err != nil {
		db.Close()
		return nil, pfx.Err(err)
	}

	indexed := make([]Sample, len(samples))
	tx, err := db.Beginx()
	if err != nil {
		db.Close()
		return nil, pfx.Err(err)
	}
	for i, s := range samples {
		s.Index = i
		indexed[i] = s
		if _, err := tx.NamedExec("INSERT INTO Sample (sample_idx, sample_id, population, super_population, sex) VALUES (:sample_idx, :sample_id, :population, :super_population, :sex)", &s); err != nil {
			tx.Rollback()
			db.Close()
			return nil, pfx.Err(err)
		}
	}
	if err := tx.Commit(); err != nil {
		db.Close()
		return nil, pfx.Err(err)
	}

	return &Builder{
		Path:      dir,
		db:        db,
		samples:   indexed,
		chunkSize: meta.ChunkSize,
		done:      make(map[string]struct{}),
	}, nil
}

// Begin starts writing chrom.
func (b *Builder) Begin(chrom string) error {
	if b.tx != nil {
		return fmt.Errorf("chromosome %s is still open", b.chrom)
	}
	if _, ok := b.done[chrom]; ok {
		return fmt.Errorf("chromosome %s was already written", chrom)
	}

	tx, err := b.db.Beginx()
	if err != nil {
		return pfx.Err(err)
	}

	prepare := func(query string) *sqlx.Stmt {
		if err != nil {
			return nil
		}
		var stmt *sqlx.Stmt
		stmt, err = tx.Preparex(query)
		return stmt
	}
	b.variantStmt = prepare("INSERT INTO Variant (chromosome, idx, position, ref, alt, gene, rsid) VALUES (?, ?, ?, ?, ?, ?, ?)")
	b.annotStmt = prepare("INSERT INTO Annotation (chromosome, idx, field, value) VALUES (?, ?, ?, ?)")
	b.phasedStmt = prepare("INSERT INTO PhasedVariant (chromosome, idx, position) VALUES (?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return pfx.Err(err)
	}

	unphased, err := newChunkWriter(genotypeFile(b.Path, chrom, Unphased), b.samples, b.chunkSize, Unphased)
	if err != nil {
		tx.Rollback()
		return err
	}

	b.chrom = chrom
	b.tx = tx
	b.unphased = unphased
	b.phased = nil
	b.nVariants, b.nPhased = 0, 0
	b.lastPos, b.lastPhased = -1, -1

	return nil
}

// AddVariant appends one unphased variant. calls holds two allele calls
// per sample, sample-major; Missing marks absent calls. The variant's
// Chromosome and Index are set by the builder.
func (b *Builder) AddVariant(v Variant, calls []int8) error {
	if b.tx == nil {
		return fmt.Errorf("AddVariant called outside Begin/End")
	}
	if v.Position <= b.lastPos {
		return fmt.Errorf("chromosome %s: position %d follows %d; positions must be unique and increasing", b.chrom, v.Position, b.lastPos)
	}
	if len(calls) != 2*len(b.samples) {
		return fmt.Errorf("chromosome %s position %d: %d calls for %d samples", b.chrom, v.Position, len(calls), len(b.samples))
	}

	idx := b.nVariants
	if _, err := b.variantStmt.Exec(b.chrom, idx, v.Position, v.Ref, v.Alt, v.Gene, v.RSID); err != nil {
		return pfx.Err(err)
	}

	fields := make([]string, 0, len(v.Annotations))
	for field := range v.Annotations {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		if _, err := b.annotStmt.Exec(b.chrom, idx, field, v.Annotations[field]); err != nil {
			return pfx.Err(err)
		}
	}

	if err := b.unphased.Write(calls); err != nil {
		return pfx.Err(err)
	}

	b.nVariants++
	b.lastPos = v.Position
	return nil
}

// AddPhased appends one variant to the phased coordinate system.
func (b *Builder) AddPhased(pos int64, calls []int8) error {
	if b.tx == nil {
		return fmt.Errorf("AddPhased called outside Begin/End")
	}
	if pos <= b.lastPhased {
		return fmt.Errorf("chromosome %s: phased position %d follows %d; positions must be unique and increasing", b.chrom, pos, b.lastPhased)
	}
	if len(calls) != 2*len(b.samples) {
		return fmt.Errorf("chromosome %s phased position %d: %d calls for %d samples", b.chrom, pos, len(calls), len(b.samples))
	}

	if b.phased == nil {
		w, err := newChunkWriter(genotypeFile(b.Path, b.chrom, Phased), b.samples, b.chunkSize, Phased)
		if err != nil {
			return err
		}
		b.phased = w
	}

	if _, err := b.phasedStmt.Exec(b.chrom, b.nPhased, pos); err != nil {
		return pfx.Err(err)
	}
	if err := b.phased.Write(calls); err != nil {
		return pfx.Err(err)
	}

	b.nPhased++
	b.lastPhased = pos
	return nil
}

// End flushes the open chromosome and commits its catalog rows. A
// chromosome without phased variants still gets an empty phased file.
func (b *Builder) End() error {
	if b.tx == nil {
		return fmt.Errorf("End called without Begin")
	}
	defer func() {
		b.tx = nil
	}()

	if b.phased == nil {
		w, err := newChunkWriter(genotypeFile(b.Path, b.chrom, Phased), b.samples, b.chunkSize, Phased)
		if err != nil {
			b.tx.Rollback()
			return err
		}
		b.phased = w
	}

	for _, w := range []*chunkWriter{b.unphased, b.phased} {
		if err := w.Close(); err != nil {
			b.tx.Rollback()
			return err
		}
	}

	if _, err := b.tx.Exec("INSERT INTO Chromosome (chromosome, n_variants, n_phased, chunk_size) VALUES (?, ?, ?, ?)",
		b.chrom, b.nVariants, b.nPhased, b.chunkSize); err != nil {
		b.tx.Rollback()
		return pfx.Err(err)
	}

	if err := b.tx.Commit(); err != nil {
		return pfx.Err(err)
	}

	log.WithFields(log.Fields{
		"chromosome": b.chrom,
		"variants":   b.nVariants,
		"phased":     b.nPhased,
	}).Debug("wrote chromosome")

	b.done[b.chrom] = struct{}{}
	return nil
}

// Close finishes the store. An open chromosome is discarded. Closing twice
// is a no-op.
func (b *Builder) Close() error {
	if b.db == nil {
		return nil
	}
	if b.tx != nil {
		b.tx.Rollback()
		b.tx = nil
		if b.unphased != nil {
			b.unphased.Close()
		}
		if b.phased != nil {
			b.phased.Close()
		}
	}
	err := b.db.Close()
	b.db = nil
	return err
}
