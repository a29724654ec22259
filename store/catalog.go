package store

import (
	"path/filepath"

	"github.com/carbocation/popgen/internal/sqlitedb"
)

// CatalogFile is the SQLite catalog at the root of every store.
const CatalogFile = "catalog.db"

const catalogSchema = `
CREATE TABLE IF NOT EXISTS Metadata (
	name TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	n_samples INTEGER NOT NULL,
	chunk_size INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS Sample (
	sample_idx INTEGER PRIMARY KEY,
	sample_id TEXT NOT NULL,
	population TEXT NOT NULL DEFAULT '',
	super_population TEXT NOT NULL DEFAULT '',
	sex TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS Chromosome (
	chromosome TEXT PRIMARY KEY,
	n_variants INTEGER NOT NULL,
	n_phased INTEGER NOT NULL,
	chunk_size INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS Variant (
	chromosome TEXT NOT NULL,
	idx INTEGER NOT NULL,
	position INTEGER NOT NULL,
	ref TEXT NOT NULL DEFAULT '',
	alt TEXT NOT NULL DEFAULT '',
	gene TEXT NOT NULL DEFAULT '',
	rsid TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (chromosome, idx)
);
CREATE INDEX IF NOT EXISTS variant_gene ON Variant (chromosome, gene);
CREATE INDEX IF NOT EXISTS variant_rsid ON Variant (chromosome, rsid);
CREATE TABLE IF NOT EXISTS Annotation (
	chromosome TEXT NOT NULL,
	idx INTEGER NOT NULL,
	field TEXT NOT NULL,
	value REAL NOT NULL,
	PRIMARY KEY (chromosome, idx, field)
);
CREATE TABLE IF NOT EXISTS PhasedVariant (
	chromosome TEXT NOT NULL,
	idx INTEGER NOT NULL,
	position INTEGER NOT NULL,
	PRIMARY KEY (chromosome, idx)
);
`

// Metadata describes how and when the store was built.
type Metadata struct {
	Name      string        `db:"name"`
	Source    string        `db:"source"`
	CreatedAt sqlitedb.Time `db:"created_at"`
	NSamples  int           `db:"n_samples"`
	ChunkSize int           `db:"chunk_size"`
}

// Sample is one row of the sample table. Index is the sample's column in
// every genotype matrix of the store.
type Sample struct {
	Index           int    `db:"sample_idx"`
	ID              string `db:"sample_id"`
	Population      string `db:"population"`
	SuperPopulation string `db:"super_population"`
	Sex             string `db:"sex"`
}

// Chromosome is the per-chromosome catalog entry.
type Chromosome struct {
	Name      string `db:"chromosome"`
	NVariants int    `db:"n_variants"`
	NPhased   int    `db:"n_phased"`
	ChunkSize int    `db:"chunk_size"`
}

// Variant is one variant record. Annotations holds only the annotation
// fields requested from the store.
type Variant struct {
	Chromosome  string             `db:"chromosome"`
	Index       int                `db:"idx"`
	Position    int64              `db:"position"`
	Ref         string             `db:"ref"`
	Alt         string             `db:"alt"`
	Gene        string             `db:"gene"`
	RSID        string             `db:"rsid"`
	Annotations map[string]float64 `db:"-"`
}

func catalogPath(root string) string {
	return filepath.Join(root, CatalogFile)
}

func genotypeFile(root, chrom string, kind Kind) string {
	return filepath.Join(root, chrom, kind.String()+".arrow")
}
