package bgen

import (
	"github.com/carbocation/pfx"
	"github.com/jmoiron/sqlx"

	"github.com/carbocation/popgen/internal/sqlitedb"
)

type BGIIndex struct {
	DB       *sqlx.DB
	Metadata *BGIMetadata
}

func (b *BGIIndex) Close() error {
	return b.DB.Close()
}

// OpenBGI opens a .bgi index, the SQLite file written by bgenix.
func OpenBGI(path string) (*BGIIndex, error) {
	bgi := &BGIIndex{
		Metadata: &BGIMetadata{},
	}

	db, err := sqlitedb.Connect(path)
	if err != nil {
		return nil, err
	}
	bgi.DB = db

	// Not all index files have metadata; ignore any error
	_ = bgi.DB.Get(bgi.Metadata, "SELECT * FROM Metadata LIMIT 1")

	return bgi, nil
}

// Chromosomes lists the chromosome names of the index in file order.
func (b *BGIIndex) Chromosomes() ([]string, error) {
	var out []string
	if err := b.DB.Select(&out, "SELECT chromosome FROM Variant GROUP BY chromosome ORDER BY MIN(file_start_position)"); err != nil {
		return nil, pfx.Err(err)
	}
	return out, nil
}

// Variants returns the index rows of one chromosome ordered by position.
// chrom is compared after NormalizeChromosome, so "1" matches rows stored
// as "01".
func (b *BGIIndex) Variants(chrom string) ([]VariantIndex, error) {
	rows, err := b.DB.Queryx("SELECT * FROM Variant ORDER BY position ASC, file_start_position ASC")
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer rows.Close()

	want := NormalizeChromosome(chrom)

	var out []VariantIndex
	for rows.Next() {
		var row VariantIndex
		if err := rows.StructScan(&row); err != nil {
			return nil, pfx.Err(err)
		}
		if NormalizeChromosome(row.Chromosome) == want {
			out = append(out, row)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, pfx.Err(err)
	}

	return out, nil
}

// VariantIndex conforms to the data found in the rows of the SQLite table
// "Variant" from BGEN Index (.bgi) files, and can be easily parsed with sqlx.
type VariantIndex struct {
	Chromosome        string
	Position          uint32
	RSID              string `db:"rsid"`
	NAlleles          uint16 `db:"number_of_alleles"`
	Allele1           Allele
	Allele2           Allele
	FileStartPosition uint `db:"file_start_position"`
	SizeInBytes       uint `db:"size_in_bytes"`
}

// BGIMetadata conforms to the data found in the rows of the SQLite table
// "Metadata" from more recent versions of BGEN.
type BGIMetadata struct {
	Filename           string
	FileSize           uint          `db:"file_size"`
	LastWriteTime      sqlitedb.Time `db:"last_write_time"`
	FirstThousandBytes []byte        `db:"first_1000_bytes"`
	IndexCreationTime  sqlitedb.Time `db:"index_creation_time"`
}
