// Package sqlitedb opens the SQLite catalogs used by the variant store and
// the BGEN index reader, picking the cgo or pure-Go driver at build time.
package sqlitedb

import (
	"strings"

	"github.com/carbocation/pfx"
	"github.com/jmoiron/sqlx"
)

// Driver reports which database/sql driver name this build uses.
func Driver() string {
	return driverName
}

// Connect opens path with the build's SQLite driver.
func Connect(path string) (*sqlx.DB, error) {
	// URI filenames have to begin with 'file:'; see
	// https://www.sqlite.org/c3ref/open.html . It seems that sqlite3 permitted
	// URI filenames without the file: prefix, but that is not standard.
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}

	db, err := sqlx.Connect(driverName, path)
	if err != nil {
		return nil, pfx.Err(err)
	}

	if err := configure(db); err != nil {
		db.Close()
		return nil, pfx.Err(err)
	}

	return db, nil
}
