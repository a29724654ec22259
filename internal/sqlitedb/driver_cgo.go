//go:build cgo

package sqlitedb

// If cgo is enabled, we will use the mattn cgo sqlite3 driver. It is faster
// than the modernc sqlite driver.

import (
	"github.com/jmoiron/sqlx"

	_ "github.com/mattn/go-sqlite3"
)

const driverName = "sqlite3"

func configure(db *sqlx.DB) error {
	return nil
}
