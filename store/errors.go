package store

import "errors"

var (
	// ErrNotFound is returned for chromosomes the store does not hold.
	ErrNotFound = errors.New("not found")

	// ErrOutOfRange is returned for index ranges outside [0, length) and for
	// masks whose length does not match the view they are applied to.
	ErrOutOfRange = errors.New("out of range")
)
