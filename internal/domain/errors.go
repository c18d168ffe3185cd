package domain

import "errors"

var (
	// ErrSchema means a raw extract lacks one of the core columns.
	ErrSchema = errors.New("schema validation failed")

	// ErrEmptyResult means cleaning left no usable rows.
	ErrEmptyResult = errors.New("no valid rows after cleaning")

	// ErrNotFound means a referenced snapshot file does not exist.
	ErrNotFound = errors.New("version not found")

	// ErrNoData means no snapshot satisfies a temporal predicate.
	ErrNoData = errors.New("no data available")
)
