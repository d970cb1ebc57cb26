package catalog

import "errors"

// Domain errors for the catalog package.
var (
	// ErrQueryFailed is returned when the catalog query cannot be executed or read.
	ErrQueryFailed = errors.New("catalog: query failed")

	// ErrMissingColumn is returned when the query result lacks a required column.
	ErrMissingColumn = errors.New("catalog: missing required column")
)
