package warehouse

import "errors"

// Sentinel errors for warehouse connections.
var (
	// ErrUnsupportedDriver indicates warehouse.driver is neither mysql nor sqlite3.
	ErrUnsupportedDriver = errors.New("warehouse: unsupported driver")

	// ErrCatalogNotFound indicates the sqlite3 catalog file does not exist.
	ErrCatalogNotFound = errors.New("warehouse: catalog file not found")

	// ErrConnectionFailed indicates the warehouse could not be reached.
	ErrConnectionFailed = errors.New("warehouse: connection failed")
)
