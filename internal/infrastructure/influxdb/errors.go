package influxdb

import "errors"

// Sentinel errors for the sample mirror.
var (
	// ErrNotConnected is returned after Close.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed wraps a failed ping during Connect.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrWriteFailed wraps async write failures handed to SetOnError.
	ErrWriteFailed = errors.New("influxdb: write failed")

	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
