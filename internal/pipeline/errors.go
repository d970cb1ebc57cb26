package pipeline

import "errors"

// Sentinel errors for run failures. Each wraps the underlying cause.
var (
	// ErrCatalog indicates the tag catalog could not be loaded.
	ErrCatalog = errors.New("pipeline: loading tag catalog failed")

	// ErrStaging indicates a raw artifact could not be written or scanned.
	ErrStaging = errors.New("pipeline: staging raw artifacts failed")

	// ErrAggregate indicates a feeder table could not be built or written.
	ErrAggregate = errors.New("pipeline: feeder aggregation failed")

	// ErrInterrupted indicates the run context was cancelled.
	ErrInterrupted = errors.New("pipeline: run interrupted")
)
