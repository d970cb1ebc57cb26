package feeder

import (
	"errors"
	"fmt"
)

// Domain errors for the feeder package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, feeder.ErrMisaligned) {
//	    // series do not share timestamps
//	}
var (
	// ErrNoSeries is returned when joining a circuit with no series.
	ErrNoSeries = errors.New("feeder: no series to join")

	// ErrMisaligned is returned when series cover different timestamps
	// under the reject fill policy.
	ErrMisaligned = errors.New("feeder: series timestamps do not align")

	// ErrDuplicateTimestamp is returned when one series repeats a timestamp.
	ErrDuplicateTimestamp = errors.New("feeder: duplicate timestamp in series")

	// ErrDuplicateTag is returned when two series of one circuit share a tag name.
	ErrDuplicateTag = errors.New("feeder: duplicate tag in circuit")

	// ErrInvalidFillPolicy is returned for an unrecognised fill policy name.
	ErrInvalidFillPolicy = errors.New("feeder: invalid fill policy")

	// ErrInvalidName is returned when a circuit or tag name cannot be used.
	ErrInvalidName = errors.New("feeder: invalid name")

	// ErrPathCollision is returned when distinct names map to one file.
	ErrPathCollision = errors.New("feeder: names share a file path")
)

// MisalignedError reports a tag missing timestamps that other tags of the
// same circuit have.
type MisalignedError struct {
	CircuitID string
	TagName   string
	Missing   int    // number of timestamps absent from this tag
	First     string // earliest missing timestamp in row order
}

func (e *MisalignedError) Error() string {
	return fmt.Sprintf("feeder: circuit %s tag %s is missing %d timestamps (first %s)",
		e.CircuitID, e.TagName, e.Missing, e.First)
}

// Unwrap lets errors.Is match ErrMisaligned.
func (e *MisalignedError) Unwrap() error {
	return ErrMisaligned
}
