package historian

import (
	"errors"
	"fmt"
)

// Sentinel errors for historian operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, historian.ErrUnexpectedStatus) {
//	    // server answered, but not with data
//	}
var (
	// ErrUnexpectedStatus indicates the server returned a non-200 response.
	ErrUnexpectedStatus = errors.New("historian: unexpected HTTP status")

	// ErrRequestFailed indicates the request never produced a response.
	ErrRequestFailed = errors.New("historian: request failed")

	// ErrMalformedResponse indicates a 200 response that is not a summary payload.
	ErrMalformedResponse = errors.New("historian: malformed summary response")

	// ErrResponseTooLarge indicates the response exceeded the body limit.
	ErrResponseTooLarge = errors.New("historian: response too large")

	// ErrInvalidWebID indicates an empty stream web id.
	ErrInvalidWebID = errors.New("historian: web id is required")
)

// StatusError carries the status code and a one-line summary of a
// non-200 response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("historian: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("historian: HTTP %d: %s", e.StatusCode, e.Message)
}

// Unwrap lets errors.Is match ErrUnexpectedStatus.
func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}
