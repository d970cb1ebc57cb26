package metrics

import "errors"

var (
	// ErrDisabled is returned by Push when metrics.enabled is false.
	ErrDisabled = errors.New("metrics: disabled in configuration")

	// ErrPushFailed wraps a Pushgateway failure.
	ErrPushFailed = errors.New("metrics: push failed")

	// ErrUnhealthy is returned when the Pushgateway health endpoint fails.
	ErrUnhealthy = errors.New("metrics: pushgateway unhealthy")
)
