package timeauth

import "errors"

var (
	// ErrInvalidParameters marks malformed chain parameters. Not retryable.
	ErrInvalidParameters = errors.New("invalid chain parameters")

	// ErrInvalidInput marks a caller-supplied value outside the valid domain.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRoundNotFound means the requested round has not been produced yet.
	ErrRoundNotFound = errors.New("round not found")

	// ErrUnavailable marks transport failure or cancellation talking to the beacon.
	// Retryable.
	ErrUnavailable = errors.New("beacon unavailable")
)

// IsRetryable reports whether err is a transient beacon failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
