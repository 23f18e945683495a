package analysis

import "errors"

// Per-unit error taxonomy. All three are recovered locally by the
// scheduler: the unit contributes zero findings and the file is marked
// degraded, but the session keeps going.
var (
	// ErrTimeout indicates the analyzer exceeded the caller-supplied deadline.
	ErrTimeout = errors.New("analyzer timeout")

	// ErrUnavailable indicates the tool binary or remote service is unreachable.
	ErrUnavailable = errors.New("analyzer unavailable")

	// ErrInvalidInput indicates the file or language could not be parsed.
	ErrInvalidInput = errors.New("analyzer invalid input")

	// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
	ErrQuotaExceeded = errors.New("ai quota exceeded")
)
