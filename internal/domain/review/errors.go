package review

import "errors"

var (
	// ErrSessionPrecondition indicates the session could not start at all
	// (no files to analyze, bad request). Surfaces before any fan-out.
	ErrSessionPrecondition = errors.New("session precondition failed")

	// ErrSessionNotFound indicates an unknown session id for the tenant.
	ErrSessionNotFound = errors.New("session not found")

	// ErrStoreUnavailable indicates the result store could not be reached
	// after retries; progress can no longer be durably recorded.
	ErrStoreUnavailable = errors.New("result store unavailable")

	// ErrSessionTerminal indicates a transition was attempted out of a
	// completed or failed session.
	ErrSessionTerminal = errors.New("session already terminal")

	// ErrSessionNotCancelable indicates the session exists and is still
	// active, but this instance does not own its run and cannot stop it.
	ErrSessionNotCancelable = errors.New("session not cancelable from this instance")
)
