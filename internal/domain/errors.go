package domain

import "errors"

var (
	// ErrOutOfOrderBar means a bar arrived with a timestamp at or before the
	// previous bar. Fatal for the session: the stream is rejected.
	ErrOutOfOrderBar = errors.New("out-of-order or duplicate bar")

	// ErrNotReady means IBTracker.Finalize was called before the IB window
	// closed. Programming error, never retried.
	ErrNotReady = errors.New("initial balance window not complete")

	// ErrAlreadyFinalized means IBTracker.Finalize was called twice.
	ErrAlreadyFinalized = errors.New("initial balance already finalized")

	// ErrMissingSessionContext means the engine received a bar before the
	// session context was supplied.
	ErrMissingSessionContext = errors.New("session context not set")

	// ErrInvalidConfiguration means a threshold or cutoff fails validation.
	// Surfaced at construction, before any bar is processed.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrSessionClosed means a bar arrived after the forced session flatten.
	ErrSessionClosed = errors.New("session closed")

	ErrNotFound = errors.New("not found")

	// ErrLockHeld means another process already holds the session lock.
	ErrLockHeld = errors.New("lock already held")
)
