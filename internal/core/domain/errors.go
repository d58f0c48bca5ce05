package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrGeneratorUnavailable indicates the text generator is not configured
	// or failed. Synthesis degrades to extractive or templated answers.
	ErrGeneratorUnavailable = errors.New("generator unavailable")

	// ErrIndexUnavailable indicates the knowledge index is not configured.
	ErrIndexUnavailable = errors.New("knowledge index unavailable")

	// ErrRetrievalUnavailable indicates every retrieval strategy failed.
	// The turn continues with an empty evidence set.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrPersistence indicates the checkpoint store failed to load or save.
	ErrPersistence = errors.New("checkpoint persistence failed")

	// ErrLimitExceeded indicates a turn, retry or error limit forced the
	// conversation to end.
	ErrLimitExceeded = errors.New("conversation limit exceeded")

	// ErrLockNotAcquired indicates a checkpoint writer lock could not be taken.
	ErrLockNotAcquired = errors.New("checkpoint lock not acquired")
)
