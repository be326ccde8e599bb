package store

import "errors"

var (
	// ErrCollectionExists is returned by CreateCollection when the
	// (scope, name) pair is already registered.
	ErrCollectionExists = errors.New("collection already exists")

	// ErrCollectionNotFound is returned when a collection was never created.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrDocumentNotFound is returned for ids that are absent or tombstoned.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrInvalidSelector is returned when a selector names a property that
	// is not a plain identifier.
	ErrInvalidSelector = errors.New("invalid selector")

	// ErrEmptyID is returned when a write has no document id.
	ErrEmptyID = errors.New("document id is empty")

	// ErrUnknownDriver is returned by Open for an unsupported driver name.
	ErrUnknownDriver = errors.New("unknown sqlite driver")
)
