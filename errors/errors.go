// Package errors defines all exported error sentinels for the streamsort library.
//
// This is the single source of truth for error values. The top-level
// streamsort package wraps these with context where useful, so callers can
// rely on errors.Is across package boundaries.
package errors

import "errors"

// Lifecycle errors
var (
	ErrFinished    = errors.New("streamsort: sorter is already finished")
	ErrNotFinished = errors.New("streamsort: sorter has not been finished")
	ErrClosed      = errors.New("streamsort: sorter is closed")
)

// Construction errors
var (
	ErrZeroSizeRecord = errors.New("streamsort: record type has zero size")
	ErrNilComparator  = errors.New("streamsort: comparator must not be nil")
)

// Drain errors
var (
	// ErrRetryLimit is returned by Finish when consecutive I/O failures
	// exceed the configured retry limit. Without the bound a persistently
	// failing disk would livelock the drain loop.
	ErrRetryLimit = errors.New("streamsort: drain retry limit exceeded")
)
