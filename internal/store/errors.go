package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no document exists at the requested path.
// Callers generally treat it as "empty default", not as a failure.
var ErrNotFound = errors.New("document not found")

// ErrVersionConflict is returned when a write presented a stale (or missing)
// version token. Update retries once on it; a second conflict is surfaced.
var ErrVersionConflict = errors.New("document version conflict")

// ErrSkipWrite can be returned by an Update callback to finish the
// read-modify-write cycle without committing anything.
var ErrSkipWrite = errors.New("skip write")

// TransportError reports a network failure or an unexpected HTTP status from
// the contents API (anything other than success, 404 and version conflicts).
type TransportError struct {
	StatusCode int
	Body       string
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("contents API transport failure: %s", e.Body)
	}
	return fmt.Sprintf("contents API returned %d: %s", e.StatusCode, e.Body)
}
