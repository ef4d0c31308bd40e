package model

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by fetchers when a file does not exist at a revision
var ErrNotFound = errors.New("not found")

// TransientFetchError is a network or service failure that may succeed on retry
type TransientFetchError struct {
	Op         string // Operation that failed (e.g., "fetch content")
	StatusCode int    // HTTP status, 0 for network errors
	Err        error
}

func (e *TransientFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transient failure (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

// Temporary reports that the failure is recoverable
func (e *TransientFetchError) Temporary() bool {
	return true
}

// IsTransient checks whether err is a recoverable fetch failure
func IsTransient(err error) bool {
	var t interface{ Temporary() bool }
	return errors.As(err, &t) && t.Temporary()
}
