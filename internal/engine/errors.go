package engine

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a mutation names an id the collections do
// not hold.
var ErrNotFound = errors.New("record not found")

// ValidationError rejects malformed input before it reaches the
// collections. It never leaves partial state behind because the mutation
// never starts.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransportError wraps a failed persist call. By the time it surfaces the
// optimistic mutation it belonged to has been rolled back. Deletes are the
// exception: they stay applied.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
