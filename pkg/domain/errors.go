package domain

import (
	"errors"
	"fmt"
)

// ErrCycle is returned when an expression graph references itself, directly
// or through a chain of children. Cycles are a protocol error, never a state
// the evaluator supports.
var ErrCycle = errors.New("expression graph contains a cycle")

// ErrNoResolver is returned when a request carries unresolved references but
// no resolver is configured.
var ErrNoResolver = errors.New("no resolver configured for unresolved references")

// ErrConnectionLimit is returned to a client whose connection was refused
// because the server is at its configured maximum.
var ErrConnectionLimit = errors.New("server connection limit exceeded")

// ErrTimeout is returned by the client when a response did not arrive within
// the configured deadline.
var ErrTimeout = errors.New("request timed out")

// UnboundRefError reports an evaluation attempt on a reference that was
// never resolved. It carries the symbolic identifier for diagnosis.
type UnboundRefError struct {
	ID string
}

func (e *UnboundRefError) Error() string {
	return fmt.Sprintf("unbound reference %q", e.ID)
}

// ResolverMismatchError reports a resolver that returned the wrong number of
// series for the identifiers it was asked for.
type ResolverMismatchError struct {
	Want int
	Got  int
}

func (e *ResolverMismatchError) Error() string {
	return fmt.Sprintf("resolver returned %d series for %d identifiers", e.Got, e.Want)
}

// DecodeError reports malformed wire data, with the byte offset where
// decoding failed.
type DecodeError struct {
	Offset int64
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode failed at byte %d: %s", e.Offset, e.Reason)
}
