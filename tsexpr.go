package tsexpr

import (
	"github.com/hydrosight/tsexpr/pkg/client"
	"github.com/hydrosight/tsexpr/pkg/domain"
	"github.com/hydrosight/tsexpr/pkg/eval"
	"github.com/hydrosight/tsexpr/pkg/server"
)

// Aliases for the types every caller touches, so embedding hosts can stay on
// the root import.
type (
	Series    = domain.Series
	Vector    = domain.Vector
	Period    = domain.Period
	FixedAxis = domain.FixedAxis
	UtcTime   = domain.UtcTime
)

// Evaluate computes each expression in v over period, in process. The vector
// must be fully bound; use a server with a resolver to evaluate vectors that
// still carry symbolic references.
func Evaluate(v Vector, period Period) ([]Series, error) {
	return eval.EvaluateVector(v, period)
}

// Serve starts a computation server listening on addr and returns it running.
func Serve(addr string, opts ...server.Option) (*server.Server, error) {
	s := server.New(addr, opts...)
	if err := s.Start(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dial connects a client to a running server at addr.
func Dial(addr string, opts ...client.Option) (*client.Client, error) {
	return client.Dial(addr, opts...)
}
