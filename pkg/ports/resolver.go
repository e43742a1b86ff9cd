package ports

import (
	"context"

	"github.com/hydrosight/tsexpr/pkg/domain"
)

// Resolver resolves symbolic series references for one request.
//
// It receives the distinct identifiers found in the request, in first-seen
// order, and must return exactly one series per identifier, in the same
// order. It may perform I/O and is assumed slow relative to evaluation.
//
// A Resolver is a host-exclusive resource: the server guarantees at most one
// in-flight Resolve call system-wide, so implementations need not be
// reentrant.
type Resolver interface {
	Resolve(ctx context.Context, ids []string, period domain.Period) ([]domain.Series, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, ids []string, period domain.Period) ([]domain.Series, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, ids []string, period domain.Period) ([]domain.Series, error) {
	return f(ctx, ids, period)
}
