package eval

import (
	"context"

	"github.com/hydrosight/tsexpr/pkg/domain"
	"github.com/hydrosight/tsexpr/pkg/ports"
)

// TestFillResolver returns a resolver that fabricates a constant hourly
// series per identifier: the i-th requested id gets the constant value i.
//
// This exists for tests and demonstrations that have no live series source.
// It must be installed explicitly; a server without any resolver rejects
// requests carrying unresolved references instead of silently inventing
// data.
func TestFillResolver() ports.Resolver {
	return ports.ResolverFunc(func(_ context.Context, ids []string, period domain.Period) ([]domain.Series, error) {
		delta := domain.DeltaHours(1)
		n := int(period.Timespan() / delta)
		axis := domain.FixedAxis{Start: period.Start, Delta: delta, N: n}
		out := make([]domain.Series, len(ids))
		for i := range ids {
			out[i] = domain.NewConstantSeries(axis, float64(i), domain.PointAverage)
		}
		return out, nil
	})
}
