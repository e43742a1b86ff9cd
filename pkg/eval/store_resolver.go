package eval

import (
	"context"
	"fmt"

	"github.com/hydrosight/tsexpr/pkg/domain"
	"github.com/hydrosight/tsexpr/pkg/ports"
)

// StoreResolver resolves symbolic references by loading series from a
// SeriesStore and clipping them to the requested period. It is the resolver
// the standalone daemon runs with.
type StoreResolver struct {
	Store ports.SeriesStore
}

// NewStoreResolver creates a StoreResolver over the given store.
func NewStoreResolver(store ports.SeriesStore) *StoreResolver {
	return &StoreResolver{Store: store}
}

// Resolve implements ports.Resolver.
func (r *StoreResolver) Resolve(ctx context.Context, ids []string, period domain.Period) ([]domain.Series, error) {
	out := make([]domain.Series, len(ids))
	for i, id := range ids {
		s, err := r.Store.LoadSeries(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", id, err)
		}
		out[i] = s.Clip(period)
	}
	return out, nil
}
