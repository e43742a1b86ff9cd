package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydrosight/tsexpr/pkg/domain"
	"github.com/hydrosight/tsexpr/pkg/ports"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewFromClient(backend.NewClient(&backend.Options{Addr: mr.Addr()}), opts...)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSeriesRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	axis := domain.FixedAxis{Start: 3600, Delta: 3600, N: 3}
	s, err := domain.NewSeries(axis, []float64{1.5, 2.5, 3.5}, domain.PointInstant)
	require.NoError(t, err)

	require.NoError(t, store.SaveSeries(ctx, "gauge/42", s))
	got, err := store.LoadSeries(ctx, "gauge/42")
	require.NoError(t, err)
	assert.True(t, s.Equal(got))
}

func TestLoadSeries_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.LoadSeries(context.Background(), "nope")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestDeleteSeries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	axis := domain.FixedAxis{Start: 0, Delta: 3600, N: 1}
	s, err := domain.NewSeries(axis, []float64{1}, domain.PointAverage)
	require.NoError(t, err)

	require.NoError(t, store.SaveSeries(ctx, "x", s))
	require.NoError(t, store.DeleteSeries(ctx, "x"))
	_, err = store.LoadSeries(ctx, "x")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestStateRoundTrip(t *testing.T) {
	store := newTestStore(t, WithPrefix("test:"))
	ctx := context.Background()

	b := domain.StateBundle{Cells: []domain.CellState{
		{ID: domain.CellStateID{Cid: 3, X: 100, Y: 200, Area: 1e6}, Values: []float64{0.2, 4.5}},
	}}
	require.NoError(t, store.SaveState(ctx, "2026-08-24T00", b))
	got, err := store.LoadState(ctx, "2026-08-24T00")
	require.NoError(t, err)
	assert.Equal(t, b, got)

	_, err = store.LoadState(ctx, "2026-08-25T00")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}
