package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydrosight/tsexpr/pkg/domain"
	"github.com/hydrosight/tsexpr/pkg/ports"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSeriesRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	axis := domain.FixedAxis{Start: 7200, Delta: 900, N: 4}
	s, err := domain.NewSeries(axis, []float64{0.1, 0.2, 0.3, 0.4}, domain.PointAverage)
	require.NoError(t, err)

	require.NoError(t, store.SaveSeries(ctx, "netcdf://prod/discharge.7", s))
	got, err := store.LoadSeries(ctx, "netcdf://prod/discharge.7")
	require.NoError(t, err)
	assert.True(t, s.Equal(got))
}

func TestLoadSeries_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.LoadSeries(context.Background(), "absent")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestDeleteSeries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	axis := domain.FixedAxis{Start: 0, Delta: 3600, N: 1}
	s, err := domain.NewSeries(axis, []float64{9}, domain.PointInstant)
	require.NoError(t, err)

	require.NoError(t, store.SaveSeries(ctx, "x", s))
	require.NoError(t, store.DeleteSeries(ctx, "x"))
	_, err = store.LoadSeries(ctx, "x")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestStateRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	b := domain.StateBundle{Cells: []domain.CellState{
		{ID: domain.CellStateID{Cid: 1, X: 1, Y: 2, Area: 3}, Values: []float64{4, 5, 6}},
		{ID: domain.CellStateID{Cid: 2, X: 7, Y: 8, Area: 9}, Values: []float64{7}},
	}}
	require.NoError(t, store.SaveState(ctx, "warmup", b))
	got, err := store.LoadState(ctx, "warmup")
	require.NoError(t, err)
	assert.Equal(t, b, got)

	_, err = store.LoadState(ctx, "missing")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}
