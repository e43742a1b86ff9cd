package eval

import (
	"context"
	"errors"
	"testing"

	"github.com/hydrosight/tsexpr/pkg/domain"
	"github.com/hydrosight/tsexpr/pkg/ports"
)

type mapStore map[string]domain.Series

func (m mapStore) SaveSeries(_ context.Context, id string, s domain.Series) error {
	m[id] = s
	return nil
}

func (m mapStore) LoadSeries(_ context.Context, id string) (domain.Series, error) {
	s, ok := m[id]
	if !ok {
		return domain.Series{}, ports.ErrNotFound
	}
	return s, nil
}

func (m mapStore) DeleteSeries(_ context.Context, id string) error {
	delete(m, id)
	return nil
}

func TestStoreResolver_LoadsAndClips(t *testing.T) {
	store := mapStore{"q": hourlySeries(0, 1, 2, 3, 4)}
	r := NewStoreResolver(store)

	series, err := r.Resolve(context.Background(), []string{"q"}, domain.Period{Start: 3600, End: 3 * 3600})
	if err != nil {
		t.Fatal(err)
	}
	got := series[0]
	if got.Axis.N != 2 || got.Axis.Start != 3600 {
		t.Fatalf("clipped axis = %+v, want 2 steps from 3600", got.Axis)
	}
	if got.Values[0] != 2 || got.Values[1] != 3 {
		t.Errorf("clipped values = %v, want [2 3]", got.Values)
	}
}

func TestStoreResolver_MissingSeries(t *testing.T) {
	r := NewStoreResolver(mapStore{})
	_, err := r.Resolve(context.Background(), []string{"absent"}, domain.Period{Start: 0, End: 3600})
	if !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStoreResolver_EndToEndBind(t *testing.T) {
	store := mapStore{"inflow": hourlySeries(0, 10, 20, 30)}
	v := domain.Vector{&domain.BinOpScalar{Op: domain.OpMul, L: &domain.Ref{ID: "inflow"}, R: 0.5}}
	period := domain.Period{Start: 0, End: 3 * 3600}

	bound, err := Bind(context.Background(), v, period, NewStoreResolver(store))
	if err != nil {
		t.Fatal(err)
	}
	got, err := Evaluate(bound[0], period)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{5, 10, 15}
	for i, w := range want {
		if got.Values[i] != w {
			t.Errorf("result[%d] = %v, want %v", i, got.Values[i], w)
		}
	}
}
