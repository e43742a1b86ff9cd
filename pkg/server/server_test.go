package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydrosight/tsexpr/pkg/client"
	"github.com/hydrosight/tsexpr/pkg/domain"
	"github.com/hydrosight/tsexpr/pkg/ports"
)

// valueResolver serves a constant per identifier on an hourly axis.
func valueResolver(values map[string]float64) ports.Resolver {
	return ports.ResolverFunc(func(_ context.Context, ids []string, period domain.Period) ([]domain.Series, error) {
		axis := domain.FixedAxis{Start: period.Start, Delta: 3600, N: int(period.Timespan() / 3600)}
		out := make([]domain.Series, len(ids))
		for i, id := range ids {
			v, ok := values[id]
			if !ok {
				return nil, &domain.UnboundRefError{ID: id}
			}
			out[i] = domain.NewConstantSeries(axis, v, domain.PointAverage)
		}
		return out, nil
	})
}

func startServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	s := New("127.0.0.1:0", opts...)
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func dial(t *testing.T, s *Server, opts ...client.Option) *client.Client {
	t.Helper()
	c, err := client.Dial(s.Addr().String(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(time.Second) })
	return c
}

func TestServer_EvaluateEndToEnd(t *testing.T) {
	s := startServer(t, WithResolver(valueResolver(map[string]float64{"X": 5})))
	c := dial(t, s)

	ref := &domain.Ref{ID: "X"}
	v := domain.Vector{ref, &domain.BinOpScalar{Op: domain.OpMul, L: ref, R: 2}}
	period := domain.Period{Start: 0, End: 4 * 3600}

	got, err := c.Evaluate(v, period)
	require.NoError(t, err)
	require.Len(t, got, 2)

	plain := got[0].(*domain.Point)
	scaled := got[1].(*domain.Point)
	require.Equal(t, 4, plain.S.Axis.N)
	for i := 0; i < 4; i++ {
		assert.Equal(t, 5.0, plain.S.Values[i])
		assert.Equal(t, 10.0, scaled.S.Values[i])
	}
}

func TestServer_PercentilesEndToEnd(t *testing.T) {
	s := startServer(t, WithResolver(valueResolver(map[string]float64{"a": 1, "b": 3})))
	c := dial(t, s)

	v := domain.Vector{&domain.Ref{ID: "a"}, &domain.Ref{ID: "b"}}
	period := domain.Period{Start: 0, End: 2 * 3600}
	axis := domain.FixedAxis{Start: 0, Delta: 3600, N: 2}

	got, err := c.Percentiles(v, period, axis, []int{-1, 100})
	require.NoError(t, err)
	require.Len(t, got, 2)
	mean := got[0].(*domain.Point)
	top := got[1].(*domain.Point)
	for i := 0; i < 2; i++ {
		assert.Equal(t, 2.0, mean.S.Values[i])
		assert.Equal(t, 3.0, top.S.Values[i])
	}
}

func TestServer_RequestErrorKeepsConnection(t *testing.T) {
	// No resolver configured: unresolved references must fail the request,
	// not the connection.
	s := startServer(t)
	c := dial(t, s)
	period := domain.Period{Start: 0, End: 2 * 3600}

	_, err := c.Evaluate(domain.Vector{&domain.Ref{ID: "x"}}, period)
	require.Error(t, err)

	// The same connection still serves bound expressions.
	bound := &domain.Point{S: domain.NewConstantSeries(domain.FixedAxis{Start: 0, Delta: 3600, N: 2}, 7, domain.PointAverage)}
	got, err := c.Evaluate(domain.Vector{bound}, period)
	require.NoError(t, err)
	assert.Equal(t, 7.0, got[0].(*domain.Point).S.Values[0])
}

func TestServer_UnknownReferenceReported(t *testing.T) {
	s := startServer(t, WithResolver(valueResolver(map[string]float64{"known": 1})))
	c := dial(t, s)

	_, err := c.Evaluate(domain.Vector{&domain.Ref{ID: "missing"}}, domain.Period{Start: 0, End: 3600})
	var unbound *domain.UnboundRefError
	require.ErrorAs(t, err, &unbound)
	assert.Equal(t, "missing", unbound.ID)
}

func TestServer_ConnectionLimit(t *testing.T) {
	s := startServer(t,
		WithResolver(valueResolver(map[string]float64{"X": 1})),
		WithMaxConnections(1),
	)
	period := domain.Period{Start: 0, End: 3600}
	v := domain.Vector{&domain.Ref{ID: "X"}}

	first := dial(t, s)
	_, err := first.Evaluate(v, period) // connection now established and counted
	require.NoError(t, err)

	second := dial(t, s)
	_, err = second.Evaluate(v, period)
	require.ErrorIs(t, err, domain.ErrConnectionLimit)

	// The admitted connection is unaffected by the refusal.
	_, err = first.Evaluate(v, period)
	require.NoError(t, err)
}

func TestServer_StartStopLifecycle(t *testing.T) {
	s := New("127.0.0.1:0")
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	assert.Error(t, s.Start(), "second start must be rejected while running")

	ctx := context.Background()
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.IsRunning())
	require.NoError(t, s.Stop(ctx), "stop must be idempotent")
}

func TestServer_DriveStartsServer(t *testing.T) {
	s := New("127.0.0.1:0")
	require.NoError(t, s.Drive(10*time.Millisecond))
	assert.True(t, s.IsRunning(), "server keeps running after Drive returns")
	assert.NotNil(t, s.Addr())
	s.Clear()
	assert.False(t, s.IsRunning())
}

func TestServer_FireResolver(t *testing.T) {
	s := startServer(t, WithResolver(valueResolver(map[string]float64{"a": 1, "b": 2})))

	series, err := s.FireResolver(context.Background(), []string{"a", "b"}, domain.Period{Start: 0, End: 3600})
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 1.0, series[0].Values[0])
	assert.Equal(t, 2.0, series[1].Values[0])
}

func TestServer_FireResolverMismatch(t *testing.T) {
	short := ports.ResolverFunc(func(_ context.Context, ids []string, _ domain.Period) ([]domain.Series, error) {
		return nil, nil
	})
	s := startServer(t, WithResolver(short))

	_, err := s.FireResolver(context.Background(), []string{"a"}, domain.Period{Start: 0, End: 3600})
	var mismatch *domain.ResolverMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 1, mismatch.Want)
	assert.Equal(t, 0, mismatch.Got)
}

func TestClient_Timeout(t *testing.T) {
	slow := ports.ResolverFunc(func(ctx context.Context, ids []string, period domain.Period) ([]domain.Series, error) {
		time.Sleep(500 * time.Millisecond)
		return valueResolver(map[string]float64{"X": 1}).Resolve(ctx, ids, period)
	})
	s := startServer(t, WithResolver(slow))
	c := dial(t, s, client.WithTimeout(50*time.Millisecond))

	_, err := c.Evaluate(domain.Vector{&domain.Ref{ID: "X"}}, domain.Period{Start: 0, End: 3600})
	require.ErrorIs(t, err, domain.ErrTimeout)
}

func TestClient_RejectsCycleBeforeSending(t *testing.T) {
	s := startServer(t)
	c := dial(t, s)

	axis := domain.FixedAxis{Start: 0, Delta: 3600, N: 2}
	n := domain.NewBinOp(domain.OpAdd, &domain.Ref{ID: "a"}, &domain.Ref{ID: "b"}, axis)
	n.L = n

	_, err := c.Evaluate(domain.Vector{n}, domain.Period{Start: 0, End: 3600})
	require.ErrorIs(t, err, domain.ErrCycle)
}

func TestServer_ResolverSerialized(t *testing.T) {
	var inside, peak int32
	sem := make(chan struct{}, 1) // probes for overlapping invocations
	guard := ports.ResolverFunc(func(ctx context.Context, ids []string, period domain.Period) ([]domain.Series, error) {
		select {
		case sem <- struct{}{}:
		default:
			peak++ // would mean two resolver calls overlapped
		}
		inside++
		time.Sleep(20 * time.Millisecond)
		<-sem
		return valueResolver(map[string]float64{"X": 1, "Y": 2}).Resolve(ctx, ids, period)
	})
	s := startServer(t, WithResolver(guard))

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			c, err := client.Dial(s.Addr().String())
			if err != nil {
				done <- err
				return
			}
			defer c.Close(time.Second)
			_, err = c.Evaluate(domain.Vector{&domain.Ref{ID: "X"}, &domain.Ref{ID: "Y"}}, domain.Period{Start: 0, End: 3600})
			done <- err
		}()
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, <-done)
	}
	assert.EqualValues(t, 2, inside, "both requests reach the resolver")
	assert.Zero(t, peak, "resolver invocations must never overlap")
}
