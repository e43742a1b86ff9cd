package tsexpr_test

import (
	"context"
	"fmt"
	"time"

	tsexpr "github.com/hydrosight/tsexpr"
	"github.com/hydrosight/tsexpr/pkg/domain"
	"github.com/hydrosight/tsexpr/pkg/ports"
	"github.com/hydrosight/tsexpr/pkg/server"
)

// Example_localEvaluation builds a small expression over two in-memory series
// and evaluates it without any server involved.
func Example_localEvaluation() {
	axis := tsexpr.FixedAxis{Start: 0, Delta: 3600, N: 4}
	a, _ := domain.NewSeries(axis, []float64{1, 2, 3, 4}, domain.PointAverage)
	b, _ := domain.NewSeries(axis, []float64{5, 6, 7, 8}, domain.PointAverage)

	expr := domain.NewBinOp(domain.OpAdd, &domain.Point{S: a}, &domain.Point{S: b}, axis)

	out, err := tsexpr.Evaluate(tsexpr.Vector{expr}, tsexpr.Period{Start: 0, End: 4 * 3600})
	if err != nil {
		fmt.Println("evaluate:", err)
		return
	}
	fmt.Println(out[0].Values)
	// Output: [6 8 10 12]
}

// Example_clientServer runs a server with a resolver and evaluates a symbolic
// reference remotely.
func Example_clientServer() {
	resolver := ports.ResolverFunc(func(_ context.Context, ids []string, period tsexpr.Period) ([]tsexpr.Series, error) {
		axis := tsexpr.FixedAxis{Start: period.Start, Delta: 3600, N: int(period.Timespan() / 3600)}
		out := make([]tsexpr.Series, len(ids))
		for i := range ids {
			out[i] = domain.NewConstantSeries(axis, 2.5, domain.PointAverage)
		}
		return out, nil
	})

	srv, err := tsexpr.Serve("127.0.0.1:0", server.WithResolver(resolver))
	if err != nil {
		fmt.Println("serve:", err)
		return
	}
	defer srv.Clear()

	c, err := tsexpr.Dial(srv.Addr().String())
	if err != nil {
		fmt.Println("dial:", err)
		return
	}
	defer c.Close(time.Second)

	expr := &domain.BinOpScalar{Op: domain.OpMul, L: &domain.Ref{ID: "ts://obs/inflow"}, R: 2}
	got, err := c.Evaluate(tsexpr.Vector{expr}, tsexpr.Period{Start: 0, End: 2 * 3600})
	if err != nil {
		fmt.Println("evaluate:", err)
		return
	}
	fmt.Println(got[0].(*domain.Point).S.Values)
	// Output: [5 5]
}
