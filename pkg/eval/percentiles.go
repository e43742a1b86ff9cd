package eval

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/hydrosight/tsexpr/pkg/domain"
	"github.com/hydrosight/tsexpr/pkg/ports"
)

// MeanPercentile selects the arithmetic mean instead of an order statistic.
const MeanPercentile = -1

// Percentiles binds and evaluates v over period, resamples every member onto
// outAxis, and returns one series per requested percentile, in request order.
//
// Percentile values follow the service convention: -1 is the arithmetic mean
// of the ensemble at each step; 0..100 is the corresponding statistical
// percentile with linear interpolation between order statistics. NaN samples
// are excluded from the per-step ensemble.
func Percentiles(ctx context.Context, v domain.Vector, period domain.Period, outAxis domain.FixedAxis, percentiles []int, resolver ports.Resolver) ([]domain.Series, error) {
	for _, p := range percentiles {
		if p != MeanPercentile && (p < 0 || p > 100) {
			return nil, fmt.Errorf("percentile %d outside [-1, 100]", p)
		}
	}
	bound, err := Bind(ctx, v, period, resolver)
	if err != nil {
		return nil, err
	}
	ev := New()
	aligned := make([]domain.Series, len(bound))
	for i, n := range bound {
		// Resampling onto the output axis reuses the Average semantics.
		s, err := ev.Evaluate(&domain.Average{Axis: outAxis, Child: n}, period)
		if err != nil {
			return nil, fmt.Errorf("ensemble member %d: %w", i, err)
		}
		aligned[i] = s
	}

	axis := outAxis.Slice(period)
	out := make([]domain.Series, len(percentiles))
	for pi := range out {
		out[pi] = domain.Series{Axis: axis, Values: make([]float64, axis.N), Interp: domain.PointAverage}
	}
	ensemble := make([]float64, 0, len(aligned))
	for step := 0; step < axis.N; step++ {
		ts := axis.TimeAt(step)
		ensemble = ensemble[:0]
		for _, s := range aligned {
			if v := s.Value(ts); !math.IsNaN(v) {
				ensemble = append(ensemble, v)
			}
		}
		sort.Float64s(ensemble)
		for pi, p := range percentiles {
			out[pi].Values[step] = statistic(ensemble, p)
		}
	}
	return out, nil
}

// statistic computes one per-step statistic from the sorted ensemble.
func statistic(sorted []float64, percentile int) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if percentile == MeanPercentile {
		sum := 0.0
		for _, v := range sorted {
			sum += v
		}
		return sum / float64(n)
	}
	if n == 1 {
		return sorted[0]
	}
	rank := float64(percentile) / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
