package eval

import (
	"math"

	"github.com/hydrosight/tsexpr/pkg/domain"
)

type resampleMode uint8

const (
	modeAverage resampleMode = iota
	modeIntegral
)

// resample evaluates child over the target axis span and re-samples it onto
// the axis, either averaging over each step or integrating value*dt.
func (ev *Evaluator) resample(child domain.Node, axis domain.FixedAxis, period domain.Period, mode resampleMode) (domain.Series, error) {
	target := axis.Slice(period)
	if target.N == 0 {
		return domain.Series{Axis: target, Interp: domain.PointAverage}, nil
	}
	cs, err := ev.Evaluate(child, target.TotalPeriod())
	if err != nil {
		return domain.Series{}, err
	}
	out := make([]float64, target.N)
	for i := range out {
		area, covered := integrate(cs, target.PeriodAt(i))
		switch {
		case covered == 0:
			out[i] = math.NaN()
		case mode == modeAverage:
			out[i] = area / covered
		default:
			out[i] = area
		}
	}
	return domain.Series{Axis: target, Values: out, Interp: domain.PointAverage}, nil
}

// integrate computes the integral of s over p and the number of seconds of p
// actually covered by non-NaN samples. Average-interpreted samples are
// stair-case constant over their step; instant samples are linear between
// consecutive points (the last point extends flat to the axis end).
func integrate(s domain.Series, p domain.Period) (area, covered float64) {
	if s.Axis.N == 0 || !p.Overlaps(s.Axis.TotalPeriod()) {
		return 0, 0
	}
	for i := 0; i < s.Axis.N; i++ {
		step := s.Axis.PeriodAt(i)
		lo, hi := step.Start, step.End
		if lo < p.Start {
			lo = p.Start
		}
		if hi > p.End {
			hi = p.End
		}
		if hi <= lo {
			continue
		}
		dt := float64(hi - lo)
		v := s.Values[i]
		if math.IsNaN(v) {
			continue
		}
		if s.Interp == domain.PointInstant && i+1 < s.Axis.N && !math.IsNaN(s.Values[i+1]) {
			// Linear segment between point i and i+1: integrate the
			// interpolant over the clipped sub-interval.
			v1 := s.Values[i+1]
			span := float64(step.End - step.Start)
			f0 := v + (v1-v)*float64(lo-step.Start)/span
			f1 := v + (v1-v)*float64(hi-step.Start)/span
			area += (f0 + f1) / 2 * dt
		} else {
			area += v * dt
		}
		covered += dt
	}
	return area, covered
}
