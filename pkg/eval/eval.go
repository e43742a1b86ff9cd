// Package eval implements evaluation, binding and percentile aggregation for
// expression graphs.
//
// Evaluation is a type switch over the closed node set in pkg/domain. A
// per-request memo cache keyed by (node, period) guarantees a subexpression
// shared by several parents is computed once per request.
package eval

import (
	"fmt"
	"math"

	"github.com/hydrosight/tsexpr/pkg/domain"
)

type cacheKey struct {
	node   domain.Node
	period domain.Period
}

// Evaluator evaluates expression graphs for a single request. It is not safe
// for concurrent use; each request gets its own.
type Evaluator struct {
	cache map[cacheKey]domain.Series
}

// New creates an Evaluator.
func New() *Evaluator {
	return &Evaluator{cache: make(map[cacheKey]domain.Series)}
}

// Evaluate computes the series of n over period. The graph must be fully
// bound; hitting an unresolved Ref returns UnboundRefError with its id.
func Evaluate(n domain.Node, period domain.Period) (domain.Series, error) {
	return New().Evaluate(n, period)
}

// EvaluateVector evaluates every element of v over period, sharing one memo
// cache so common subexpressions are computed once.
func EvaluateVector(v domain.Vector, period domain.Period) ([]domain.Series, error) {
	ev := New()
	out := make([]domain.Series, len(v))
	for i, n := range v {
		s, err := ev.Evaluate(n, period)
		if err != nil {
			return nil, fmt.Errorf("vector element %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}

// Evaluate computes the series of n over period using the evaluator's cache.
func (ev *Evaluator) Evaluate(n domain.Node, period domain.Period) (domain.Series, error) {
	key := cacheKey{node: n, period: period}
	if s, ok := ev.cache[key]; ok {
		return s, nil
	}
	s, err := ev.eval(n, period)
	if err != nil {
		return domain.Series{}, err
	}
	ev.cache[key] = s
	return s, nil
}

func (ev *Evaluator) eval(n domain.Node, period domain.Period) (domain.Series, error) {
	switch t := n.(type) {
	case *domain.Point:
		return t.S.Clip(period), nil

	case *domain.Ref:
		return domain.Series{}, &domain.UnboundRefError{ID: t.ID}

	case *domain.Average:
		return ev.resample(t.Child, t.Axis, period, modeAverage)

	case *domain.Integral:
		return ev.resample(t.Child, t.Axis, period, modeIntegral)

	case *domain.Accumulate:
		return ev.accumulate(t, period)

	case *domain.TimeShift:
		cs, err := ev.Evaluate(t.Child, period.Shift(-t.Dt))
		if err != nil {
			return domain.Series{}, err
		}
		shifted := cs.Axis
		shifted.Start += domain.UtcTime(t.Dt)
		return domain.Series{Axis: shifted, Values: cs.Values, Interp: cs.Interp}, nil

	case *domain.Periodic:
		return evalPeriodic(t, period)

	case *domain.Convolve:
		return ev.convolve(t, period)

	case *domain.BinOp:
		return ev.binOp(t, period)

	case *domain.BinOpScalar:
		cs, err := ev.Evaluate(t.L, period)
		if err != nil {
			return domain.Series{}, err
		}
		out := make([]float64, len(cs.Values))
		for i, v := range cs.Values {
			out[i] = applyOp(t.Op, v, t.R)
		}
		return domain.Series{Axis: cs.Axis, Values: out, Interp: cs.Interp}, nil

	case *domain.ScalarBinOp:
		cs, err := ev.Evaluate(t.R, period)
		if err != nil {
			return domain.Series{}, err
		}
		out := make([]float64, len(cs.Values))
		for i, v := range cs.Values {
			out[i] = applyOp(t.Op, t.L, v)
		}
		return domain.Series{Axis: cs.Axis, Values: out, Interp: cs.Interp}, nil

	default:
		return domain.Series{}, fmt.Errorf("unknown node type %T", n)
	}
}

// applyOp applies one arithmetic operator. Division by zero yields NaN so
// evaluation stays total over the numeric domain; NaN operands propagate.
func applyOp(op domain.Op, a, b float64) float64 {
	switch op {
	case domain.OpAdd:
		return a + b
	case domain.OpSub:
		return a - b
	case domain.OpMul:
		return a * b
	case domain.OpDiv:
		if b == 0 {
			return math.NaN()
		}
		return a / b
	case domain.OpMin:
		if math.IsNaN(a) || math.IsNaN(b) {
			return math.NaN()
		}
		return math.Min(a, b)
	case domain.OpMax:
		if math.IsNaN(a) || math.IsNaN(b) {
			return math.NaN()
		}
		return math.Max(a, b)
	default:
		return math.NaN()
	}
}

func (ev *Evaluator) binOp(t *domain.BinOp, period domain.Period) (domain.Series, error) {
	ls, err := ev.Evaluate(t.L, period)
	if err != nil {
		return domain.Series{}, err
	}
	rs, err := ev.Evaluate(t.R, period)
	if err != nil {
		return domain.Series{}, err
	}
	// The result axis was fixed at construction; it is not re-derived here.
	axis := t.Axis.Slice(period)
	out := make([]float64, axis.N)
	for i := range out {
		ts := axis.TimeAt(i)
		out[i] = applyOp(t.Op, ls.Value(ts), rs.Value(ts))
	}
	return domain.Series{Axis: axis, Values: out, Interp: domain.PointAverage}, nil
}

func evalPeriodic(t *domain.Periodic, period domain.Period) (domain.Series, error) {
	if t.Delta <= 0 {
		return domain.Series{}, fmt.Errorf("periodic step must be positive, got %d", t.Delta)
	}
	if len(t.Pattern) == 0 || !period.Valid() || period.Timespan() == 0 {
		return domain.Series{Axis: domain.FixedAxis{Start: period.Start, Delta: t.Delta, N: 0}, Interp: t.Interp}, nil
	}
	// Align the output axis to the pattern's own grid.
	first := int64(math.Floor(float64(period.Start-t.T0) / float64(t.Delta)))
	start := t.T0 + domain.UtcTime(first*t.Delta)
	steps := (int64(period.End-start) + t.Delta - 1) / t.Delta
	if steps > domain.MaxAxisSteps {
		return domain.Series{}, fmt.Errorf("periodic expansion of %d steps exceeds limit %d", steps, domain.MaxAxisSteps)
	}
	n := int(steps)
	values := make([]float64, n)
	for i := range values {
		idx := (first + int64(i)) % int64(len(t.Pattern))
		if idx < 0 {
			idx += int64(len(t.Pattern))
		}
		values[i] = t.Pattern[idx]
	}
	return domain.Series{
		Axis:   domain.FixedAxis{Start: start, Delta: t.Delta, N: n},
		Values: values,
		Interp: t.Interp,
	}, nil
}

func (ev *Evaluator) accumulate(t *domain.Accumulate, period domain.Period) (domain.Series, error) {
	axis := t.Axis.Slice(period)
	if axis.N == 0 {
		return domain.Series{Axis: axis, Interp: domain.PointInstant}, nil
	}
	// Accumulation always starts at the node's own axis origin, even when the
	// requested period begins later.
	cs, err := ev.Evaluate(t.Child, domain.Period{Start: t.Axis.Start, End: axis.TimeAt(axis.N)})
	if err != nil {
		return domain.Series{}, err
	}
	out := make([]float64, axis.N)
	for i := range out {
		area, covered := integrate(cs, domain.Period{Start: t.Axis.Start, End: axis.TimeAt(i)})
		if covered == 0 && i > 0 {
			out[i] = math.NaN()
		} else {
			out[i] = area
		}
	}
	return domain.Series{Axis: axis, Values: out, Interp: domain.PointInstant}, nil
}

func (ev *Evaluator) convolve(t *domain.Convolve, period domain.Period) (domain.Series, error) {
	k := len(t.Kernel)
	if k == 0 {
		return domain.Series{}, fmt.Errorf("convolution kernel is empty")
	}
	probe, err := ev.Evaluate(t.Child, period)
	if err != nil {
		return domain.Series{}, err
	}
	if probe.Axis.N == 0 {
		return probe, nil
	}
	delta := probe.Axis.Delta
	// Widen backwards so the kernel has history to draw on at period start.
	support := int64(k-1) * delta
	cs, err := ev.Evaluate(t.Child, domain.Period{Start: period.Start - domain.UtcTime(support), End: period.End})
	if err != nil {
		return domain.Series{}, err
	}
	if cs.Axis.Delta != delta {
		return domain.Series{}, fmt.Errorf("convolution requires a uniform-step child axis")
	}

	outAxis := probe.Axis
	// headroom is how many child samples precede the first output step.
	headroom := int(int64(outAxis.Start-cs.Axis.Start) / delta)
	if t.Policy == domain.ConvolveSkip && headroom < k-1 {
		// Not enough history: shorten the output range instead of padding.
		drop := (k - 1) - headroom
		if drop >= outAxis.N {
			return domain.Series{Axis: domain.FixedAxis{Start: outAxis.Start, Delta: delta, N: 0}, Interp: probe.Interp}, nil
		}
		outAxis = domain.FixedAxis{Start: outAxis.TimeAt(drop), Delta: delta, N: outAxis.N - drop}
		headroom += drop
	}

	out := make([]float64, outAxis.N)
	for i := range out {
		sum := 0.0
		for j, w := range t.Kernel {
			// Out-of-range taps contribute nothing: that is the zero policy,
			// and under the skip policy the shortening above already removed
			// the steps that would need them. NaN samples likewise.
			ci := headroom + i - j
			if ci < 0 || ci >= cs.Axis.N {
				continue
			}
			if v := cs.Values[ci]; !math.IsNaN(v) {
				sum += w * v
			}
		}
		out[i] = sum
	}
	return domain.Series{Axis: outAxis, Values: out, Interp: probe.Interp}, nil
}
