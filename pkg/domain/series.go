package domain

import (
	"fmt"
	"math"
)

// PointInterpretation states what a sample value means relative to its step.
type PointInterpretation uint8

const (
	// PointInstant means the value is an instantaneous observation at the
	// step's start boundary, linear between points.
	PointInstant PointInterpretation = iota
	// PointAverage means the value is the average over the whole step.
	PointAverage
)

func (p PointInterpretation) String() string {
	switch p {
	case PointInstant:
		return "instant"
	case PointAverage:
		return "average"
	default:
		return fmt.Sprintf("interpretation(%d)", uint8(p))
	}
}

// Series is a point series: one value per step of a fixed axis.
type Series struct {
	Axis   FixedAxis
	Values []float64
	Interp PointInterpretation
}

// NewSeries creates a series; the value count must match the axis cardinality.
func NewSeries(axis FixedAxis, values []float64, interp PointInterpretation) (Series, error) {
	if len(values) != axis.N {
		return Series{}, fmt.Errorf("series has %d values for axis of %d steps", len(values), axis.N)
	}
	return Series{Axis: axis, Values: values, Interp: interp}, nil
}

// NewConstantSeries creates a series with every sample set to v.
func NewConstantSeries(axis FixedAxis, v float64, interp PointInterpretation) Series {
	values := make([]float64, axis.N)
	for i := range values {
		values[i] = v
	}
	return Series{Axis: axis, Values: values, Interp: interp}
}

// ValueAt returns the sample of step i, or NaN when i is out of range.
func (s Series) ValueAt(i int) float64 {
	if i < 0 || i >= len(s.Values) {
		return math.NaN()
	}
	return s.Values[i]
}

// Value returns the sample covering time t, NaN outside the axis.
func (s Series) Value(t UtcTime) float64 {
	return s.ValueAt(s.Axis.Index(t))
}

// Clip returns the portion of the series overlapping p, sharing the backing
// value slice. An empty series (same geometry, zero steps) is returned when
// there is no overlap.
func (s Series) Clip(p Period) Series {
	sub := s.Axis.Slice(p)
	if sub.N == 0 {
		return Series{Axis: sub, Values: nil, Interp: s.Interp}
	}
	first := int(int64(sub.Start-s.Axis.Start) / s.Axis.Delta)
	return Series{Axis: sub, Values: s.Values[first : first+sub.N], Interp: s.Interp}
}

// Equal reports structural equality. NaN samples compare equal to NaN so a
// decoded series matches its source.
func (s Series) Equal(o Series) bool {
	if s.Axis != o.Axis || s.Interp != o.Interp || len(s.Values) != len(o.Values) {
		return false
	}
	for i, v := range s.Values {
		w := o.Values[i]
		if v != w && !(math.IsNaN(v) && math.IsNaN(w)) {
			return false
		}
	}
	return true
}
