package domain

import "fmt"

// MaxAxisSteps bounds the cardinality of any axis or generated series built
// from untrusted input. The axis wire form is compact, so a few bytes can
// describe an axis whose materialization would exhaust memory; decode and the
// generator nodes reject anything above this limit.
const MaxAxisSteps = 1 << 26

// FixedAxis is a fixed-step time axis: N contiguous periods of Delta seconds
// starting at Start. It is the compact representation used throughout the
// service; Delta must be > 0 and N >= 0.
type FixedAxis struct {
	Start UtcTime
	Delta int64
	N     int
}

// NewFixedAxis creates a fixed axis. It returns an error on a non-positive
// step or a negative count, the two ways the invariant can break.
func NewFixedAxis(start UtcTime, delta int64, n int) (FixedAxis, error) {
	if delta <= 0 {
		return FixedAxis{}, fmt.Errorf("axis step must be positive, got %d", delta)
	}
	if n < 0 {
		return FixedAxis{}, fmt.Errorf("axis count must be non-negative, got %d", n)
	}
	return FixedAxis{Start: start, Delta: delta, N: n}, nil
}

// Valid reports whether the axis satisfies its invariants.
func (a FixedAxis) Valid() bool {
	return a.Delta > 0 && a.N >= 0
}

// TimeAt returns the start boundary of step i. i may equal N, yielding the
// end of the axis.
func (a FixedAxis) TimeAt(i int) UtcTime {
	return a.Start + UtcTime(int64(i)*a.Delta)
}

// PeriodAt returns the half-open period of step i.
func (a FixedAxis) PeriodAt(i int) Period {
	return Period{Start: a.TimeAt(i), End: a.TimeAt(i + 1)}
}

// TotalPeriod returns the period covered by the whole axis.
func (a FixedAxis) TotalPeriod() Period {
	return Period{Start: a.Start, End: a.TimeAt(a.N)}
}

// Index returns the step containing t, or -1 if t is outside the axis.
func (a FixedAxis) Index(t UtcTime) int {
	if a.N == 0 || t < a.Start {
		return -1
	}
	i := int(int64(t-a.Start) / a.Delta)
	if i >= a.N {
		return -1
	}
	return i
}

// Slice returns the sub-axis covering [from, to) clipped to the axis bounds.
// The result keeps the step geometry; it may be empty.
func (a FixedAxis) Slice(p Period) FixedAxis {
	if a.N == 0 || !p.Overlaps(a.TotalPeriod()) {
		return FixedAxis{Start: a.Start, Delta: a.Delta, N: 0}
	}
	first := 0
	if p.Start > a.Start {
		first = int(int64(p.Start-a.Start) / a.Delta)
	}
	last := a.N // exclusive
	if p.End < a.TimeAt(a.N) {
		last = int(int64(p.End-a.Start) / a.Delta)
		if a.TimeAt(last) < p.End {
			last++
		}
	}
	if last <= first {
		return FixedAxis{Start: a.Start, Delta: a.Delta, N: 0}
	}
	return FixedAxis{Start: a.TimeAt(first), Delta: a.Delta, N: last - first}
}

func (a FixedAxis) String() string {
	return fmt.Sprintf("axis{start=%d delta=%d n=%d}", a.Start, a.Delta, a.N)
}
