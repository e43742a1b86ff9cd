package domain

import (
	"fmt"
	"time"
)

// UtcTime is a point in time, seconds since the Unix epoch.
// The service works in whole seconds; sub-second geometry is out of scope.
type UtcTime int64

// FromTime converts a time.Time to UtcTime, truncating to seconds.
func FromTime(t time.Time) UtcTime {
	return UtcTime(t.Unix())
}

// Time converts back to a time.Time in UTC.
func (t UtcTime) Time() time.Time {
	return time.Unix(int64(t), 0).UTC()
}

// DeltaHours returns a duration of n hours in seconds.
func DeltaHours(n int) int64 {
	return int64(n) * 3600
}

// Period is a half-open time interval [Start, End).
type Period struct {
	Start UtcTime
	End   UtcTime
}

// NewPeriod creates a period from start and end.
func NewPeriod(start, end UtcTime) Period {
	return Period{Start: start, End: end}
}

// Valid reports whether the period is well formed (Start <= End).
func (p Period) Valid() bool {
	return p.Start <= p.End
}

// Timespan returns the length of the period in seconds.
func (p Period) Timespan() int64 {
	return int64(p.End - p.Start)
}

// Contains reports whether t falls inside the half-open interval.
func (p Period) Contains(t UtcTime) bool {
	return t >= p.Start && t < p.End
}

// Overlaps reports whether the two periods share any time.
func (p Period) Overlaps(o Period) bool {
	return p.Start < o.End && o.Start < p.End
}

// Shift returns the period moved by dt seconds.
func (p Period) Shift(dt int64) Period {
	return Period{Start: p.Start + UtcTime(dt), End: p.End + UtcTime(dt)}
}

func (p Period) String() string {
	return fmt.Sprintf("[%s..%s)", p.Start.Time().Format(time.RFC3339), p.End.Time().Format(time.RFC3339))
}
