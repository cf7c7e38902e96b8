// Package timerange holds the closed time interval used for piece and
// trajectory validity.
package timerange

import (
	"fmt"
	"math"
)

type Range struct {
	Begin float64 // [ns]
	End   float64 // [ns]
}

func New(begin, end float64) Range {
	return Range{Begin: begin, End: end}
}

func (r Range) Duration() float64 {
	return r.End - r.Begin
}

func (r Range) Mid() float64 {
	return 0.5 * (r.Begin + r.End)
}

// Null reports an empty or inverted range.
func (r Range) Null() bool {
	return !(r.End > r.Begin)
}

func (r Range) Valid() bool {
	return !math.IsNaN(r.Begin) && !math.IsNaN(r.End) && r.End >= r.Begin
}

func (r Range) Contains(t float64) bool {
	return t >= r.Begin && t <= r.End
}

func (r Range) Overlaps(o Range) bool {
	return r.Begin < o.End && o.Begin < r.End
}

// Restrict returns the intersection of r and o; the result is Null when they
// do not overlap.
func (r Range) Restrict(o Range) Range {
	return Range{Begin: max(r.Begin, o.Begin), End: min(r.End, o.End)}
}

// Clamp moves t into the range.
func (r Range) Clamp(t float64) float64 {
	return min(max(t, r.Begin), r.End)
}

func (r Range) String() string {
	return fmt.Sprintf("[%g, %g]", r.Begin, r.End)
}
