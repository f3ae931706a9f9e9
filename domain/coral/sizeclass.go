package coral

import (
	"fmt"
	"math"

	"reefdemog/domain/core"
)

// SizeClass is an ordered discrete size bucket, 1-based (SC1 is the smallest).
// Zero means unclassified.
type SizeClass int

// Label returns the display label for a size class ("SC1", "SC2", ...)
func (c SizeClass) Label() string {
	return fmt.Sprintf("SC%d", int(c))
}

// ParseSizeClass parses a "SCn" label back into a SizeClass
func ParseSizeClass(s string) (SizeClass, error) {
	var n int
	if _, err := fmt.Sscanf(s, "SC%d", &n); err != nil || n < 1 {
		return 0, fmt.Errorf("invalid size class label %q", s)
	}
	return SizeClass(n), nil
}

// Breakpoints defines size class boundaries in cm². A sequence of k+1 strictly
// ascending values defines k classes. Classification is half-open on the left and
// closed on the right, except the first class which includes its lower bound.
// The final boundary may be +Inf.
type Breakpoints []float64

// NewBreakpoints validates a boundary sequence. The sequence must have at least
// two values and be strictly ascending; +Inf is only permitted as the last value.
func NewBreakpoints(bounds ...float64) (Breakpoints, error) {
	if len(bounds) < 2 {
		return nil, core.NewBreakpointsError(fmt.Sprintf("need at least 2 boundaries, got %d", len(bounds)))
	}
	for i, b := range bounds {
		if math.IsNaN(b) {
			return nil, core.NewBreakpointsError(fmt.Sprintf("boundary %d is NaN", i))
		}
		if math.IsInf(b, 0) && i != len(bounds)-1 {
			return nil, core.NewBreakpointsError("infinite boundary only allowed in last position")
		}
		if math.IsInf(b, -1) {
			return nil, core.NewBreakpointsError("negative infinite boundary not allowed")
		}
		if i > 0 && bounds[i-1] >= b {
			return nil, core.NewBreakpointsError(
				fmt.Sprintf("boundaries must be strictly ascending, got %v >= %v at position %d", bounds[i-1], b, i))
		}
	}
	out := make(Breakpoints, len(bounds))
	copy(out, bounds)
	return out, nil
}

// DefaultBreakpoints returns the standard coral size class boundaries:
// [0, 25, 100, 500, 2000, +Inf) giving SC1..SC5.
func DefaultBreakpoints() Breakpoints {
	bp, _ := NewBreakpoints(0, 25, 100, 500, 2000, math.Inf(1))
	return bp
}

// NumClasses returns the number of classes the boundaries define
func (b Breakpoints) NumClasses() int {
	return len(b) - 1
}

// Classify maps a size to its class. Sizes at or below the first boundary fall
// into SC1 (non-positive sizes are classified here too; filtering them is the
// caller's responsibility). Sizes beyond the final boundary clamp into the last
// class so that classes partition the whole real line.
func (b Breakpoints) Classify(size float64) SizeClass {
	if size <= b[0] {
		return SizeClass(1)
	}
	for i := 1; i < len(b); i++ {
		if size <= b[i] {
			return SizeClass(i)
		}
	}
	return SizeClass(b.NumClasses())
}

// Bounds returns the [lower, upper] boundary pair for a class
func (b Breakpoints) Bounds(c SizeClass) (lower, upper float64, err error) {
	if int(c) < 1 || int(c) > b.NumClasses() {
		return 0, 0, fmt.Errorf("size class %d out of range [1,%d]", int(c), b.NumClasses())
	}
	return b[int(c)-1], b[int(c)], nil
}

// Classes lists all classes in ascending order
func (b Breakpoints) Classes() []SizeClass {
	out := make([]SizeClass, b.NumClasses())
	for i := range out {
		out[i] = SizeClass(i + 1)
	}
	return out
}

// Labels lists class display labels in ascending order
func (b Breakpoints) Labels() []string {
	out := make([]string, b.NumClasses())
	for i := range out {
		out[i] = SizeClass(i + 1).Label()
	}
	return out
}
