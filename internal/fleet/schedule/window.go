package schedule

import "time"

// Window is a half-open booking interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect:
// aStart < bEnd && bStart < aEnd. A window ending exactly when another starts
// does not overlap it, and a zero-width window overlaps nothing.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Overlaps reports whether w intersects other.
func (w Window) Overlaps(other Window) bool {
	return Overlaps(w.Start, w.End, other.Start, other.End)
}

// IsZero reports whether the window has zero width.
func (w Window) IsZero() bool {
	return !w.Start.Before(w.End)
}
