package domain

import "time"

// AvailableSlot is a bookable UTC interval of fixed event duration.
// End is always Start plus the configured duration.
type AvailableSlot struct {
	Start time.Time `json:"start_time"`
	End   time.Time `json:"end_time"`
}

// Overlaps reports whether the slot intersects the half-open busy interval
// [busyStart, busyEnd).
func (s AvailableSlot) Overlaps(busyStart, busyEnd time.Time) bool {
	return s.Start.Before(busyEnd) && s.End.After(busyStart)
}
