package domain

import "time"

// TimeInterval is a half-open time span [Start, End). A valid interval
// always has End strictly after Start.
type TimeInterval struct {
	Start time.Time
	End   time.Time
}

func (iv TimeInterval) IsValid() bool {
	return iv.End.After(iv.Start)
}

func (iv TimeInterval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Overlaps reports whether two intervals share any time. Touching
// endpoints (a.End == b.Start) do not overlap.
func (iv TimeInterval) Overlaps(other TimeInterval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// ShiftDays moves both endpoints by the given number of calendar days,
// preserving the wall-clock time in the interval's own location.
func (iv TimeInterval) ShiftDays(days int) TimeInterval {
	return TimeInterval{
		Start: AddDays(iv.Start, days),
		End:   AddDays(iv.End, days),
	}
}

func AddMinutes(t time.Time, n int) time.Time {
	return t.Add(time.Duration(n) * time.Minute)
}

func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// StartOfWeek returns midnight of the Sunday opening the week containing t,
// in t's location.
func StartOfWeek(t time.Time) time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return d.AddDate(0, 0, -int(d.Weekday()))
}

// DaysBetween returns the number of calendar days from a to b, negative
// when b precedes a. Clock times are ignored.
func DaysBetween(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da) / (24 * time.Hour))
}
