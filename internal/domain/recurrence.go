package domain

import (
	"errors"

	"github.com/google/uuid"
)

type RecurrencePattern string

const (
	RecurrenceNone     RecurrencePattern = "none"
	RecurrenceWeekly   RecurrencePattern = "weekly"
	RecurrenceBiweekly RecurrencePattern = "biweekly"
)

const (
	MinRecurrenceCount = 1
	MaxRecurrenceCount = 150
)

var (
	ErrInvalidInterval    = errors.New("end must be after start")
	ErrUnsupportedPattern = errors.New("unsupported recurrence pattern")
)

// stepDays returns the day offset between consecutive occurrences.
func (p RecurrencePattern) stepDays() (int, bool) {
	switch p {
	case RecurrenceNone:
		return 0, true
	case RecurrenceWeekly:
		return 7, true
	case RecurrenceBiweekly:
		return 14, true
	}
	return 0, false
}

// ClampCount forces a repeat count into [MinRecurrenceCount, MaxRecurrenceCount].
func ClampCount(n int) int {
	if n < MinRecurrenceCount {
		return MinRecurrenceCount
	}
	if n > MaxRecurrenceCount {
		return MaxRecurrenceCount
	}
	return n
}

// Expansion is the result of expanding one recurrence request: the concrete
// instances in chronological order and, when more than one instance was
// produced, the series id they all share. A single occurrence is not a
// series and carries no id.
type Expansion struct {
	SeriesID  *uuid.UUID
	Instances []TimeInterval
}

// ExpandRecurrence turns an anchor interval plus a pattern into concrete
// instances, each shifted a whole number of weeks from the anchor with the
// duration preserved. The slice is built eagerly: the count is bounded and
// every instance needs an individual conflict check before anything commits.
func ExpandRecurrence(anchor TimeInterval, pattern RecurrencePattern, count int) (Expansion, error) {
	if !anchor.IsValid() {
		return Expansion{}, ErrInvalidInterval
	}
	step, ok := pattern.stepDays()
	if !ok {
		return Expansion{}, ErrUnsupportedPattern
	}

	if pattern == RecurrenceNone {
		count = 1
	} else {
		count = ClampCount(count)
	}

	instances := make([]TimeInterval, 0, count)
	for i := 0; i < count; i++ {
		instances = append(instances, anchor.ShiftDays(step*i))
	}

	var seriesID *uuid.UUID
	if len(instances) > 1 {
		id := uuid.New()
		seriesID = &id
	}

	return Expansion{SeriesID: seriesID, Instances: instances}, nil
}
