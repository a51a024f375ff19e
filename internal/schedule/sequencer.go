package schedule

import (
	"errors"
	"fmt"
	"time"

	"uborka/internal/models"
)

// ErrValidation marks client-correctable input errors from the scheduling
// primitives. Callers match it with errors.Is.
var ErrValidation = errors.New("validation error")

// Sequence expands a recurrence rule into the dated instants that follow
// start. The first produced instant is one interval after start: the start
// date belongs to the series root itself and is never repeated. Generation
// stops once the next instant would pass end (when provided) or the output
// reaches max, whichever comes first.
//
// The function is pure: identical inputs always produce the identical
// sequence. Resume relies on that to be safely re-invokable.
func Sequence(start time.Time, frequency string, end *time.Time, max int) ([]time.Time, error) {
	if !models.ValidFrequency(frequency) {
		return nil, fmt.Errorf("%w: unknown frequency %q", ErrValidation, frequency)
	}
	if max < 0 {
		return nil, fmt.Errorf("%w: max occurrences must not be negative, got %d", ErrValidation, max)
	}

	// Start already past the boundary: an empty sequence, not an error.
	if end != nil && start.After(*end) {
		return []time.Time{}, nil
	}

	out := make([]time.Time, 0, max)
	for i := 1; len(out) < max; i++ {
		next := advance(start, frequency, i)
		if end != nil && next.After(*end) {
			break
		}
		out = append(out, next)
	}

	return out, nil
}

// advance returns start moved forward by steps intervals. Monthly steps stay
// anchored to start's day-of-month and clamp to the last day of shorter
// months, so Jan 31 yields Feb 28 and then Mar 31.
func advance(start time.Time, frequency string, steps int) time.Time {
	switch frequency {
	case models.FrequencyWeekly:
		return start.AddDate(0, 0, 7*steps)
	case models.FrequencyBiweekly:
		return start.AddDate(0, 0, 14*steps)
	default: // monthly
		return addMonthsClamped(start, steps)
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	targetMonth := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysInMonth(targetMonth); day > last {
		day = last
	}
	return time.Date(targetMonth.Year(), targetMonth.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(firstOfMonth time.Time) int {
	return firstOfMonth.AddDate(0, 1, -1).Day()
}
