package domain

import "time"

// NextOccurrence returns the next eligible send instant after a successful
// cycle. The second return is false for one-shot schedules, which never
// recur.
func NextOccurrence(after time.Time, mode ScheduleMode) (time.Time, bool) {
	switch mode {
	case ScheduleDaily:
		return after.Add(24 * time.Hour), true
	case ScheduleWeekly:
		return after.Add(7 * 24 * time.Hour), true
	default:
		return time.Time{}, false
	}
}

// DecrementRemaining consumes one occurrence from a bounded counter.
// A nil counter means unbounded recurrence and passes through unchanged.
func DecrementRemaining(remaining *int) *int {
	if remaining == nil {
		return nil
	}
	v := *remaining - 1
	return &v
}

// ShouldReschedule decides whether a fully delivered recurring item goes
// back to the queue for another occurrence. A bounded item performs its
// final send and then terminates as sent (send-then-stop).
func ShouldReschedule(mode ScheduleMode, remaining *int) bool {
	if mode != ScheduleDaily && mode != ScheduleWeekly {
		return false
	}
	return remaining == nil || *remaining > 1
}
