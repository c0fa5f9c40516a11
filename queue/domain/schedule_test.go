package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextOccurrence(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

	next, ok := NextOccurrence(now, ScheduleDaily)
	require.True(t, ok)
	assert.Equal(t, now.Add(24*time.Hour), next)

	next, ok = NextOccurrence(now, ScheduleWeekly)
	require.True(t, ok)
	assert.Equal(t, now.Add(7*24*time.Hour), next)

	_, ok = NextOccurrence(now, ScheduleOnce)
	assert.False(t, ok)
}

func TestDecrementRemaining(t *testing.T) {
	assert.Nil(t, DecrementRemaining(nil), "unbounded stays unbounded")

	three := 3
	got := DecrementRemaining(&three)
	require.NotNil(t, got)
	assert.Equal(t, 2, *got)
	assert.Equal(t, 3, three, "input counter must not be mutated")
}

func TestShouldReschedule(t *testing.T) {
	one, two := 1, 2

	assert.False(t, ShouldReschedule(ScheduleOnce, nil), "once never recurs")
	assert.False(t, ShouldReschedule(ScheduleOnce, &two))

	assert.True(t, ShouldReschedule(ScheduleDaily, nil), "nil counter is unbounded")
	assert.True(t, ShouldReschedule(ScheduleWeekly, &two))

	// Final occurrence: deliver, then stop.
	assert.False(t, ShouldReschedule(ScheduleDaily, &one))
}

func TestTruncateError(t *testing.T) {
	assert.Equal(t, DefaultDispatchError, TruncateError("  "))
	assert.Equal(t, "boom", TruncateError("boom"))

	long := make([]byte, MaxLastErrorLen+100)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, TruncateError(string(long)), MaxLastErrorLen)
}

func TestNormalizeEnums(t *testing.T) {
	assert.Equal(t, KindListing, NormalizeKind(""))
	assert.Equal(t, KindRequirement, NormalizeKind(" Requirement "))
	assert.Equal(t, PriorityNormal, NormalizePriority("urgent"))
	assert.Equal(t, PriorityHigh, NormalizePriority("HIGH"))
	assert.Equal(t, ScheduleOnce, NormalizeScheduleMode("monthly"))
	assert.Equal(t, ScheduleWeekly, NormalizeScheduleMode("weekly"))
	assert.Equal(t, SourceAPI, NormalizeSource("??"))
	assert.Equal(t, SourceWhatsapp, NormalizeSource("whatsapp"))
}
