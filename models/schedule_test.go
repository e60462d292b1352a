package models

import (
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	t.Run("ValidTimes", func(t *testing.T) {
		hour, minute, err := ParseTimeOfDay("09:30")
		require.NoError(t, err)
		assert.Equal(t, 9, hour)
		assert.Equal(t, 30, minute)

		hour, minute, err = ParseTimeOfDay("00:00")
		require.NoError(t, err)
		assert.Equal(t, 0, hour)
		assert.Equal(t, 0, minute)

		hour, minute, err = ParseTimeOfDay("23:59")
		require.NoError(t, err)
		assert.Equal(t, 23, hour)
		assert.Equal(t, 59, minute)
	})

	t.Run("InvalidTimes", func(t *testing.T) {
		for _, s := range []string{"", "abc", "24:00", "12:60", "-1:30"} {
			_, _, err := ParseTimeOfDay(s)
			assert.Error(t, err, "expected error for %q", s)
		}
	})
}

func TestNextOccurrenceAfterOnce(t *testing.T) {
	runAt := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	schedule := &MessageSchedule{
		Recurrence: RecurrenceOnce,
		RunAt:      &runAt,
	}

	t.Run("ReturnsStoredInstant", func(t *testing.T) {
		next := schedule.NextOccurrenceAfter(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
		require.NotNil(t, next)
		assert.Equal(t, runAt, *next)
	})

	t.Run("TruncatesSubsecond", func(t *testing.T) {
		at := time.Date(2026, 3, 15, 10, 0, 0, 123456789, time.UTC)
		s := &MessageSchedule{Recurrence: RecurrenceOnce, RunAt: &at}
		next := s.NextOccurrenceAfter(time.Now())
		require.NotNil(t, next)
		assert.Equal(t, time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC), *next)
	})

	t.Run("NilRunAt", func(t *testing.T) {
		s := &MessageSchedule{Recurrence: RecurrenceOnce}
		assert.Nil(t, s.NextOccurrenceAfter(time.Now()))
	})
}

func TestNextOccurrenceAfterDaily(t *testing.T) {
	schedule := &MessageSchedule{
		Recurrence: RecurrenceDaily,
		TimeOfDay:  "14:00",
	}

	t.Run("LaterToday", func(t *testing.T) {
		ref := time.Date(2026, 6, 10, 8, 0, 0, 0, time.UTC)
		next := schedule.NextOccurrenceAfter(ref)
		require.NotNil(t, next)
		assert.Equal(t, time.Date(2026, 6, 10, 14, 0, 0, 0, time.UTC), *next)
	})

	t.Run("Tomorrow", func(t *testing.T) {
		ref := time.Date(2026, 6, 10, 15, 0, 0, 0, time.UTC)
		next := schedule.NextOccurrenceAfter(ref)
		require.NotNil(t, next)
		assert.Equal(t, time.Date(2026, 6, 11, 14, 0, 0, 0, time.UTC), *next)
	})

	t.Run("ExactlyAtTimeOfDayGoesToTomorrow", func(t *testing.T) {
		ref := time.Date(2026, 6, 10, 14, 0, 0, 0, time.UTC)
		next := schedule.NextOccurrenceAfter(ref)
		require.NotNil(t, next)
		assert.Equal(t, time.Date(2026, 6, 11, 14, 0, 0, 0, time.UTC), *next)
	})

	t.Run("UnparsableTimeOfDay", func(t *testing.T) {
		s := &MessageSchedule{Recurrence: RecurrenceDaily, TimeOfDay: "nope"}
		assert.Nil(t, s.NextOccurrenceAfter(time.Now()))
	})
}

func TestNextOccurrenceAfterWeekly(t *testing.T) {
	// 2026-06-10 is a Wednesday
	ref := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

	t.Run("NextAllowedWeekday", func(t *testing.T) {
		s := &MessageSchedule{
			Recurrence: RecurrenceWeekly,
			TimeOfDay:  "09:00",
			Weekdays:   pq.Int64Array{1, 5}, // Monday, Friday
		}
		next := s.NextOccurrenceAfter(ref)
		require.NotNil(t, next)
		assert.Equal(t, time.Friday, next.Weekday())
		assert.Equal(t, time.Date(2026, 6, 12, 9, 0, 0, 0, time.UTC), *next)
	})

	t.Run("SameWeekdayAdvancesFullWeek", func(t *testing.T) {
		s := &MessageSchedule{
			Recurrence: RecurrenceWeekly,
			TimeOfDay:  "09:00",
			Weekdays:   pq.Int64Array{3}, // Wednesday only
		}
		next := s.NextOccurrenceAfter(ref)
		require.NotNil(t, next)
		assert.Equal(t, time.Date(2026, 6, 17, 9, 0, 0, 0, time.UTC), *next)
	})

	t.Run("EmptyWeekdaySet", func(t *testing.T) {
		s := &MessageSchedule{Recurrence: RecurrenceWeekly, TimeOfDay: "09:00"}
		assert.Nil(t, s.NextOccurrenceAfter(ref))
	})

	t.Run("OutOfRangeWeekdaysIgnored", func(t *testing.T) {
		s := &MessageSchedule{
			Recurrence: RecurrenceWeekly,
			TimeOfDay:  "09:00",
			Weekdays:   pq.Int64Array{9, -1},
		}
		assert.Nil(t, s.NextOccurrenceAfter(ref))
	})
}

func TestNextOccurrenceAfterMonthly(t *testing.T) {
	t.Run("AdvancesToNextMonth", func(t *testing.T) {
		day := 15
		s := &MessageSchedule{
			Recurrence: RecurrenceMonthly,
			TimeOfDay:  "08:30",
			DayOfMonth: &day,
		}
		ref := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
		next := s.NextOccurrenceAfter(ref)
		require.NotNil(t, next)
		assert.Equal(t, time.Date(2026, 7, 15, 8, 30, 0, 0, time.UTC), *next)
	})

	t.Run("ClampsDayToMonthLength", func(t *testing.T) {
		day := 31
		s := &MessageSchedule{
			Recurrence: RecurrenceMonthly,
			TimeOfDay:  "10:00",
			DayOfMonth: &day,
		}
		// next month after January 2026 is February, which has 28 days
		ref := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
		next := s.NextOccurrenceAfter(ref)
		require.NotNil(t, next)
		assert.Equal(t, time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC), *next)
	})

	t.Run("LeapYearFebruary", func(t *testing.T) {
		day := 30
		s := &MessageSchedule{
			Recurrence: RecurrenceMonthly,
			TimeOfDay:  "10:00",
			DayOfMonth: &day,
		}
		ref := time.Date(2028, 1, 5, 0, 0, 0, 0, time.UTC)
		next := s.NextOccurrenceAfter(ref)
		require.NotNil(t, next)
		assert.Equal(t, time.Date(2028, 2, 29, 10, 0, 0, 0, time.UTC), *next)
	})

	t.Run("MissingDayOfMonth", func(t *testing.T) {
		s := &MessageSchedule{Recurrence: RecurrenceMonthly, TimeOfDay: "10:00"}
		assert.Nil(t, s.NextOccurrenceAfter(time.Now()))
	})

	t.Run("NonPositiveDay", func(t *testing.T) {
		day := 0
		s := &MessageSchedule{Recurrence: RecurrenceMonthly, TimeOfDay: "10:00", DayOfMonth: &day}
		assert.Nil(t, s.NextOccurrenceAfter(time.Now()))
	})
}

func TestNextRunAfterExecution(t *testing.T) {
	t.Run("OnceHasNoNextRun", func(t *testing.T) {
		runAt := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
		s := &MessageSchedule{Recurrence: RecurrenceOnce, RunAt: &runAt}
		assert.Nil(t, s.NextRunAfterExecution(runAt))
	})

	t.Run("DailyAlwaysAdvancesADay", func(t *testing.T) {
		s := &MessageSchedule{Recurrence: RecurrenceDaily, TimeOfDay: "14:00"}
		// run fired early in the day; the next due is still tomorrow, never
		// 14:00 of the same day
		runTime := time.Date(2026, 6, 10, 2, 0, 0, 0, time.UTC)
		next := s.NextRunAfterExecution(runTime)
		require.NotNil(t, next)
		assert.Equal(t, time.Date(2026, 6, 11, 14, 0, 0, 0, time.UTC), *next)
	})

	t.Run("WeeklyDelegatesToNextOccurrence", func(t *testing.T) {
		s := &MessageSchedule{
			Recurrence: RecurrenceWeekly,
			TimeOfDay:  "09:00",
			Weekdays:   pq.Int64Array{1},
		}
		runTime := time.Date(2026, 6, 10, 9, 5, 0, 0, time.UTC)
		next := s.NextRunAfterExecution(runTime)
		require.NotNil(t, next)
		assert.Equal(t, time.Monday, next.Weekday())
		assert.True(t, next.After(runTime))
	})

	t.Run("DegenerateDailyReturnsNil", func(t *testing.T) {
		s := &MessageSchedule{Recurrence: RecurrenceDaily, TimeOfDay: ""}
		assert.Nil(t, s.NextRunAfterExecution(time.Now()))
	})
}

func TestRecurrenceKind(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		assert.True(t, RecurrenceOnce.Valid())
		assert.True(t, RecurrenceDaily.Valid())
		assert.True(t, RecurrenceWeekly.Valid())
		assert.True(t, RecurrenceMonthly.Valid())
		assert.False(t, RecurrenceKind("yearly").Valid())
	})

	t.Run("Value", func(t *testing.T) {
		v, err := RecurrenceDaily.Value()
		require.NoError(t, err)
		assert.Equal(t, "daily", v)

		_, err = RecurrenceKind("bogus").Value()
		assert.Error(t, err)
	})

	t.Run("Scan", func(t *testing.T) {
		var k RecurrenceKind
		require.NoError(t, k.Scan("weekly"))
		assert.Equal(t, RecurrenceWeekly, k)

		require.NoError(t, k.Scan([]byte("monthly")))
		assert.Equal(t, RecurrenceMonthly, k)

		require.NoError(t, k.Scan(nil))
		assert.Equal(t, RecurrenceKind(""), k)

		assert.Error(t, k.Scan(42))
	})
}
