package fiscal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewYearBuildsTwelvePeriods(t *testing.T) {
	y, err := NewYear(2024)
	require.NoError(t, err)
	require.Equal(t, YearStatusSetup, y.Status)
	require.Len(t, y.Periods, PeriodsPerYear)

	feb, err := y.Period(2)
	require.NoError(t, err)
	require.Equal(t, 29, feb.EndDate.Day())
	require.Equal(t, PeriodStatusOpen, feb.Status)

	dec, err := y.LastPeriod()
	require.NoError(t, err)
	require.Equal(t, 12, dec.Number)
	require.True(t, dec.ContainsDate(y.EndDate))
}

func TestNewYearRejectsOutOfRange(t *testing.T) {
	_, err := NewYear(1999)
	require.ErrorIs(t, err, ErrInvalidYear)
	_, err = NewYear(2101)
	require.ErrorIs(t, err, ErrInvalidYear)
}

func TestPeriodForIgnoresTimeOfDay(t *testing.T) {
	y, err := NewYear(2025)
	require.NoError(t, err)

	p, err := y.PeriodFor(time.Date(2025, time.March, 31, 23, 59, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 3, p.Month)

	_, err = y.PeriodFor(time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, ErrDateOutsideYear)

	_, err = y.Period(13)
	require.ErrorIs(t, err, ErrPeriodNotFound)
}

func TestYearTransitions(t *testing.T) {
	y, err := NewYear(2025)
	require.NoError(t, err)
	now := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)

	require.ErrorIs(t, y.Close("auditor", now), ErrInvalidTransition)
	require.NoError(t, y.Activate())
	require.ErrorIs(t, y.Activate(), ErrInvalidTransition)
	require.ErrorIs(t, y.Close("auditor", now), ErrPeriodsNotLocked)

	for i := range y.Periods {
		require.NoError(t, y.Periods[i].Lock("auditor", now))
	}
	require.ErrorIs(t, y.Close(" ", now), ErrActorRequired)
	require.NoError(t, y.Close("auditor", now))
	require.Equal(t, YearStatusClosed, y.Status)
	require.Equal(t, "auditor", y.ClosedBy)
}

func TestPeriodLockUnlock(t *testing.T) {
	y, err := NewYear(2025)
	require.NoError(t, err)
	p := y.Periods[0]
	now := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)

	require.ErrorIs(t, p.Unlock("fix"), ErrInvalidTransition)
	require.NoError(t, p.Lock("clerk", now))
	require.ErrorIs(t, p.Lock("clerk", now), ErrInvalidTransition)
	require.ErrorIs(t, p.Unlock("  "), ErrReasonRequired)
	require.NoError(t, p.Unlock("late supplier invoice"))
	require.True(t, p.IsOpen())
	require.Equal(t, "late supplier invoice", p.UnlockReason)
	require.Nil(t, p.LockedAt)
}
