// session/session_test.go
package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func nySpecs() []Spec {
	return []Spec{
		{Start: Clock{Hour: 3}, End: Clock{Hour: 4}},
		{Start: Clock{Hour: 10}, End: Clock{Hour: 11}},
		{Start: Clock{Hour: 14}, End: Clock{Hour: 15}},
	}
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:30")
	require.NoError(t, err)
	require.Equal(t, Clock{Hour: 9, Minute: 30}, c)

	_, err = ParseClock("25:00")
	require.Error(t, err)
	_, err = ParseClock("nine")
	require.Error(t, err)
}

func TestRollBuildsWindowsOncePerDate(t *testing.T) {
	o := NewOracle("UTC", nySpecs(), 30*time.Minute)

	now := time.Date(2024, 3, 5, 2, 15, 0, 0, time.UTC)
	require.True(t, o.Roll(now))
	require.Len(t, o.Windows(), 3)
	require.Equal(t, 1, o.Windows()[0].Ordinal)
	require.Equal(t, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), o.Windows()[1].Start)

	// Later the same date: no new roll.
	require.False(t, o.Roll(now.Add(9*time.Hour)))

	// First event of the next date rolls exactly once.
	require.True(t, o.Roll(now.Add(24*time.Hour)))
	require.False(t, o.Roll(now.Add(25*time.Hour)))
}

func TestActiveIncludesPreBuffer(t *testing.T) {
	o := NewOracle("UTC", nySpecs(), 30*time.Minute)
	o.Roll(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))

	at := func(hh, mm int) time.Time {
		return time.Date(2024, 3, 5, hh, mm, 0, 0, time.UTC)
	}

	_, ok := o.Active(at(9, 29))
	require.False(t, ok, "before the buffer opens")

	w, ok := o.Active(at(9, 30))
	require.True(t, ok, "buffer start is inclusive")
	require.Equal(t, 2, w.Ordinal)

	w, ok = o.Active(at(10, 59))
	require.True(t, ok)
	require.Equal(t, 2, w.Ordinal)

	_, ok = o.Active(at(11, 0))
	require.False(t, ok, "window end is exclusive")
}

func TestActiveServicesWindowsInOrdinalOrder(t *testing.T) {
	// Overlapping buffered spans: window 1 runs to 04:00 while window 2's
	// buffer would open at 03:30 if the windows were that close.
	specs := []Spec{
		{Start: Clock{Hour: 3}, End: Clock{Hour: 4}},
		{Start: Clock{Hour: 4, Minute: 15}, End: Clock{Hour: 5}},
	}
	o := NewOracle("UTC", specs, 30*time.Minute)
	o.Roll(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))

	w, ok := o.Active(time.Date(2024, 3, 5, 3, 50, 0, 0, time.UTC))
	require.True(t, ok)
	require.Equal(t, 1, w.Ordinal, "the earlier window wins while both spans contain now")

	w, ok = o.Active(time.Date(2024, 3, 5, 4, 5, 0, 0, time.UTC))
	require.True(t, ok)
	require.Equal(t, 2, w.Ordinal)
}

func TestUnknownTimezoneFallsBackToFeedTime(t *testing.T) {
	o := NewOracle("Mars/Olympus_Mons", nySpecs(), 30*time.Minute)

	feed := time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)
	require.Equal(t, feed, o.Local(feed), "feed time is treated as session-local")

	o.Roll(o.Local(feed))
	_, ok := o.Active(o.Local(feed))
	require.True(t, ok)
}

func TestRollSkipsInvertedWindow(t *testing.T) {
	specs := []Spec{
		{Start: Clock{Hour: 10}, End: Clock{Hour: 9}},
		{Start: Clock{Hour: 14}, End: Clock{Hour: 15}},
	}
	o := NewOracle("UTC", specs, 30*time.Minute)
	o.Roll(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))

	require.Len(t, o.Windows(), 1)
	require.Equal(t, 2, o.Windows()[0].Ordinal)
}

func TestLocalConvertsAcrossZones(t *testing.T) {
	o := NewOracle("America/New_York", nySpecs(), 30*time.Minute)

	// 15:00 UTC on a DST date is 11:00 in New York.
	utc := time.Date(2024, 7, 10, 15, 0, 0, 0, time.UTC)
	local := o.Local(utc)
	require.Equal(t, 11, local.Hour())
}
