package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZone_DayKeyUsesLocation(t *testing.T) {
	zone := NewZone(time.FixedZone("UTC+5", 5*60*60))

	// 21:30 UTC is already the next day at UTC+5.
	ts := time.Date(2026, 3, 1, 21, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-02", zone.DayKey(ts))
	assert.Equal(t, "2026-03-01", NewZone(nil).DayKey(ts))
}

func TestZone_WeekKeyAndWeekend(t *testing.T) {
	zone := NewZone(time.UTC)

	sat := time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)
	sun := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	mon := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

	assert.True(t, zone.IsWeekend(sat))
	assert.True(t, zone.IsWeekend(sun))
	assert.False(t, zone.IsWeekend(mon))
	assert.Equal(t, zone.WeekKey(sat), zone.WeekKey(sun))
	assert.NotEqual(t, zone.WeekKey(sun), zone.WeekKey(mon))
}

func TestZone_SecondOfDay(t *testing.T) {
	zone := NewZone(time.UTC)
	assert.Equal(t, 7*3600+15*60+3, zone.SecondOfDay(time.Date(2026, 1, 1, 7, 15, 3, 0, time.UTC)))
}

func TestZone_ConsecutiveDay(t *testing.T) {
	zone := NewZone(time.UTC)
	d1 := time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC)
	d2 := time.Date(2027, 1, 1, 1, 0, 0, 0, time.UTC)

	assert.True(t, zone.IsConsecutiveDay(d1, d2))
	assert.False(t, zone.IsSameDay(d1, d2))
}

func TestDayKeyDiff(t *testing.T) {
	diff, err := DayKeyDiff("2026-03-28", "2026-03-30")
	require.NoError(t, err)
	assert.Equal(t, 2, diff)

	diff, err = DayKeyDiff("2026-03-30", "2026-03-28")
	require.NoError(t, err)
	assert.Equal(t, -2, diff)

	_, err = DayKeyDiff("bad", "2026-03-28")
	assert.Error(t, err)
}

func TestLoadZone(t *testing.T) {
	z, err := LoadZone("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, z.Location())

	_, err = LoadZone("Not/AZone")
	assert.Error(t, err)
}
