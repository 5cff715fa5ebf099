// Package timeutil provides timezone-aware calendar helpers.
// All derived windows (study days, ISO weeks, local clock time) are computed
// in an explicit *time.Location so that replaying the same events always
// lands them in the same calendar buckets.
package timeutil

import (
	"fmt"
	"time"
)

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatTime is the standard time format (HH:MM).
	FormatTime = "15:04"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
)

// Zone wraps a location and exposes calendar arithmetic in it.
type Zone struct {
	loc *time.Location
}

// NewZone returns a Zone for loc. A nil location means UTC.
func NewZone(loc *time.Location) Zone {
	if loc == nil {
		loc = time.UTC
	}
	return Zone{loc: loc}
}

// LoadZone loads a Zone by IANA name ("Europe/Dublin").
func LoadZone(name string) (Zone, error) {
	if name == "" {
		return NewZone(time.UTC), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Zone{}, fmt.Errorf("load location %q: %w", name, err)
	}
	return NewZone(loc), nil
}

// Location returns the underlying location.
func (z Zone) Location() *time.Location {
	if z.loc == nil {
		return time.UTC
	}
	return z.loc
}

// In converts t to the zone.
func (z Zone) In(t time.Time) time.Time {
	return t.In(z.Location())
}

// StartOfDay returns local midnight of the day containing t.
func (z Zone) StartOfDay(t time.Time) time.Time {
	l := z.In(t)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, z.Location())
}

// DayKey returns the local calendar date of t as YYYY-MM-DD.
func (z Zone) DayKey(t time.Time) string {
	return z.In(t).Format(FormatDate)
}

// WeekKey returns the ISO week of t as YYYY-Www.
func (z Zone) WeekKey(t time.Time) string {
	year, week := z.In(t).ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// SecondOfDay returns seconds elapsed since local midnight.
func (z Zone) SecondOfDay(t time.Time) int {
	l := z.In(t)
	return l.Hour()*3600 + l.Minute()*60 + l.Second()
}

// IsWeekend checks if t falls on a local Saturday or Sunday.
func (z Zone) IsWeekend(t time.Time) bool {
	wd := z.In(t).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsSameDay checks if two times are on the same local day.
func (z Zone) IsSameDay(t1, t2 time.Time) bool {
	return z.DayKey(t1) == z.DayKey(t2)
}

// IsConsecutiveDay checks if t2 is the local day after t1.
func (z Zone) IsConsecutiveDay(t1, t2 time.Time) bool {
	return z.DayKey(z.In(t1).AddDate(0, 0, 1)) == z.DayKey(t2)
}

// DayKeyDiff returns the signed number of calendar days from a to b, where
// both are YYYY-MM-DD keys. Calendar arithmetic is done in UTC so DST
// transitions never produce fractional days.
func DayKeyDiff(a, b string) (int, error) {
	ta, err := time.Parse(FormatDate, a)
	if err != nil {
		return 0, fmt.Errorf("parse day %q: %w", a, err)
	}
	tb, err := time.Parse(FormatDate, b)
	if err != nil {
		return 0, fmt.Errorf("parse day %q: %w", b, err)
	}
	return int(tb.Sub(ta).Hours() / 24), nil
}
