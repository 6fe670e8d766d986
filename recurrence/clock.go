package recurrence

import (
	"fmt"
	"time"
)

// The blob stores instants as minutes since 1601-01-01 00:00 of
// recurrence-local wall-clock time. Conversions always take the zone they
// operate in; nothing here consults time.Local.

var epoch1601 = time.Date(1601, time.January, 1, 0, 0, 0, 0, time.UTC)

// civil returns the wall clock of blob minutes m as a UTC-located time.
// time.Duration cannot span the 1601 epoch, so days and minutes are added
// separately.
func civil(m uint32) time.Time {
	return epoch1601.AddDate(0, 0, int(m/minutesPerDay)).Add(time.Duration(m%minutesPerDay) * time.Minute)
}

// MinutesToTime converts blob minutes to the same wall-clock time in loc.
func MinutesToTime(m uint32, loc *time.Location) time.Time {
	c := civil(m)
	return time.Date(c.Year(), c.Month(), c.Day(), c.Hour(), c.Minute(), 0, 0, loc)
}

// TimeToMinutes converts t to blob minutes using its wall clock in loc.
func TimeToMinutes(t time.Time, loc *time.Location) uint32 {
	t = t.In(loc)
	c := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	return uint32((c.Unix() - epoch1601.Unix()) / 60)
}

// DateKey returns the midnight, in blob minutes, of the day t falls on in loc.
// Exceptions and deletions are matched on this key.
func DateKey(t time.Time, loc *time.Location) uint32 {
	return midnight(TimeToMinutes(t, loc))
}

func midnight(m uint32) uint32 {
	return m - m%minutesPerDay
}

// civilDate returns the calendar date of blob minutes m.
func civilDate(m uint32) (int, time.Month, int) {
	return civil(m).Date()
}

// minutesOfDate returns midnight of the given civil date in blob minutes.
func minutesOfDate(year int, month time.Month, day int) uint32 {
	return TimeToMinutes(time.Date(year, month, day, 0, 0, 0, 0, time.UTC), time.UTC)
}

// LoadLocation resolves an IANA zone name. An empty name means UTC; "Local"
// is rejected because it names no zone once stored.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: time zone %q: %v", ErrInvalidPattern, name, err)
	}
	if err := checkZone(loc); err != nil {
		return nil, err
	}
	return loc, nil
}

// checkZone requires a named recurrence zone. time.Local would follow the
// host's zone after the item is stored and loaded elsewhere.
func checkZone(loc *time.Location) error {
	switch loc {
	case nil:
		return fmt.Errorf("%w: recurrence time zone is required", ErrInvalidPattern)
	case time.Local:
		return fmt.Errorf("%w: recurrence time zone must be named, not Local", ErrInvalidPattern)
	}
	return nil
}
