package recurrence

import (
	"fmt"
	"time"
)

// PatternSpec describes a series in calendar terms. Build turns it into the
// wire Pattern, computing the derived fields clients expect.
type PatternSpec struct {
	Frequency Frequency
	// Interval is in days, weeks, months or years depending on Frequency.
	// Zero means 1.
	Interval uint32

	// Weekdays selects the days of weekly and nth-weekday patterns. For
	// Daily it turns the series into "every weekday" when set. A weekly
	// series without weekdays repeats on the weekday of the first start.
	Weekdays WeekdayMask
	// MonthDay is the day of month of monthly and yearly patterns; zero takes
	// the day of the first start. Ignored when WeekIndex is set.
	MonthDay uint32
	// WeekIndex makes monthly and yearly patterns "Nth weekday of the month".
	WeekIndex WeekIndex
	// MonthEnd makes monthly and yearly patterns fall on the last day of the month.
	MonthEnd bool

	FirstDayOfWeek time.Weekday

	// At most one of Count and Until should be set; Count wins. Neither
	// means the series never ends.
	Count uint32
	Until time.Time
}

// Build returns the wire pattern for a series whose first occurrence is
// [start, end) in loc.
func (s PatternSpec) Build(start, end time.Time, loc *time.Location) (*Pattern, error) {
	if err := checkZone(loc); err != nil {
		return nil, err
	}
	return s.build(start.In(loc), end.In(loc), loc)
}

func (s PatternSpec) build(start, end time.Time, loc *time.Location) (*Pattern, error) {
	interval := s.Interval
	if interval == 0 {
		interval = 1
	}
	if s.FirstDayOfWeek < time.Sunday || s.FirstDayOfWeek > time.Saturday {
		return nil, fmt.Errorf("%w: first day of week %d", ErrInvalidPattern, s.FirstDayOfWeek)
	}

	startMin := TimeToMinutes(start, loc)
	p := &Pattern{
		ReaderVersion:   readerVersion,
		WriterVersion:   writerVersion,
		Frequency:       s.Frequency,
		FirstDayOfWeek:  uint32(s.FirstDayOfWeek),
		StartDate:       midnight(startMin),
		ReaderVersion2:  readerVersion2,
		WriterVersion2:  writerVersion2,
		StartTimeOffset: startMin % minutesPerDay,
	}
	p.EndTimeOffset = p.StartTimeOffset + uint32(end.Sub(start)/time.Minute)

	switch s.Frequency {
	case FrequencyDaily:
		if s.Weekdays != 0 {
			p.Type = PatternWeek
			p.Period = 1
			p.WeekdayMask = s.Weekdays
		} else {
			p.Type = PatternDay
			p.Period = interval * minutesPerDay
		}
	case FrequencyWeekly:
		p.Type = PatternWeek
		p.Period = interval
		p.WeekdayMask = s.Weekdays
		if p.WeekdayMask == 0 {
			p.WeekdayMask = 1 << uint(start.Weekday())
		}
	case FrequencyMonthly, FrequencyYearly:
		p.Period = interval
		if s.Frequency == FrequencyYearly {
			p.Period = interval * 12
		}
		switch {
		case s.WeekIndex != 0:
			p.Type = PatternMonthNth
			p.WeekIndex = s.WeekIndex
			p.WeekdayMask = s.Weekdays
			if p.WeekdayMask == 0 {
				p.WeekdayMask = 1 << uint(start.Weekday())
			}
		case s.MonthEnd:
			p.Type = PatternMonthEnd
			p.MonthDay = 31
		default:
			p.Type = PatternMonth
			p.MonthDay = s.MonthDay
			if p.MonthDay == 0 {
				p.MonthDay = uint32(start.Day())
			}
		}
	default:
		return nil, fmt.Errorf("%w: unknown frequency %s", ErrInvalidPattern, s.Frequency)
	}
	p.FirstDateTime = firstDateTime(p, start)

	switch {
	case s.Count > 0:
		p.EndType = EndAfterCount
		p.OccurrenceCount = s.Count
	case !s.Until.IsZero():
		p.EndType = EndAfterDate
		p.EndDate = DateKey(s.Until, loc)
		if p.EndDate < p.StartDate {
			return nil, fmt.Errorf("%w: series ends before it starts", ErrInvalidPattern)
		}
	default:
		p.EndType = EndNever
		p.OccurrenceCount = 10
		p.EndDate = noEndDate
	}

	rule, err := p.Rule(loc)
	if err != nil {
		return nil, err
	}
	switch p.EndType {
	case EndAfterCount:
		// Clients store the date of the last occurrence alongside the count.
		all := rule.rule.All()
		if len(all) == 0 {
			return nil, fmt.Errorf("%w: pattern produces no occurrences", ErrInvalidPattern)
		}
		p.EndDate = DateKey(all[len(all)-1], loc)
		p.OccurrenceCount = uint32(len(all))
	case EndAfterDate:
		// The count of a date-bounded series is informational.
		p.OccurrenceCount = uint32(len(rule.rule.All()))
	}
	return p, nil
}

// firstDateTime computes the offset of the first period boundary after the
// 1601 epoch that lines up with the start of the series.
func firstDateTime(p *Pattern, start time.Time) uint32 {
	switch {
	case p.Frequency == FrequencyDaily && p.Type == PatternDay:
		return p.StartDate % p.Period
	case p.Type == PatternWeek:
		back := (int(start.Weekday()) - int(p.FirstDayOfWeek) + 7) % 7
		weekStart := p.StartDate - uint32(back)*minutesPerDay
		return weekStart % (p.Period * minutesPerWeek)
	default:
		months := uint32(start.Year()-1601)*12 + uint32(start.Month()-1)
		m := months % p.Period
		return minutesOfDate(1601+int(m/12), time.Month(m%12+1), 1)
	}
}
