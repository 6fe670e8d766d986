package recurrence

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// Rule is the generating rule of a series, expressed as an RFC 5545 rule.
// Rules are immutable; every enumeration starts a fresh iterator.
type Rule struct {
	rule  *rrule.RRule
	opt   rrule.ROption
	loc   *time.Location
	count bool
}

// weekdays maps bit positions of WeekdayMask (Sunday first) to rrule weekdays.
var weekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

func (m WeekdayMask) rruleDays() []rrule.Weekday {
	var out []rrule.Weekday
	for i, wd := range weekdays {
		if m&(1<<i) != 0 {
			out = append(out, wd)
		}
	}
	return out
}

// gregorian reports whether a CalendarType value is one of the Gregorian
// variants. Zero means the client default, which is Gregorian.
func gregorian(ct uint16) bool {
	switch ct {
	case 0, 1, 2, 9, 10, 11, 12:
		return true
	}
	return false
}

// Options translates the pattern into generator options for a series whose
// wall clock lives in loc. It fails on contradictory or unsupported fields.
func (p *Pattern) Options(loc *time.Location) (rrule.ROption, error) {
	var opt rrule.ROption
	if loc == nil {
		return opt, fmt.Errorf("%w: recurrence time zone is required", ErrInvalidPattern)
	}
	if err := validateType(p.Frequency, p.Type); err != nil {
		return opt, err
	}
	if p.Type.Hijri() || !gregorian(p.CalendarType) {
		return opt, fmt.Errorf("%w: calendar type %d with pattern %s", ErrUnsupportedPattern, p.CalendarType, p.Type)
	}
	if p.Period == 0 {
		return opt, fmt.Errorf("%w: period is zero for %s recurrence", ErrInvalidPattern, p.Frequency)
	}
	if p.FirstDayOfWeek > 6 {
		return opt, fmt.Errorf("%w: first day of week %d", ErrInvalidPattern, p.FirstDayOfWeek)
	}

	opt.Dtstart = MinutesToTime(p.StartDate+p.StartTimeOffset, loc)
	opt.Wkst = weekdays[p.FirstDayOfWeek]

	switch {
	case p.Frequency == FrequencyDaily && p.Type == PatternDay:
		if p.Period%minutesPerDay != 0 {
			return opt, fmt.Errorf("%w: daily period %d is not a whole number of days", ErrInvalidPattern, p.Period)
		}
		opt.Freq = rrule.DAILY
		opt.Interval = int(p.Period / minutesPerDay)

	case p.Type == PatternWeek:
		// Daily/Week is how clients store "every weekday".
		days := p.WeekdayMask.rruleDays()
		if len(days) == 0 {
			return opt, fmt.Errorf("%w: weekly pattern without weekdays", ErrInvalidPattern)
		}
		opt.Freq = rrule.WEEKLY
		opt.Interval = int(p.Period)
		opt.Byweekday = days

	default:
		// Monthly and yearly patterns both generate monthly; a yearly period
		// is already expressed in months.
		opt.Freq = rrule.MONTHLY
		opt.Interval = int(p.Period)
		if p.Frequency == FrequencyYearly {
			if p.Period%12 != 0 {
				return opt, fmt.Errorf("%w: yearly period %d is not a whole number of years", ErrInvalidPattern, p.Period)
			}
			_, month, _ := civilDate(p.StartDate)
			opt.Bymonth = []int{int(month)}
		}
		if err := p.monthlyOptions(&opt); err != nil {
			return opt, err
		}
	}

	switch {
	case p.EndType == EndAfterCount:
		if p.OccurrenceCount == 0 {
			return opt, fmt.Errorf("%w: count-bounded series with zero occurrences", ErrInvalidPattern)
		}
		opt.Count = int(p.OccurrenceCount)
	case p.EndType == EndAfterDate:
		opt.Until = MinutesToTime(midnight(p.EndDate)+p.StartTimeOffset, loc)
	case p.EndType.Unbounded():
	default:
		return opt, fmt.Errorf("%w: unknown end type %s", ErrInvalidPattern, p.EndType)
	}
	return opt, nil
}

func (p *Pattern) monthlyOptions(opt *rrule.ROption) error {
	switch p.Type {
	case PatternMonth:
		if p.MonthDay < 1 || p.MonthDay > 31 {
			return fmt.Errorf("%w: day of month %d", ErrInvalidPattern, p.MonthDay)
		}
		if p.MonthDay <= 28 {
			opt.Bymonthday = []int{int(p.MonthDay)}
			return nil
		}
		// Days past the 28th fall back to the last day of shorter months:
		// take the latest existing candidate day up to MonthDay.
		for d := 28; d <= int(p.MonthDay); d++ {
			opt.Bymonthday = append(opt.Bymonthday, d)
		}
		opt.Bysetpos = []int{-1}
	case PatternMonthEnd:
		opt.Bymonthday = []int{-1}
	case PatternMonthNth:
		days := p.WeekdayMask.rruleDays()
		if len(days) == 0 {
			return fmt.Errorf("%w: nth-weekday pattern without weekdays", ErrInvalidPattern)
		}
		opt.Byweekday = days
		switch {
		case p.WeekIndex == Last:
			// The last matching weekday of the month, counted back from the
			// month's final day; never a fixed fifth occurrence.
			opt.Bysetpos = []int{-1}
		case p.WeekIndex >= First && p.WeekIndex <= Fourth:
			opt.Bysetpos = []int{int(p.WeekIndex)}
		default:
			return fmt.Errorf("%w: week index %d", ErrInvalidPattern, p.WeekIndex)
		}
	}
	return nil
}

// Rule builds the generating rule for the pattern in loc. Errors surface
// here, before any enumeration begins.
func (p *Pattern) Rule(loc *time.Location) (*Rule, error) {
	opt, err := p.Options(loc)
	if err != nil {
		return nil, err
	}
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return &Rule{rule: r, opt: opt, loc: loc, count: opt.Count > 0}, nil
}

// Bounded reports whether the rule produces a finite sequence.
func (r *Rule) Bounded() bool {
	return r.count || !r.opt.Until.IsZero()
}

// Iterator returns a fresh iterator over occurrence starts.
func (r *Rule) Iterator() rrule.Next {
	return r.rule.Iterator()
}

// Between returns occurrence starts in [after, before].
func (r *Rule) Between(after, before time.Time) []time.Time {
	return r.rule.Between(after.In(r.loc), before.In(r.loc), true)
}

// Occurs reports whether an occurrence starts on the day of t in the rule's zone.
func (r *Rule) Occurs(t time.Time) bool {
	t = t.In(r.loc)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, r.loc)
	next := r.rule.After(day, true)
	if next.IsZero() {
		return false
	}
	y1, m1, d1 := next.Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// Options returns the generator options the rule was built from.
func (r *Rule) Options() rrule.ROption {
	return r.opt
}

// String renders the rule as an RRULE value without DTSTART.
func (r *Rule) String() string {
	return r.opt.RRuleString()
}
