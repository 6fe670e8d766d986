package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func starts(t *testing.T, it *Item, limit int) []time.Time {
	t.Helper()
	occs, err := it.CollectOccurrences(Window{}, limit)
	require.NoError(t, err)
	out := make([]time.Time, len(occs))
	for i, o := range occs {
		out[i] = o.Start
	}
	return out
}

func TestPattern_Expansion(t *testing.T) {
	at9 := func(y int, m time.Month, d int) time.Time { return utc(y, m, d, 9, 0) }

	tests := []struct {
		name  string
		start time.Time
		spec  PatternSpec
		limit int
		want  []time.Time
	}{
		{
			name:  "every other day",
			start: at9(2024, 1, 1),
			spec:  PatternSpec{Frequency: FrequencyDaily, Interval: 2, Count: 5},
			want:  []time.Time{at9(2024, 1, 1), at9(2024, 1, 3), at9(2024, 1, 5), at9(2024, 1, 7), at9(2024, 1, 9)},
		},
		{
			name:  "every weekday",
			start: at9(2024, 1, 5),
			spec:  PatternSpec{Frequency: FrequencyDaily, Weekdays: Weekdays, Count: 4},
			want:  []time.Time{at9(2024, 1, 5), at9(2024, 1, 8), at9(2024, 1, 9), at9(2024, 1, 10)},
		},
		{
			name:  "biweekly monday and wednesday",
			start: at9(2024, 1, 1),
			spec:  PatternSpec{Frequency: FrequencyWeekly, Interval: 2, Weekdays: Monday | Wednesday, Count: 4},
			want:  []time.Time{at9(2024, 1, 1), at9(2024, 1, 3), at9(2024, 1, 15), at9(2024, 1, 17)},
		},
		{
			name:  "weekly defaults to the start weekday",
			start: at9(2024, 1, 4),
			spec:  PatternSpec{Frequency: FrequencyWeekly, Count: 3},
			want:  []time.Time{at9(2024, 1, 4), at9(2024, 1, 11), at9(2024, 1, 18)},
		},
		{
			name:  "monthly on the 31st clamps to month end",
			start: at9(2024, 1, 31),
			spec:  PatternSpec{Frequency: FrequencyMonthly, Count: 4},
			want:  []time.Time{at9(2024, 1, 31), at9(2024, 2, 29), at9(2024, 3, 31), at9(2024, 4, 30)},
		},
		{
			name:  "monthly last day",
			start: at9(2023, 1, 31),
			spec:  PatternSpec{Frequency: FrequencyMonthly, MonthEnd: true, Count: 3},
			want:  []time.Time{at9(2023, 1, 31), at9(2023, 2, 28), at9(2023, 3, 31)},
		},
		{
			name:  "monthly last friday",
			start: at9(2024, 1, 26),
			spec:  PatternSpec{Frequency: FrequencyMonthly, WeekIndex: Last, Weekdays: Friday, Count: 3},
			want:  []time.Time{at9(2024, 1, 26), at9(2024, 2, 23), at9(2024, 3, 29)},
		},
		{
			name:  "monthly second tuesday every three months",
			start: at9(2024, 1, 9),
			spec:  PatternSpec{Frequency: FrequencyMonthly, Interval: 3, WeekIndex: Second, Weekdays: Tuesday, Count: 3},
			want:  []time.Time{at9(2024, 1, 9), at9(2024, 4, 9), at9(2024, 7, 9)},
		},
		{
			name:  "yearly last thursday of a leap february",
			start: at9(2024, 2, 29),
			spec:  PatternSpec{Frequency: FrequencyYearly, WeekIndex: Last, Weekdays: Thursday, Count: 3},
			want:  []time.Time{at9(2024, 2, 29), at9(2025, 2, 27), at9(2026, 2, 26)},
		},
		{
			name:  "yearly on february 29th",
			start: at9(2024, 2, 29),
			spec:  PatternSpec{Frequency: FrequencyYearly, Count: 3},
			want:  []time.Time{at9(2024, 2, 29), at9(2025, 2, 28), at9(2026, 2, 28)},
		},
		{
			name:  "daily until an inclusive date",
			start: at9(2024, 1, 1),
			spec:  PatternSpec{Frequency: FrequencyDaily, Until: utc(2024, 1, 4, 0, 0)},
			want:  []time.Time{at9(2024, 1, 1), at9(2024, 1, 2), at9(2024, 1, 3), at9(2024, 1, 4)},
		},
		{
			name:  "never ending",
			start: at9(2024, 1, 1),
			spec:  PatternSpec{Frequency: FrequencyWeekly},
			limit: 3,
			want:  []time.Time{at9(2024, 1, 1), at9(2024, 1, 8), at9(2024, 1, 15)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it, err := NewItem(Properties{Subject: tt.name}, tt.start, tt.start.Add(time.Hour), time.UTC, tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, starts(t, it, tt.limit))

			rule, err := it.Rule()
			require.NoError(t, err)
			assert.Equal(t, tt.limit == 0, rule.Bounded())
			for _, s := range tt.want {
				assert.True(t, rule.Occurs(s), "occurs on %s", s)
			}
		})
	}
}

func TestPattern_LocalWallClock(t *testing.T) {
	berlin, err := LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// The series keeps 09:00 local across the DST switch on 31 March.
	start := time.Date(2024, 3, 29, 9, 0, 0, 0, berlin)
	it, err := NewItem(Properties{}, start, start.Add(time.Hour), berlin,
		PatternSpec{Frequency: FrequencyDaily, Count: 4})
	require.NoError(t, err)

	got := starts(t, it, 0)
	require.Len(t, got, 4)
	for _, s := range got {
		assert.Equal(t, 9, s.Hour())
		assert.Equal(t, berlin, s.Location())
	}
	assert.Equal(t, 8, got[0].UTC().Hour())
	assert.Equal(t, 7, got[3].UTC().Hour())
}

func TestPattern_BuilderFields(t *testing.T) {
	start := utc(2024, 1, 1, 9, 30)
	p, err := PatternSpec{Frequency: FrequencyDaily, Interval: 2, Count: 5}.Build(start, start.Add(90*time.Minute), time.UTC)
	require.NoError(t, err)

	assert.Equal(t, PatternDay, p.Type)
	assert.Equal(t, uint32(2*minutesPerDay), p.Period)
	assert.Equal(t, minutesOfDate(2024, time.January, 1), p.StartDate)
	assert.Equal(t, minutesOfDate(2024, time.January, 9), p.EndDate)
	assert.Equal(t, uint32(570), p.StartTimeOffset)
	assert.Equal(t, uint32(660), p.EndTimeOffset)
	assert.Equal(t, EndAfterCount, p.EndType)
	assert.Equal(t, uint32(5), p.OccurrenceCount)
	assert.Equal(t, p.StartDate%p.Period, p.FirstDateTime)

	never, err := PatternSpec{Frequency: FrequencyYearly}.Build(start, start, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, EndNever, never.EndType)
	assert.Equal(t, noEndDate, never.EndDate)
	assert.Equal(t, uint32(12), never.Period)
	assert.Equal(t, uint32(1), never.MonthDay)

	until, err := PatternSpec{Frequency: FrequencyWeekly, Until: utc(2024, 1, 31, 0, 0)}.Build(start, start, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, EndAfterDate, until.EndType)
	assert.Equal(t, uint32(5), until.OccurrenceCount)
	assert.Equal(t, Monday, until.WeekdayMask)

	_, err = PatternSpec{Frequency: FrequencyDaily, Until: utc(2023, 12, 1, 0, 0)}.Build(start, start, time.UTC)
	assert.ErrorIs(t, err, ErrInvalidPattern)
	_, err = PatternSpec{Frequency: FrequencyDaily}.Build(start, start, nil)
	assert.ErrorIs(t, err, ErrInvalidPattern)
	_, err = PatternSpec{Frequency: Frequency(1)}.Build(start, start, time.UTC)
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestPattern_InvalidOptions(t *testing.T) {
	valid := func() Pattern {
		start := utc(2024, 1, 1, 9, 0)
		p, err := PatternSpec{Frequency: FrequencyWeekly, Count: 3}.Build(start, start, time.UTC)
		require.NoError(t, err)
		return *p
	}

	tests := []struct {
		name   string
		mutate func(p *Pattern)
		err    error
	}{
		{name: "zero period", mutate: func(p *Pattern) { p.Period = 0 }, err: ErrInvalidPattern},
		{name: "no weekdays", mutate: func(p *Pattern) { p.WeekdayMask = 0 }, err: ErrInvalidPattern},
		{name: "bad first day of week", mutate: func(p *Pattern) { p.FirstDayOfWeek = 7 }, err: ErrInvalidPattern},
		{name: "zero count", mutate: func(p *Pattern) { p.OccurrenceCount = 0 }, err: ErrInvalidPattern},
		{name: "unknown end type", mutate: func(p *Pattern) { p.EndType = 0x1234 }, err: ErrInvalidPattern},
		{name: "mismatched type", mutate: func(p *Pattern) { p.Type = PatternMonth }, err: ErrInvalidPattern},
		{name: "hebrew calendar", mutate: func(p *Pattern) { p.CalendarType = 8 }, err: ErrUnsupportedPattern},
		{name: "hijri pattern", mutate: func(p *Pattern) {
			p.Frequency, p.Type, p.MonthDay = FrequencyMonthly, PatternHijriMonth, 1
		}, err: ErrUnsupportedPattern},
		{name: "partial day period", mutate: func(p *Pattern) {
			p.Frequency, p.Type, p.Period = FrequencyDaily, PatternDay, 90
		}, err: ErrInvalidPattern},
		{name: "month day out of range", mutate: func(p *Pattern) {
			p.Frequency, p.Type, p.MonthDay = FrequencyMonthly, PatternMonth, 32
		}, err: ErrInvalidPattern},
		{name: "week index out of range", mutate: func(p *Pattern) {
			p.Frequency, p.Type, p.WeekIndex = FrequencyMonthly, PatternMonthNth, 6
		}, err: ErrInvalidPattern},
		{name: "yearly period not in years", mutate: func(p *Pattern) {
			p.Frequency, p.Type, p.MonthDay, p.Period = FrequencyYearly, PatternMonth, 1, 5
		}, err: ErrInvalidPattern},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(&p)
			_, err := p.Rule(time.UTC)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	p := valid()
	_, err := p.Rule(nil)
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestRule_StringAndBetween(t *testing.T) {
	start := utc(2024, 1, 1, 9, 0)
	it, err := NewItem(Properties{}, start, start.Add(time.Hour), time.UTC,
		PatternSpec{Frequency: FrequencyWeekly, Weekdays: Monday | Friday, Count: 6})
	require.NoError(t, err)
	rule, err := it.Rule()
	require.NoError(t, err)

	s := rule.String()
	assert.Contains(t, s, "FREQ=WEEKLY")
	assert.Contains(t, s, "COUNT=6")
	assert.Contains(t, s, "BYDAY=MO,FR")
	assert.NotContains(t, s, "DTSTART")

	got := rule.Between(utc(2024, 1, 5, 0, 0), utc(2024, 1, 12, 23, 0))
	assert.Equal(t, []time.Time{utc(2024, 1, 5, 9, 0), utc(2024, 1, 8, 9, 0), utc(2024, 1, 12, 9, 0)}, got)
	assert.False(t, rule.Occurs(utc(2024, 1, 2, 9, 0)))
	assert.False(t, rule.Occurs(utc(2024, 2, 2, 9, 0)))
}
