package recurrence

import (
	"fmt"

	"github.com/samber/mo"
)

// Frequency is the RecurFrequency field of the pattern.
type Frequency uint16

const (
	FrequencyDaily   Frequency = 0x200A
	FrequencyWeekly  Frequency = 0x200B
	FrequencyMonthly Frequency = 0x200C
	FrequencyYearly  Frequency = 0x200D
)

func (f Frequency) String() string {
	switch f {
	case FrequencyDaily:
		return "Daily"
	case FrequencyWeekly:
		return "Weekly"
	case FrequencyMonthly:
		return "Monthly"
	case FrequencyYearly:
		return "Yearly"
	default:
		return fmt.Sprintf("Frequency(0x%04X)", uint16(f))
	}
}

// PatternType selects how PatternTypeSpecific is interpreted.
type PatternType uint16

const (
	PatternDay           PatternType = 0x0000
	PatternWeek          PatternType = 0x0001
	PatternMonth         PatternType = 0x0002
	PatternMonthNth      PatternType = 0x0003
	PatternMonthEnd      PatternType = 0x0004
	PatternHijriMonth    PatternType = 0x000A
	PatternHijriMonthNth PatternType = 0x000B
	PatternHijriMonthEnd PatternType = 0x000C
)

func (p PatternType) String() string {
	switch p {
	case PatternDay:
		return "ByDay"
	case PatternWeek:
		return "ByWeekday"
	case PatternMonth:
		return "ByMonthDay"
	case PatternMonthNth:
		return "ByNthWeekday"
	case PatternMonthEnd:
		return "ByMonthEnd"
	case PatternHijriMonth:
		return "HijriByMonthDay"
	case PatternHijriMonthNth:
		return "HijriByNthWeekday"
	case PatternHijriMonthEnd:
		return "HijriByMonthEnd"
	default:
		return fmt.Sprintf("PatternType(0x%04X)", uint16(p))
	}
}

// hasDay reports whether the pattern carries a day-of-month value.
func (p PatternType) hasDay() bool {
	switch p {
	case PatternMonth, PatternMonthEnd, PatternHijriMonth, PatternHijriMonthEnd:
		return true
	}
	return false
}

// hasNth reports whether the pattern carries a weekday mask plus week index.
func (p PatternType) hasNth() bool {
	return p == PatternMonthNth || p == PatternHijriMonthNth
}

// Hijri reports whether the pattern is expressed in the Hijri calendar.
func (p PatternType) Hijri() bool {
	return p == PatternHijriMonth || p == PatternHijriMonthNth || p == PatternHijriMonthEnd
}

// EndType selects how the range of the series is bounded.
type EndType uint32

const (
	EndAfterDate  EndType = 0x2021
	EndAfterCount EndType = 0x2022
	EndNever      EndType = 0x2023

	// EndNeverLegacy is written by some older clients instead of EndNever.
	EndNeverLegacy EndType = 0xFFFFFFFF
)

// Unbounded reports whether the series never ends.
func (e EndType) Unbounded() bool {
	return e == EndNever || e == EndNeverLegacy
}

func (e EndType) String() string {
	switch e {
	case EndAfterDate:
		return "EndDate"
	case EndAfterCount:
		return "Count"
	case EndNever, EndNeverLegacy:
		return "NoEnd"
	default:
		return fmt.Sprintf("EndType(0x%08X)", uint32(e))
	}
}

// WeekdayMask is a bit set over Sunday (bit 0) through Saturday (bit 6).
type WeekdayMask uint32

const (
	Sunday WeekdayMask = 1 << iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday

	Weekdays WeekdayMask = Monday | Tuesday | Wednesday | Thursday | Friday
)

// WeekIndex is the N of a "Nth weekday of the month" pattern.
type WeekIndex uint32

const (
	First  WeekIndex = 1
	Second WeekIndex = 2
	Third  WeekIndex = 3
	Fourth WeekIndex = 4
	Last   WeekIndex = 5
)

// BusyStatus of an appointment or occurrence.
type BusyStatus uint32

const (
	BusyFree BusyStatus = iota
	BusyTentative
	BusyBusy
	BusyOutOfOffice
	BusyWorkingElsewhere
)

// OverrideFlags records which fields an exception overrides.
type OverrideFlags uint16

const (
	OverrideSubject         OverrideFlags = 0x0001
	OverrideMeetingType     OverrideFlags = 0x0002
	OverrideReminderDelta   OverrideFlags = 0x0004
	OverrideReminder        OverrideFlags = 0x0008
	OverrideLocation        OverrideFlags = 0x0010
	OverrideBusyStatus      OverrideFlags = 0x0020
	OverrideAttachment      OverrideFlags = 0x0040
	OverrideSubType         OverrideFlags = 0x0080
	OverrideColor           OverrideFlags = 0x0100
	OverrideExceptionalBody OverrideFlags = 0x0200
)

// Has reports whether every bit of f is set.
func (o OverrideFlags) Has(f OverrideFlags) bool {
	return o&f == f
}

const (
	readerVersion  uint16 = 0x3004
	writerVersion  uint16 = 0x3004
	readerVersion2 uint32 = 0x3006
	writerVersion2 uint32 = 0x3009

	// writerVersionHighlight is the first writer version that emits the
	// ChangeHighlight block in extended exceptions.
	writerVersionHighlight uint32 = 0x3009

	// noEndDate is the EndDate written for series without an end (31 Dec 4500).
	noEndDate uint32 = 0x5AE980DF

	minutesPerDay  = 24 * 60
	minutesPerWeek = 7 * minutesPerDay
)

// Pattern is the decoded RecurrencePattern header plus the appointment
// specific fields that apply to every occurrence.
type Pattern struct {
	ReaderVersion uint16
	WriterVersion uint16
	Frequency     Frequency
	Type          PatternType
	CalendarType  uint16
	FirstDateTime uint32
	// Period is minutes for daily patterns, weeks for weekly and months for
	// monthly and yearly patterns.
	Period      uint32
	SlidingFlag uint32

	WeekdayMask WeekdayMask
	MonthDay    uint32
	WeekIndex   WeekIndex

	EndType         EndType
	OccurrenceCount uint32
	FirstDayOfWeek  uint32

	// StartDate and EndDate are midnight of the range bounds, in minutes
	// since 1601-01-01 of recurrence-local time.
	StartDate uint32
	EndDate   uint32

	ReaderVersion2 uint32
	WriterVersion2 uint32
	// StartTimeOffset and EndTimeOffset are minutes since midnight of
	// StartDate. EndTimeOffset may exceed a day for multi-day occurrences.
	StartTimeOffset uint32
	EndTimeOffset   uint32
}

// ExceptionInfo is the fixed-then-variable exception record of the blob.
// Optional values are present exactly when the matching override flag is set.
type ExceptionInfo struct {
	StartDateTime     uint32
	EndDateTime       uint32
	OriginalStartDate uint32
	OverrideFlags     OverrideFlags

	Subject          mo.Option[string]
	MeetingType      mo.Option[uint32]
	ReminderDelta    mo.Option[uint32]
	ReminderSet      mo.Option[uint32]
	Location         mo.Option[string]
	BusyStatus       mo.Option[uint32]
	Attachment       mo.Option[uint32]
	SubType          mo.Option[uint32]
	AppointmentColor mo.Option[uint32]
}

// ChangeHighlight is carried through unchanged; nothing in this package
// interprets it.
type ChangeHighlight struct {
	Value    uint32
	Reserved []byte
}

// ExtendedException holds the wide-character companion of an ExceptionInfo.
type ExtendedException struct {
	ChangeHighlight mo.Option[ChangeHighlight]
	ReservedEE1     []byte

	// The date block is only present on the wire when the paired
	// ExceptionInfo overrides subject or location.
	StartDateTime     uint32
	EndDateTime       uint32
	OriginalStartDate uint32
	Subject           mo.Option[string]
	Location          mo.Option[string]
	ReservedEE2       []byte
}

// Exception pairs an exception record with its extended record. The wire
// format stores them as two parallel sequences matched by position.
type Exception struct {
	Info     ExceptionInfo
	Extended ExtendedException
}

// Blob is the decoded form of an appointment recurrence blob.
type Blob struct {
	Pattern    Pattern
	Exceptions []Exception
	// Deleted holds midnights (minutes since 1601) of occurrences that were
	// removed without a replacement, sorted and unique.
	Deleted []uint32

	// HasExtended reports whether the decoded blob carried the extended
	// section. Legacy blobs end right after the exception records; Encode
	// always writes the extended section.
	HasExtended    bool
	ReservedBlock1 []byte
	ReservedBlock2 []byte
}

// Clone returns a deep copy of b.
func (b *Blob) Clone() *Blob {
	if b == nil {
		return nil
	}
	out := *b
	out.Exceptions = make([]Exception, len(b.Exceptions))
	for i, e := range b.Exceptions {
		out.Exceptions[i] = e
		out.Exceptions[i].Extended.ReservedEE1 = cloneBytes(e.Extended.ReservedEE1)
		out.Exceptions[i].Extended.ReservedEE2 = cloneBytes(e.Extended.ReservedEE2)
		if ch, ok := e.Extended.ChangeHighlight.Get(); ok {
			ch.Reserved = cloneBytes(ch.Reserved)
			out.Exceptions[i].Extended.ChangeHighlight = mo.Some(ch)
		}
	}
	if len(b.Exceptions) == 0 {
		out.Exceptions = b.Exceptions
	}
	out.Deleted = append([]uint32(nil), b.Deleted...)
	if b.Deleted == nil {
		out.Deleted = nil
	}
	out.ReservedBlock1 = cloneBytes(b.ReservedBlock1)
	out.ReservedBlock2 = cloneBytes(b.ReservedBlock2)
	return &out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
