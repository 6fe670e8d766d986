package recurrence

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// Overrides lists the fields an exception changes. Absent values keep what
// the exception already has, or the series value for a new exception.
type Overrides struct {
	Start         mo.Option[time.Time]
	End           mo.Option[time.Time]
	Subject       mo.Option[string]
	Location      mo.Option[string]
	BusyStatus    mo.Option[BusyStatus]
	ReminderSet   mo.Option[bool]
	ReminderDelta mo.Option[uint32]
	AllDay        mo.Option[bool]
	Body          mo.Option[string]
	Attendees     mo.Option[[]string]
	Cancelled     mo.Option[bool]
}

func (o Overrides) apply(m *ExceptionMessage) error {
	start, end := m.Start, m.End
	if v, ok := o.Start.Get(); ok {
		start = v
	}
	if v, ok := o.End.Get(); ok {
		end = v
	}
	if end.Before(start) {
		return fmt.Errorf("%w: end %s before start %s", ErrInvalidOverride, end, start)
	}
	m.Start, m.End = start, end
	if v, ok := o.Subject.Get(); ok {
		m.Subject = v
	}
	if v, ok := o.Location.Get(); ok {
		m.Location = v
	}
	if v, ok := o.BusyStatus.Get(); ok {
		m.BusyStatus = v
	}
	if v, ok := o.ReminderSet.Get(); ok {
		m.ReminderSet = v
	}
	if v, ok := o.ReminderDelta.Get(); ok {
		m.ReminderDelta = v
	}
	if v, ok := o.AllDay.Get(); ok {
		m.AllDay = v
	}
	if v, ok := o.Body.Get(); ok {
		m.Body = v
	}
	if v, ok := o.Attendees.Get(); ok {
		m.Attendees = slices.Clone(v)
	}
	if v, ok := o.Cancelled.Get(); ok {
		m.Cancelled = v
	}
	return nil
}

// IsException reports whether the occurrence on date has an exception.
func (it *Item) IsException(date time.Time) bool {
	return it.messageIndex(DateKey(date, it.TimeZone)) >= 0
}

// Exception returns the exception message of the occurrence on date.
func (it *Item) Exception(date time.Time) (*ExceptionMessage, bool) {
	i := it.messageIndex(DateKey(date, it.TimeZone))
	if i < 0 {
		return nil, false
	}
	return it.Messages[i], true
}

// occurs checks that the pattern generates an occurrence on the day key.
func (it *Item) occurs(key uint32) error {
	rule, err := it.Rule()
	if err != nil {
		return err
	}
	if !rule.Occurs(MinutesToTime(key, it.TimeZone)) {
		return fmt.Errorf("%w: %s", ErrNoSuchOccurrence, MinutesToTime(key, it.TimeZone).Format(time.DateOnly))
	}
	return nil
}

// CreateException turns the occurrence on date into an exception seeded with
// the series values plus ov. It does not check for an existing exception;
// callers use IsException first.
func (it *Item) CreateException(date time.Time, ov Overrides) (*ExceptionMessage, error) {
	key := DateKey(date, it.TimeZone)
	if err := it.occurs(key); err != nil {
		return nil, err
	}
	p := &it.Blob.Pattern
	start := MinutesToTime(key+p.StartTimeOffset, it.TimeZone)
	m := &ExceptionMessage{
		ID:          uuid.NewString(),
		ReplaceTime: start,
		Start:       start,
		End:         MinutesToTime(key+p.EndTimeOffset, it.TimeZone),
		Properties:  it.Properties,
	}
	if err := ov.apply(m); err != nil {
		return nil, err
	}

	var e Exception
	it.syncException(&e, m)
	it.Blob.Exceptions = append(it.Blob.Exceptions, e)
	it.Messages = append(it.Messages, m)
	// The occurrence now has a replacement, so it is no longer a pure deletion.
	it.Blob.Deleted = slices.DeleteFunc(it.Blob.Deleted, func(d uint32) bool { return d == key })
	if len(it.Blob.Deleted) == 0 {
		it.Blob.Deleted = nil
	}
	if err := it.reencode(); err != nil {
		return nil, err
	}
	return m, nil
}

// ModifyException applies ov to the existing exception on date.
func (it *Item) ModifyException(date time.Time, ov Overrides) error {
	key := DateKey(date, it.TimeZone)
	mi := it.messageIndex(key)
	if mi < 0 {
		return fmt.Errorf("%w: %s", ErrNoSuchException, date.In(it.TimeZone).Format(time.DateOnly))
	}
	m := it.Messages[mi].clone()
	if err := ov.apply(m); err != nil {
		return err
	}
	it.Messages[mi] = m

	ei := it.exceptionIndex(key)
	if ei < 0 {
		it.logger.Warn("exception message without blob record; recreating it",
			"item", it.ID, "date", date)
		it.Blob.Exceptions = append(it.Blob.Exceptions, Exception{})
		ei = len(it.Blob.Exceptions) - 1
	}
	it.syncException(&it.Blob.Exceptions[ei], m)
	return it.reencode()
}

// DeleteException removes the occurrence on date. An exception is dropped
// together with its message; either way the original date stays deleted.
func (it *Item) DeleteException(date time.Time) error {
	key := DateKey(date, it.TimeZone)
	mi := it.messageIndex(key)
	ei := it.exceptionIndex(key)
	if mi < 0 && ei < 0 {
		if err := it.occurs(key); err != nil {
			return err
		}
	}
	if mi >= 0 {
		it.Messages = slices.Delete(it.Messages, mi, mi+1)
	}
	if ei >= 0 {
		it.Blob.Exceptions = slices.Delete(it.Blob.Exceptions, ei, ei+1)
	}
	if len(it.Blob.Exceptions) == 0 {
		it.Blob.Exceptions = nil
	}
	if len(it.Messages) == 0 {
		it.Messages = nil
	}
	if i, found := slices.BinarySearch(it.Blob.Deleted, key); !found {
		it.Blob.Deleted = slices.Insert(it.Blob.Deleted, i, key)
	}
	return it.reencode()
}

// syncException rewrites the blob records of an exception from its message.
// Override flags are recomputed from the differences against the series;
// fields this package does not model are carried over.
func (it *Item) syncException(e *Exception, m *ExceptionMessage) {
	loc := it.TimeZone
	prev := e.Info
	info := ExceptionInfo{
		StartDateTime:     TimeToMinutes(m.Start, loc),
		EndDateTime:       TimeToMinutes(m.End, loc),
		OriginalStartDate: TimeToMinutes(m.ReplaceTime, loc),
		OverrideFlags:     prev.OverrideFlags & (OverrideMeetingType | OverrideAttachment | OverrideColor),
		MeetingType:       prev.MeetingType,
		Attachment:        prev.Attachment,
		AppointmentColor:  prev.AppointmentColor,
	}
	ext := ExtendedException{
		ChangeHighlight: e.Extended.ChangeHighlight,
		ReservedEE1:     e.Extended.ReservedEE1,
		ReservedEE2:     e.Extended.ReservedEE2,
	}

	if m.Subject != it.Subject {
		info.OverrideFlags |= OverrideSubject
		info.Subject = mo.Some(m.Subject)
		ext.Subject = mo.Some(m.Subject)
	}
	if m.Location != it.Location {
		info.OverrideFlags |= OverrideLocation
		info.Location = mo.Some(m.Location)
		ext.Location = mo.Some(m.Location)
	}
	if m.BusyStatus != it.BusyStatus {
		info.OverrideFlags |= OverrideBusyStatus
		info.BusyStatus = mo.Some(uint32(m.BusyStatus))
	}
	if m.ReminderSet != it.ReminderSet {
		info.OverrideFlags |= OverrideReminder
		info.ReminderSet = mo.Some(boolWord(m.ReminderSet))
	}
	if m.ReminderDelta != it.ReminderDelta {
		info.OverrideFlags |= OverrideReminderDelta
		info.ReminderDelta = mo.Some(m.ReminderDelta)
	}
	if m.AllDay != it.AllDay {
		info.OverrideFlags |= OverrideSubType
		info.SubType = mo.Some(boolWord(m.AllDay))
	}
	if m.Body != "" || prev.OverrideFlags.Has(OverrideExceptionalBody) {
		info.OverrideFlags |= OverrideExceptionalBody
	}

	if info.OverrideFlags&(OverrideSubject|OverrideLocation) != 0 {
		ext.StartDateTime = info.StartDateTime
		ext.EndDateTime = info.EndDateTime
		ext.OriginalStartDate = info.OriginalStartDate
	}
	if it.Blob.Pattern.WriterVersion2 >= writerVersionHighlight && ext.ChangeHighlight.IsAbsent() {
		ext.ChangeHighlight = mo.Some(ChangeHighlight{})
	}
	e.Info = info
	e.Extended = ext
	it.Blob.HasExtended = true
}

func boolWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
