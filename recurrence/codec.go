package recurrence

import (
	"fmt"
	"math"
	"slices"

	"github.com/samber/mo"

	"github.com/cyp0633/libmapirecur/internal/binary"
)

// validateType checks that the pattern type is meaningful for the frequency.
func validateType(f Frequency, t PatternType) error {
	switch f {
	case FrequencyDaily:
		if t == PatternDay || t == PatternWeek {
			return nil
		}
	case FrequencyWeekly:
		if t == PatternWeek {
			return nil
		}
	case FrequencyMonthly, FrequencyYearly:
		if t.hasDay() || t.hasNth() {
			return nil
		}
	default:
		return fmt.Errorf("%w: unknown frequency %s", ErrInvalidPattern, f)
	}
	return invalidPattern(f, t)
}

// decoder carries the reader and the name of the section being decoded so
// every failure can be reported with its position.
type decoder struct {
	r       *binary.Reader
	section string
}

func (d *decoder) fail(err error) error {
	return &DecodeError{Section: d.section, Offset: d.r.Pos(), Err: err}
}

// exceptionInfoMinSize is an ExceptionInfo with no overrides: three dates
// and the flags word.
const exceptionInfoMinSize = 14

// Decode parses an appointment recurrence blob. It performs no I/O and does
// not interpret times in any zone.
func Decode(data []byte) (*Blob, error) {
	d := &decoder{r: binary.NewReader(data), section: "pattern"}
	b := &Blob{}

	if err := d.pattern(&b.Pattern); err != nil {
		return nil, err
	}
	deleted, err := d.instanceDates()
	if err != nil {
		return nil, err
	}

	d.section = "range"
	if b.Pattern.StartDate, err = d.r.Uint32("StartDate"); err != nil {
		return nil, d.fail(err)
	}
	if b.Pattern.EndDate, err = d.r.Uint32("EndDate"); err != nil {
		return nil, d.fail(err)
	}

	count, err := d.appointment(&b.Pattern)
	if err != nil {
		return nil, err
	}

	d.section = "exception"
	if need := uint64(count) * exceptionInfoMinSize; need > uint64(d.r.Remaining()) {
		return nil, d.fail(&binary.FieldError{
			Field:  "ExceptionInfo",
			Offset: d.r.Pos(),
			Need:   int(need),
			Have:   d.r.Remaining(),
		})
	}
	if count > 0 {
		b.Exceptions = make([]Exception, count)
	}
	for i := range b.Exceptions {
		if err := d.exceptionInfo(&b.Exceptions[i].Info); err != nil {
			return nil, err
		}
	}

	// Legacy writers stop after the exception records.
	if d.r.AtEnd() {
		b.HasExtended = false
	} else {
		b.HasExtended = true
		d.section = "reserved block 1"
		if b.ReservedBlock1, err = d.r.SizedBlock("ReservedBlock1"); err != nil {
			return nil, d.fail(err)
		}
		d.section = "extended exception"
		for i := range b.Exceptions {
			if err := d.extendedException(&b.Exceptions[i], b.Pattern.WriterVersion2); err != nil {
				return nil, err
			}
		}
		d.section = "reserved block 2"
		if b.ReservedBlock2, err = d.r.SizedBlock("ReservedBlock2"); err != nil {
			return nil, d.fail(err)
		}
	}

	b.Deleted = pureDeletions(deleted, b.Exceptions)
	return b, nil
}

func (d *decoder) pattern(p *Pattern) error {
	r := d.r
	var err error
	var v uint16

	if p.ReaderVersion, err = r.Uint16("ReaderVersion"); err != nil {
		return d.fail(err)
	}
	if p.WriterVersion, err = r.Uint16("WriterVersion"); err != nil {
		return d.fail(err)
	}
	if v, err = r.Uint16("RecurFrequency"); err != nil {
		return d.fail(err)
	}
	p.Frequency = Frequency(v)
	if v, err = r.Uint16("PatternType"); err != nil {
		return d.fail(err)
	}
	p.Type = PatternType(v)
	if err := validateType(p.Frequency, p.Type); err != nil {
		return err
	}
	if p.CalendarType, err = r.Uint16("CalendarType"); err != nil {
		return d.fail(err)
	}
	if p.FirstDateTime, err = r.Uint32("FirstDateTime"); err != nil {
		return d.fail(err)
	}
	if p.Period, err = r.Uint32("Period"); err != nil {
		return d.fail(err)
	}
	if p.SlidingFlag, err = r.Uint32("SlidingFlag"); err != nil {
		return d.fail(err)
	}

	switch {
	case p.Type == PatternWeek:
		mask, err := r.Uint32("PatternTypeSpecific.Week")
		if err != nil {
			return d.fail(err)
		}
		p.WeekdayMask = WeekdayMask(mask)
	case p.Type.hasDay():
		if p.MonthDay, err = r.Uint32("PatternTypeSpecific.Day"); err != nil {
			return d.fail(err)
		}
	case p.Type.hasNth():
		mask, err := r.Uint32("PatternTypeSpecific.MonthNth.Weekdays")
		if err != nil {
			return d.fail(err)
		}
		p.WeekdayMask = WeekdayMask(mask)
		n, err := r.Uint32("PatternTypeSpecific.MonthNth.N")
		if err != nil {
			return d.fail(err)
		}
		p.WeekIndex = WeekIndex(n)
	}

	end, err := r.Uint32("EndType")
	if err != nil {
		return d.fail(err)
	}
	p.EndType = EndType(end)
	if p.OccurrenceCount, err = r.Uint32("OccurrenceCount"); err != nil {
		return d.fail(err)
	}
	if p.FirstDayOfWeek, err = r.Uint32("FirstDOW"); err != nil {
		return d.fail(err)
	}
	return nil
}

// instanceDates reads the deleted and modified instance arrays. Only the
// deleted list carries information; the modified list is rebuilt from the
// exceptions on encode.
func (d *decoder) instanceDates() ([]uint32, error) {
	d.section = "instance dates"
	n, err := d.r.Uint32("DeletedInstanceCount")
	if err != nil {
		return nil, d.fail(err)
	}
	deleted, err := d.r.Uint32s("DeletedInstanceDates", n)
	if err != nil {
		return nil, d.fail(err)
	}
	n, err = d.r.Uint32("ModifiedInstanceCount")
	if err != nil {
		return nil, d.fail(err)
	}
	if _, err := d.r.Uint32s("ModifiedInstanceDates", n); err != nil {
		return nil, d.fail(err)
	}
	return deleted, nil
}

func (d *decoder) appointment(p *Pattern) (uint16, error) {
	d.section = "appointment"
	r := d.r
	var err error
	if p.ReaderVersion2, err = r.Uint32("ReaderVersion2"); err != nil {
		return 0, d.fail(err)
	}
	if p.WriterVersion2, err = r.Uint32("WriterVersion2"); err != nil {
		return 0, d.fail(err)
	}
	if p.StartTimeOffset, err = r.Uint32("StartTimeOffset"); err != nil {
		return 0, d.fail(err)
	}
	if p.EndTimeOffset, err = r.Uint32("EndTimeOffset"); err != nil {
		return 0, d.fail(err)
	}
	count, err := r.Uint16("ExceptionCount")
	if err != nil {
		return 0, d.fail(err)
	}
	return count, nil
}

func (d *decoder) exceptionInfo(e *ExceptionInfo) error {
	r := d.r
	var err error
	if e.StartDateTime, err = r.Uint32("StartDateTime"); err != nil {
		return d.fail(err)
	}
	if e.EndDateTime, err = r.Uint32("EndDateTime"); err != nil {
		return d.fail(err)
	}
	if e.OriginalStartDate, err = r.Uint32("OriginalStartDate"); err != nil {
		return d.fail(err)
	}
	flags, err := r.Uint16("OverrideFlags")
	if err != nil {
		return d.fail(err)
	}
	e.OverrideFlags = OverrideFlags(flags)

	u32 := func(flag OverrideFlags, field string, dst *mo.Option[uint32]) error {
		if !e.OverrideFlags.Has(flag) {
			return nil
		}
		v, err := r.Uint32(field)
		if err != nil {
			return d.fail(err)
		}
		*dst = mo.Some(v)
		return nil
	}
	str := func(flag OverrideFlags, field string, dst *mo.Option[string]) error {
		if !e.OverrideFlags.Has(flag) {
			return nil
		}
		v, err := r.ANSIString(field)
		if err != nil {
			return d.fail(err)
		}
		*dst = mo.Some(v)
		return nil
	}

	// Field order is fixed by the format.
	steps := []func() error{
		func() error { return str(OverrideSubject, "Subject", &e.Subject) },
		func() error { return u32(OverrideMeetingType, "MeetingType", &e.MeetingType) },
		func() error { return u32(OverrideReminderDelta, "ReminderDelta", &e.ReminderDelta) },
		func() error { return u32(OverrideReminder, "ReminderSet", &e.ReminderSet) },
		func() error { return str(OverrideLocation, "Location", &e.Location) },
		func() error { return u32(OverrideBusyStatus, "BusyStatus", &e.BusyStatus) },
		func() error { return u32(OverrideAttachment, "Attachment", &e.Attachment) },
		func() error { return u32(OverrideSubType, "SubType", &e.SubType) },
		func() error { return u32(OverrideColor, "AppointmentColor", &e.AppointmentColor) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) extendedException(e *Exception, writerVersion2 uint32) error {
	r := d.r
	x := &e.Extended
	if writerVersion2 >= writerVersionHighlight {
		size, err := r.Uint32("ChangeHighlightSize")
		if err != nil {
			return d.fail(err)
		}
		if size < 4 {
			return d.fail(fmt.Errorf("ChangeHighlightSize %d is smaller than its value field", size))
		}
		value, err := r.Uint32("ChangeHighlightValue")
		if err != nil {
			return d.fail(err)
		}
		reserved, err := r.Bytes("ChangeHighlightReserved", int(size-4))
		if err != nil {
			return d.fail(err)
		}
		x.ChangeHighlight = mo.Some(ChangeHighlight{Value: value, Reserved: reserved})
	}
	var err error
	if x.ReservedEE1, err = r.SizedBlock("ReservedBlockEE1"); err != nil {
		return d.fail(err)
	}

	flags := e.Info.OverrideFlags
	if !flags.Has(OverrideSubject) && !flags.Has(OverrideLocation) {
		return nil
	}
	if x.StartDateTime, err = r.Uint32("StartDateTime"); err != nil {
		return d.fail(err)
	}
	if x.EndDateTime, err = r.Uint32("EndDateTime"); err != nil {
		return d.fail(err)
	}
	if x.OriginalStartDate, err = r.Uint32("OriginalStartDate"); err != nil {
		return d.fail(err)
	}
	if flags.Has(OverrideSubject) {
		s, err := r.WideString("WideCharSubject")
		if err != nil {
			return d.fail(err)
		}
		x.Subject = mo.Some(s)
	}
	if flags.Has(OverrideLocation) {
		s, err := r.WideString("WideCharLocation")
		if err != nil {
			return d.fail(err)
		}
		x.Location = mo.Some(s)
	}
	if x.ReservedEE2, err = r.SizedBlock("ReservedBlockEE2"); err != nil {
		return d.fail(err)
	}
	return nil
}

// pureDeletions removes the original dates of exceptions from the wire
// deleted list, leaving only occurrences removed without replacement.
// Duplicates and unsorted input from other writers are tolerated.
func pureDeletions(wire []uint32, exceptions []Exception) []uint32 {
	owned := make(map[uint32]struct{}, len(exceptions))
	for _, e := range exceptions {
		owned[midnight(e.Info.OriginalStartDate)] = struct{}{}
	}
	var out []uint32
	for _, d := range wire {
		d = midnight(d)
		if _, ok := owned[d]; ok {
			continue
		}
		out = append(out, d)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Encode serializes b into the wire format.
func Encode(b *Blob) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: nil blob", ErrInvalidPattern)
	}
	p := &b.Pattern
	if err := validateType(p.Frequency, p.Type); err != nil {
		return nil, err
	}
	if len(b.Exceptions) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d exceptions exceeds the format limit", ErrInvalidPattern, len(b.Exceptions))
	}

	w := binary.NewWriter()
	w.Uint16(p.ReaderVersion)
	w.Uint16(p.WriterVersion)
	w.Uint16(uint16(p.Frequency))
	w.Uint16(uint16(p.Type))
	w.Uint16(p.CalendarType)
	w.Uint32(p.FirstDateTime)
	w.Uint32(p.Period)
	w.Uint32(p.SlidingFlag)
	switch {
	case p.Type == PatternWeek:
		w.Uint32(uint32(p.WeekdayMask))
	case p.Type.hasDay():
		w.Uint32(p.MonthDay)
	case p.Type.hasNth():
		w.Uint32(uint32(p.WeekdayMask))
		w.Uint32(uint32(p.WeekIndex))
	}
	w.Uint32(uint32(p.EndType))
	w.Uint32(p.OccurrenceCount)
	w.Uint32(p.FirstDayOfWeek)

	deleted, modified := wireInstanceDates(b)
	w.Uint32(uint32(len(deleted)))
	w.Uint32s(deleted)
	w.Uint32(uint32(len(modified)))
	w.Uint32s(modified)
	w.Uint32(p.StartDate)
	w.Uint32(p.EndDate)

	w.Uint32(p.ReaderVersion2)
	w.Uint32(p.WriterVersion2)
	w.Uint32(p.StartTimeOffset)
	w.Uint32(p.EndTimeOffset)
	w.Uint16(uint16(len(b.Exceptions)))
	for i := range b.Exceptions {
		if err := encodeExceptionInfo(w, &b.Exceptions[i].Info); err != nil {
			return nil, fmt.Errorf("exception %d: %w", i, err)
		}
	}

	// Readers expect both reserved block sizes even when the blob was
	// decoded from a legacy writer; its extended records come from Info.
	w.SizedBlock(b.ReservedBlock1)
	for i := range b.Exceptions {
		if err := encodeExtended(w, &b.Exceptions[i], p.WriterVersion2); err != nil {
			return nil, fmt.Errorf("extended exception %d: %w", i, err)
		}
	}
	w.SizedBlock(b.ReservedBlock2)
	return w.Bytes(), nil
}

// wireInstanceDates builds the deleted and modified arrays. Every exception
// also counts as a deletion of its original date.
func wireInstanceDates(b *Blob) (deleted, modified []uint32) {
	deleted = make([]uint32, 0, len(b.Deleted)+len(b.Exceptions))
	for _, d := range b.Deleted {
		deleted = append(deleted, midnight(d))
	}
	modified = make([]uint32, 0, len(b.Exceptions))
	for _, e := range b.Exceptions {
		deleted = append(deleted, midnight(e.Info.OriginalStartDate))
		modified = append(modified, midnight(e.Info.StartDateTime))
	}
	slices.Sort(deleted)
	deleted = slices.Compact(deleted)
	slices.Sort(modified)
	return deleted, modified
}

func encodeExceptionInfo(w *binary.Writer, e *ExceptionInfo) error {
	w.Uint32(e.StartDateTime)
	w.Uint32(e.EndDateTime)
	w.Uint32(e.OriginalStartDate)
	w.Uint16(uint16(e.OverrideFlags))

	f := e.OverrideFlags
	if f.Has(OverrideSubject) {
		if err := w.ANSIString("subject", e.Subject.OrEmpty()); err != nil {
			return err
		}
	}
	if f.Has(OverrideMeetingType) {
		w.Uint32(e.MeetingType.OrEmpty())
	}
	if f.Has(OverrideReminderDelta) {
		w.Uint32(e.ReminderDelta.OrEmpty())
	}
	if f.Has(OverrideReminder) {
		w.Uint32(e.ReminderSet.OrEmpty())
	}
	if f.Has(OverrideLocation) {
		if err := w.ANSIString("location", e.Location.OrEmpty()); err != nil {
			return err
		}
	}
	if f.Has(OverrideBusyStatus) {
		w.Uint32(e.BusyStatus.OrEmpty())
	}
	if f.Has(OverrideAttachment) {
		w.Uint32(e.Attachment.OrEmpty())
	}
	if f.Has(OverrideSubType) {
		w.Uint32(e.SubType.OrEmpty())
	}
	if f.Has(OverrideColor) {
		w.Uint32(e.AppointmentColor.OrEmpty())
	}
	return nil
}

// encodeExtended writes the extended record paired with e. Placeholder
// records left by a legacy decode are filled from the exception record.
func encodeExtended(w *binary.Writer, e *Exception, writerVersion2 uint32) error {
	x := &e.Extended
	if writerVersion2 >= writerVersionHighlight {
		ch := x.ChangeHighlight.OrEmpty()
		w.Uint32(uint32(4 + len(ch.Reserved)))
		w.Uint32(ch.Value)
		w.Raw(ch.Reserved)
	}
	w.SizedBlock(x.ReservedEE1)

	flags := e.Info.OverrideFlags
	if !flags.Has(OverrideSubject) && !flags.Has(OverrideLocation) {
		return nil
	}
	start, end, orig := x.StartDateTime, x.EndDateTime, x.OriginalStartDate
	if start == 0 && end == 0 && orig == 0 {
		start, end, orig = e.Info.StartDateTime, e.Info.EndDateTime, e.Info.OriginalStartDate
	}
	w.Uint32(start)
	w.Uint32(end)
	w.Uint32(orig)
	if flags.Has(OverrideSubject) {
		s := x.Subject.OrElse(e.Info.Subject.OrEmpty())
		if err := w.WideString("subject", s); err != nil {
			return err
		}
	}
	if flags.Has(OverrideLocation) {
		s := x.Location.OrElse(e.Info.Location.OrEmpty())
		if err := w.WideString("location", s); err != nil {
			return err
		}
	}
	w.SizedBlock(x.ReservedEE2)
	return nil
}
