package xml

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/samber/mo"

	"github.com/cyp0633/libmapirecur/recurrence"
)

// Tag names of the blob dump
const (
	TagBlob       = "RecurrenceBlob"
	TagPattern    = "Pattern"
	TagDeleted    = "Deleted"
	TagDate       = "Date"
	TagExceptions = "Exceptions"
	TagException  = "Exception"
	TagExtended   = "Extended"
	TagHighlight  = "ChangeHighlight"
)

// Render writes every field of b as an XML document. Dates are written as
// blob minutes with a readable wall-clock attribute.
func Render(b *recurrence.Blob) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(TagBlob)
	root.CreateAttr("extended", strconv.FormatBool(b.HasExtended))

	p := &b.Pattern
	pe := root.CreateElement(TagPattern)
	addUint(pe, "ReaderVersion", uint64(p.ReaderVersion))
	addUint(pe, "WriterVersion", uint64(p.WriterVersion))
	addUint(pe, "Frequency", uint64(p.Frequency)).CreateAttr("name", p.Frequency.String())
	addUint(pe, "PatternType", uint64(p.Type)).CreateAttr("name", p.Type.String())
	addUint(pe, "CalendarType", uint64(p.CalendarType))
	addUint(pe, "FirstDateTime", uint64(p.FirstDateTime))
	addUint(pe, "Period", uint64(p.Period))
	addUint(pe, "SlidingFlag", uint64(p.SlidingFlag))
	addUint(pe, "WeekdayMask", uint64(p.WeekdayMask))
	addUint(pe, "MonthDay", uint64(p.MonthDay))
	addUint(pe, "WeekIndex", uint64(p.WeekIndex))
	addUint(pe, "EndType", uint64(p.EndType)).CreateAttr("name", p.EndType.String())
	addUint(pe, "OccurrenceCount", uint64(p.OccurrenceCount))
	addUint(pe, "FirstDayOfWeek", uint64(p.FirstDayOfWeek))
	addDate(pe, "StartDate", p.StartDate)
	addDate(pe, "EndDate", p.EndDate)
	addUint(pe, "ReaderVersion2", uint64(p.ReaderVersion2))
	addUint(pe, "WriterVersion2", uint64(p.WriterVersion2))
	addUint(pe, "StartTimeOffset", uint64(p.StartTimeOffset))
	addUint(pe, "EndTimeOffset", uint64(p.EndTimeOffset))

	de := root.CreateElement(TagDeleted)
	for _, d := range b.Deleted {
		addDate(de, TagDate, d)
	}

	ee := root.CreateElement(TagExceptions)
	for i := range b.Exceptions {
		renderException(ee.CreateElement(TagException), &b.Exceptions[i])
	}

	addBytes(root, "ReservedBlock1", b.ReservedBlock1)
	addBytes(root, "ReservedBlock2", b.ReservedBlock2)

	doc.Indent(2)
	return doc
}

func renderException(el *etree.Element, e *recurrence.Exception) {
	info := &e.Info
	addDate(el, "StartDateTime", info.StartDateTime)
	addDate(el, "EndDateTime", info.EndDateTime)
	addDate(el, "OriginalStartDate", info.OriginalStartDate)
	addUint(el, "OverrideFlags", uint64(info.OverrideFlags))
	addString(el, "Subject", info.Subject)
	addOptUint(el, "MeetingType", info.MeetingType)
	addOptUint(el, "ReminderDelta", info.ReminderDelta)
	addOptUint(el, "ReminderSet", info.ReminderSet)
	addString(el, "Location", info.Location)
	addOptUint(el, "BusyStatus", info.BusyStatus)
	addOptUint(el, "Attachment", info.Attachment)
	addOptUint(el, "SubType", info.SubType)
	addOptUint(el, "AppointmentColor", info.AppointmentColor)

	ext := &e.Extended
	xe := el.CreateElement(TagExtended)
	if ch, ok := ext.ChangeHighlight.Get(); ok {
		he := xe.CreateElement(TagHighlight)
		he.CreateAttr("value", strconv.FormatUint(uint64(ch.Value), 10))
		if ch.Reserved != nil {
			he.CreateAttr("reserved", hex.EncodeToString(ch.Reserved))
		}
	}
	addBytes(xe, "ReservedEE1", ext.ReservedEE1)
	addDate(xe, "StartDateTime", ext.StartDateTime)
	addDate(xe, "EndDateTime", ext.EndDateTime)
	addDate(xe, "OriginalStartDate", ext.OriginalStartDate)
	addString(xe, "Subject", ext.Subject)
	addString(xe, "Location", ext.Location)
	addBytes(xe, "ReservedEE2", ext.ReservedEE2)
}

func addUint(parent *etree.Element, tag string, v uint64) *etree.Element {
	el := parent.CreateElement(tag)
	el.SetText(strconv.FormatUint(v, 10))
	return el
}

func addOptUint(parent *etree.Element, tag string, v mo.Option[uint32]) {
	if x, ok := v.Get(); ok {
		addUint(parent, tag, uint64(x))
	}
}

func addString(parent *etree.Element, tag string, v mo.Option[string]) {
	if s, ok := v.Get(); ok {
		parent.CreateElement(tag).SetText(s)
	}
}

func addDate(parent *etree.Element, tag string, m uint32) {
	el := addUint(parent, tag, uint64(m))
	if m != 0 {
		el.CreateAttr("wall", recurrence.MinutesToTime(m, time.UTC).Format("2006-01-02T15:04"))
	}
}

// addBytes writes opaque blocks as hex. A nil block is omitted; an empty
// one is written as an empty element.
func addBytes(parent *etree.Element, tag string, b []byte) {
	if b == nil {
		return
	}
	parent.CreateElement(tag).SetText(hex.EncodeToString(b))
}

// Parse reads a document produced by Render back into a blob.
func Parse(doc *etree.Document) (*recurrence.Blob, error) {
	if doc == nil || doc.Root() == nil {
		return nil, fmt.Errorf("empty document")
	}
	root := doc.Root()
	if root.Tag != TagBlob {
		return nil, fmt.Errorf("invalid root tag: %s", root.Tag)
	}
	pe := root.SelectElement(TagPattern)
	if pe == nil {
		return nil, fmt.Errorf("missing %s element", TagPattern)
	}

	b := &recurrence.Blob{HasExtended: root.SelectAttrValue("extended", "true") == "true"}
	r := &reader{}
	p := &b.Pattern
	p.ReaderVersion = uint16(r.uint(pe, "ReaderVersion", 16))
	p.WriterVersion = uint16(r.uint(pe, "WriterVersion", 16))
	p.Frequency = recurrence.Frequency(r.uint(pe, "Frequency", 16))
	p.Type = recurrence.PatternType(r.uint(pe, "PatternType", 16))
	p.CalendarType = uint16(r.uint(pe, "CalendarType", 16))
	p.FirstDateTime = r.u32(pe, "FirstDateTime")
	p.Period = r.u32(pe, "Period")
	p.SlidingFlag = r.u32(pe, "SlidingFlag")
	p.WeekdayMask = recurrence.WeekdayMask(r.u32(pe, "WeekdayMask"))
	p.MonthDay = r.u32(pe, "MonthDay")
	p.WeekIndex = recurrence.WeekIndex(r.u32(pe, "WeekIndex"))
	p.EndType = recurrence.EndType(r.u32(pe, "EndType"))
	p.OccurrenceCount = r.u32(pe, "OccurrenceCount")
	p.FirstDayOfWeek = r.u32(pe, "FirstDayOfWeek")
	p.StartDate = r.u32(pe, "StartDate")
	p.EndDate = r.u32(pe, "EndDate")
	p.ReaderVersion2 = r.u32(pe, "ReaderVersion2")
	p.WriterVersion2 = r.u32(pe, "WriterVersion2")
	p.StartTimeOffset = r.u32(pe, "StartTimeOffset")
	p.EndTimeOffset = r.u32(pe, "EndTimeOffset")

	if de := root.SelectElement(TagDeleted); de != nil {
		for _, el := range de.SelectElements(TagDate) {
			b.Deleted = append(b.Deleted, uint32(r.parse(el, 32)))
		}
	}
	if ee := root.SelectElement(TagExceptions); ee != nil {
		for _, el := range ee.SelectElements(TagException) {
			b.Exceptions = append(b.Exceptions, r.exception(el))
		}
	}
	b.ReservedBlock1 = r.bytes(root, "ReservedBlock1")
	b.ReservedBlock2 = r.bytes(root, "ReservedBlock2")

	if r.err != nil {
		return nil, r.err
	}
	return b, nil
}

// reader keeps the first parse error so field reads can be chained.
type reader struct {
	err error
}

func (r *reader) parse(el *etree.Element, bits int) uint64 {
	v, err := strconv.ParseUint(el.Text(), 10, bits)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("element %s: %w", el.GetPath(), err)
	}
	return v
}

func (r *reader) uint(parent *etree.Element, tag string, bits int) uint64 {
	el := parent.SelectElement(tag)
	if el == nil {
		if r.err == nil {
			r.err = fmt.Errorf("missing %s element in %s", tag, parent.Tag)
		}
		return 0
	}
	return r.parse(el, bits)
}

func (r *reader) u32(parent *etree.Element, tag string) uint32 {
	return uint32(r.uint(parent, tag, 32))
}

func (r *reader) optUint(parent *etree.Element, tag string) mo.Option[uint32] {
	if el := parent.SelectElement(tag); el != nil {
		return mo.Some(uint32(r.parse(el, 32)))
	}
	return mo.None[uint32]()
}

func optString(parent *etree.Element, tag string) mo.Option[string] {
	if el := parent.SelectElement(tag); el != nil {
		return mo.Some(el.Text())
	}
	return mo.None[string]()
}

func (r *reader) bytes(parent *etree.Element, tag string) []byte {
	el := parent.SelectElement(tag)
	if el == nil {
		return nil
	}
	b, err := hex.DecodeString(el.Text())
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("element %s: %w", el.GetPath(), err)
	}
	if b == nil {
		b = []byte{}
	}
	return b
}

func (r *reader) exception(el *etree.Element) recurrence.Exception {
	var e recurrence.Exception
	info := &e.Info
	info.StartDateTime = r.u32(el, "StartDateTime")
	info.EndDateTime = r.u32(el, "EndDateTime")
	info.OriginalStartDate = r.u32(el, "OriginalStartDate")
	info.OverrideFlags = recurrence.OverrideFlags(r.uint(el, "OverrideFlags", 16))
	info.Subject = optString(el, "Subject")
	info.MeetingType = r.optUint(el, "MeetingType")
	info.ReminderDelta = r.optUint(el, "ReminderDelta")
	info.ReminderSet = r.optUint(el, "ReminderSet")
	info.Location = optString(el, "Location")
	info.BusyStatus = r.optUint(el, "BusyStatus")
	info.Attachment = r.optUint(el, "Attachment")
	info.SubType = r.optUint(el, "SubType")
	info.AppointmentColor = r.optUint(el, "AppointmentColor")

	xe := el.SelectElement(TagExtended)
	if xe == nil {
		return e
	}
	ext := &e.Extended
	if he := xe.SelectElement(TagHighlight); he != nil {
		ch := recurrence.ChangeHighlight{}
		v, err := strconv.ParseUint(he.SelectAttrValue("value", "0"), 10, 32)
		if err != nil && r.err == nil {
			r.err = fmt.Errorf("element %s: %w", he.GetPath(), err)
		}
		ch.Value = uint32(v)
		if a := he.SelectAttr("reserved"); a != nil {
			ch.Reserved, err = hex.DecodeString(a.Value)
			if err != nil && r.err == nil {
				r.err = fmt.Errorf("element %s: %w", he.GetPath(), err)
			}
		}
		ext.ChangeHighlight = mo.Some(ch)
	}
	ext.ReservedEE1 = r.bytes(xe, "ReservedEE1")
	ext.StartDateTime = r.u32(xe, "StartDateTime")
	ext.EndDateTime = r.u32(xe, "EndDateTime")
	ext.OriginalStartDate = r.u32(xe, "OriginalStartDate")
	ext.Subject = optString(xe, "Subject")
	ext.Location = optString(xe, "Location")
	ext.ReservedEE2 = r.bytes(xe, "ReservedEE2")
	return e
}
