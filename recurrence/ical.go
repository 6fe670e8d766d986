package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

const (
	icalDate     = "20060102"
	icalDateTime = "20060102T150405"

	propRecurrenceID = "RECURRENCE-ID"
)

// ToICal renders the item as a calendar with one master VEVENT carrying the
// rule and pure deletions, plus one VEVENT per exception keyed by
// RECURRENCE-ID. Cancelled exceptions are exported with STATUS:CANCELLED.
func ToICal(it *Item) (*ical.Calendar, error) {
	rule, err := it.Rule()
	if err != nil {
		return nil, err
	}
	loc := it.TimeZone
	stamp := time.Now().UTC()

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//libmapirecur//EN")

	master := ical.NewEvent()
	master.Props.SetText(ical.PropUID, it.ID)
	master.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
	setTime(master.Component, ical.PropDateTimeStart, it.Start, it.AllDay)
	setTime(master.Component, ical.PropDateTimeEnd, it.Start.Add(it.Duration()), it.AllDay)
	master.Props.SetText(ical.PropSummary, it.Subject)
	if it.Location != "" {
		master.Props.SetText(ical.PropLocation, it.Location)
	}
	setTransparency(master.Component, it.BusyStatus)

	rrule := ical.NewProp(ical.PropRecurrenceRule)
	rrule.Value = rule.String()
	master.Props.Set(rrule)

	if len(it.Blob.Deleted) > 0 {
		offset := it.Blob.Pattern.StartTimeOffset
		values := make([]string, 0, len(it.Blob.Deleted))
		for _, d := range it.Blob.Deleted {
			values = append(values, MinutesToTime(d+offset, loc).Format(icalDateTime))
		}
		exdate := ical.NewProp(ical.PropExceptionDates)
		exdate.Params.Set(ical.ParamTimezoneID, loc.String())
		exdate.Value = strings.Join(values, ",")
		master.Props.Set(exdate)
	}
	cal.Children = append(cal.Children, master.Component)

	for i := range it.Blob.Exceptions {
		o := it.exceptionOccurrence(&it.Blob.Exceptions[i])
		ev := ical.NewEvent()
		ev.Props.SetText(ical.PropUID, it.ID)
		ev.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
		setTime(ev.Component, propRecurrenceID, o.OriginalStart, it.AllDay)
		setTime(ev.Component, ical.PropDateTimeStart, o.Start, it.AllDay)
		setTime(ev.Component, ical.PropDateTimeEnd, o.End, it.AllDay)
		ev.Props.SetText(ical.PropSummary, o.Subject)
		if o.Location != "" {
			ev.Props.SetText(ical.PropLocation, o.Location)
		}
		setTransparency(ev.Component, o.BusyStatus)
		if o.Cancelled {
			ev.Props.SetText(ical.PropStatus, "CANCELLED")
		}
		cal.Children = append(cal.Children, ev.Component)
	}
	return cal, nil
}

// EncodeICal writes the iCalendar text of the item.
func EncodeICal(it *Item) (string, error) {
	cal, err := ToICal(it)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := ical.NewEncoder(&sb).Encode(cal); err != nil {
		return "", fmt.Errorf("encode calendar: %w", err)
	}
	return sb.String(), nil
}

func setTime(comp *ical.Component, name string, t time.Time, allDay bool) {
	if allDay {
		prop := ical.NewProp(name)
		prop.Params.Set("VALUE", "DATE")
		prop.Value = t.Format(icalDate)
		comp.Props.Set(prop)
		return
	}
	comp.Props.SetDateTime(name, t)
}

func setTransparency(comp *ical.Component, status BusyStatus) {
	if status == BusyFree {
		comp.Props.SetText(ical.PropTransparency, "TRANSPARENT")
	}
}
