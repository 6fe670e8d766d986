package recurrence

import (
	"fmt"
	"time"

	"github.com/samber/mo"
)

// OccurrenceView is a handle to one occurrence, identified by where the
// pattern originally placed it. It holds no reference to the item; every
// method takes the item it reads from or writes to. Reads are computed
// fresh from the item's current state. Writes turn the occurrence into an
// exception when it is not one yet.
type OccurrenceView struct {
	Original time.Time
}

// View returns the handle of the occurrence on date.
func (it *Item) View(date time.Time) (OccurrenceView, error) {
	key := DateKey(date, it.TimeZone)
	if it.exceptionIndex(key) < 0 {
		if err := it.occurs(key); err != nil {
			return OccurrenceView{}, err
		}
	}
	return OccurrenceView{Original: MinutesToTime(key+it.Blob.Pattern.StartTimeOffset, it.TimeZone)}, nil
}

// Occurrence resolves the view against it.
func (v OccurrenceView) Occurrence(it *Item) Occurrence {
	key := DateKey(v.Original, it.TimeZone)
	if i := it.exceptionIndex(key); i >= 0 {
		return it.exceptionOccurrence(&it.Blob.Exceptions[i])
	}
	start := MinutesToTime(key+it.Blob.Pattern.StartTimeOffset, it.TimeZone)
	return Occurrence{
		Start:         start,
		End:           start.Add(it.Duration()),
		Subject:       it.Subject,
		Location:      it.Location,
		BusyStatus:    it.BusyStatus,
		OriginalStart: start,
	}
}

func (v OccurrenceView) Start(it *Item) time.Time { return v.Occurrence(it).Start }
func (v OccurrenceView) End(it *Item) time.Time { return v.Occurrence(it).End }
func (v OccurrenceView) Subject(it *Item) string { return v.Occurrence(it).Subject }
func (v OccurrenceView) Location(it *Item) string { return v.Occurrence(it).Location }
func (v OccurrenceView) BusyStatus(it *Item) BusyStatus { return v.Occurrence(it).BusyStatus }
func (v OccurrenceView) IsException(it *Item) bool { return it.IsException(v.Original) }
func (v OccurrenceView) Cancelled(it *Item) bool { return v.Occurrence(it).Cancelled }

// SetStart moves the occurrence, keeping its duration.
func (v OccurrenceView) SetStart(it *Item, start time.Time) error {
	o := v.Occurrence(it)
	return v.edit(it, Overrides{Start: mo.Some(start), End: mo.Some(start.Add(o.End.Sub(o.Start)))})
}

func (v OccurrenceView) SetEnd(it *Item, end time.Time) error {
	return v.edit(it, Overrides{End: mo.Some(end)})
}

func (v OccurrenceView) SetSubject(it *Item, subject string) error {
	return v.edit(it, Overrides{Subject: mo.Some(subject)})
}

func (v OccurrenceView) SetLocation(it *Item, location string) error {
	return v.edit(it, Overrides{Location: mo.Some(location)})
}

func (v OccurrenceView) SetBusyStatus(it *Item, status BusyStatus) error {
	return v.edit(it, Overrides{BusyStatus: mo.Some(status)})
}

// Cancel marks the occurrence cancelled and frees its time. It stays in the
// series; use Item.DeleteException to remove it.
func (v OccurrenceView) Cancel(it *Item) error {
	return v.edit(it, Overrides{Cancelled: mo.Some(true), BusyStatus: mo.Some(BusyFree)})
}

func (v OccurrenceView) edit(it *Item, ov Overrides) error {
	if v.Original.IsZero() {
		return fmt.Errorf("%w: empty occurrence view", ErrNoSuchOccurrence)
	}
	if it.IsException(v.Original) {
		return it.ModifyException(v.Original, ov)
	}
	_, err := it.CreateException(v.Original, ov)
	return err
}
