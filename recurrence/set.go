package recurrence

import (
	"iter"
	"slices"
	"time"
)

// Window bounds an enumeration. A zero Start or End leaves that side open.
type Window struct {
	Start time.Time
	End   time.Time
}

// overlaps reports whether [start, end) intersects the window. Zero-length
// occurrences count when they start inside it.
func (w Window) overlaps(start, end time.Time) bool {
	if !w.End.IsZero() && !start.Before(w.End) {
		return false
	}
	if w.Start.IsZero() {
		return true
	}
	return end.After(w.Start) || (end.Equal(start) && !start.Before(w.Start))
}

// Occurrence is one effective instance of a series.
type Occurrence struct {
	Start      time.Time
	End        time.Time
	Subject    string
	Location   string
	BusyStatus BusyStatus
	// OriginalStart is where the pattern placed the occurrence; it differs
	// from Start only for moved exceptions.
	OriginalStart time.Time
	IsException   bool
	Cancelled     bool
}

// View returns the handle for editing this occurrence.
func (o Occurrence) View() OccurrenceView {
	return OccurrenceView{Original: o.OriginalStart}
}

// Occurrences returns the effective occurrences of the series that overlap
// w, in start order. Rule errors are returned before enumeration starts.
// For an unbounded series and an open window the sequence never ends.
func (it *Item) Occurrences(w Window) (iter.Seq[Occurrence], error) {
	rule, err := it.Rule()
	if err != nil {
		return nil, err
	}
	loc := it.TimeZone
	dur := it.Duration()

	// Snapshot exception state so that later mutations do not affect a
	// running enumeration.
	owned := make(map[uint32]bool, len(it.Blob.Exceptions))
	var exceptions []Occurrence
	for i := range it.Blob.Exceptions {
		e := &it.Blob.Exceptions[i]
		owned[midnight(e.Info.OriginalStartDate)] = true
		o := it.exceptionOccurrence(e)
		if w.overlaps(o.Start, o.End) {
			exceptions = append(exceptions, o)
		}
	}
	slices.SortStableFunc(exceptions, func(a, b Occurrence) int {
		return a.Start.Compare(b.Start)
	})

	deleted := make(map[uint32]bool, len(it.Blob.Deleted))
	for _, d := range it.Blob.Deleted {
		if owned[d] {
			it.logger.Warn("occurrence is both deleted and an exception; keeping the exception",
				"item", it.ID, "date", MinutesToTime(d, loc))
			continue
		}
		deleted[d] = true
	}

	base := it.Properties
	return func(yield func(Occurrence) bool) {
		pending := exceptions
		flush := func(before time.Time, all bool) bool {
			for len(pending) > 0 && (all || !pending[0].Start.After(before)) {
				if !yield(pending[0]) {
					return false
				}
				pending = pending[1:]
			}
			return true
		}

		next := rule.Iterator()
		for {
			start, ok := next()
			if !ok {
				break
			}
			start = start.In(loc)
			if !w.End.IsZero() && !start.Before(w.End) {
				break
			}
			key := DateKey(start, loc)
			if owned[key] || deleted[key] {
				continue
			}
			end := start.Add(dur)
			if !w.overlaps(start, end) {
				continue
			}
			if !flush(start, false) {
				return
			}
			if !yield(Occurrence{
				Start:         start,
				End:           end,
				Subject:       base.Subject,
				Location:      base.Location,
				BusyStatus:    base.BusyStatus,
				OriginalStart: start,
			}) {
				return
			}
		}
		flush(time.Time{}, true)
	}, nil
}

// CollectOccurrences materializes at most limit occurrences of w. A limit of
// zero or less means no cap, which never returns for an unbounded series
// with an open window.
func (it *Item) CollectOccurrences(w Window, limit int) ([]Occurrence, error) {
	seq, err := it.Occurrences(w)
	if err != nil {
		return nil, err
	}
	var out []Occurrence
	for o := range seq {
		out = append(out, o)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// exceptionOccurrence resolves an exception against the series values and
// its embedded message.
func (it *Item) exceptionOccurrence(e *Exception) Occurrence {
	loc := it.TimeZone
	info := &e.Info
	o := Occurrence{
		Start:         MinutesToTime(info.StartDateTime, loc),
		End:           MinutesToTime(info.EndDateTime, loc),
		Subject:       e.Extended.Subject.OrElse(info.Subject.OrElse(it.Subject)),
		Location:      e.Extended.Location.OrElse(info.Location.OrElse(it.Location)),
		BusyStatus:    it.BusyStatus,
		OriginalStart: MinutesToTime(midnight(info.OriginalStartDate)+it.Blob.Pattern.StartTimeOffset, loc),
		IsException:   true,
	}
	if v, ok := info.BusyStatus.Get(); ok {
		o.BusyStatus = BusyStatus(v)
	}
	if i := it.messageIndex(midnight(info.OriginalStartDate)); i >= 0 {
		o.Cancelled = it.Messages[i].Cancelled
	}
	return o
}
