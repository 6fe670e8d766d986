package recurrence

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Properties are the series-level values every occurrence inherits unless an
// exception overrides them.
type Properties struct {
	Subject       string
	Location      string
	BusyStatus    BusyStatus
	ReminderSet   bool
	ReminderDelta uint32
	AllDay        bool
}

// ExceptionMessage is the embedded message that carries the full properties
// of one modified occurrence. ReplaceTime is the original start of the
// occurrence it replaces.
type ExceptionMessage struct {
	ID          string
	ReplaceTime time.Time
	Start       time.Time
	End         time.Time
	Properties
	Body      string
	Attendees []string
	Cancelled bool
}

func (m *ExceptionMessage) clone() *ExceptionMessage {
	out := *m
	out.Attendees = slices.Clone(m.Attendees)
	return &out
}

// Item is a recurring calendar item: the series properties, its decoded
// recurrence blob and the exception messages embedded in it.
//
// An Item is not safe for concurrent use.
type Item struct {
	ID string
	Properties

	// TimeZone is the recurrence zone. All blob minutes are wall clock in it.
	TimeZone *time.Location
	// Start and End bound the first occurrence of the series.
	Start time.Time
	End   time.Time

	Blob     *Blob
	Messages []*ExceptionMessage

	raw    []byte
	logger *slog.Logger
}

// Option configures an Item.
type Option func(*Item)

// WithLogger sets the logger used for tolerated anomalies.
func WithLogger(logger *slog.Logger) Option {
	return func(it *Item) {
		if logger != nil {
			it.logger = logger
		}
	}
}

func newItem(props Properties, loc *time.Location, opts []Option) *Item {
	it := &Item{
		Properties: props,
		TimeZone:   loc,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(it)
	}
	return it
}

// NewItem makes a recurring item from the first occurrence [start, end) and
// a pattern description. Both times are interpreted in loc.
func NewItem(props Properties, start, end time.Time, loc *time.Location, spec PatternSpec, opts ...Option) (*Item, error) {
	if err := checkZone(loc); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s before start %s", ErrInvalidPattern, end, start)
	}
	p, err := spec.build(start.In(loc), end.In(loc), loc)
	if err != nil {
		return nil, err
	}

	it := newItem(props, loc, opts)
	it.ID = uuid.NewString()
	it.Blob = &Blob{Pattern: *p, HasExtended: true}
	it.Start = start.In(loc)
	it.End = end.In(loc)
	if err := it.reencode(); err != nil {
		return nil, err
	}
	return it, nil
}

// LoadItem decodes raw and attaches the stored exception messages. Exceptions
// in the blob without a message get one rebuilt from the blob data so that
// every exception is addressable.
func LoadItem(id string, props Properties, loc *time.Location, raw []byte, messages []*ExceptionMessage, opts ...Option) (*Item, error) {
	if err := checkZone(loc); err != nil {
		return nil, err
	}
	b, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return FromBlob(id, props, loc, b, raw, messages, opts...), nil
}

// FromBlob builds an item around an already decoded blob. raw must be the
// encoding b was decoded from; it is kept as the item's current encoding.
// loc must be a named zone as returned by LoadLocation.
func FromBlob(id string, props Properties, loc *time.Location, b *Blob, raw []byte, messages []*ExceptionMessage, opts ...Option) *Item {
	it := newItem(props, loc, opts)
	it.ID = id
	it.Blob = b
	it.raw = raw
	p := &b.Pattern
	it.Start = MinutesToTime(p.StartDate+p.StartTimeOffset, loc)
	it.End = MinutesToTime(p.StartDate+p.EndTimeOffset, loc)

	for _, m := range messages {
		it.Messages = append(it.Messages, m.clone())
	}
	for i := range b.Exceptions {
		e := &b.Exceptions[i]
		key := midnight(e.Info.OriginalStartDate)
		if it.messageIndex(key) >= 0 {
			continue
		}
		it.logger.Debug("rebuilding exception message from blob",
			"item", id, "original", MinutesToTime(e.Info.OriginalStartDate, loc))
		it.Messages = append(it.Messages, it.messageFromBlob(e))
	}
	return it
}

// Raw returns the current encoding of the recurrence blob. It is rewritten
// after every mutation.
func (it *Item) Raw() []byte {
	return it.raw
}

// Rule returns the generating rule of the series.
func (it *Item) Rule() (*Rule, error) {
	if it.Blob == nil {
		return nil, ErrNotRecurring
	}
	return it.Blob.Pattern.Rule(it.TimeZone)
}

// Duration is the length of an unmodified occurrence.
func (it *Item) Duration() time.Duration {
	p := &it.Blob.Pattern
	if p.EndTimeOffset < p.StartTimeOffset {
		return 0
	}
	return time.Duration(p.EndTimeOffset-p.StartTimeOffset) * time.Minute
}

func (it *Item) reencode() error {
	raw, err := Encode(it.Blob)
	if err != nil {
		return err
	}
	it.raw = raw
	return nil
}

// messageIndex finds the message whose replace time falls on the day key.
func (it *Item) messageIndex(key uint32) int {
	for i, m := range it.Messages {
		if DateKey(m.ReplaceTime, it.TimeZone) == key {
			return i
		}
	}
	return -1
}

// exceptionIndex finds the blob exception whose original date is key.
func (it *Item) exceptionIndex(key uint32) int {
	for i := range it.Blob.Exceptions {
		if midnight(it.Blob.Exceptions[i].Info.OriginalStartDate) == key {
			return i
		}
	}
	return -1
}

// messageFromBlob reconstructs a message from the overrides recorded in the
// blob, falling back to series values.
func (it *Item) messageFromBlob(e *Exception) *ExceptionMessage {
	loc := it.TimeZone
	info := &e.Info
	m := &ExceptionMessage{
		ID:          uuid.NewString(),
		ReplaceTime: MinutesToTime(info.OriginalStartDate, loc),
		Start:       MinutesToTime(info.StartDateTime, loc),
		End:         MinutesToTime(info.EndDateTime, loc),
		Properties:  it.Properties,
	}
	m.Subject = e.Extended.Subject.OrElse(info.Subject.OrElse(it.Subject))
	m.Location = e.Extended.Location.OrElse(info.Location.OrElse(it.Location))
	if v, ok := info.BusyStatus.Get(); ok {
		m.BusyStatus = BusyStatus(v)
	}
	if v, ok := info.ReminderSet.Get(); ok {
		m.ReminderSet = v != 0
	}
	if v, ok := info.ReminderDelta.Get(); ok {
		m.ReminderDelta = v
	}
	if v, ok := info.SubType.Get(); ok {
		m.AllDay = v != 0
	}
	return m
}
