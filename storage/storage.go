package storage

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Storage connects a backend (e.g. database) with the appointment repository.
// Please use the error types provided.
type Storage interface {
	// GetItem retrieves an item and its embedded messages.
	GetItem(ctx context.Context, id string) (*Item, error)
	// ListItems retrieves all items, without their embedded messages.
	ListItems(ctx context.Context) ([]*Item, error)
	// CreateItem stores a new item. Implementations set ETag and Modified.
	CreateItem(ctx context.Context, item *Item) error
	// UpdateItem replaces an item and all of its embedded messages. When
	// item.ETag is not empty it must match the stored one, otherwise the
	// update fails with ErrConflict. Returns the new ETag.
	UpdateItem(ctx context.Context, item *Item) (etag string, err error)
	// DeleteItem removes an item together with its embedded messages.
	DeleteItem(ctx context.Context, id string) error
}

// Item is the stored form of a calendar item. Recurring items carry the
// encoded recurrence blob; their modified occurrences are stored as
// embedded messages.
type Item struct {
	ID            string
	Subject       string
	Location      string
	BusyStatus    uint32
	ReminderSet   bool
	ReminderDelta uint32
	AllDay        bool
	// TimeZone is the IANA name of the recurrence zone.
	TimeZone string

	Recurring      bool
	RecurrenceBlob []byte

	// ETag changes whenever the item or its messages change.
	// Generating it is the backend's responsibility.
	ETag     string
	Modified time.Time

	Attachments []*EmbeddedMessage
}

// EmbeddedMessage is an exception message attached to a recurring item.
type EmbeddedMessage struct {
	ID     string
	ItemID string
	// ReplaceTime is the original start of the occurrence the message replaces.
	ReplaceTime   time.Time
	Start         time.Time
	End           time.Time
	Subject       string
	Location      string
	BusyStatus    uint32
	ReminderSet   bool
	ReminderDelta uint32
	AllDay        bool
	Body          string
	Attendees     []string
	Cancelled     bool
}

// Clone returns a deep copy of the item.
func (i *Item) Clone() *Item {
	out := *i
	out.RecurrenceBlob = slices.Clone(i.RecurrenceBlob)
	out.Attachments = nil
	for _, m := range i.Attachments {
		c := *m
		c.Attendees = slices.Clone(m.Attendees)
		out.Attachments = append(out.Attachments, &c)
	}
	return &out
}

// ErrorType classifies storage errors
type ErrorType string

const (
	ErrNotFound      ErrorType = "not_found"
	ErrAlreadyExists ErrorType = "already_exists"
	ErrInvalidInput  ErrorType = "invalid_input"
	ErrConflict      ErrorType = "conflict"
	ErrUnavailable   ErrorType = "unavailable"
)

// Error represents a storage-related error
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsType reports whether err is a storage error of type t.
func IsType(err error, t ErrorType) bool {
	var se *Error
	return errors.As(err, &se) && se.Type == t
}

// ETag derives an entity tag from the item contents.
func ETag(item *Item) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%d\x00%t\x00%d\x00%t\x00%s\x00%t\x00",
		item.ID, item.Subject, item.Location, item.BusyStatus, item.ReminderSet,
		item.ReminderDelta, item.AllDay, item.TimeZone, item.Recurring)
	h.Write(item.RecurrenceBlob)
	for _, m := range item.Attachments {
		fmt.Fprintf(h, "\x00%s\x00%d\x00%d\x00%d\x00%s\x00%s\x00%d\x00%t\x00%d\x00%t\x00%s\x00%q\x00%t",
			m.ID, m.ReplaceTime.UnixNano(), m.Start.UnixNano(), m.End.UnixNano(), m.Subject, m.Location,
			m.BusyStatus, m.ReminderSet, m.ReminderDelta, m.AllDay, m.Body, m.Attendees, m.Cancelled)
	}
	return `"` + hex.EncodeToString(h.Sum(nil)) + `"`
}
