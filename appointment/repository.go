// Package appointment persists recurring items. Every change goes through a
// read, decode, modify, encode, write cycle against a storage.Storage.
package appointment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cyp0633/libmapirecur/recurrence"
	"github.com/cyp0633/libmapirecur/storage"
)

// Repository loads and saves recurrence.Items.
type Repository struct {
	store  storage.Storage
	codec  *recurrence.Codec
	config recurrence.Config
	logger *slog.Logger
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger for the repository and the items it loads.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithConfig replaces the default codec configuration.
func WithConfig(config recurrence.Config) Option {
	return func(r *Repository) {
		r.config = config
	}
}

// New creates a repository over store.
func New(store storage.Storage, opts ...Option) *Repository {
	r := &Repository{
		store:  store,
		config: recurrence.DefaultConfig,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.codec = recurrence.NewCodec(r.config, recurrence.WithCodecLogger(r.logger))
	return r
}

// Close releases the codec's decode cache.
func (r *Repository) Close() {
	r.codec.Close()
}

// Create stores a new recurring item.
func (r *Repository) Create(ctx context.Context, it *recurrence.Item) error {
	rec, err := toRecord(it)
	if err != nil {
		return fmt.Errorf("create item %s: %w", it.ID, err)
	}
	if err := r.store.CreateItem(ctx, rec); err != nil {
		return fmt.Errorf("create item %s: %w", it.ID, err)
	}
	r.logger.Info("created recurring item", "id", it.ID, "pattern", it.Blob.Pattern.Type)
	return nil
}

// Load reads and decodes the item id. Non-recurring items fail with
// recurrence.ErrNotRecurring.
func (r *Repository) Load(ctx context.Context, id string) (*recurrence.Item, error) {
	it, _, err := r.load(ctx, id)
	return it, err
}

func (r *Repository) load(ctx context.Context, id string) (*recurrence.Item, string, error) {
	rec, err := r.store.GetItem(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("load item %s: %w", id, err)
	}
	if !rec.Recurring || len(rec.RecurrenceBlob) == 0 {
		return nil, "", fmt.Errorf("load item %s: %w", id, recurrence.ErrNotRecurring)
	}
	messages := make([]*recurrence.ExceptionMessage, 0, len(rec.Attachments))
	for _, m := range rec.Attachments {
		messages = append(messages, fromMessage(m))
	}
	it, err := r.codec.Load(rec.ID, properties(rec), rec.TimeZone, rec.RecurrenceBlob, messages)
	if err != nil {
		return nil, "", fmt.Errorf("load item %s: %w", id, err)
	}
	return it, rec.ETag, nil
}

// Edit loads the item, applies fn and writes the result back. Nothing is
// written when fn fails. A concurrent change between the read and the write
// surfaces as a storage.ErrConflict error.
func (r *Repository) Edit(ctx context.Context, id string, fn func(*recurrence.Item) error) (*recurrence.Item, error) {
	it, etag, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(it); err != nil {
		return nil, fmt.Errorf("edit item %s: %w", id, err)
	}
	rec, err := toRecord(it)
	if err != nil {
		return nil, fmt.Errorf("save item %s: %w", id, err)
	}
	rec.ETag = etag
	if _, err := r.store.UpdateItem(ctx, rec); err != nil {
		return nil, fmt.Errorf("save item %s: %w", id, err)
	}
	r.logger.Debug("saved recurring item", "id", id, "exceptions", len(it.Blob.Exceptions), "deleted", len(it.Blob.Deleted))
	return it, nil
}

// Delete removes the whole series, including its exception messages.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := r.store.DeleteItem(ctx, id); err != nil {
		return fmt.Errorf("delete item %s: %w", id, err)
	}
	r.logger.Info("deleted recurring item", "id", id)
	return nil
}

// Occurrences loads the item and collects its occurrences in w, capped by
// the configured maximum.
func (r *Repository) Occurrences(ctx context.Context, id string, w recurrence.Window) ([]recurrence.Occurrence, error) {
	it, err := r.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.codec.Expand(it, w)
}

func properties(rec *storage.Item) recurrence.Properties {
	return recurrence.Properties{
		Subject:       rec.Subject,
		Location:      rec.Location,
		BusyStatus:    recurrence.BusyStatus(rec.BusyStatus),
		ReminderSet:   rec.ReminderSet,
		ReminderDelta: rec.ReminderDelta,
		AllDay:        rec.AllDay,
	}
}

// toRecord flattens it for storage. The zone is stored by name, so
// time.Local is refused.
func toRecord(it *recurrence.Item) (*storage.Item, error) {
	if it.TimeZone == time.Local {
		return nil, fmt.Errorf("%w: recurrence time zone must be named, not Local", recurrence.ErrInvalidPattern)
	}
	tz := "UTC"
	if it.TimeZone != nil {
		tz = it.TimeZone.String()
	}
	rec := &storage.Item{
		ID:             it.ID,
		Subject:        it.Subject,
		Location:       it.Location,
		BusyStatus:     uint32(it.BusyStatus),
		ReminderSet:    it.ReminderSet,
		ReminderDelta:  it.ReminderDelta,
		AllDay:         it.AllDay,
		TimeZone:       tz,
		Recurring:      true,
		RecurrenceBlob: it.Raw(),
	}
	for _, m := range it.Messages {
		rec.Attachments = append(rec.Attachments, toMessage(it.ID, m))
	}
	return rec, nil
}

func toMessage(itemID string, m *recurrence.ExceptionMessage) *storage.EmbeddedMessage {
	return &storage.EmbeddedMessage{
		ID:            m.ID,
		ItemID:        itemID,
		ReplaceTime:   m.ReplaceTime.UTC(),
		Start:         m.Start.UTC(),
		End:           m.End.UTC(),
		Subject:       m.Subject,
		Location:      m.Location,
		BusyStatus:    uint32(m.BusyStatus),
		ReminderSet:   m.ReminderSet,
		ReminderDelta: m.ReminderDelta,
		AllDay:        m.AllDay,
		Body:          m.Body,
		Attendees:     m.Attendees,
		Cancelled:     m.Cancelled,
	}
}

func fromMessage(m *storage.EmbeddedMessage) *recurrence.ExceptionMessage {
	return &recurrence.ExceptionMessage{
		ID:          m.ID,
		ReplaceTime: m.ReplaceTime,
		Start:       m.Start,
		End:         m.End,
		Properties: recurrence.Properties{
			Subject:       m.Subject,
			Location:      m.Location,
			BusyStatus:    recurrence.BusyStatus(m.BusyStatus),
			ReminderSet:   m.ReminderSet,
			ReminderDelta: m.ReminderDelta,
			AllDay:        m.AllDay,
		},
		Body:      m.Body,
		Attendees: m.Attendees,
		Cancelled: m.Cancelled,
	}
}
