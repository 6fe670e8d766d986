package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/cyp0633/libmapirecur/storage"
)

// Store implements storage.Storage on a local SQLite database.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Option represents a configuration option for the Store
type Option func(*Store)

// WithLogger sets the logger for the store
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open opens (or creates) a SQLite database at dbPath, enables foreign keys
// and runs any pending schema migrations. Use ":memory:" for a throwaway
// database.
func Open(dbPath string, opts ...Option) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// An in-memory database lives and dies with its connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *Store) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tableCount > 0 {
		if err := s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
		s.logger.Debug("applied migration", "version", m.version)
	}
	return nil
}

type itemRow struct {
	ID             string `db:"id"`
	Subject        string `db:"subject"`
	Location       string `db:"location"`
	BusyStatus     uint32 `db:"busy_status"`
	ReminderSet    bool   `db:"reminder_set"`
	ReminderDelta  uint32 `db:"reminder_delta"`
	AllDay         bool   `db:"all_day"`
	TimeZone       string `db:"time_zone"`
	Recurring      bool   `db:"recurring"`
	RecurrenceBlob []byte `db:"recurrence_blob"`
	ETag           string `db:"etag"`
	ModifiedNS     int64  `db:"modified_ns"`
}

func (r *itemRow) item() *storage.Item {
	return &storage.Item{
		ID:             r.ID,
		Subject:        r.Subject,
		Location:       r.Location,
		BusyStatus:     r.BusyStatus,
		ReminderSet:    r.ReminderSet,
		ReminderDelta:  r.ReminderDelta,
		AllDay:         r.AllDay,
		TimeZone:       r.TimeZone,
		Recurring:      r.Recurring,
		RecurrenceBlob: r.RecurrenceBlob,
		ETag:           r.ETag,
		Modified:       time.Unix(0, r.ModifiedNS),
	}
}

type messageRow struct {
	ID            string `db:"id"`
	ItemID        string `db:"item_id"`
	ReplaceTimeNS int64  `db:"replace_time_ns"`
	StartNS       int64  `db:"start_ns"`
	EndNS         int64  `db:"end_ns"`
	Subject       string `db:"subject"`
	Location      string `db:"location"`
	BusyStatus    uint32 `db:"busy_status"`
	ReminderSet   bool   `db:"reminder_set"`
	ReminderDelta uint32 `db:"reminder_delta"`
	AllDay        bool   `db:"all_day"`
	Body          string `db:"body"`
	Attendees     string `db:"attendees"`
	Cancelled     bool   `db:"cancelled"`
}

func (r *messageRow) message() (*storage.EmbeddedMessage, error) {
	m := &storage.EmbeddedMessage{
		ID:            r.ID,
		ItemID:        r.ItemID,
		ReplaceTime:   time.Unix(0, r.ReplaceTimeNS).UTC(),
		Start:         time.Unix(0, r.StartNS).UTC(),
		End:           time.Unix(0, r.EndNS).UTC(),
		Subject:       r.Subject,
		Location:      r.Location,
		BusyStatus:    r.BusyStatus,
		ReminderSet:   r.ReminderSet,
		ReminderDelta: r.ReminderDelta,
		AllDay:        r.AllDay,
		Body:          r.Body,
		Cancelled:     r.Cancelled,
	}
	if err := json.Unmarshal([]byte(r.Attendees), &m.Attendees); err != nil {
		return nil, fmt.Errorf("unmarshaling attendees of message %s: %w", r.ID, err)
	}
	return m, nil
}

func unavailable(msg string, err error) error {
	return &storage.Error{Type: storage.ErrUnavailable, Message: msg, Err: err}
}

func (s *Store) GetItem(ctx context.Context, id string) (*storage.Item, error) {
	var row itemRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM items WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &storage.Error{Type: storage.ErrNotFound, Message: "item " + id + " not found"}
	}
	if err != nil {
		return nil, unavailable("reading item "+id, err)
	}
	item := row.item()

	var rows []messageRow
	err = s.db.SelectContext(ctx, &rows,
		"SELECT * FROM embedded_messages WHERE item_id = ? ORDER BY replace_time_ns", id)
	if err != nil {
		return nil, unavailable("reading messages of item "+id, err)
	}
	for i := range rows {
		m, err := rows[i].message()
		if err != nil {
			return nil, unavailable("decoding message", err)
		}
		item.Attachments = append(item.Attachments, m)
	}
	return item, nil
}

func (s *Store) ListItems(ctx context.Context) ([]*storage.Item, error) {
	var rows []itemRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM items ORDER BY id"); err != nil {
		return nil, unavailable("listing items", err)
	}
	items := make([]*storage.Item, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].item())
	}
	return items, nil
}

func (s *Store) CreateItem(ctx context.Context, item *storage.Item) error {
	if item.ID == "" {
		return &storage.Error{Type: storage.ErrInvalidInput, Message: "item id is empty"}
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return unavailable("beginning transaction", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.GetContext(ctx, &count, "SELECT COUNT(*) FROM items WHERE id = ?", item.ID); err != nil {
		return unavailable("checking item "+item.ID, err)
	}
	if count > 0 {
		return &storage.Error{Type: storage.ErrAlreadyExists, Message: "item " + item.ID + " already exists"}
	}

	item.Modified = time.Now()
	item.ETag = storage.ETag(item)
	if err := insertItem(ctx, tx, item); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return unavailable("committing item "+item.ID, err)
	}
	s.logger.Debug("created item", "id", item.ID, "messages", len(item.Attachments))
	return nil
}

func (s *Store) UpdateItem(ctx context.Context, item *storage.Item) (string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", unavailable("beginning transaction", err)
	}
	defer tx.Rollback()

	var etag string
	err = tx.GetContext(ctx, &etag, "SELECT etag FROM items WHERE id = ?", item.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", &storage.Error{Type: storage.ErrNotFound, Message: "item " + item.ID + " not found"}
	}
	if err != nil {
		return "", unavailable("reading item "+item.ID, err)
	}
	if item.ETag != "" && item.ETag != etag {
		return "", &storage.Error{Type: storage.ErrConflict, Message: "item " + item.ID + " was modified concurrently"}
	}

	if err := deleteItem(ctx, tx, item.ID); err != nil {
		return "", err
	}
	item.Modified = time.Now()
	item.ETag = storage.ETag(item)
	if err := insertItem(ctx, tx, item); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", unavailable("committing item "+item.ID, err)
	}
	s.logger.Debug("updated item", "id", item.ID, "etag", item.ETag)
	return item.ETag, nil
}

func (s *Store) DeleteItem(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return unavailable("beginning transaction", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.GetContext(ctx, &count, "SELECT COUNT(*) FROM items WHERE id = ?", id); err != nil {
		return unavailable("checking item "+id, err)
	}
	if count == 0 {
		return &storage.Error{Type: storage.ErrNotFound, Message: "item " + id + " not found"}
	}
	if err := deleteItem(ctx, tx, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return unavailable("committing delete of item "+id, err)
	}
	return nil
}

// deleteItem removes an item row and its messages. The foreign key cascade
// only applies on connections with foreign keys enabled, so messages are
// deleted explicitly.
func deleteItem(ctx context.Context, tx *sqlx.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM embedded_messages WHERE item_id = ?", id); err != nil {
		return unavailable("deleting messages of item "+id, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM items WHERE id = ?", id); err != nil {
		return unavailable("deleting item "+id, err)
	}
	return nil
}

func insertItem(ctx context.Context, tx *sqlx.Tx, item *storage.Item) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO items (
			id, subject, location, busy_status,
			reminder_set, reminder_delta, all_day, time_zone,
			recurring, recurrence_blob, etag, modified_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Subject, item.Location, item.BusyStatus,
		item.ReminderSet, item.ReminderDelta, item.AllDay, item.TimeZone,
		item.Recurring, item.RecurrenceBlob, item.ETag, item.Modified.UnixNano(),
	)
	if err != nil {
		return unavailable("inserting item "+item.ID, err)
	}
	if len(item.Attachments) == 0 {
		return nil
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO embedded_messages (
			id, item_id, replace_time_ns, start_ns, end_ns,
			subject, location, busy_status, reminder_set, reminder_delta,
			all_day, body, attendees, cancelled
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return unavailable("preparing message insert", err)
	}
	defer stmt.Close()

	for _, m := range item.Attachments {
		attendees, err := json.Marshal(m.Attendees)
		if err != nil {
			return &storage.Error{Type: storage.ErrInvalidInput, Message: "marshaling attendees of message " + m.ID, Err: err}
		}
		m.ItemID = item.ID
		_, err = stmt.ExecContext(ctx,
			m.ID, item.ID, m.ReplaceTime.UnixNano(), m.Start.UnixNano(), m.End.UnixNano(),
			m.Subject, m.Location, m.BusyStatus, m.ReminderSet, m.ReminderDelta,
			m.AllDay, m.Body, string(attendees), m.Cancelled,
		)
		if err != nil {
			return unavailable("inserting message "+m.ID, err)
		}
	}
	return nil
}
