// memory based implementation for testing purposes
package memory

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cyp0633/libmapirecur/storage"
)

// Store implements storage.Storage interface using an in-memory map. Items
// are copied on the way in and out so callers never share state with it.
type Store struct {
	mu     sync.RWMutex
	items  map[string]*storage.Item
	logger *slog.Logger
}

// New creates a new in-memory storage
func New(opts ...Option) *Store {
	s := &Store{
		items:  make(map[string]*storage.Item),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
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

func notFound(id string) error {
	return &storage.Error{
		Type:    storage.ErrNotFound,
		Message: "item " + id + " not found",
	}
}

// stamp links the messages to the item and refreshes its version.
func stamp(item *storage.Item) {
	for _, m := range item.Attachments {
		m.ItemID = item.ID
	}
	item.Modified = time.Now()
	item.ETag = storage.ETag(item)
}

func (s *Store) GetItem(_ context.Context, id string) (*storage.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, notFound(id)
	}
	return item.Clone(), nil
}

func (s *Store) ListItems(_ context.Context) ([]*storage.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]*storage.Item, 0, len(s.items))
	for _, item := range s.items {
		c := item.Clone()
		c.Attachments = nil
		items = append(items, c)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *Store) CreateItem(_ context.Context, item *storage.Item) error {
	if item.ID == "" {
		return &storage.Error{Type: storage.ErrInvalidInput, Message: "item id is empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[item.ID]; exists {
		return &storage.Error{
			Type:    storage.ErrAlreadyExists,
			Message: "item " + item.ID + " already exists",
		}
	}

	stamp(item)
	s.items[item.ID] = item.Clone()
	s.logger.Debug("created item", "id", item.ID, "messages", len(item.Attachments))
	return nil
}

func (s *Store) UpdateItem(_ context.Context, item *storage.Item) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.items[item.ID]
	if !exists {
		return "", notFound(item.ID)
	}
	if item.ETag != "" && item.ETag != current.ETag {
		return "", &storage.Error{
			Type:    storage.ErrConflict,
			Message: "item " + item.ID + " was modified concurrently",
		}
	}

	stamp(item)
	s.items[item.ID] = item.Clone()
	s.logger.Debug("updated item", "id", item.ID, "etag", item.ETag)
	return item.ETag, nil
}

func (s *Store) DeleteItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[id]; !exists {
		return notFound(id)
	}
	delete(s.items, id)
	return nil
}
