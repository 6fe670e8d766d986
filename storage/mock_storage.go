package storage

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockStorage implements the Storage interface for testing
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) GetItem(ctx context.Context, id string) (*Item, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Item), args.Error(1)
}

func (m *MockStorage) ListItems(ctx context.Context) ([]*Item, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Item), args.Error(1)
}

func (m *MockStorage) CreateItem(ctx context.Context, item *Item) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *MockStorage) UpdateItem(ctx context.Context, item *Item) (string, error) {
	args := m.Called(ctx, item)
	return args.String(0), args.Error(1)
}

func (m *MockStorage) DeleteItem(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// --- Helper methods for creating test data ---

// NewMockItem creates a plain, non-recurring test item
func NewMockItem(id, subject string) *Item {
	return &Item{
		ID:       id,
		Subject:  subject,
		TimeZone: "UTC",
		ETag:     "etag-" + id + "-1",
		Modified: time.Now(),
	}
}

// NewMockRecurringItem creates a recurring test item around an encoded blob
func NewMockRecurringItem(id, subject, tz string, blob []byte) *Item {
	item := NewMockItem(id, subject)
	item.TimeZone = tz
	item.Recurring = true
	item.RecurrenceBlob = blob
	return item
}

// AddItem sets up GetItem to return a copy of item
func (m *MockStorage) AddItem(item *Item) {
	m.On("GetItem", mock.Anything, item.ID).Return(item.Clone(), nil)
}
