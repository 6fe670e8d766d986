// Package storagetest checks that a storage.Storage implementation behaves
// the way the appointment repository expects.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/libmapirecur/storage"
)

// Item returns a recurring item with two embedded messages.
func Item(id string) *storage.Item {
	day := time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)
	return &storage.Item{
		ID:             id,
		Subject:        "Standup",
		Location:       "Room 1",
		BusyStatus:     2,
		ReminderSet:    true,
		ReminderDelta:  15,
		TimeZone:       "Europe/Berlin",
		Recurring:      true,
		RecurrenceBlob: []byte{0x04, 0x30, 0x04, 0x30, 0x0A, 0x20},
		Attachments: []*storage.EmbeddedMessage{
			{
				ID:          id + "-m1",
				ReplaceTime: day,
				Start:       day.Add(2 * time.Hour),
				End:         day.Add(3 * time.Hour),
				Subject:     "Moved",
				Location:    "Room 1",
				BusyStatus:  2,
				Body:        "agenda",
				Attendees:   []string{"a@example.com", "b@example.com"},
			},
			{
				ID:          id + "-m2",
				ReplaceTime: day.AddDate(0, 0, 1),
				Start:       day.AddDate(0, 0, 1),
				End:         day.AddDate(0, 0, 1).Add(time.Hour),
				Subject:     "Standup",
				Cancelled:   true,
			},
		},
	}
}

// Run exercises s, which must start empty.
func Run(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	t.Run("missing item", func(t *testing.T) {
		_, err := s.GetItem(ctx, "nonexistent")
		assert.True(t, storage.IsType(err, storage.ErrNotFound), "got %v", err)
		err = s.DeleteItem(ctx, "nonexistent")
		assert.True(t, storage.IsType(err, storage.ErrNotFound), "got %v", err)
		_, err = s.UpdateItem(ctx, Item("nonexistent"))
		assert.True(t, storage.IsType(err, storage.ErrNotFound), "got %v", err)
	})

	t.Run("create and get", func(t *testing.T) {
		item := Item("item-1")
		require.NoError(t, s.CreateItem(ctx, item))
		assert.NotEmpty(t, item.ETag)
		assert.False(t, item.Modified.IsZero())

		got, err := s.GetItem(ctx, "item-1")
		require.NoError(t, err)
		assert.Equal(t, item.ETag, got.ETag)
		assert.Equal(t, item.RecurrenceBlob, got.RecurrenceBlob)
		assert.Equal(t, item.TimeZone, got.TimeZone)
		assert.True(t, got.ReminderSet)
		require.Len(t, got.Attachments, 2)
		m := got.Attachments[0]
		assert.Equal(t, "item-1-m1", m.ID)
		assert.Equal(t, "item-1", m.ItemID)
		assert.True(t, m.ReplaceTime.Equal(item.Attachments[0].ReplaceTime))
		assert.True(t, m.Start.Equal(item.Attachments[0].Start))
		assert.Equal(t, []string{"a@example.com", "b@example.com"}, m.Attendees)
		assert.Equal(t, "agenda", m.Body)
		assert.True(t, got.Attachments[1].Cancelled)
		assert.Empty(t, got.Attachments[1].Attendees)

		// The returned item is a copy.
		got.Attachments[0].Subject = "changed"
		again, err := s.GetItem(ctx, "item-1")
		require.NoError(t, err)
		assert.Equal(t, "Moved", again.Attachments[0].Subject)

		err = s.CreateItem(ctx, Item("item-1"))
		assert.True(t, storage.IsType(err, storage.ErrAlreadyExists), "got %v", err)
		err = s.CreateItem(ctx, &storage.Item{})
		assert.True(t, storage.IsType(err, storage.ErrInvalidInput), "got %v", err)
	})

	t.Run("update", func(t *testing.T) {
		item, err := s.GetItem(ctx, "item-1")
		require.NoError(t, err)
		old := item.ETag

		item.Subject = "Daily standup"
		item.Attachments = item.Attachments[:1]
		etag, err := s.UpdateItem(ctx, item)
		require.NoError(t, err)
		assert.NotEqual(t, old, etag)

		got, err := s.GetItem(ctx, "item-1")
		require.NoError(t, err)
		assert.Equal(t, "Daily standup", got.Subject)
		assert.Equal(t, etag, got.ETag)
		assert.Len(t, got.Attachments, 1)

		// A writer holding the old version loses.
		stale := got.Clone()
		stale.ETag = old
		_, err = s.UpdateItem(ctx, stale)
		assert.True(t, storage.IsType(err, storage.ErrConflict), "got %v", err)

		// An empty ETag skips the check.
		stale.ETag = ""
		_, err = s.UpdateItem(ctx, stale)
		assert.NoError(t, err)
	})

	t.Run("list and delete", func(t *testing.T) {
		require.NoError(t, s.CreateItem(ctx, Item("item-0")))
		items, err := s.ListItems(ctx)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "item-0", items[0].ID)
		assert.Equal(t, "item-1", items[1].ID)
		for _, it := range items {
			assert.Empty(t, it.Attachments)
		}

		require.NoError(t, s.DeleteItem(ctx, "item-1"))
		_, err = s.GetItem(ctx, "item-1")
		assert.True(t, storage.IsType(err, storage.ErrNotFound), "got %v", err)

		// Recreating the id does not resurrect the old messages.
		fresh := Item("item-1")
		fresh.Attachments = nil
		require.NoError(t, s.CreateItem(ctx, fresh))
		got, err := s.GetItem(ctx, "item-1")
		require.NoError(t, err)
		assert.Empty(t, got.Attachments)
	})
}
