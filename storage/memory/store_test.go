package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/libmapirecur/storage"
	"github.com/cyp0633/libmapirecur/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, New())
}

func TestStore_CreateKeepsNoReference(t *testing.T) {
	store := New()
	ctx := context.Background()

	item := storagetest.Item("item-1")
	require.NoError(t, store.CreateItem(ctx, item))
	item.RecurrenceBlob[0] = 0xFF
	item.Attachments[0].Attendees[0] = "mallory@example.com"

	got, err := store.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, byte(0x04), got.RecurrenceBlob[0])
	assert.Equal(t, "a@example.com", got.Attachments[0].Attendees[0])
	assert.Len(t, store.items, 1)
}

var _ storage.Storage = (*Store)(nil)
