package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/libmapirecur/recurrence"
	"github.com/cyp0633/libmapirecur/storage"
	"github.com/cyp0633/libmapirecur/storage/memory"
)

func newSeries(t *testing.T) *recurrence.Item {
	t.Helper()
	berlin, err := recurrence.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, berlin)
	it, err := recurrence.NewItem(
		recurrence.Properties{Subject: "Standup", Location: "Room 1", BusyStatus: recurrence.BusyBusy},
		start, start.Add(30*time.Minute), berlin,
		recurrence.PatternSpec{Frequency: recurrence.FrequencyDaily, Weekdays: recurrence.Weekdays, Count: 10},
	)
	require.NoError(t, err)
	return it
}

func TestRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := New(memory.New())
	defer repo.Close()

	it := newSeries(t)
	require.NoError(t, repo.Create(ctx, it))

	loaded, err := repo.Load(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, it.Raw(), loaded.Raw())
	assert.Equal(t, "Europe/Berlin", loaded.TimeZone.String())
	assert.Equal(t, "Standup", loaded.Subject)

	wednesday := time.Date(2024, 1, 3, 0, 0, 0, 0, loaded.TimeZone)
	thursday := wednesday.AddDate(0, 0, 1)
	_, err = repo.Edit(ctx, it.ID, func(it *recurrence.Item) error {
		if _, err := it.CreateException(wednesday, recurrence.Overrides{
			Subject:   mo.Some("Planning"),
			Attendees: mo.Some([]string{"team@example.com"}),
		}); err != nil {
			return err
		}
		return it.DeleteException(thursday)
	})
	require.NoError(t, err)

	occs, err := repo.Occurrences(ctx, it.ID, recurrence.Window{
		Start: wednesday,
		End:   wednesday.AddDate(0, 0, 3),
	})
	require.NoError(t, err)
	require.Len(t, occs, 2)
	assert.Equal(t, "Planning", occs[0].Subject)
	assert.True(t, occs[0].IsException)
	assert.Equal(t, 5, occs[1].Start.Day())

	stored, err := repo.Load(ctx, it.ID)
	require.NoError(t, err)
	m, ok := stored.Exception(wednesday)
	require.True(t, ok)
	assert.Equal(t, []string{"team@example.com"}, m.Attendees)
	assert.Len(t, stored.Blob.Deleted, 1)

	require.NoError(t, repo.Delete(ctx, it.ID))
	_, err = repo.Load(ctx, it.ID)
	assert.True(t, storage.IsType(err, storage.ErrNotFound), "got %v", err)
}

func TestRepository_EditFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	repo := New(store)
	defer repo.Close()

	it := newSeries(t)
	require.NoError(t, repo.Create(ctx, it))
	before, err := store.GetItem(ctx, it.ID)
	require.NoError(t, err)

	// Saturday is not part of a weekday series.
	saturday := time.Date(2024, 1, 6, 0, 0, 0, 0, it.TimeZone)
	_, err = repo.Edit(ctx, it.ID, func(it *recurrence.Item) error {
		_, err := it.CreateException(saturday, recurrence.Overrides{})
		return err
	})
	assert.ErrorIs(t, err, recurrence.ErrNoSuchOccurrence)

	after, err := store.GetItem(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, before.ETag, after.ETag)
}

func TestRepository_WithMockStorage(t *testing.T) {
	ctx := context.Background()
	it := newSeries(t)

	t.Run("not recurring", func(t *testing.T) {
		store := new(storage.MockStorage)
		store.AddItem(storage.NewMockItem("plain", "Lunch"))
		repo := New(store, WithConfig(recurrence.DisabledCacheConfig))
		defer repo.Close()

		_, err := repo.Load(ctx, "plain")
		assert.ErrorIs(t, err, recurrence.ErrNotRecurring)
		store.AssertExpectations(t)
	})

	t.Run("corrupt blob", func(t *testing.T) {
		store := new(storage.MockStorage)
		store.AddItem(storage.NewMockRecurringItem("bad", "Standup", "UTC", []byte{0x04, 0x30, 0x04}))
		repo := New(store)
		defer repo.Close()

		_, err := repo.Occurrences(ctx, "bad", recurrence.Window{})
		assert.ErrorIs(t, err, recurrence.ErrMalformedBlob)
	})

	t.Run("conflict", func(t *testing.T) {
		store := new(storage.MockStorage)
		rec := storage.NewMockRecurringItem(it.ID, "Standup", "Europe/Berlin", it.Raw())
		store.AddItem(rec)
		store.On("UpdateItem", mock.Anything, mock.MatchedBy(func(item *storage.Item) bool {
			return item.ETag == rec.ETag
		})).Return("", &storage.Error{Type: storage.ErrConflict, Message: "modified concurrently"})
		repo := New(store)
		defer repo.Close()

		_, err := repo.Edit(ctx, it.ID, func(it *recurrence.Item) error {
			return it.DeleteException(time.Date(2024, 1, 2, 0, 0, 0, 0, it.TimeZone))
		})
		assert.True(t, storage.IsType(err, storage.ErrConflict), "got %v", err)
		store.AssertExpectations(t)
	})

	t.Run("local zone is refused", func(t *testing.T) {
		store := new(storage.MockStorage)
		repo := New(store)
		defer repo.Close()

		local := *it
		local.TimeZone = time.Local
		err := repo.Create(ctx, &local)
		assert.ErrorIs(t, err, recurrence.ErrInvalidPattern)
		store.AssertNotCalled(t, "CreateItem", mock.Anything, mock.Anything)
	})

	t.Run("create passes the record through", func(t *testing.T) {
		store := new(storage.MockStorage)
		store.On("CreateItem", mock.Anything, mock.MatchedBy(func(item *storage.Item) bool {
			return item.ID == it.ID && item.Recurring && item.TimeZone == "Europe/Berlin" &&
				item.BusyStatus == uint32(recurrence.BusyBusy)
		})).Return(errors.New("backend down"))
		repo := New(store)
		defer repo.Close()

		err := repo.Create(ctx, it)
		assert.ErrorContains(t, err, "backend down")
		store.AssertExpectations(t)
	})
}
