package recurrence

import (
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExceptions_Create(t *testing.T) {
	it := dailyItem(t)
	assert.False(t, it.IsException(utc(2024, 1, 2, 0, 0)))

	m, err := it.CreateException(utc(2024, 1, 2, 17, 0), Overrides{
		Subject:   mo.Some("Planning"),
		Body:      mo.Some("agenda"),
		Attendees: mo.Some([]string{"a@example.com"}),
	})
	require.NoError(t, err)
	assert.Equal(t, utc(2024, 1, 2, 9, 0), m.ReplaceTime)
	assert.Equal(t, utc(2024, 1, 2, 9, 0), m.Start)
	assert.Equal(t, utc(2024, 1, 2, 10, 0), m.End)
	assert.Equal(t, "Planning", m.Subject)
	assert.Equal(t, "Room 1", m.Location)
	assert.NotEmpty(t, m.ID)

	assert.True(t, it.IsException(utc(2024, 1, 2, 23, 59)))
	assert.False(t, it.IsException(utc(2024, 1, 1, 0, 0)))
	assert.False(t, it.IsException(utc(2024, 1, 3, 0, 0)))
	got, ok := it.Exception(utc(2024, 1, 2, 0, 0))
	require.True(t, ok)
	assert.Same(t, m, got)

	decoded, err := Decode(it.Raw())
	require.NoError(t, err)
	require.Len(t, decoded.Exceptions, 1)
	info := decoded.Exceptions[0].Info
	assert.True(t, info.OverrideFlags.Has(OverrideSubject|OverrideExceptionalBody))
	assert.False(t, info.OverrideFlags.Has(OverrideLocation))
	assert.False(t, info.OverrideFlags.Has(OverrideBusyStatus))
	assert.Equal(t, mo.Some("Planning"), info.Subject)
	assert.Equal(t, mo.Some("Planning"), decoded.Exceptions[0].Extended.Subject)
	assert.Equal(t, minutesOfDate(2024, time.January, 2)+540, info.OriginalStartDate)
}

func TestExceptions_CreateRejects(t *testing.T) {
	it := dailyItem(t)
	before := it.Raw()

	_, err := it.CreateException(utc(2024, 1, 9, 0, 0), Overrides{})
	assert.ErrorIs(t, err, ErrNoSuchOccurrence)

	_, err = it.CreateException(utc(2024, 1, 2, 0, 0), Overrides{
		Start: mo.Some(utc(2024, 1, 2, 12, 0)),
		End:   mo.Some(utc(2024, 1, 2, 11, 0)),
	})
	assert.ErrorIs(t, err, ErrInvalidOverride)

	assert.Equal(t, before, it.Raw())
	assert.Empty(t, it.Messages)
	assert.Empty(t, it.Blob.Exceptions)
}

func TestExceptions_Modify(t *testing.T) {
	it := dailyItem(t)
	err := it.ModifyException(utc(2024, 1, 3, 0, 0), Overrides{Subject: mo.Some("x")})
	assert.ErrorIs(t, err, ErrNoSuchException)

	_, err = it.CreateException(utc(2024, 1, 3, 0, 0), Overrides{Subject: mo.Some("Changed")})
	require.NoError(t, err)

	tests := []struct {
		name  string
		ov    Overrides
		flags OverrideFlags
		unset OverrideFlags
	}{
		{
			name:  "busy status and reminder",
			ov:    Overrides{BusyStatus: mo.Some(BusyTentative), ReminderSet: mo.Some(true), ReminderDelta: mo.Some(uint32(30))},
			flags: OverrideSubject | OverrideBusyStatus | OverrideReminder | OverrideReminderDelta,
			unset: OverrideLocation,
		},
		{
			name:  "subject back to the series value",
			ov:    Overrides{Subject: mo.Some("Standup")},
			flags: OverrideBusyStatus,
			unset: OverrideSubject,
		},
		{
			name:  "location and all day",
			ov:    Overrides{Location: mo.Some("Room 9"), AllDay: mo.Some(true)},
			flags: OverrideLocation | OverrideSubType,
			unset: OverrideSubject,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, it.ModifyException(utc(2024, 1, 3, 0, 0), tt.ov))
			decoded, err := Decode(it.Raw())
			require.NoError(t, err)
			require.Len(t, decoded.Exceptions, 1)
			flags := decoded.Exceptions[0].Info.OverrideFlags
			assert.True(t, flags.Has(tt.flags), "flags %#x", flags)
			assert.Zero(t, flags&tt.unset, "flags %#x", flags)
		})
	}

	m, ok := it.Exception(utc(2024, 1, 3, 0, 0))
	require.True(t, ok)
	assert.Equal(t, BusyTentative, m.BusyStatus)
	assert.Equal(t, "Room 9", m.Location)
	assert.True(t, m.AllDay)

	err = it.ModifyException(utc(2024, 1, 3, 0, 0), Overrides{End: mo.Some(utc(2024, 1, 3, 8, 0))})
	assert.ErrorIs(t, err, ErrInvalidOverride)
	m, _ = it.Exception(utc(2024, 1, 3, 0, 0))
	assert.Equal(t, utc(2024, 1, 3, 10, 0), m.End)
}

func TestExceptions_ModifyPreservesUnmodeledFields(t *testing.T) {
	it := dailyItem(t)
	_, err := it.CreateException(utc(2024, 1, 3, 0, 0), Overrides{Subject: mo.Some("Changed")})
	require.NoError(t, err)
	e := &it.Blob.Exceptions[0]
	e.Info.OverrideFlags |= OverrideColor | OverrideAttachment
	e.Info.AppointmentColor = mo.Some(uint32(3))
	e.Info.Attachment = mo.Some(uint32(1))

	require.NoError(t, it.ModifyException(utc(2024, 1, 3, 0, 0), Overrides{Location: mo.Some("Lab")}))
	info := it.Blob.Exceptions[0].Info
	assert.True(t, info.OverrideFlags.Has(OverrideColor|OverrideAttachment|OverrideSubject|OverrideLocation))
	assert.Equal(t, mo.Some(uint32(3)), info.AppointmentColor)
	assert.Equal(t, mo.Some(uint32(1)), info.Attachment)
}

func TestExceptions_Delete(t *testing.T) {
	it := dailyItem(t)
	_, err := it.CreateException(utc(2024, 1, 3, 0, 0), Overrides{Subject: mo.Some("Changed")})
	require.NoError(t, err)

	require.NoError(t, it.DeleteException(utc(2024, 1, 3, 0, 0)))
	assert.False(t, it.IsException(utc(2024, 1, 3, 0, 0)))
	assert.Nil(t, it.Blob.Exceptions)
	assert.Nil(t, it.Messages)
	assert.Equal(t, []uint32{minutesOfDate(2024, time.January, 3)}, it.Blob.Deleted)

	// Deleting twice is harmless; the date stays deleted once.
	require.NoError(t, it.DeleteException(utc(2024, 1, 3, 0, 0)))
	require.NoError(t, it.DeleteException(utc(2024, 1, 1, 0, 0)))
	assert.Equal(t, []uint32{minutesOfDate(2024, time.January, 1), minutesOfDate(2024, time.January, 3)}, it.Blob.Deleted)

	decoded, err := Decode(it.Raw())
	require.NoError(t, err)
	assert.Equal(t, it.Blob.Deleted, decoded.Deleted)

	err = it.DeleteException(utc(2024, 1, 10, 0, 0))
	assert.ErrorIs(t, err, ErrNoSuchOccurrence)

	// Recreating an exception on a deleted date restores the occurrence.
	_, err = it.CreateException(utc(2024, 1, 1, 0, 0), Overrides{Subject: mo.Some("Back")})
	require.NoError(t, err)
	assert.Equal(t, []uint32{minutesOfDate(2024, time.January, 3)}, it.Blob.Deleted)
}

func TestExceptions_TimeZoneKeys(t *testing.T) {
	ny, err := LoadLocation("America/New_York")
	require.NoError(t, err)
	start := time.Date(2024, 3, 4, 23, 30, 0, 0, ny)
	it, err := NewItem(Properties{Subject: "Late call"}, start, start.Add(30*time.Minute), ny,
		PatternSpec{Frequency: FrequencyDaily, Count: 5})
	require.NoError(t, err)

	// The same instant expressed in UTC falls on the next calendar day.
	instant := time.Date(2024, 3, 5, 23, 30, 0, 0, ny).UTC()
	require.Equal(t, 6, instant.Day())

	_, err = it.CreateException(instant, Overrides{Subject: mo.Some("Moved call")})
	require.NoError(t, err)
	assert.True(t, it.IsException(time.Date(2024, 3, 5, 12, 0, 0, 0, ny)))
	assert.False(t, it.IsException(time.Date(2024, 3, 6, 12, 0, 0, 0, ny)))

	occs, err := it.CollectOccurrences(Window{}, 0)
	require.NoError(t, err)
	require.Len(t, occs, 5)
	assert.Equal(t, "Moved call", occs[1].Subject)
}

func TestLoadItem_RebuildsMissingMessages(t *testing.T) {
	it := dailyItem(t)
	_, err := it.CreateException(utc(2024, 1, 2, 0, 0), Overrides{
		Subject:    mo.Some("Offsite"),
		BusyStatus: mo.Some(BusyOutOfOffice),
		AllDay:     mo.Some(true),
	})
	require.NoError(t, err)
	_, err = it.CreateException(utc(2024, 1, 4, 0, 0), Overrides{Body: mo.Some("notes"), Cancelled: mo.Some(true)})
	require.NoError(t, err)

	kept := it.Messages[1]
	loaded, err := LoadItem(it.ID, it.Properties, time.UTC, it.Raw(), []*ExceptionMessage{kept})
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, utc(2024, 1, 1, 9, 0), loaded.Start)
	assert.Equal(t, utc(2024, 1, 1, 10, 0), loaded.End)
	assert.Equal(t, time.Hour, loaded.Duration())

	m, ok := loaded.Exception(utc(2024, 1, 4, 0, 0))
	require.True(t, ok)
	assert.Equal(t, "notes", m.Body)
	assert.True(t, m.Cancelled)
	assert.NotSame(t, kept, m)

	rebuilt, ok := loaded.Exception(utc(2024, 1, 2, 0, 0))
	require.True(t, ok)
	assert.Equal(t, "Offsite", rebuilt.Subject)
	assert.Equal(t, "Room 1", rebuilt.Location)
	assert.Equal(t, BusyOutOfOffice, rebuilt.BusyStatus)
	assert.True(t, rebuilt.AllDay)
	assert.Equal(t, utc(2024, 1, 2, 9, 0), rebuilt.ReplaceTime)

	_, err = LoadItem("x", Properties{}, nil, it.Raw(), nil)
	assert.ErrorIs(t, err, ErrInvalidPattern)
	_, err = LoadItem("x", Properties{}, time.UTC, it.Raw()[:5], nil)
	assert.ErrorIs(t, err, ErrMalformedBlob)
}
