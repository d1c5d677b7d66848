package notifications_test

import (
	"context"
	"testing"
	"time"

	"github.com/dnacommunity/backend/internal/model"
	"github.com/dnacommunity/backend/internal/notifications"
	"github.com/dnacommunity/backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Notify(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	clock := testutil.NewClock(time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC))
	m := notifications.NewManager(testutil.Logger(), store, nil)
	m.SetClock(clock.Now)

	system, err := m.Notify(ctx, notifications.NotifyParam{UserID: "u1", Type: model.NotificationWorkshopReminder, Message: "soon"})
	require.NoError(t, err)
	assert.True(t, system.System())
	assert.Equal(t, model.SystemUserName, system.FromUserName)
	assert.False(t, system.Read)

	clock.Advance(time.Minute)
	personal, err := m.Notify(ctx, notifications.NotifyParam{UserID: "u1", Type: model.NotificationAnswer, FromUserID: "u2", FromUserName: "Bob"})
	require.NoError(t, err)
	assert.False(t, personal.System())

	sent := m.NotifyMany(ctx, []string{"u2", "u3"}, notifications.NotifyParam{Type: model.NotificationWorkshopCancelled, Message: "cancelled"})
	assert.Equal(t, 2, sent)

	t.Run("list_newest_first", func(t *testing.T) {
		items, err := m.List(ctx, notifications.ListParams{UserID: "u1"})
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, personal.ID, items[0].ID)
		assert.Equal(t, system.ID, items[1].ID)

		paged, err := m.List(ctx, notifications.ListParams{UserID: "u1", Limit: 1, StartAfter: personal.ID})
		require.NoError(t, err)
		require.Len(t, paged, 1)
		assert.Equal(t, system.ID, paged[0].ID)
	})

	t.Run("mark_read", func(t *testing.T) {
		_, err := m.MarkRead(ctx, system.ID, "u2")
		assert.ErrorIs(t, err, notifications.ErrNotOwner)
		_, err = m.MarkRead(ctx, "missing", "u1")
		assert.ErrorIs(t, err, notifications.ErrNotificationNotFound)

		read, err := m.MarkRead(ctx, system.ID, "u1")
		require.NoError(t, err)
		assert.True(t, read.Read)
		require.NotNil(t, read.ReadAt)

		unread, err := m.UnreadCount(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 1, unread)

		items, err := m.List(ctx, notifications.ListParams{UserID: "u1", UnreadOnly: true})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, personal.ID, items[0].ID)
	})

	t.Run("mark_all_read", func(t *testing.T) {
		updated, err := m.MarkAllRead(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 1, updated)

		updated, err = m.MarkAllRead(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 0, updated)

		unread, err := m.UnreadCount(ctx, "u2")
		require.NoError(t, err)
		assert.Equal(t, 1, unread, "other users are untouched")
	})
}
