package notification_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elimu/core/notification"
	inmemdb "github.com/trezcool/elimu/storage/database/inmem"
)

func TestService(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewNotificationRepository(inmemdb.Open())
	svc := notification.NewService(repo, 2)

	now := time.Now().UTC()
	notes := make([]notification.Notification, 0, 3)
	for i := 0; i < 3; i++ {
		notes = append(notes, notification.Notification{RecipientID: 1, Verb: notification.VerbEnrolled, CreatedAt: now})
	}
	require.NoError(t, repo.BulkCreate(ctx, notes))

	list, err := svc.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 2, "capped to the list limit")

	list, err = svc.List(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.Equal(t, notification.ErrNotFound, svc.MarkRead(ctx, 1, 0))
	assert.Equal(t, notification.ErrNotFound, svc.MarkRead(ctx, 2, 1))
	require.NoError(t, svc.MarkRead(ctx, 1, 1))

	cnt, err := svc.UnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, cnt)

	cnt, err = svc.MarkAllRead(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, cnt)

	cnt, err = svc.UnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, cnt)
}
