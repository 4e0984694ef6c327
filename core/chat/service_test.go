package chat_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elimu/core/chat"
	"github.com/trezcool/elimu/core/user"
	inmemdb "github.com/trezcool/elimu/storage/database/inmem"
	testutil "github.com/trezcool/elimu/tests"
)

type fixture struct {
	svc             *chat.Service
	awe, hero, nosy user.User
}

func setup(t *testing.T) fixture {
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	return fixture{
		svc:  chat.NewService(inmemdb.NewChatRepository(db), user.NewService(usrRepo)),
		awe:  testutil.CreateUser(t, usrRepo, "Awe Some", "awe", "awe@test.cd", "", user.RoleStudent, true),
		hero: testutil.CreateUser(t, usrRepo, "", "hero", "hero@test.cd", "", user.RoleTeacher, true),
		nosy: testutil.CreateUser(t, usrRepo, "", "nosy", "nosy@test.cd", "", user.RoleStudent, true),
	}
}

func TestService_GetOrCreate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.GetOrCreate(ctx, f.awe.ID, f.awe.ID)
	assert.Equal(t, chat.ErrSelfConversation, err)

	conv, err := f.svc.GetOrCreate(ctx, f.hero.ID, f.awe.ID)
	require.NoError(t, err)
	assert.Equal(t, f.awe.ID, conv.UserLow)
	assert.Equal(t, f.hero.ID, conv.UserHigh)
	assert.Equal(t, f.awe.ID, conv.Other(f.hero.ID))

	// concurrent callers resolve the same conversation whatever the argument order
	var wg sync.WaitGroup
	ids := make([]int, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := f.awe.ID, f.hero.ID
			if i%2 == 0 {
				a, b = b, a
			}
			c, err := f.svc.GetOrCreate(ctx, a, b)
			assert.NoError(t, err)
			ids[i] = c.ID
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, conv.ID, id)
	}
}

func TestService_Start(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, f.awe.ID, f.awe.ID)
	assert.Equal(t, chat.ErrSelfConversation, err)
	_, err = f.svc.Start(ctx, f.awe.ID, 999)
	assert.Equal(t, user.ErrNotFound, err)

	conv, err := f.svc.Start(ctx, f.awe.ID, f.hero.ID)
	require.NoError(t, err)
	again, err := f.svc.Start(ctx, f.hero.ID, f.awe.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)
}

func TestService_Append(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	conv, err := f.svc.GetOrCreate(ctx, f.awe.ID, f.hero.ID)
	require.NoError(t, err)

	_, err = f.svc.Append(ctx, conv, f.awe.ID, "  \n ")
	assert.Equal(t, chat.ErrEmptyMessage, err)
	_, err = f.svc.Append(ctx, conv, f.nosy.ID, "lol")
	assert.Equal(t, chat.ErrNotParticipant, err)

	msg, err := f.svc.Append(ctx, conv, f.awe.ID, " hi ")
	require.NoError(t, err)
	assert.Equal(t, "hi", msg.Text)
	assert.Equal(t, f.awe.ID, msg.SenderID)
}

func TestService_History(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	conv, err := f.svc.GetOrCreate(ctx, f.awe.ID, f.hero.ID)
	require.NoError(t, err)

	msgs, err := f.svc.History(ctx, f.awe.ID, conv.ID)
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)

	for _, text := range []string{"one", "two", "three"} {
		_, err = f.svc.Append(ctx, conv, f.hero.ID, text)
		require.NoError(t, err)
	}
	msgs, err = f.svc.History(ctx, f.awe.ID, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Text)
	assert.Equal(t, "three", msgs[2].Text)

	_, err = f.svc.History(ctx, f.nosy.ID, conv.ID)
	assert.Equal(t, chat.ErrNotFound, err)
	_, err = f.svc.History(ctx, f.awe.ID, 0)
	assert.Equal(t, chat.ErrNotFound, err)
}

func TestService_Conversations(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	origNow := chat.NowFunc
	defer func() { chat.NowFunc = origNow }()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	chat.NowFunc = func() time.Time { return now }

	withHero, err := f.svc.GetOrCreate(ctx, f.awe.ID, f.hero.ID)
	require.NoError(t, err)
	now = now.Add(time.Minute)
	withNosy, err := f.svc.GetOrCreate(ctx, f.awe.ID, f.nosy.ID)
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = f.svc.Append(ctx, withHero, f.hero.ID, strings.Repeat("é", 100))
	require.NoError(t, err)

	summaries, err := f.svc.Conversations(ctx, f.awe.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, withHero.ID, summaries[0].ID, "most recent activity first")
	assert.Equal(t, f.hero.ID, summaries[0].Other.ID)
	assert.Equal(t, "hero", summaries[0].Other.DisplayName)
	assert.Equal(t, strings.Repeat("é", 80)+"…", summaries[0].LastMessage)
	assert.Equal(t, now.In(time.Local).Format("15:04"), summaries[0].LastMessageTime)

	assert.Equal(t, withNosy.ID, summaries[1].ID)
	assert.Empty(t, summaries[1].LastMessage)
	assert.Empty(t, summaries[1].LastMessageTime)

	summaries, err = f.svc.Conversations(ctx, f.hero.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "Awe Some", summaries[0].Other.DisplayName)
}
