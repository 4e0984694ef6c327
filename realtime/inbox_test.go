package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/chat"
	"github.com/trezcool/elimu/core/user"
	logsvc "github.com/trezcool/elimu/services/logger"
	inmemdb "github.com/trezcool/elimu/storage/database/inmem"
	testutil "github.com/trezcool/elimu/tests"
)

type published struct {
	group   string
	payload []byte
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, group string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{group: group, payload: payload})
	return nil
}

type inboxFixture struct {
	inbox           *Inbox
	publisher       *recordingPublisher
	chats           *chat.Service
	awe, hero, nosy user.User
	conv            chat.Conversation
}

func setupInbox(t *testing.T) inboxFixture {
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	chats := chat.NewService(inmemdb.NewChatRepository(db), user.NewService(usrRepo))
	f := inboxFixture{
		publisher: new(recordingPublisher),
		chats:     chats,
		awe:       testutil.CreateUser(t, usrRepo, "", "awe", "awe@test.cd", "", user.RoleStudent, true),
		hero:      testutil.CreateUser(t, usrRepo, "", "hero", "hero@test.cd", "", user.RoleTeacher, true),
		nosy:      testutil.CreateUser(t, usrRepo, "", "nosy", "nosy@test.cd", "", user.RoleStudent, true),
	}
	conv, err := chats.GetOrCreate(context.Background(), f.awe.ID, f.hero.ID)
	require.NoError(t, err)
	f.conv = conv

	logger := logsvc.NewRollbarLogger(zap.NewNop().Sugar(), &core.Config{Env: core.EnvTest, Debug: true})
	f.inbox = NewInbox(chats, NewRegistry(), f.publisher, validator.New(), logger, InboxOptions{SendRate: 10, SendBurst: 10})
	return f
}

func frame(v interface{}) []byte {
	data, _ := json.Marshal(v)
	return data
}

func TestInbox_Admit(t *testing.T) {
	f := setupInbox(t)
	assert.NoError(t, f.inbox.Admit(f.awe))
	assert.Equal(t, ErrUnauthorized, f.inbox.Admit(user.User{}))
	inactive := f.awe
	inactive.IsActive = false
	assert.Equal(t, ErrUnauthorized, f.inbox.Admit(inactive))
}

func TestInbox_Handle_rejections(t *testing.T) {
	f := setupInbox(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		usr        user.User
		data       []byte
		wantReason string
	}{
		{name: "malformed", usr: f.awe, data: []byte("{lol"), wantReason: ReasonMalformed},
		{name: "missing type", usr: f.awe, data: frame(map[string]interface{}{"conversation_id": f.conv.ID, "message": "hi"}), wantReason: ReasonUnknownType},
		{name: "unknown type", usr: f.awe, data: frame(Frame{Type: "typing", ConversationID: f.conv.ID}), wantReason: ReasonUnknownType},
		{name: "no conversation", usr: f.awe, data: frame(Frame{Type: FrameTypeSend, Message: "hi"}), wantReason: ReasonInvalid},
		{name: "blank message", usr: f.awe, data: frame(Frame{Type: FrameTypeSend, ConversationID: f.conv.ID, Message: " \t"}), wantReason: ReasonInvalid},
		{name: "unknown conversation", usr: f.awe, data: frame(Frame{Type: FrameTypeSend, ConversationID: 999, Message: "hi"}), wantReason: ReasonUnauthorized},
		{name: "not a participant", usr: f.nosy, data: frame(Frame{Type: FrameTypeSend, ConversationID: f.conv.ID, Message: "hi"}), wantReason: ReasonUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.inbox.Handle(ctx, tt.usr, tt.data)
			rej, ok := IsRejected(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tt.wantReason, rej.Reason)
		})
	}

	msgs, err := f.chats.History(ctx, f.awe.ID, f.conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs, "rejected frames are never stored")
	assert.Empty(t, f.publisher.msgs)
}

func TestInbox_Handle(t *testing.T) {
	f := setupInbox(t)
	ctx := context.Background()

	evt, err := f.inbox.Handle(ctx, f.awe, frame(Frame{Type: FrameTypeSend, ConversationID: f.conv.ID, Message: "  hi hero "}))
	require.NoError(t, err)
	assert.Equal(t, f.conv.ID, evt.ConversationID)
	assert.Equal(t, "hi hero", evt.Message)
	assert.Equal(t, f.awe.ID, evt.SenderID)
	assert.NotZero(t, evt.MessageID)

	// every participant's group gets the event, sender included
	require.Len(t, f.publisher.msgs, 2)
	groups := []string{f.publisher.msgs[0].group, f.publisher.msgs[1].group}
	assert.ElementsMatch(t, []string{UserGroup(f.awe.ID), UserGroup(f.hero.ID)}, groups)

	var got Event
	require.NoError(t, json.Unmarshal(f.publisher.msgs[0].payload, &got))
	assert.Equal(t, evt, got)

	msgs, err := f.chats.History(ctx, f.hero.ID, f.conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, evt.MessageID, msgs[0].ID)
}

func TestInbox_Handle_publishFailure(t *testing.T) {
	f := setupInbox(t)
	f.publisher.err = errors.New("broker down")

	// the message is stored even when fan-out fails
	evt, err := f.inbox.Handle(context.Background(), f.hero, frame(Frame{Type: FrameTypeSend, ConversationID: f.conv.ID, Message: "hi"}))
	require.NoError(t, err)

	msgs, err := f.chats.History(context.Background(), f.awe.ID, f.conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, evt.MessageID, msgs[0].ID)
}

func TestRejected_Error(t *testing.T) {
	assert.Equal(t, "rejected (rate_limited)", (&Rejected{Reason: ReasonRateLimited}).Error())
	assert.Equal(t, "rejected (invalid): lol", (&Rejected{Reason: ReasonInvalid, Err: errors.New("lol")}).Error())
	_, ok := IsRejected(errors.New("lol"))
	assert.False(t, ok)
	_, ok = IsRejected(errors.Wrap(&Rejected{Reason: ReasonMalformed}, "handling frame"))
	assert.True(t, ok)
}
