package echoapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elimu/core/chat"
	"github.com/trezcool/elimu/core/user"
	"github.com/trezcool/elimu/realtime"
)

func (app *testApp) startConversation(t *testing.T, from, to user.User) ConversationResponse {
	rec := app.do(http.MethodPost, "/v1/chat/start/"+itoa(to.ID), app.token(t, from), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp ConversationResponse
	decode(t, rec, &resp)
	return resp
}

func Test_chatApi_start(t *testing.T) {
	app := setup(t)
	awe := app.createUser(t, "awe", user.RoleStudent)
	hero := app.createUser(t, "hero", user.RoleTeacher)

	first := app.startConversation(t, awe, hero)
	assert.NotZero(t, first.ID)
	assert.Equal(t, hero.ID, first.Other.ID)
	assert.Equal(t, "hero", first.Other.DisplayName)
	assert.NotEmpty(t, first.Other.AvatarURL)

	// either side resumes the same conversation
	second := app.startConversation(t, hero, awe)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, awe.ID, second.Other.ID)

	rec := app.do(http.MethodPost, "/v1/chat/start/"+itoa(awe.ID), app.token(t, awe), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	var herr httpErr
	decode(t, rec, &herr)
	assert.Equal(t, chat.ErrSelfConversation.Error(), herr.Error)

	rec = app.do(http.MethodPost, "/v1/chat/start/999", app.token(t, awe), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())

	rec = app.do(http.MethodPost, "/v1/chat/start/"+itoa(hero.ID), "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())
}

func Test_chatApi_conversations(t *testing.T) {
	app := setup(t)
	awe := app.createUser(t, "awe", user.RoleStudent)
	hero := app.createUser(t, "hero", user.RoleTeacher)
	nosy := app.createUser(t, "nosy", user.RoleStudent)
	conv := app.startConversation(t, awe, hero)

	rec := app.do(http.MethodGet, "/v1/chat/conversations/"+itoa(conv.ID)+"/messages", app.token(t, awe), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, "[]", rec.Body.String())

	c, err := app.deps.ChatSvc.Conversation(context.Background(), awe.ID, conv.ID)
	require.NoError(t, err)
	_, err = app.deps.ChatSvc.Append(context.Background(), c, hero.ID, "hello awe")
	require.NoError(t, err)

	rec = app.do(http.MethodGet, "/v1/chat/conversations/"+itoa(conv.ID)+"/messages", app.token(t, awe), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var msgs []MessageResponse
	decode(t, rec, &msgs)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello awe", msgs[0].Text)
	assert.Equal(t, hero.ID, msgs[0].SenderID)
	assert.Len(t, msgs[0].Time, len("15:04"))

	// outsiders cannot tell the conversation exists
	rec = app.do(http.MethodGet, "/v1/chat/conversations/"+itoa(conv.ID)+"/messages", app.token(t, nosy), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	rec = app.do(http.MethodGet, "/v1/chat/conversations/999/messages", app.token(t, awe), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())

	rec = app.do(http.MethodGet, "/v1/chat/conversations", app.token(t, awe), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var summaries []chat.Summary
	decode(t, rec, &summaries)
	require.Len(t, summaries, 1)
	assert.Equal(t, conv.ID, summaries[0].ID)
	assert.Equal(t, hero.ID, summaries[0].Other.ID)
	assert.Equal(t, "hello awe", summaries[0].LastMessage)

	rec = app.do(http.MethodGet, "/v1/chat/conversations", app.token(t, nosy), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, "[]", rec.Body.String())
}

func dialInbox(t *testing.T, srv *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/chat/inbox"
	if token != "" {
		u += "?token=" + token
	}
	ws, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if ws != nil {
		t.Cleanup(func() { _ = ws.Close() })
	}
	return ws, resp, err
}

func readEvent(t *testing.T, ws *websocket.Conn) realtime.Event {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var evt realtime.Event
	require.NoError(t, ws.ReadJSON(&evt))
	return evt
}

func Test_chatApi_inbox(t *testing.T) {
	app := setup(t)
	awe := app.createUser(t, "awe", user.RoleStudent)
	hero := app.createUser(t, "hero", user.RoleTeacher)
	ghost := app.createUser(t, "ghost", user.RoleStudent, false)
	conv := app.startConversation(t, awe, hero)

	srv := httptest.NewServer(app)
	defer srv.Close()

	t.Run("refused handshakes", func(t *testing.T) {
		for name, token := range map[string]string{
			"no token":    "",
			"bad token":   "lol",
			"deactivated": app.token(t, ghost),
		} {
			_, resp, err := dialInbox(t, srv, token)
			if assert.Error(t, err, name) && assert.NotNil(t, resp, name) {
				assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, name)
			}
		}
		assert.Empty(t, app.registry.Members(realtime.UserGroup(ghost.ID)))
	})

	t.Run("message exchange", func(t *testing.T) {
		aweWS, _, err := dialInbox(t, srv, app.token(t, awe))
		require.NoError(t, err)
		heroWS, _, err := dialInbox(t, srv, app.token(t, hero))
		require.NoError(t, err)

		joined := func() bool {
			return len(app.registry.Members(realtime.UserGroup(awe.ID))) == 1 &&
				len(app.registry.Members(realtime.UserGroup(hero.ID))) == 1
		}
		require.Eventually(t, joined, 5*time.Second, 10*time.Millisecond)

		// dropped silently: nothing reaches either side
		require.NoError(t, aweWS.WriteMessage(websocket.TextMessage, []byte("not json")))
		require.NoError(t, aweWS.WriteJSON(map[string]interface{}{"type": "typing", "conversation_id": conv.ID}))

		require.NoError(t, aweWS.WriteJSON(realtime.Frame{
			Type:           realtime.FrameTypeSend,
			ConversationID: conv.ID,
			Message:        "  hi hero ",
		}))

		for _, ws := range []*websocket.Conn{heroWS, aweWS} {
			evt := readEvent(t, ws)
			assert.Equal(t, conv.ID, evt.ConversationID)
			assert.Equal(t, "hi hero", evt.Message)
			assert.Equal(t, awe.ID, evt.SenderID)
			assert.NotZero(t, evt.MessageID)
			assert.Len(t, evt.CreatedAt, len("15:04"))
		}

		rec := app.do(http.MethodGet, "/v1/chat/conversations/"+itoa(conv.ID)+"/messages", app.token(t, hero), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var msgs []MessageResponse
		decode(t, rec, &msgs)
		require.Len(t, msgs, 1)
		assert.Equal(t, "hi hero", msgs[0].Text)

		// leaving drops the connection from its group
		require.NoError(t, aweWS.Close())
		require.Eventually(t, func() bool {
			return len(app.registry.Members(realtime.UserGroup(awe.ID))) == 0
		}, 5*time.Second, 10*time.Millisecond)
	})
}
