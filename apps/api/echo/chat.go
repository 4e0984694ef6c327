package echoapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core/chat"
	"github.com/trezcool/elimu/core/user"
	"github.com/trezcool/elimu/realtime"
)

type chatApi struct {
	svc      chat.ServiceInterface
	usrSvc   user.ServiceInterface
	inbox    *realtime.Inbox
	auth     *auth
	upgrader websocket.Upgrader
}

func registerChatAPI(
	g *echo.Group,
	authed []echo.MiddlewareFunc,
	svc chat.ServiceInterface,
	usrSvc user.ServiceInterface,
	inbox *realtime.Inbox,
	a *auth,
	frontendBaseURL string,
) {
	api := chatApi{
		svc:    svc,
		usrSvc: usrSvc,
		inbox:  inbox,
		auth:   a,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(frontendBaseURL),
		},
	}

	cg := g.Group("/chat")

	// the socket authenticates itself: browsers cannot send the Authorization header
	cg.GET("/inbox", api.inboxSocket)

	ag := cg.Group("", authed...)
	ag.GET("/conversations", api.queryConversations)
	ag.GET("/conversations/:id/messages", api.queryMessages)
	ag.POST("/start/:user_id", api.start)
}

// Handlers

func (api *chatApi) queryConversations(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	summaries, err := api.svc.Conversations(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "querying conversations")
	}
	return ctx.JSON(http.StatusOK, summaries)
}

func (api *chatApi) queryMessages(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	msgs, err := api.svc.History(ctx.Request().Context(), usr.ID, id)
	if err != nil {
		return errors.Wrap(err, "querying messages")
	}
	resp := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp = append(resp, newMessageResponse(m))
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *chatApi) start(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	targetID, err := pathID(ctx, "user_id")
	if err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	conv, err := api.svc.Start(reqCtx, usr.ID, targetID)
	if err != nil {
		return errors.Wrap(err, "starting conversation")
	}
	other, err := api.usrSvc.GetByID(reqCtx, conv.Other(usr.ID))
	if err != nil {
		return errors.Wrap(err, "finding participant")
	}
	return ctx.JSON(http.StatusOK, ConversationResponse{
		Conversation: conv,
		Other: chat.Participant{
			ID:          other.ID,
			Username:    other.Username,
			DisplayName: other.DisplayName(),
			AvatarURL:   other.AvatarURL(),
		},
	})
}

// inboxSocket upgrades an authenticated request to the inbox connection.
// Refused attempts get a plain HTTP error and never join a group.
func (api *chatApi) inboxSocket(ctx echo.Context) error {
	usr, err := api.auth.socketUser(ctx)
	if err != nil {
		return err
	}
	if err := api.inbox.Admit(usr); err != nil {
		return errUnauthorized
	}

	ws, err := api.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		// the upgrader has already replied
		return nil
	}
	// an accepted send must complete after its connection is gone
	api.inbox.Serve(context.WithoutCancel(ctx.Request().Context()), ws, usr)
	return nil
}

// checkOrigin accepts same-host requests, requests without an Origin header
// and requests from the frontend.
func checkOrigin(frontendBaseURL string) func(r *http.Request) bool {
	var frontendHost string
	if u, err := url.Parse(frontendBaseURL); err == nil {
		frontendHost = u.Host
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host || (frontendHost != "" && u.Host == frontendHost)
	}
}

type (
	ConversationResponse struct {
		chat.Conversation
		Other chat.Participant `json:"other"`
	}

	MessageResponse struct {
		chat.Message
		Time string `json:"time"` // HH:MM, server local time
	}
)

func newMessageResponse(m chat.Message) MessageResponse {
	return MessageResponse{Message: m, Time: m.DisplayTime()}
}
