package realtime

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/chat"
	"github.com/trezcool/elimu/core/user"
)

const FrameTypeSend = "send"

// Rejection reasons
const (
	ReasonMalformed    = "malformed"
	ReasonUnknownType  = "unknown_type"
	ReasonInvalid      = "invalid"
	ReasonRateLimited  = "rate_limited"
	ReasonUnauthorized = "unauthorized"
)

var ErrUnauthorized = errors.New("authentication required")

type (
	// ChatService is the part of the chat service the inbox drives.
	ChatService interface {
		Conversation(ctx context.Context, userID, conversationID int) (chat.Conversation, error)
		Append(ctx context.Context, conv chat.Conversation, senderID int, text string) (chat.Message, error)
	}

	// Frame is a client request.
	Frame struct {
		Type           string `json:"type"`
		ConversationID int    `json:"conversation_id" validate:"required,gt=0"`
		Message        string `json:"message" validate:"required"`
	}

	// Event is what every participant receives for an accepted message.
	Event struct {
		ConversationID int    `json:"conversation_id"`
		MessageID      int    `json:"message_id"`
		Message        string `json:"message"`
		SenderID       int    `json:"sender_id"`
		CreatedAt      string `json:"created_at"` // HH:MM, server local time
	}

	// Rejected is the outcome of a frame that is dropped without telling the client.
	Rejected struct {
		Reason string
		Err    error
	}

	InboxOptions struct {
		ConnOptions
		SendRate  float64 // accepted frames per second, per connection
		SendBurst int
	}

	// Inbox serves the one live connection a client keeps per session.
	// Every connection of a user joins the user's group; accepted messages are
	// published to the groups of all the conversation's participants, sender included.
	Inbox struct {
		chats     ChatService
		registry  *Registry
		publisher Publisher
		validate  *validator.Validate
		logger    core.Logger
		opts      InboxOptions
	}
)

func (r *Rejected) Error() string {
	if r.Err != nil {
		return "rejected (" + r.Reason + "): " + r.Err.Error()
	}
	return "rejected (" + r.Reason + ")"
}

// IsRejected reports whether err is a *Rejected and returns it.
func IsRejected(err error) (*Rejected, bool) {
	var rej *Rejected
	ok := errors.As(err, &rej)
	return rej, ok
}

func NewEvent(msg chat.Message) Event {
	return Event{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		Message:        msg.Text,
		SenderID:       msg.SenderID,
		CreatedAt:      msg.DisplayTime(),
	}
}

// NewInbox builds an inbox. registry holds this process's connections;
// publisher is the registry itself or a broker relaying to every process.
func NewInbox(
	chats ChatService,
	registry *Registry,
	publisher Publisher,
	validate *validator.Validate,
	logger core.Logger,
	opts InboxOptions,
) *Inbox {
	if publisher == nil {
		publisher = registry
	}
	return &Inbox{
		chats:     chats,
		registry:  registry,
		publisher: publisher,
		validate:  validate,
		logger:    logger,
		opts:      opts,
	}
}

// Admit checks a connection attempt before the upgrade. Refused attempts never join a group.
func (in *Inbox) Admit(usr user.User) error {
	if usr.IsAnonymous() || !usr.IsActive {
		return ErrUnauthorized
	}
	return nil
}

// Serve runs an admitted connection until the client leaves or the transport fails.
// ctx must outlive the connection: a send accepted before a disconnect still completes under it.
func (in *Inbox) Serve(ctx context.Context, ws *websocket.Conn, usr user.User) {
	conn := NewConn(ws, usr.ID, in.opts.ConnOptions)
	group := UserGroup(usr.ID)
	in.registry.Join(group, conn)
	defer func() {
		in.registry.Leave(group, conn)
		conn.Close()
	}()

	conn.prepareRead()
	limiter := rate.NewLimiter(rate.Limit(in.opts.SendRate), in.opts.SendBurst)
	for {
		data, err := conn.readFrame()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				in.logger.Debug("inbox connection lost", map[string]interface{}{"user_id": usr.ID, "error": err.Error()})
			}
			return
		}
		if !limiter.Allow() {
			in.logRejected(usr, &Rejected{Reason: ReasonRateLimited})
			continue
		}
		// one frame at a time: a send is persisted and fanned out before the next frame is read
		if _, err := in.Handle(ctx, usr, data); err != nil {
			if rej, ok := IsRejected(err); ok {
				in.logRejected(usr, rej)
			} else {
				in.logger.Error("chat send failed", err, usr)
			}
		}
	}
}

// Handle processes one client frame. It returns the fanned out event, a *Rejected for
// frames that are dropped silently, or the error of a failed write.
func (in *Inbox) Handle(ctx context.Context, usr user.User, data []byte) (Event, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Event{}, &Rejected{Reason: ReasonMalformed, Err: err}
	}
	if frame.Type != FrameTypeSend {
		return Event{}, &Rejected{Reason: ReasonUnknownType}
	}
	frame.Message = strings.TrimSpace(frame.Message)
	if err := in.validate.Struct(frame); err != nil {
		return Event{}, &Rejected{Reason: ReasonInvalid, Err: err}
	}

	// missing conversations and conversations of others look the same
	conv, err := in.chats.Conversation(ctx, usr.ID, frame.ConversationID)
	if err != nil {
		if errors.Cause(err) == chat.ErrNotFound {
			return Event{}, &Rejected{Reason: ReasonUnauthorized, Err: err}
		}
		return Event{}, errors.Wrap(err, "resolving conversation")
	}

	msg, err := in.chats.Append(ctx, conv, usr.ID, frame.Message)
	if err != nil {
		switch errors.Cause(err) {
		case chat.ErrEmptyMessage:
			return Event{}, &Rejected{Reason: ReasonInvalid, Err: err}
		case chat.ErrNotParticipant, chat.ErrNotFound:
			return Event{}, &Rejected{Reason: ReasonUnauthorized, Err: err}
		}
		return Event{}, errors.Wrap(err, "appending message")
	}

	evt := NewEvent(msg)
	payload, err := json.Marshal(evt)
	if err != nil {
		return Event{}, errors.Wrap(err, "encoding event")
	}
	for _, id := range conv.Participants() {
		if err := in.publisher.Publish(ctx, UserGroup(id), payload); err != nil {
			in.logger.Error("publishing chat event", errors.Wrapf(err, "user %d", id))
		}
	}
	return evt, nil
}

// Shutdown closes every connection of this process.
func (in *Inbox) Shutdown() {
	in.registry.CloseAll()
}

func (in *Inbox) Stats() Stats {
	return in.registry.Stats()
}

func (in *Inbox) logRejected(usr user.User, rej *Rejected) {
	fields := map[string]interface{}{"user_id": usr.ID, "reason": rej.Reason}
	if rej.Err != nil {
		fields["error"] = rej.Err.Error()
	}
	in.logger.Debug("chat frame rejected", fields)
}
