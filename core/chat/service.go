package chat

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/user"
)

const previewLen = 80

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound         = errors.New("conversation not found")
	ErrSelfConversation = errors.New("cannot start a conversation with yourself")
	ErrNotParticipant   = errors.New("sender is not a participant of the conversation")
	ErrEmptyMessage     = core.NewValidationError(
		errors.New("message cannot be empty"),
		core.FieldError{Field: "message", Error: "this field is required"},
	)
)

type (
	Repository interface {
		// GetOrCreateConversation returns the conversation of the ordered pair (low, high),
		// creating it if needed. Concurrent callers for the same pair get the same row.
		GetOrCreateConversation(ctx context.Context, low, high int, now time.Time) (Conversation, error)
		GetConversation(ctx context.Context, id int) (Conversation, error)
		// QueryConversations returns the conversations of a user, most recently updated first.
		QueryConversations(ctx context.Context, userID int) ([]Conversation, error)
		// AppendMessage inserts the message and bumps the conversation's updated_at atomically.
		// The message's created_at is never earlier than the conversation's previous updated_at.
		AppendMessage(ctx context.Context, conversationID, senderID int, text string, now time.Time) (Message, error)
		// QueryMessages returns the messages of a conversation in insertion order.
		QueryMessages(ctx context.Context, conversationID int) ([]Message, error)
		// LastMessages maps each conversation id to its latest message, when it has one.
		LastMessages(ctx context.Context, conversationIDs []int) (map[int]Message, error)
	}

	// UserDirectory resolves participants.
	UserDirectory interface {
		GetByID(ctx context.Context, id int) (user.User, error)
	}

	ServiceInterface interface {
		GetOrCreate(ctx context.Context, userA, userB int) (Conversation, error)
		Append(ctx context.Context, conv Conversation, senderID int, text string) (Message, error)
		Conversation(ctx context.Context, userID, conversationID int) (Conversation, error)
		Conversations(ctx context.Context, userID int) ([]Summary, error)
		History(ctx context.Context, userID, conversationID int) ([]Message, error)
		Start(ctx context.Context, userID, targetID int) (Conversation, error)
	}

	Service struct {
		repo  Repository
		users UserDirectory
	}
)

var _ ServiceInterface = (*Service)(nil) // interface compliance check

func NewService(repo Repository, users UserDirectory) *Service {
	return &Service{repo: repo, users: users}
}

// GetOrCreate resolves the unique conversation between two users. Argument order does not matter.
func (svc *Service) GetOrCreate(ctx context.Context, userA, userB int) (Conversation, error) {
	if userA == userB {
		return Conversation{}, ErrSelfConversation
	}
	low, high := normalizePair(userA, userB)
	conv, err := svc.repo.GetOrCreateConversation(ctx, low, high, NowFunc().UTC())
	if err != nil {
		return Conversation{}, errors.Wrap(err, "getting or creating conversation")
	}
	return conv, nil
}

// Append stores a message sent by senderID in conv.
func (svc *Service) Append(ctx context.Context, conv Conversation, senderID int, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	if !conv.HasParticipant(senderID) {
		return Message{}, ErrNotParticipant
	}
	return svc.repo.AppendMessage(ctx, conv.ID, senderID, text, NowFunc().UTC())
}

// Conversation returns the conversation if userID takes part in it.
// Missing conversations and conversations of other users both yield ErrNotFound.
func (svc *Service) Conversation(ctx context.Context, userID, conversationID int) (Conversation, error) {
	if conversationID <= 0 {
		return Conversation{}, ErrNotFound
	}
	conv, err := svc.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return Conversation{}, err
	}
	if !conv.HasParticipant(userID) {
		return Conversation{}, ErrNotFound
	}
	return conv, nil
}

func (svc *Service) Conversations(ctx context.Context, userID int) ([]Summary, error) {
	convs, err := svc.repo.QueryConversations(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying conversations")
	}
	ids := make([]int, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
	}
	lastMsgs, err := svc.repo.LastMessages(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "querying last messages")
	}

	others := make(map[int]Participant)
	summaries := make([]Summary, 0, len(convs))
	for _, c := range convs {
		otherID := c.Other(userID)
		other, ok := others[otherID]
		if !ok {
			usr, err := svc.users.GetByID(ctx, otherID)
			if err != nil {
				return nil, errors.Wrapf(err, "getting participant %d", otherID)
			}
			other = Participant{
				ID:          usr.ID,
				Username:    usr.Username,
				DisplayName: usr.DisplayName(),
				AvatarURL:   usr.AvatarURL(),
			}
			others[otherID] = other
		}

		s := Summary{ID: c.ID, Other: other, UpdatedAt: c.UpdatedAt}
		if msg, ok := lastMsgs[c.ID]; ok {
			s.LastMessage = preview(msg.Text)
			s.LastMessageTime = msg.DisplayTime()
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// History returns the messages of a conversation in chronological order.
// A conversation without messages yields an empty list.
func (svc *Service) History(ctx context.Context, userID, conversationID int) ([]Message, error) {
	conv, err := svc.Conversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	msgs, err := svc.repo.QueryMessages(ctx, conv.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying messages")
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}

// Start resumes the conversation between userID and targetID, creating it on first contact.
func (svc *Service) Start(ctx context.Context, userID, targetID int) (Conversation, error) {
	if userID == targetID {
		return Conversation{}, ErrSelfConversation
	}
	if _, err := svc.users.GetByID(ctx, targetID); err != nil {
		return Conversation{}, err
	}
	return svc.GetOrCreate(ctx, userID, targetID)
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLen {
		return text
	}
	return string(runes[:previewLen]) + "…"
}
