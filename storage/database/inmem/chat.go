package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/elimu/core/chat"
)

type chatRepository struct {
	db *chatTable
}

var _ chat.Repository = (*chatRepository)(nil) // interface compliance check

func NewChatRepository(db *DB) *chatRepository {
	return &chatRepository{db: db.chat}
}

func (repo *chatRepository) GetOrCreateConversation(_ context.Context, low, high int, now time.Time) (chat.Conversation, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, c := range repo.db.conversations {
		if c.UserLow == low && c.UserHigh == high {
			return *c, nil
		}
	}
	repo.db.pk++
	c := chat.Conversation{ID: repo.db.pk, UserLow: low, UserHigh: high, CreatedAt: now, UpdatedAt: now}
	repo.db.conversations[c.ID] = &c
	return c, nil
}

func (repo *chatRepository) GetConversation(_ context.Context, id int) (chat.Conversation, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.conversations[id]; ok {
		return *c, nil
	}
	return chat.Conversation{}, chat.ErrNotFound
}

func (repo *chatRepository) QueryConversations(_ context.Context, userID int) ([]chat.Conversation, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	convs := make([]chat.Conversation, 0)
	for _, c := range repo.db.conversations {
		if c.HasParticipant(userID) {
			convs = append(convs, *c)
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		if convs[i].UpdatedAt.Equal(convs[j].UpdatedAt) {
			return convs[i].ID > convs[j].ID
		}
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
	return convs, nil
}

func (repo *chatRepository) AppendMessage(_ context.Context, conversationID, senderID int, text string, now time.Time) (chat.Message, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	c, ok := repo.db.conversations[conversationID]
	if !ok {
		return chat.Message{}, chat.ErrNotFound
	}
	if !c.HasParticipant(senderID) {
		return chat.Message{}, chat.ErrNotParticipant
	}
	if now.Before(c.UpdatedAt) {
		now = c.UpdatedAt
	}

	repo.db.msgPK++
	msg := chat.Message{ID: repo.db.msgPK, ConversationID: c.ID, SenderID: senderID, Text: text, CreatedAt: now}
	repo.db.messages = append(repo.db.messages, msg)
	c.UpdatedAt = now
	return msg, nil
}

func (repo *chatRepository) QueryMessages(_ context.Context, conversationID int) ([]chat.Message, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	msgs := make([]chat.Message, 0)
	for _, m := range repo.db.messages {
		if m.ConversationID == conversationID {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

func (repo *chatRepository) LastMessages(_ context.Context, conversationIDs []int) (map[int]chat.Message, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	wanted := make(map[int]bool, len(conversationIDs))
	for _, id := range conversationIDs {
		wanted[id] = true
	}
	last := make(map[int]chat.Message, len(conversationIDs))
	for _, m := range repo.db.messages { // insertion order: later wins
		if wanted[m.ConversationID] {
			last[m.ConversationID] = m
		}
	}
	return last, nil
}
