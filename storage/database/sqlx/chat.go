package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/chat"
)

const (
	conversationColumns = "id, user_low, user_high, created_at, updated_at"
	messageColumns      = "id, conversation_id, sender_id, text, created_at"
)

type chatRepository struct {
	db core.DB
}

var _ chat.Repository = (*chatRepository)(nil) // interface compliance check

func NewChatRepository(db core.DB) *chatRepository {
	return &chatRepository{db: db}
}

func utcConversation(c chat.Conversation) chat.Conversation {
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c
}

func utcMessages(msgs []chat.Message) {
	for i := range msgs {
		msgs[i].CreatedAt = msgs[i].CreatedAt.UTC()
	}
}

func (repo chatRepository) getConversation(ctx context.Context, exec core.DBExecutor, lock bool, where string, args ...interface{}) (chat.Conversation, error) {
	q := "SELECT " + conversationColumns + " FROM conversations WHERE " + where
	if lock {
		q += forUpdate(exec)
	}
	var conv chat.Conversation
	if err := exec.GetContext(ctx, &conv, exec.Rebind(q), args...); err != nil {
		if err == sql.ErrNoRows {
			return chat.Conversation{}, chat.ErrNotFound
		}
		return chat.Conversation{}, errors.Wrap(err, "finding conversation")
	}
	return utcConversation(conv), nil
}

// GetOrCreateConversation relies on the UNIQUE (user_low, user_high) constraint:
// the insert is a no-op when the pair already has a conversation.
func (repo chatRepository) GetOrCreateConversation(ctx context.Context, low, high int, now time.Time) (chat.Conversation, error) {
	q := repo.db.Rebind(`INSERT INTO conversations (user_low, user_high, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_low, user_high) DO NOTHING`)
	if _, err := repo.db.ExecContext(ctx, q, low, high, now.UTC(), now.UTC()); err != nil {
		return chat.Conversation{}, errors.Wrap(err, "inserting conversation")
	}
	return repo.getConversation(ctx, repo.db, false, "user_low = ? AND user_high = ?", low, high)
}

func (repo chatRepository) GetConversation(ctx context.Context, id int) (chat.Conversation, error) {
	return repo.getConversation(ctx, repo.db, false, "id = ?", id)
}

func (repo chatRepository) QueryConversations(ctx context.Context, userID int) ([]chat.Conversation, error) {
	convs := make([]chat.Conversation, 0)
	q := repo.db.Rebind("SELECT " + conversationColumns + ` FROM conversations
		WHERE user_low = ? OR user_high = ? ORDER BY updated_at DESC, id DESC`)
	if err := repo.db.SelectContext(ctx, &convs, q, userID, userID); err != nil {
		return nil, errors.Wrap(err, "querying conversations")
	}
	for i := range convs {
		convs[i] = utcConversation(convs[i])
	}
	return convs, nil
}

func (repo chatRepository) AppendMessage(ctx context.Context, conversationID, senderID int, text string, now time.Time) (chat.Message, error) {
	var msg chat.Message
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		conv, err := repo.getConversation(ctx, tx, true, "id = ?", conversationID)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(senderID) {
			return chat.ErrNotParticipant
		}
		if now.Before(conv.UpdatedAt) {
			now = conv.UpdatedAt
		}

		msg = chat.Message{ConversationID: conv.ID, SenderID: senderID, Text: text, CreatedAt: now.UTC()}
		q := tx.Rebind("INSERT INTO messages (conversation_id, sender_id, text, created_at) VALUES (?, ?, ?, ?) RETURNING id")
		if err = tx.GetContext(ctx, &msg.ID, q, msg.ConversationID, msg.SenderID, msg.Text, msg.CreatedAt); err != nil {
			return errors.Wrap(err, "inserting message")
		}

		q = tx.Rebind("UPDATE conversations SET updated_at = ? WHERE id = ?")
		if _, err = tx.ExecContext(ctx, q, msg.CreatedAt, conv.ID); err != nil {
			return errors.Wrap(err, "bumping conversation")
		}
		return nil
	})
	if err != nil {
		return chat.Message{}, err
	}
	return msg, nil
}

func (repo chatRepository) QueryMessages(ctx context.Context, conversationID int) ([]chat.Message, error) {
	msgs := make([]chat.Message, 0)
	q := repo.db.Rebind("SELECT " + messageColumns + " FROM messages WHERE conversation_id = ? ORDER BY created_at, id")
	if err := repo.db.SelectContext(ctx, &msgs, q, conversationID); err != nil {
		return nil, errors.Wrap(err, "querying messages")
	}
	utcMessages(msgs)
	return msgs, nil
}

func (repo chatRepository) LastMessages(ctx context.Context, conversationIDs []int) (map[int]chat.Message, error) {
	last := make(map[int]chat.Message, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return last, nil
	}

	q, args, err := sqlx.In("SELECT "+messageColumns+` FROM messages WHERE id IN (
		SELECT MAX(id) FROM messages WHERE conversation_id IN (?) GROUP BY conversation_id)`, conversationIDs)
	if err != nil {
		return nil, errors.Wrap(err, "building last messages query")
	}
	var msgs []chat.Message
	if err := repo.db.SelectContext(ctx, &msgs, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying last messages")
	}
	utcMessages(msgs)
	for _, m := range msgs {
		last[m.ConversationID] = m
	}
	return last, nil
}
