package inmemdb

import (
	"context"

	"github.com/trezcool/elimu/core/notification"
)

type notificationRepository struct {
	db *notificationTable
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) *notificationRepository {
	return &notificationRepository{db: db.notification}
}

func (repo *notificationRepository) BulkCreate(_ context.Context, notes []notification.Notification) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, n := range notes {
		n := n
		repo.db.pk++
		n.ID = repo.db.pk
		repo.db.table = append(repo.db.table, &n)
	}
	return nil
}

func (repo *notificationRepository) List(_ context.Context, recipientID, limit int) ([]notification.Notification, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	notes := make([]notification.Notification, 0)
	for i := len(repo.db.table) - 1; i >= 0 && len(notes) < limit; i-- { // newest first
		if n := repo.db.table[i]; n.RecipientID == recipientID {
			notes = append(notes, *n)
		}
	}
	return notes, nil
}

func (repo *notificationRepository) UnreadCount(_ context.Context, recipientID int) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var cnt int
	for _, n := range repo.db.table {
		if n.RecipientID == recipientID && !n.IsRead {
			cnt++
		}
	}
	return cnt, nil
}

func (repo *notificationRepository) MarkRead(_ context.Context, recipientID, id int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, n := range repo.db.table {
		if n.ID == id && n.RecipientID == recipientID {
			n.IsRead = true
			return nil
		}
	}
	return notification.ErrNotFound
}

func (repo *notificationRepository) MarkAllRead(_ context.Context, recipientID int) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var cnt int
	for _, n := range repo.db.table {
		if n.RecipientID == recipientID && !n.IsRead {
			n.IsRead = true
			cnt++
		}
	}
	return cnt, nil
}
