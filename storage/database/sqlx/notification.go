package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/notification"
)

const notificationColumns = "id, recipient_id, actor_id, course_id, verb, title, message, url, is_read, created_at"

type notificationRow struct {
	ID          int       `db:"id"`
	RecipientID int       `db:"recipient_id"`
	ActorID     null.Int  `db:"actor_id"`
	CourseID    null.Int  `db:"course_id"`
	Verb        string    `db:"verb"`
	Title       string    `db:"title"`
	Message     string    `db:"message"`
	URL         string    `db:"url"`
	IsRead      bool      `db:"is_read"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r notificationRow) notification() notification.Notification {
	return notification.Notification{
		ID:          r.ID,
		RecipientID: r.RecipientID,
		ActorID:     r.ActorID.Ptr(),
		CourseID:    r.CourseID.Ptr(),
		Verb:        r.Verb,
		Title:       r.Title,
		Message:     r.Message,
		URL:         r.URL,
		IsRead:      r.IsRead,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

type notificationRepository struct {
	db core.DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db core.DB) *notificationRepository {
	return &notificationRepository{db: db}
}

func (repo notificationRepository) BulkCreate(ctx context.Context, notes []notification.Notification) error {
	if len(notes) == 0 {
		return nil
	}
	values := make([]string, 0, len(notes))
	args := make([]interface{}, 0, len(notes)*9)
	for _, n := range notes {
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			n.RecipientID, null.IntFromPtr(n.ActorID), null.IntFromPtr(n.CourseID), n.Verb, n.Title, n.Message, n.URL,
			n.IsRead, n.CreatedAt.UTC(),
		)
	}
	q := "INSERT INTO notifications (recipient_id, actor_id, course_id, verb, title, message, url, is_read, created_at) VALUES " +
		strings.Join(values, ", ")
	if _, err := repo.db.ExecContext(ctx, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "inserting notifications")
	}
	return nil
}

func (repo notificationRepository) List(ctx context.Context, recipientID, limit int) ([]notification.Notification, error) {
	var rows []notificationRow
	q := repo.db.Rebind("SELECT " + notificationColumns + " FROM notifications WHERE recipient_id = ? ORDER BY created_at DESC, id DESC LIMIT ?")
	if err := repo.db.SelectContext(ctx, &rows, q, recipientID, limit); err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	notes := make([]notification.Notification, 0, len(rows))
	for _, r := range rows {
		notes = append(notes, r.notification())
	}
	return notes, nil
}

func (repo notificationRepository) UnreadCount(ctx context.Context, recipientID int) (int, error) {
	var cnt int
	q := repo.db.Rebind("SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND is_read = ?")
	if err := repo.db.GetContext(ctx, &cnt, q, recipientID, false); err != nil {
		return 0, errors.Wrap(err, "counting unread notifications")
	}
	return cnt, nil
}

func (repo notificationRepository) MarkRead(ctx context.Context, recipientID, id int) error {
	q := repo.db.Rebind("UPDATE notifications SET is_read = ? WHERE id = ? AND recipient_id = ?")
	res, err := repo.db.ExecContext(ctx, q, true, id, recipientID)
	if err != nil {
		return errors.Wrap(err, "marking notification as read")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "marking notification as read")
	}
	if n == 0 {
		return notification.ErrNotFound
	}
	return nil
}

func (repo notificationRepository) MarkAllRead(ctx context.Context, recipientID int) (int, error) {
	q := repo.db.Rebind("UPDATE notifications SET is_read = ? WHERE recipient_id = ? AND is_read = ?")
	res, err := repo.db.ExecContext(ctx, q, true, recipientID, false)
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications as read")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications as read")
	}
	return int(n), nil
}
