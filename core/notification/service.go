package notification

import (
	"context"

	"github.com/pkg/errors"
)

const DefaultListLimit = 50

var ErrNotFound = errors.New("notification not found")

type (
	Repository interface {
		// BulkCreate inserts all notes in a single statement.
		BulkCreate(ctx context.Context, notes []Notification) error
		// List returns the newest notifications of a recipient first.
		List(ctx context.Context, recipientID, limit int) ([]Notification, error)
		UnreadCount(ctx context.Context, recipientID int) (int, error)
		// MarkRead returns ErrNotFound when the notification does not belong to the recipient.
		MarkRead(ctx context.Context, recipientID, id int) error
		MarkAllRead(ctx context.Context, recipientID int) (int, error)
	}

	ServiceInterface interface {
		List(ctx context.Context, recipientID int) ([]Notification, error)
		UnreadCount(ctx context.Context, recipientID int) (int, error)
		MarkRead(ctx context.Context, recipientID, id int) error
		MarkAllRead(ctx context.Context, recipientID int) (int, error)
	}

	Service struct {
		repo      Repository
		listLimit int
	}
)

var _ ServiceInterface = (*Service)(nil) // interface compliance check

func NewService(repo Repository, listLimit int) *Service {
	if listLimit <= 0 {
		listLimit = DefaultListLimit
	}
	return &Service{repo: repo, listLimit: listLimit}
}

func (svc *Service) List(ctx context.Context, recipientID int) ([]Notification, error) {
	notes, err := svc.repo.List(ctx, recipientID, svc.listLimit)
	if err != nil {
		return nil, errors.Wrap(err, "listing notifications")
	}
	return notes, nil
}

func (svc *Service) UnreadCount(ctx context.Context, recipientID int) (int, error) {
	cnt, err := svc.repo.UnreadCount(ctx, recipientID)
	if err != nil {
		return 0, errors.Wrap(err, "counting unread notifications")
	}
	return cnt, nil
}

func (svc *Service) MarkRead(ctx context.Context, recipientID, id int) error {
	if id <= 0 {
		return ErrNotFound
	}
	return svc.repo.MarkRead(ctx, recipientID, id)
}

func (svc *Service) MarkAllRead(ctx context.Context, recipientID int) (int, error) {
	cnt, err := svc.repo.MarkAllRead(ctx, recipientID)
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications as read")
	}
	return cnt, nil
}
