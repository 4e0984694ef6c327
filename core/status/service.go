package status

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core/user"
)

const DefaultFeedLimit = 50

var (
	ErrNotFound  = errors.New("status update not found")
	ErrForbidden = errors.New("only students can post status updates")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		Create(ctx context.Context, upd Update) (Update, error)
		// Query returns the newest updates first; authorID 0 matches every author.
		Query(ctx context.Context, authorID, limit int) ([]Update, error)
		// Delete returns ErrNotFound unless the update belongs to authorID.
		Delete(ctx context.Context, authorID, id int) error
	}

	ServiceInterface interface {
		Post(ctx context.Context, author user.User, data NewUpdate) (Update, error)
		Feed(ctx context.Context, authorID int) ([]Update, error)
		Delete(ctx context.Context, by user.User, id int) error
	}

	Service struct {
		repo      Repository
		feedLimit int
	}
)

var _ ServiceInterface = (*Service)(nil) // interface compliance check

func NewService(repo Repository, feedLimit int) *Service {
	if feedLimit <= 0 {
		feedLimit = DefaultFeedLimit
	}
	return &Service{repo: repo, feedLimit: feedLimit}
}

// Post expects data to be validated already.
func (svc *Service) Post(ctx context.Context, author user.User, data NewUpdate) (Update, error) {
	if !author.IsStudent() {
		return Update{}, ErrForbidden
	}
	upd, err := svc.repo.Create(ctx, Update{
		AuthorID:  author.ID,
		Content:   data.Content,
		CreatedAt: NowFunc().UTC(),
	})
	if err != nil {
		return Update{}, errors.Wrap(err, "creating status update")
	}
	return upd, nil
}

func (svc *Service) Feed(ctx context.Context, authorID int) ([]Update, error) {
	if authorID < 0 {
		authorID = 0
	}
	upds, err := svc.repo.Query(ctx, authorID, svc.feedLimit)
	if err != nil {
		return nil, errors.Wrap(err, "querying status updates")
	}
	return upds, nil
}

func (svc *Service) Delete(ctx context.Context, by user.User, id int) error {
	if id <= 0 || by.IsAnonymous() {
		return ErrNotFound
	}
	return svc.repo.Delete(ctx, by.ID, id)
}
