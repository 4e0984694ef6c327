package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/status"
)

const statusColumns = "id, author_id, content, created_at"

type statusRepository struct {
	db core.DB
}

var _ status.Repository = (*statusRepository)(nil) // interface compliance check

func NewStatusRepository(db core.DB) *statusRepository {
	return &statusRepository{db: db}
}

func (repo statusRepository) Create(ctx context.Context, upd status.Update) (status.Update, error) {
	upd.CreatedAt = upd.CreatedAt.UTC()
	q := repo.db.Rebind("INSERT INTO status_updates (author_id, content, created_at) VALUES (?, ?, ?) RETURNING id")
	if err := repo.db.GetContext(ctx, &upd.ID, q, upd.AuthorID, upd.Content, upd.CreatedAt); err != nil {
		return status.Update{}, errors.Wrap(err, "inserting status update")
	}
	return upd, nil
}

func (repo statusRepository) Query(ctx context.Context, authorID, limit int) ([]status.Update, error) {
	var (
		rows []status.Update
		err  error
	)
	if authorID > 0 {
		q := repo.db.Rebind("SELECT " + statusColumns + " FROM status_updates WHERE author_id = ? ORDER BY created_at DESC, id DESC LIMIT ?")
		err = repo.db.SelectContext(ctx, &rows, q, authorID, limit)
	} else {
		q := repo.db.Rebind("SELECT " + statusColumns + " FROM status_updates ORDER BY created_at DESC, id DESC LIMIT ?")
		err = repo.db.SelectContext(ctx, &rows, q, limit)
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying status updates")
	}

	upds := make([]status.Update, 0, len(rows))
	for _, u := range rows {
		u.CreatedAt = u.CreatedAt.UTC()
		upds = append(upds, u)
	}
	return upds, nil
}

func (repo statusRepository) Delete(ctx context.Context, authorID, id int) error {
	q := repo.db.Rebind("DELETE FROM status_updates WHERE id = ? AND author_id = ?")
	res, err := repo.db.ExecContext(ctx, q, id, authorID)
	if err != nil {
		return errors.Wrap(err, "deleting status update")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "deleting status update")
	}
	if n == 0 {
		return status.ErrNotFound
	}
	return nil
}
