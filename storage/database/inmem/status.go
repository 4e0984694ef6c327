package inmemdb

import (
	"context"

	"github.com/trezcool/elimu/core/status"
)

type statusRepository struct {
	db *statusTable
}

var _ status.Repository = (*statusRepository)(nil) // interface compliance check

func NewStatusRepository(db *DB) *statusRepository {
	return &statusRepository{db: db.status}
}

func (repo *statusRepository) Create(_ context.Context, upd status.Update) (status.Update, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.pk++
	upd.ID = repo.db.pk
	repo.db.table = append(repo.db.table, upd)
	return upd, nil
}

func (repo *statusRepository) Query(_ context.Context, authorID, limit int) ([]status.Update, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	upds := make([]status.Update, 0)
	for i := len(repo.db.table) - 1; i >= 0 && len(upds) < limit; i-- { // newest first
		if u := repo.db.table[i]; authorID == 0 || u.AuthorID == authorID {
			upds = append(upds, u)
		}
	}
	return upds, nil
}

func (repo *statusRepository) Delete(_ context.Context, authorID, id int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for i, u := range repo.db.table {
		if u.ID == id && u.AuthorID == authorID {
			repo.db.table = append(repo.db.table[:i], repo.db.table[i+1:]...)
			return nil
		}
	}
	return status.ErrNotFound
}
