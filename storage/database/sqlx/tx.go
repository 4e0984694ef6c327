package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
)

// withTx runs fn in a transaction, committing when fn succeeds.
func withTx(ctx context.Context, db core.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// forUpdate locks selected rows until the end of the transaction where the engine supports it.
// sqlite3 serializes writers on its own.
func forUpdate(exec core.DBExecutor) string {
	if exec.DriverName() == core.EnginePostgres {
		return " FOR UPDATE"
	}
	return ""
}
