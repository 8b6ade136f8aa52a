package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-api/internal/repository"
)

// BaseRepository is embedded by repositories that write more than one table
// per operation.
type BaseRepository struct {
	db *sqlx.DB
}

func NewBaseRepository(db *sqlx.DB) BaseRepository {
	return BaseRepository{db: db}
}

// WithTx runs fn in a read-committed transaction. The transaction is rolled
// back when fn fails or panics, and the rollback error, if any, is joined to
// fn's error.
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	return tx.Commit()
}

// guardedUpdate interprets the result of an UPDATE whose WHERE clause also
// checks the row's state. When nothing matched it looks the row up again to
// tell a missing row (ErrNotFound) from one in the wrong state
// (ErrStateConflict).
func guardedUpdate(ctx context.Context, db sqlx.QueryerContext, res sql.Result, table string, id interface{}) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM ` + table + ` WHERE id = $1)`
	if err := sqlx.GetContext(ctx, db, &exists, query, id); err != nil {
		return fmt.Errorf("failed to check %s row: %w", table, err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrStateConflict
}

// page appends LIMIT/OFFSET placeholders for the next two argument slots.
func page(query string, args []interface{}, limit, offset int) (string, []interface{}) {
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	return query, append(args, limit, offset)
}
