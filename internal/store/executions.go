package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/agreements/internal/ir"
)

// InsertExecution stores an execution with its promise list and bumps the
// executions counter. Executions are immutable: a second insert for the same
// target message returns false and leaves the first record in place.
func (s *Store) InsertExecution(ctx context.Context, e ir.Execution) (created bool, err error) {
	err = s.inTx(ctx, "insert execution", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO executions (id, requester_id, budget, spent, created_at, expires_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, e.ID, e.RequesterID, e.Budget, e.Spent, toNanos(e.CreatedAt), toNanos(e.ExpiresAt))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return nil
		}

		for _, owner := range e.Promises {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO execution_promises (execution_id, owner_id) VALUES (?, ?)
			`, e.ID, owner); err != nil {
				return fmt.Errorf("promise: %w", err)
			}
		}

		created = true
		return bumpCounter(ctx, tx, counterExecutions)
	})
	return created, err
}

// GetExecution loads an execution and its promises.
// Returns ErrNotFound if no execution targets the message.
func (s *Store) GetExecution(ctx context.Context, id int64) (ir.Execution, error) {
	var (
		e                    ir.Execution
		createdAt, expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, requester_id, budget, spent, created_at, expires_at
		FROM executions WHERE id = ?
	`, id).Scan(&e.ID, &e.RequesterID, &e.Budget, &e.Spent, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Execution{}, fmt.Errorf("get execution %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.Execution{}, fmt.Errorf("get execution %d: %w", id, err)
	}
	e.CreatedAt = fromNanos(createdAt)
	e.ExpiresAt = fromNanos(expiresAt)

	e.Promises, err = s.int64s(ctx, `
		SELECT owner_id FROM execution_promises
		WHERE execution_id = ? ORDER BY id ASC
	`, id)
	if err != nil {
		return ir.Execution{}, fmt.Errorf("get execution %d promises: %w", id, err)
	}
	return e, nil
}
