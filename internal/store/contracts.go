package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/agreements/internal/ir"
)

const contractColumns = `id, state, owner_id, owner_handle, type, count, price, created_at, revived`

// InsertContract stores a new contract and bumps the contracts counter.
// Returns false if a contract with the same id already exists.
func (s *Store) InsertContract(ctx context.Context, c ir.Contract) (created bool, err error) {
	err = s.inTx(ctx, "insert contract", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO contracts (`+contractColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`,
			c.ID,
			string(c.State),
			c.OwnerID,
			c.OwnerHandle,
			string(c.Type),
			c.Count,
			c.Price,
			toNanos(c.CreatedAt),
			boolInt(c.Revived),
		)
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
		created = true
		return bumpCounter(ctx, tx, counterContracts)
	})
	return created, err
}

// GetContract loads a contract and its execution log.
// Returns ErrNotFound if the contract does not exist.
func (s *Store) GetContract(ctx context.Context, id int64) (ir.Contract, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = ?`, id)
	c, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Contract{}, fmt.Errorf("get contract %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.Contract{}, fmt.Errorf("get contract %d: %w", id, err)
	}

	c.ExecutedOn, err = s.executedOn(ctx, id)
	if err != nil {
		return ir.Contract{}, fmt.Errorf("get contract %d: %w", id, err)
	}
	return c, nil
}

// ListContracts returns every contract in ascending id (creation) order.
func (s *Store) ListContracts(ctx context.Context) ([]ir.Contract, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+contractColumns+` FROM contracts ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}

	var contracts []ir.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("list contracts: scan: %w", err)
		}
		contracts = append(contracts, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	// Release the single connection before the per-contract log queries.
	rows.Close()

	for i := range contracts {
		contracts[i].ExecutedOn, err = s.executedOn(ctx, contracts[i].ID)
		if err != nil {
			return nil, fmt.Errorf("list contracts: %w", err)
		}
	}
	return contracts, nil
}

// SumContractCounts totals the remaining count of every contract the owner
// holds of the given type, alive or dead.
func (s *Store) SumContractCounts(ctx context.Context, ownerID int64, typ ir.ContractType) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(count), 0) FROM contracts
		WHERE owner_id = ? AND type = ?
	`, ownerID, string(typ)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum contract counts: %w", err)
	}
	return total, nil
}

// ExecuteContract calls in one unit of an alive contract on messageID:
// the count drops by one, the message joins the execution log and is
// recorded as consumed by the owner. Executing the last unit marks the
// contract dead. Returns false, and changes nothing,
// when the contract is dead, exhausted, or the owner already consumed the
// message for this contract type.
func (s *Store) ExecuteContract(ctx context.Context, contractID, messageID int64) (executed bool, err error) {
	err = s.inTx(ctx, "execute contract", func(tx *sql.Tx) error {
		var ownerID int64
		var typ string
		err := tx.QueryRowContext(ctx, `SELECT owner_id, type FROM contracts WHERE id = ?`, contractID).Scan(&ownerID, &typ)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("contract %d: %w", contractID, ErrNotFound)
		}
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE contracts
			SET count = count - 1,
			    state = CASE WHEN count = 1 THEN 'dead' ELSE state END
			WHERE id = ? AND state = 'alive' AND count > 0
		`, contractID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return err
		}

		res, err = tx.ExecContext(ctx, `
			INSERT INTO consumed (account_id, action, message_id)
			VALUES (?, ?, ?)
			ON CONFLICT DO NOTHING
		`, ownerID, typ, messageID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			// Already consumed: undo the decrement by returning without commit.
			if err == nil {
				err = errAlreadyConsumed
			}
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO contract_executions (contract_id, message_id) VALUES (?, ?)
		`, contractID, messageID); err != nil {
			return err
		}

		executed = true
		return nil
	})
	if errors.Is(err, errAlreadyConsumed) {
		return false, nil
	}
	return executed, err
}

var errAlreadyConsumed = errors.New("already consumed")

// KillContract marks an alive contract dead. Returns whether it changed.
func (s *Store) KillContract(ctx context.Context, id int64) (bool, error) {
	return s.setContractState(ctx, "kill contract", `
		UPDATE contracts SET state = 'dead' WHERE id = ? AND state = 'alive'
	`, id)
}

func (s *Store) setContractState(ctx context.Context, op, query string, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	return n > 0, nil
}

func (s *Store) executedOn(ctx context.Context, contractID int64) ([]int64, error) {
	ids, err := s.int64s(ctx, `
		SELECT message_id FROM contract_executions
		WHERE contract_id = ? ORDER BY id ASC
	`, contractID)
	if err != nil {
		return nil, fmt.Errorf("execution log: %w", err)
	}
	return ids, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContract(row scanner) (ir.Contract, error) {
	var (
		c         ir.Contract
		state     string
		typ       string
		createdAt int64
		revived   int
	)
	err := row.Scan(&c.ID, &state, &c.OwnerID, &c.OwnerHandle, &typ, &c.Count, &c.Price, &createdAt, &revived)
	if err != nil {
		return ir.Contract{}, err
	}
	c.State = ir.ContractState(state)
	c.Type = ir.ContractType(typ)
	c.CreatedAt = fromNanos(createdAt)
	c.Revived = revived != 0
	return c, nil
}
