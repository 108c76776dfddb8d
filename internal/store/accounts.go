package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/agreements/internal/ir"
)

// InsertAccount creates an account if its id is new and bumps the accounts
// counter in the same transaction. Returns false when the account already
// existed; the stored record is left untouched in that case.
func (s *Store) InsertAccount(ctx context.Context, acc ir.Account) (created bool, err error) {
	err = s.inTx(ctx, "insert account", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (id, name, handle, balance, reputation)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, acc.ID, acc.Name, acc.Handle, acc.Balance, acc.Reputation)
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
		return bumpCounter(ctx, tx, counterAccounts)
	})
	return created, err
}

// HasAccount reports whether an account exists.
func (s *Store) HasAccount(ctx context.Context, id int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("has account: %w", err)
	}
	return count > 0, nil
}

// GetAccount loads an account with its owned contracts and consumed messages.
// Returns ErrNotFound if the account does not exist.
func (s *Store) GetAccount(ctx context.Context, id int64) (ir.Account, error) {
	var acc ir.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, handle, balance, reputation
		FROM accounts WHERE id = ?
	`, id).Scan(&acc.ID, &acc.Name, &acc.Handle, &acc.Balance, &acc.Reputation)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Account{}, fmt.Errorf("get account %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.Account{}, fmt.Errorf("get account %d: %w", id, err)
	}

	acc.Contracts, err = s.int64s(ctx, `
		SELECT contract_id FROM account_contracts
		WHERE account_id = ? ORDER BY id ASC
	`, id)
	if err != nil {
		return ir.Account{}, fmt.Errorf("get account %d contracts: %w", id, err)
	}

	acc.Likes, err = s.int64s(ctx, `
		SELECT message_id FROM consumed
		WHERE account_id = ? AND action = 'like' ORDER BY rowid ASC
	`, id)
	if err != nil {
		return ir.Account{}, fmt.Errorf("get account %d likes: %w", id, err)
	}

	acc.Retweets, err = s.int64s(ctx, `
		SELECT message_id FROM consumed
		WHERE account_id = ? AND action = 'retweet' ORDER BY rowid ASC
	`, id)
	if err != nil {
		return ir.Account{}, fmt.Errorf("get account %d retweets: %w", id, err)
	}

	return acc, nil
}

// SearchAccounts returns every account whose handle matches, ignoring case,
// in ascending id order.
func (s *Store) SearchAccounts(ctx context.Context, handle string) ([]ir.Account, error) {
	ids, err := s.int64s(ctx, `
		SELECT id FROM accounts
		WHERE handle = ? COLLATE NOCASE ORDER BY id ASC
	`, handle)
	if err != nil {
		return nil, fmt.Errorf("search accounts: %w", err)
	}

	accounts := make([]ir.Account, 0, len(ids))
	for _, id := range ids {
		acc, err := s.GetAccount(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("search accounts: %w", err)
		}
		accounts = append(accounts, acc)
	}
	return accounts, nil
}

// AdjustBalance adds delta (which may be negative) to an account balance
// without a lower bound and returns the new balance.
func (s *Store) AdjustBalance(ctx context.Context, id, delta int64) (balance int64, err error) {
	err = s.inTx(ctx, "adjust balance", func(tx *sql.Tx) error {
		if err := updateOne(ctx, tx, `UPDATE accounts SET balance = balance + ? WHERE id = ?`, delta, id); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE id = ?`, id).Scan(&balance)
	})
	return balance, err
}

// Debit subtracts amount only while the balance covers it.
// Returns ok=false with the unchanged balance when funds are insufficient.
func (s *Store) Debit(ctx context.Context, id, amount int64) (ok bool, balance int64, err error) {
	err = s.inTx(ctx, "debit", func(tx *sql.Tx) error {
		ok, err = debit(ctx, tx, id, amount)
		if err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE id = ?`, id).Scan(&balance)
	})
	return ok, balance, err
}

// Transfer moves amount from one account to another in one transaction.
// Returns false, and changes nothing, when the sender cannot cover it.
func (s *Store) Transfer(ctx context.Context, from, to, amount int64) (ok bool, err error) {
	err = s.inTx(ctx, "transfer", func(tx *sql.Tx) error {
		ok, err = debit(ctx, tx, from, amount)
		if err != nil || !ok {
			return err
		}
		return updateOne(ctx, tx, `UPDATE accounts SET balance = balance + ? WHERE id = ?`, amount, to)
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// debit is the guarded balance decrement shared by Debit and Transfer.
func debit(ctx context.Context, tx *sql.Tx, id, amount int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts SET balance = balance - ?
		WHERE id = ? AND balance >= ?
	`, amount, id, amount)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return true, nil
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE id = ?`, id).Scan(&count); err != nil {
		return false, err
	}
	if count == 0 {
		return false, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	return false, nil
}

// AdjustReputation adds delta and clamps the result into [lo, hi].
// Returns the stored reputation.
func (s *Store) AdjustReputation(ctx context.Context, id, delta, lo, hi int64) (reputation int64, err error) {
	err = s.inTx(ctx, "adjust reputation", func(tx *sql.Tx) error {
		err := updateOne(ctx, tx, `
			UPDATE accounts SET reputation = MIN(MAX(reputation + ?, ?), ?)
			WHERE id = ?
		`, delta, lo, hi, id)
		if err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `SELECT reputation FROM accounts WHERE id = ?`, id).Scan(&reputation)
	})
	return reputation, err
}

// AppendAccountContract records contractID in the account's ordered
// contract list. Appending the same id twice is a no-op.
func (s *Store) AppendAccountContract(ctx context.Context, accountID, contractID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO account_contracts (account_id, contract_id)
		VALUES (?, ?)
		ON CONFLICT(account_id, contract_id) DO NOTHING
	`, accountID, contractID)
	if err != nil {
		return fmt.Errorf("append account contract: %w", err)
	}
	return nil
}

// HasConsumed reports whether the account already performed action on messageID.
func (s *Store) HasConsumed(ctx context.Context, accountID int64, action ir.ContractType, messageID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM consumed
		WHERE account_id = ? AND action = ? AND message_id = ?
	`, accountID, string(action), messageID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("has consumed: %w", err)
	}
	return count > 0, nil
}

// updateOne runs an UPDATE that must touch exactly one row.
func updateOne(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// int64s runs a single-column query and collects the results.
func (s *Store) int64s(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []int64{}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
