package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/agreements/internal/ir"
)

const agreementColumns = `id, state, creator_id, creator_handle, creator_ruling,
	member_id, member_handle, member_ruling, collateral_type, collateral, created_at, text`

// InsertAgreement stores a new agreement and bumps the agreements counter.
// Returns false if an agreement with the same id already exists.
func (s *Store) InsertAgreement(ctx context.Context, a ir.Agreement) (created bool, err error) {
	err = s.inTx(ctx, "insert agreement", func(tx *sql.Tx) error {
		created, err = insertAgreement(ctx, tx, a)
		return err
	})
	return created, err
}

// InsertAgreementWithContract stores an agreement together with its dormant
// collateral contract. Both rows and both counter bumps commit together.
func (s *Store) InsertAgreementWithContract(ctx context.Context, a ir.Agreement, c ir.Contract) (created bool, err error) {
	err = s.inTx(ctx, "insert agreement", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO contracts (`+contractColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, c.ID, string(c.State), c.OwnerID, c.OwnerHandle, string(c.Type), c.Count, c.Price, toNanos(c.CreatedAt), boolInt(c.Revived))
		if err != nil {
			return fmt.Errorf("collateral contract: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return err
		}
		if err := bumpCounter(ctx, tx, counterContracts); err != nil {
			return err
		}
		created, err = insertAgreement(ctx, tx, a)
		return err
	})
	return created, err
}

func insertAgreement(ctx context.Context, tx *sql.Tx, a ir.Agreement) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO agreements (`+agreementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		a.ID,
		string(a.State),
		a.CreatorID,
		a.CreatorHandle,
		string(a.CreatorRuling),
		a.MemberID,
		a.MemberHandle,
		string(a.MemberRuling),
		string(a.CollateralType),
		a.Collateral,
		toNanos(a.CreatedAt),
		a.Text,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	return true, bumpCounter(ctx, tx, counterAgreements)
}

// GetAgreement loads an agreement.
// Returns ErrNotFound if the agreement does not exist.
func (s *Store) GetAgreement(ctx context.Context, id int64) (ir.Agreement, error) {
	a, err := scanAgreement(s.db.QueryRowContext(ctx, `SELECT `+agreementColumns+` FROM agreements WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Agreement{}, fmt.Errorf("get agreement %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.Agreement{}, fmt.Errorf("get agreement %d: %w", id, err)
	}
	return a, nil
}

// SetRuling records one party's ruling on an open agreement and returns the
// agreement as stored afterwards. Rulings on a closed agreement are ignored
// and updated is false.
func (s *Store) SetRuling(ctx context.Context, id int64, creator bool, ruling ir.Ruling) (a ir.Agreement, updated bool, err error) {
	column := "member_ruling"
	if creator {
		column = "creator_ruling"
	}

	err = s.inTx(ctx, "set ruling", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE agreements SET `+column+` = ? WHERE id = ? AND state = 'open'`,
			string(ruling), id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		updated = n > 0

		a, err = scanAgreement(tx.QueryRowContext(ctx, `SELECT `+agreementColumns+` FROM agreements WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("agreement %d: %w", id, ErrNotFound)
		}
		return err
	})
	if err != nil {
		return ir.Agreement{}, false, err
	}
	return a, updated, nil
}

// Closing is the settlement applied in the transaction that closes an
// agreement.
type Closing struct {
	Credits []Credit
	// RetireContract zeroes the remaining count of a collateral contract.
	RetireContract int64
	// ActivateContract revives a dormant collateral contract and lists it
	// for its owner. Credits are applied only if the contract was revived.
	ActivateContract int64
}

// Credit adds Amount to an account's balance.
type Credit struct {
	AccountID int64
	Amount    int64
}

// CloseResult reports what CloseAgreement changed.
type CloseResult struct {
	Closed  bool
	Revived bool // ActivateContract was revived by this call
}

// CloseAgreement moves an open agreement to closed and applies settle in
// the same transaction. Only the first call transitions; later calls
// return Closed false and apply nothing. On error nothing is applied and
// the agreement stays open.
func (s *Store) CloseAgreement(ctx context.Context, id int64, settle Closing) (res CloseResult, err error) {
	err = s.inTx(ctx, "close agreement", func(tx *sql.Tx) error {
		r, err := tx.ExecContext(ctx, `UPDATE agreements SET state = 'closed' WHERE id = ? AND state = 'open'`, id)
		if err != nil {
			return err
		}
		n, err := r.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return nil
		}

		if settle.RetireContract != 0 {
			if _, err := tx.ExecContext(ctx, `
				UPDATE contracts SET count = 0 WHERE id = ? AND count > 0
			`, settle.RetireContract); err != nil {
				return fmt.Errorf("retire contract %d: %w", settle.RetireContract, err)
			}
		}

		credit := true
		if settle.ActivateContract != 0 {
			revived, err := reviveContract(ctx, tx, settle.ActivateContract)
			if err != nil {
				return fmt.Errorf("activate contract %d: %w", settle.ActivateContract, err)
			}
			res.Revived = revived
			credit = revived
		}

		if credit {
			for _, c := range settle.Credits {
				if err := updateOne(ctx, tx, `UPDATE accounts SET balance = balance + ? WHERE id = ?`, c.Amount, c.AccountID); err != nil {
					return fmt.Errorf("credit account %d: %w", c.AccountID, err)
				}
			}
		}

		res.Closed = true
		return nil
	})
	if err != nil {
		return CloseResult{}, err
	}
	return res, nil
}

// reviveContract activates a dead contract and appends it to its owner's
// contract list. A contract is revived at most once.
func reviveContract(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
	r, err := tx.ExecContext(ctx, `
		UPDATE contracts SET state = 'alive', revived = 1
		WHERE id = ? AND state = 'dead' AND revived = 0
	`, id)
	if err != nil {
		return false, err
	}
	n, err := r.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO account_contracts (account_id, contract_id)
		SELECT owner_id, id FROM contracts WHERE id = ?
		ON CONFLICT(account_id, contract_id) DO NOTHING
	`, id); err != nil {
		return false, fmt.Errorf("list for owner: %w", err)
	}
	return true, nil
}

func scanAgreement(row scanner) (ir.Agreement, error) {
	var (
		a              ir.Agreement
		state          string
		creatorRuling  string
		memberRuling   string
		collateralType string
		createdAt      int64
	)
	err := row.Scan(
		&a.ID,
		&state,
		&a.CreatorID,
		&a.CreatorHandle,
		&creatorRuling,
		&a.MemberID,
		&a.MemberHandle,
		&memberRuling,
		&collateralType,
		&a.Collateral,
		&createdAt,
		&a.Text,
	)
	if err != nil {
		return ir.Agreement{}, err
	}
	a.State = ir.AgreementState(state)
	a.CreatorRuling = ir.Ruling(creatorRuling)
	a.MemberRuling = ir.Ruling(memberRuling)
	a.CollateralType = ir.CollateralType(collateralType)
	a.CreatedAt = fromNanos(createdAt)
	return a, nil
}
