package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/agreements/internal/ir"
)

// Meta keys.
const (
	// MetaLastStatusParsed holds the id of the newest ingested message.
	MetaLastStatusParsed = "last_status_parsed"
)

// Counters returns the global per-collection totals.
func (s *Store) Counters(ctx context.Context) (ir.Counters, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM counters ORDER BY name ASC`)
	if err != nil {
		return ir.Counters{}, fmt.Errorf("counters: %w", err)
	}
	defer rows.Close()

	var c ir.Counters
	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return ir.Counters{}, fmt.Errorf("counters: scan: %w", err)
		}
		switch name {
		case counterAccounts:
			c.Accounts = value
		case counterContracts:
			c.Contracts = value
		case counterAgreements:
			c.Agreements = value
		case counterExecutions:
			c.Executions = value
		}
	}
	if err := rows.Err(); err != nil {
		return ir.Counters{}, fmt.Errorf("counters: %w", err)
	}
	return c, nil
}

// ArchiveStatus records an inbound message. Returns false when the message
// was archived before, which marks a re-delivery.
func (s *Store) ArchiveStatus(ctx context.Context, st ir.Status) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO statuses (id, text, author_id, author_name, handle, created_at, parent_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, st.ID, st.Text, st.AuthorID, st.AuthorName, st.Handle, toNanos(st.CreatedAt), st.ParentID)
	if err != nil {
		return false, fmt.Errorf("archive status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("archive status: rows affected: %w", err)
	}
	return n > 0, nil
}

// HasStatus reports whether a message has been archived.
func (s *Store) HasStatus(ctx context.Context, id int64) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM statuses WHERE id = ?`, id).Scan(&count); err != nil {
		return false, fmt.Errorf("has status: %w", err)
	}
	return count > 0, nil
}

// GetStatus loads an archived message.
// Returns ErrNotFound if it was never archived.
func (s *Store) GetStatus(ctx context.Context, id int64) (ir.Status, error) {
	var (
		st        ir.Status
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, text, author_id, author_name, handle, created_at, parent_id
		FROM statuses WHERE id = ?
	`, id).Scan(&st.ID, &st.Text, &st.AuthorID, &st.AuthorName, &st.Handle, &createdAt, &st.ParentID)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Status{}, fmt.Errorf("get status %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.Status{}, fmt.Errorf("get status %d: %w", id, err)
	}
	st.CreatedAt = fromNanos(createdAt)
	return st, nil
}

// GetMeta reads a meta value. ok is false when the key is unset.
func (s *Store) GetMeta(ctx context.Context, key string) (value string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get meta %q: %w", key, err)
	}
	return value, true, nil
}

// SetMeta writes a meta value, replacing any previous one.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set meta %q: %w", key, err)
	}
	return nil
}

// Snapshot loads every account, contract and agreement plus the counters,
// each collection in ascending id order.
func (s *Store) Snapshot(ctx context.Context) (accounts []ir.Account, contracts []ir.Contract, agreements []ir.Agreement, counters ir.Counters, err error) {
	ids, err := s.int64s(ctx, `SELECT id FROM accounts ORDER BY id ASC`)
	if err != nil {
		return nil, nil, nil, ir.Counters{}, fmt.Errorf("snapshot accounts: %w", err)
	}
	for _, id := range ids {
		acc, err := s.GetAccount(ctx, id)
		if err != nil {
			return nil, nil, nil, ir.Counters{}, fmt.Errorf("snapshot: %w", err)
		}
		accounts = append(accounts, acc)
	}

	contracts, err = s.ListContracts(ctx)
	if err != nil {
		return nil, nil, nil, ir.Counters{}, fmt.Errorf("snapshot: %w", err)
	}

	ids, err = s.int64s(ctx, `SELECT id FROM agreements ORDER BY id ASC`)
	if err != nil {
		return nil, nil, nil, ir.Counters{}, fmt.Errorf("snapshot agreements: %w", err)
	}
	for _, id := range ids {
		a, err := s.GetAgreement(ctx, id)
		if err != nil {
			return nil, nil, nil, ir.Counters{}, fmt.Errorf("snapshot: %w", err)
		}
		agreements = append(agreements, a)
	}

	counters, err = s.Counters(ctx)
	if err != nil {
		return nil, nil, nil, ir.Counters{}, fmt.Errorf("snapshot: %w", err)
	}
	return accounts, contracts, agreements, counters, nil
}
