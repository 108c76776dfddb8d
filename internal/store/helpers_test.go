package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/agreements/internal/ir"
)

var testEpoch = time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)

// setupTestStore opens a fresh database in a temp dir.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedAccount inserts an account with the given balance.
func seedAccount(t *testing.T, s *Store, id int64, handle string, balance int64) {
	t.Helper()
	created, err := s.InsertAccount(context.Background(), ir.Account{ID: id, Handle: handle, Name: handle, Balance: balance})
	require.NoError(t, err)
	require.True(t, created)
}

// seedContract inserts an alive contract.
func seedContract(t *testing.T, s *Store, id, owner int64, typ ir.ContractType, count, price int64) {
	t.Helper()
	created, err := s.InsertContract(context.Background(), ir.Contract{
		ID:        id,
		State:     ir.ContractAlive,
		OwnerID:   owner,
		Type:      typ,
		Count:     count,
		Price:     price,
		CreatedAt: testEpoch,
	})
	require.NoError(t, err)
	require.True(t, created)
}
