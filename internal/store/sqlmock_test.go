package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/agreements/internal/ir"
)

var errDiskFull = errors.New("database or disk is full")

func setupMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestMock_InsertAccountRollsBackOnCounterFailure(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO accounts")).
		WithArgs(int64(1), "", "alice", int64(0), int64(0)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE counters SET value = value + 1")).
		WithArgs(counterAccounts).
		WillReturnError(errDiskFull)
	mock.ExpectRollback()

	_, err := s.InsertAccount(context.Background(), ir.Account{ID: 1, Handle: "alice"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errDiskFull)
	assert.Contains(t, err.Error(), "insert account")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMock_DebitSurfacesQueryError(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts SET balance = balance -")).
		WillReturnError(errDiskFull)
	mock.ExpectRollback()

	ok, _, err := s.Debit(context.Background(), 1, 10)
	assert.False(t, ok)
	assert.ErrorIs(t, err, errDiskFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMock_CommitFailureSurfaces(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO executions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO execution_promises")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE counters")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errDiskFull)

	_, err := s.InsertExecution(context.Background(), ir.Execution{ID: 5, Promises: []int64{7}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMock_CloseAgreementRollsBackOnCreditFailure(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE agreements SET state = 'closed'")).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts SET balance = balance +")).
		WithArgs(int64(40), int64(2)).
		WillReturnError(errDiskFull)
	mock.ExpectRollback()

	res, err := s.CloseAgreement(context.Background(), 3, Closing{Credits: []Credit{{AccountID: 2, Amount: 40}}})
	assert.False(t, res.Closed)
	assert.ErrorIs(t, err, errDiskFull)
	assert.Contains(t, err.Error(), "close agreement")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMock_GetMetaError(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM meta")).
		WillReturnError(errDiskFull)

	_, ok, err := s.GetMeta(context.Background(), MetaLastStatusParsed)
	assert.False(t, ok)
	assert.ErrorIs(t, err, errDiskFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}
