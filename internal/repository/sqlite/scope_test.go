package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sakif/recshare/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope_CommitPersists(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "alice", 10)

	scope, err := db.Begin(ctx)
	require.NoError(t, err)
	defer scope.End()

	_, err = scope.Users().AdjustBalance(ctx, user.ID, 5)
	require.NoError(t, err)
	require.NoError(t, scope.Commit())
	scope.End()

	got, err := db.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(15), got.Balance)
}

func TestScope_EndWithoutCommitRollsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "alice", 10)
	item := createTestItem(t, db, "Cat", 10, model.IconItem{})

	scope, err := db.Begin(ctx)
	require.NoError(t, err)
	_, err = scope.Users().AdjustBalance(ctx, user.ID, -10)
	require.NoError(t, err)
	require.NoError(t, scope.Purchases().SavePurchase(ctx, newPurchase(user, item, 1, model.IconPurchase{})))
	scope.End()

	got, err := db.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.Balance)

	_, err = db.Purchases().FindPurchase(ctx, user.ID, item.ID)
	assert.Error(t, err, "the purchase must not survive the rollback")
}

// The tests below drive the scope against go-sqlmock to check exactly which
// transaction statements reach the driver.

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return wrap(conn), mock
}

func TestScope_EndAfterCommitIsNoop(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	scope, err := db.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, scope.Commit())
	scope.End()
	scope.End()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScope_EndRollsBackOnce(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	scope, err := db.Begin(context.Background())
	require.NoError(t, err)
	scope.End()
	scope.End()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScope_CommitFailure(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("disk I/O error"))

	scope, err := db.Begin(context.Background())
	require.NoError(t, err)

	err = scope.Commit()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")

	assert.ErrorIs(t, scope.Commit(), errScopeClosed)
	scope.End()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScope_BeginFailure(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

	_, err := db.Begin(context.Background())
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustBalance_QueryError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("UPDATE users SET balance").WillReturnError(errors.New("boom"))

	_, err := db.Users().AdjustBalance(context.Background(), "u1", -5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "adjusting balance of user u1")
	assert.NoError(t, mock.ExpectationsWereMet())
}
