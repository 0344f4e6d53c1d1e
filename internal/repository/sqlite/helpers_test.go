package sqlite

import (
	"context"
	"testing"

	"github.com/sakif/recshare/internal/model"
	"github.com/stretchr/testify/require"
)

// newTestDB opens a fresh in-memory database. ":memory:" lives as long as
// its single connection, so every test gets an isolated, migrated schema.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *DB, username string, balance int64) *model.User {
	t.Helper()
	user := &model.User{Username: username, Balance: balance}
	require.NoError(t, db.Users().Create(context.Background(), user))
	return user
}

func createTestItem(t *testing.T, db *DB, title string, price int64, details model.ItemDetails) *model.MarketItem {
	t.Helper()
	item := &model.MarketItem{
		Title:   title,
		Price:   price,
		Enabled: true,
		Details: details,
	}
	require.NoError(t, db.Market().CreateItem(context.Background(), item))
	return item
}
