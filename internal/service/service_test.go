package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/recshare/internal/auth"
	"github.com/sakif/recshare/internal/model"
	"github.com/sakif/recshare/internal/repository"
	"github.com/sakif/recshare/internal/repository/memory"
)

var adminActor = model.Actor{UserID: "admin-1", Role: model.RoleAdmin}

func actorFor(u *model.User) model.Actor {
	return model.Actor{UserID: u.ID, Role: u.Role}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv wires every service against one store, the way server.New does.
type testEnv struct {
	store        repository.Store
	currency     *CurrencyLedger
	market       *MarketService
	purchases    *PurchaseLedger
	orchestrator *Orchestrator
	invitations  *InvitationService
}

func newTestEnvWith(t *testing.T, store repository.Store) *testEnv {
	t.Helper()
	logger := discardLogger()
	authz := RoleAuthorizer{}
	currency := NewCurrencyLedger(logger)
	purchases := NewPurchaseLedger(store, authz, logger)
	return &testEnv{
		store:     store,
		currency:  currency,
		market:    NewMarketService(store, logger),
		purchases: purchases,
		orchestrator: NewOrchestrator(OrchestratorDeps{
			Store:     store,
			Currency:  currency,
			Purchases: purchases,
			Notifier:  NewStoreNotifier(logger),
			Authz:     authz,
			Presets:   DefaultPresets(0, 0),
			Rewards:   DefaultRewards(),
			Logger:    logger,
		}),
		invitations: NewInvitationService(store, auth.NewSecretHasherForTest(bcrypt.MinCost), authz, logger),
	}
}

func newTestEnv(t *testing.T) (*testEnv, *memory.Store) {
	t.Helper()
	store := memory.New()
	return newTestEnvWith(t, store), store
}

func (e *testEnv) createUser(t *testing.T, username string, balance int64) *model.User {
	t.Helper()
	user := &model.User{Username: username, Balance: balance}
	require.NoError(t, e.store.Users().Create(context.Background(), user))
	return user
}

func (e *testEnv) createItem(t *testing.T, title string, price int64, details model.ItemDetails) *model.MarketItem {
	t.Helper()
	item, err := e.market.CreateItem(context.Background(), adminActor, ItemInput{
		Title:   title,
		Price:   price,
		Details: details,
	})
	require.NoError(t, err)
	return item
}

func (e *testEnv) balance(t *testing.T, userID string) int64 {
	t.Helper()
	u, err := e.store.Users().GetUserByID(context.Background(), userID)
	require.NoError(t, err)
	return u.Balance
}

// inScope runs fn inside a committed scope.
func (e *testEnv) inScope(t *testing.T, fn func(repository.Scope) error) error {
	t.Helper()
	scope, err := e.store.Begin(context.Background())
	require.NoError(t, err)
	defer scope.End()
	if err := fn(scope); err != nil {
		return err
	}
	return scope.Commit()
}

func TestPageOptions(t *testing.T) {
	tests := []struct {
		page, perPage         int
		wantLimit, wantOffset int
	}{
		{0, 0, DefaultPerPage, 0},
		{2, 10, 10, 10},
		{3, 1000, MaxPerPage, 2 * MaxPerPage},
		{-1, -5, DefaultPerPage, 0},
	}
	for _, tt := range tests {
		opts, _, _ := pageOptions(tt.page, tt.perPage)
		require.Equal(t, tt.wantLimit, opts.Limit)
		require.Equal(t, tt.wantOffset, opts.Offset)
	}
}
