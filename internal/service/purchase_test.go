package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/recshare/internal/apperror"
	"github.com/sakif/recshare/internal/model"
	"github.com/sakif/recshare/internal/repository"
)

func TestFindOrInit_DerivesDetails(t *testing.T) {
	env, _ := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "alice", 0)

	tests := []struct {
		title   string
		details model.ItemDetails
		want    model.PurchaseDetails
	}{
		{"Cat", model.IconItem{Icon: "cat.png"}, model.IconPurchase{Icon: "cat.png"}},
		{"Curator", model.TitleItem{Label: "Curator"}, model.TitlePurchase{Label: "Curator"}},
		{"Gift", model.ConsumableItem{Kind: model.KindGift}, model.ConsumablePurchase{Kind: model.KindGift}},
		{"Spotify", model.ProviderItem{Provider: "spotify"}, model.ProviderPurchase{Provider: "spotify"}},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			item := env.createItem(t, tt.title, 7, tt.details)

			err := env.inScope(t, func(s repository.Scope) error {
				record, err := env.purchases.FindOrInit(ctx, s, item, user)
				require.NoError(t, err)
				assert.True(t, record.IsNew())
				assert.Equal(t, int64(0), record.Quantity)
				assert.Equal(t, int64(7), record.Payment.Price)
				assert.Equal(t, tt.title, record.ItemTitle)
				assert.Equal(t, tt.want, record.Details)
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestFindOrInit_ReturnsExisting(t *testing.T) {
	env, _ := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "alice", 100)
	item := env.createItem(t, "Cat", 10, model.IconItem{Icon: "cat.png"})

	bought, err := env.orchestrator.Buy(ctx, actorFor(user), item.ID, user.ID, 1)
	require.NoError(t, err)

	err = env.inScope(t, func(s repository.Scope) error {
		record, err := env.purchases.FindOrInit(ctx, s, item, user)
		require.NoError(t, err)
		assert.Equal(t, bought.Purchase.ID, record.ID)
		return nil
	})
	require.NoError(t, err)
}

func TestFindOrInit_UnsupportedVariant(t *testing.T) {
	env, _ := newTestEnv(t)
	user := env.createUser(t, "alice", 0)
	item := &model.MarketItem{ID: "odd", Title: "Odd", Price: 1, Details: model.UnknownItem{Tag: "hat"}}

	err := env.inScope(t, func(s repository.Scope) error {
		_, err := env.purchases.FindOrInit(context.Background(), s, item, user)
		return err
	})
	assert.ErrorIs(t, err, apperror.ErrUnsupportedVariant)
}

// =========================================================================
// REDEEM
// =========================================================================

func TestRedeem_Icon(t *testing.T) {
	env, _ := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "alice", 0)
	record := &model.Purchase{ID: "p1", UserID: user.ID, Quantity: 1, Details: model.IconPurchase{Icon: "crown.png"}}

	err := env.inScope(t, func(s repository.Scope) error {
		return env.purchases.Redeem(ctx, s, user, record)
	})
	require.NoError(t, err)

	got, err := env.store.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "crown.png", got.Avatar)
	assert.Equal(t, int64(1), record.Quantity, "icons are not consumed")
}

func TestRedeem_Title(t *testing.T) {
	env, _ := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "alice", 0)
	record := &model.Purchase{ID: "p1", UserID: user.ID, Quantity: 1, Details: model.TitlePurchase{Label: "Curator"}}

	err := env.inScope(t, func(s repository.Scope) error {
		return env.purchases.Redeem(ctx, s, user, record)
	})
	require.NoError(t, err)

	got, err := env.store.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Curator", got.Title)
}

func TestRedeem_ConsumableUsesOneUnit(t *testing.T) {
	env, _ := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "alice", 100)
	require.NoError(t, env.market.EnsurePresets(ctx, DefaultPresets(0, 0)))

	_, err := env.orchestrator.BuyCanned(ctx, actorFor(user), user.ID, model.KindGift)
	require.NoError(t, err)
	_, err = env.orchestrator.BuyCanned(ctx, actorFor(user), user.ID, model.KindGift)
	require.NoError(t, err)

	record, err := env.store.Purchases().FindConsumablePurchase(ctx, user.ID, model.KindGift)
	require.NoError(t, err)
	require.Equal(t, int64(2), record.Quantity)

	err = env.inScope(t, func(s repository.Scope) error {
		return env.purchases.Redeem(ctx, s, user, record)
	})
	require.NoError(t, err)

	got, err := env.store.Purchases().GetPurchase(ctx, user.ID, record.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Quantity)
	details := got.Details.(model.ConsumablePurchase)
	assert.True(t, details.Used)
	assert.NotNil(t, details.UsedAt)
}

func TestRedeem_ConsumableNothingLeft(t *testing.T) {
	env, _ := newTestEnv(t)
	user := env.createUser(t, "alice", 0)
	record := &model.Purchase{ID: "p1", UserID: user.ID, Quantity: 0, Details: model.ConsumablePurchase{Kind: model.KindGift}}

	err := env.inScope(t, func(s repository.Scope) error {
		return env.purchases.Redeem(context.Background(), s, user, record)
	})
	require.ErrorIs(t, err, apperror.ErrForbidden)
	assert.Contains(t, err.Error(), "Nothing left to redeem")
}

func TestRedeem_InvitationIsMintedNotRedeemed(t *testing.T) {
	env, _ := newTestEnv(t)
	user := env.createUser(t, "alice", 0)
	record := &model.Purchase{ID: "p1", UserID: user.ID, Quantity: 1, Details: model.ConsumablePurchase{Kind: model.KindInvitation}}

	err := env.inScope(t, func(s repository.Scope) error {
		return env.purchases.Redeem(context.Background(), s, user, record)
	})
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, int64(1), record.Quantity)
}

func TestRedeem_ProviderIsNoop(t *testing.T) {
	env, _ := newTestEnv(t)
	user := env.createUser(t, "alice", 0)
	record := &model.Purchase{ID: "p1", UserID: user.ID, Quantity: 1, Details: model.ProviderPurchase{Provider: "spotify"}}

	err := env.inScope(t, func(s repository.Scope) error {
		return env.purchases.Redeem(context.Background(), s, user, record)
	})
	assert.NoError(t, err)
}

// Scenario: redeeming a record of an unknown variant fails.
func TestRedeem_UnknownVariant(t *testing.T) {
	env, _ := newTestEnv(t)
	user := env.createUser(t, "alice", 0)

	for _, details := range []model.PurchaseDetails{model.UnknownPurchase{Tag: "Unknown"}, nil} {
		record := &model.Purchase{ID: "p1", UserID: user.ID, Quantity: 1, Details: details}
		err := env.inScope(t, func(s repository.Scope) error {
			return env.purchases.Redeem(context.Background(), s, user, record)
		})
		assert.ErrorIs(t, err, apperror.ErrInvalidPurchaseVariant)
	}
}

// =========================================================================
// SEARCH / GET
// =========================================================================

func TestPurchaseSearchAndGet(t *testing.T) {
	env, _ := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice", 100)
	bob := env.createUser(t, "bob", 100)
	cat := env.createItem(t, "Cat", 10, model.IconItem{Icon: "cat.png"})
	curator := env.createItem(t, "Curator", 10, model.TitleItem{Label: "Curator"})

	first, err := env.orchestrator.Buy(ctx, actorFor(alice), cat.ID, alice.ID, 1)
	require.NoError(t, err)
	_, err = env.orchestrator.Buy(ctx, actorFor(alice), curator.ID, alice.ID, 1)
	require.NoError(t, err)

	page, err := env.purchases.Search(ctx, actorFor(alice), alice.ID, PurchaseQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = env.purchases.Search(ctx, actorFor(alice), alice.ID, PurchaseQuery{Variant: model.PurchaseTitle})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "Curator", page.Items[0].ItemTitle)

	_, err = env.purchases.Search(ctx, actorFor(bob), alice.ID, PurchaseQuery{})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = env.purchases.Search(ctx, actorFor(alice), alice.ID, PurchaseQuery{Status: "lost"})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	page, err = env.purchases.Search(ctx, adminActor, alice.ID, PurchaseQuery{Status: repository.StatusAvailable})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	got, err := env.purchases.Get(ctx, actorFor(alice), alice.ID, first.Purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, cat.ID, got.ItemID)

	_, err = env.purchases.Get(ctx, actorFor(bob), bob.ID, first.Purchase.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound, "records are scoped to their owner")
}
