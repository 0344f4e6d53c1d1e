package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/recshare/internal/apperror"
	"github.com/sakif/recshare/internal/model"
)

func TestCreateItem(t *testing.T) {
	env, _ := newTestEnv(t)

	item, err := env.market.CreateItem(context.Background(), adminActor, ItemInput{
		Title:       "  Crown  ",
		Description: " shiny ",
		Price:       15,
		Tags:        []string{"royal"},
		Details:     model.IconItem{Icon: " crown.png "},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, item.ID)
	assert.Equal(t, "Crown", item.Title)
	assert.Equal(t, "shiny", item.Description)
	assert.True(t, item.Enabled, "items are enabled by default")
	assert.Equal(t, model.IconItem{Icon: "crown.png"}, item.Details)
	assert.Equal(t, adminActor.UserID, item.CreatedBy)
	assert.Equal(t, adminActor.UserID, item.ModifiedBy)
}

func TestCreateItem_RequiresAdmin(t *testing.T) {
	env, _ := newTestEnv(t)

	_, err := env.market.CreateItem(context.Background(), model.Actor{UserID: "u1", Role: model.RoleUser}, ItemInput{
		Title: "Crown", Price: 15, Details: model.IconItem{Icon: "crown.png"},
	})
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

// Scenario: a second item titled "Crown" is a duplicate, whatever its case
// or enabled state.
func TestCreateItem_DuplicateName(t *testing.T) {
	env, _ := newTestEnv(t)
	ctx := context.Background()
	first := env.createItem(t, "Crown", 15, model.IconItem{Icon: "crown.png"})

	disabled := false
	_, err := env.market.UpdateItem(ctx, adminActor, first.ID, ItemInput{
		Title: "Crown", Price: 15, Enabled: &disabled, Details: model.IconItem{Icon: "crown.png"},
	})
	require.NoError(t, err)

	_, err = env.market.CreateItem(ctx, adminActor, ItemInput{
		Title: "crown", Price: 3, Details: model.TitleItem{Label: "King"},
	})
	require.ErrorIs(t, err, apperror.ErrDuplicateName)
	assert.Contains(t, err.Error(), "Market item name already exists")
}

func TestCreateItem_DuplicateConsumableKind(t *testing.T) {
	env, _ := newTestEnv(t)
	env.createItem(t, "Invitation", 50, model.ConsumableItem{Kind: model.KindInvitation})

	_, err := env.market.CreateItem(context.Background(), adminActor, ItemInput{
		Title: "Cheap Invitation", Price: 10, Details: model.ConsumableItem{Kind: model.KindInvitation},
	})
	assert.ErrorIs(t, err, apperror.ErrDuplicateConsumableKind)
}

func TestCreateItem_Validation(t *testing.T) {
	env, _ := newTestEnv(t)

	tests := []struct {
		name    string
		in      ItemInput
		wantErr error
	}{
		{"empty title", ItemInput{Title: " ", Price: 1, Details: model.IconItem{Icon: "a"}}, apperror.ErrValidation},
		{"zero price", ItemInput{Title: "A", Price: 0, Details: model.IconItem{Icon: "a"}}, apperror.ErrValidation},
		{"price above cap", ItemInput{Title: "A", Price: MaxPrice + 1, Details: model.IconItem{Icon: "a"}}, apperror.ErrValidation},
		{"no variant", ItemInput{Title: "A", Price: 1}, apperror.ErrValidation},
		{"icon without asset", ItemInput{Title: "A", Price: 1, Details: model.IconItem{}}, apperror.ErrValidation},
		{"title without label", ItemInput{Title: "A", Price: 1, Details: model.TitleItem{}}, apperror.ErrValidation},
		{"unknown consumable", ItemInput{Title: "A", Price: 1, Details: model.ConsumableItem{Kind: "potion"}}, apperror.ErrValidation},
		{"provider without name", ItemInput{Title: "A", Price: 1, Details: model.ProviderItem{}}, apperror.ErrValidation},
		{"unknown variant", ItemInput{Title: "A", Price: 1, Details: model.UnknownItem{Tag: "hat"}}, apperror.ErrUnsupportedVariant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.market.CreateItem(context.Background(), adminActor, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUpdateItem_KeepsOwnTitle(t *testing.T) {
	env, _ := newTestEnv(t)
	item := env.createItem(t, "Crown", 15, model.IconItem{Icon: "crown.png"})

	editor := model.Actor{UserID: "admin-2", Role: model.RoleAdmin}
	updated, err := env.market.UpdateItem(context.Background(), editor, item.ID, ItemInput{
		Title: "CROWN", Price: 20, Details: model.IconItem{Icon: "crown2.png"},
	})
	require.NoError(t, err, "excluding the item itself must not report a duplicate")

	assert.Equal(t, "CROWN", updated.Title)
	assert.Equal(t, int64(20), updated.Price)
	assert.True(t, updated.Enabled, "nil Enabled leaves the flag unchanged")
	assert.Equal(t, "admin-2", updated.ModifiedBy)
	assert.Equal(t, adminActor.UserID, updated.CreatedBy)
}

func TestUpdateItem_Errors(t *testing.T) {
	env, _ := newTestEnv(t)
	ctx := context.Background()
	crown := env.createItem(t, "Crown", 15, model.IconItem{Icon: "crown.png"})
	env.createItem(t, "Sceptre", 15, model.IconItem{Icon: "sceptre.png"})

	_, err := env.market.UpdateItem(ctx, adminActor, "missing", ItemInput{
		Title: "X", Price: 1, Details: model.IconItem{Icon: "x"},
	})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = env.market.UpdateItem(ctx, adminActor, crown.ID, ItemInput{
		Title: "sceptre", Price: 1, Details: model.IconItem{Icon: "x"},
	})
	assert.ErrorIs(t, err, apperror.ErrDuplicateName)

	_, err = env.market.UpdateItem(ctx, adminActor, crown.ID, ItemInput{
		Title: "Crown", Price: 1, Details: model.TitleItem{Label: "Crown"},
	})
	assert.ErrorIs(t, err, apperror.ErrValidation, "variant cannot change")
}

func TestUpdateItem_ConsumableKindIsFixed(t *testing.T) {
	env, _ := newTestEnv(t)
	ctx := context.Background()
	item := env.createItem(t, "Invitation", 50, model.ConsumableItem{Kind: model.KindInvitation})

	_, err := env.market.UpdateItem(ctx, adminActor, item.ID, ItemInput{
		Title: "Invitation", Price: 50, Details: model.ConsumableItem{Kind: model.KindGift},
	})
	require.ErrorIs(t, err, apperror.ErrValidation)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "kind", appErr.Field)

	updated, err := env.market.UpdateItem(ctx, adminActor, item.ID, ItemInput{
		Title: "Invitation", Price: 60, Details: model.ConsumableItem{Kind: model.KindInvitation},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(60), updated.Price)
}

func TestGetItem_DisabledHiddenFromMembers(t *testing.T) {
	env, _ := newTestEnv(t)
	ctx := context.Background()
	item := env.createItem(t, "Crown", 15, model.IconItem{Icon: "crown.png"})
	disabled := false
	_, err := env.market.UpdateItem(ctx, adminActor, item.ID, ItemInput{
		Title: "Crown", Price: 15, Enabled: &disabled, Details: model.IconItem{Icon: "crown.png"},
	})
	require.NoError(t, err)

	member := model.Actor{UserID: "u1", Role: model.RoleUser}
	_, err = env.market.GetItem(ctx, member, item.ID)
	assert.ErrorIs(t, err, apperror.ErrDisabled)

	got, err := env.market.GetItem(ctx, adminActor, item.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	_, err = env.market.GetItem(ctx, member, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestSearchItems(t *testing.T) {
	env, _ := newTestEnv(t)
	ctx := context.Background()
	env.createItem(t, "Crown", 15, model.IconItem{Icon: "crown.png"})
	env.createItem(t, "Curator", 30, model.TitleItem{Label: "The Curator"})
	hidden := env.createItem(t, "Royal Cape", 5, model.IconItem{Icon: "cape.png"})
	disabled := false
	_, err := env.market.UpdateItem(ctx, adminActor, hidden.ID, ItemInput{
		Title: "Royal Cape", Price: 5, Enabled: &disabled, Details: model.IconItem{Icon: "cape.png"},
	})
	require.NoError(t, err)

	member := model.Actor{UserID: "u1", Role: model.RoleUser}

	page, err := env.market.SearchItems(ctx, member, MarketQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total, "members never see disabled items")

	showAll := false
	page, err = env.market.SearchItems(ctx, member, MarketQuery{Enabled: &showAll})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total, "members cannot ask for disabled items")

	page, err = env.market.SearchItems(ctx, adminActor, MarketQuery{})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)

	page, err = env.market.SearchItems(ctx, adminActor, MarketQuery{Query: "CUR", Variant: model.VariantTitle})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "Curator", page.Items[0].Title)

	page, err = env.market.SearchItems(ctx, adminActor, MarketQuery{Page: 2, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Items, 1)
}

func TestEnsurePresets_Idempotent(t *testing.T) {
	env, _ := newTestEnv(t)
	ctx := context.Background()
	presets := DefaultPresets(50, 20)

	require.NoError(t, env.market.EnsurePresets(ctx, presets))
	require.NoError(t, env.market.EnsurePresets(ctx, presets))

	page, err := env.market.SearchItems(ctx, adminActor, MarketQuery{Variant: model.VariantConsumable})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	invite, err := env.store.Market().GetItemByConsumableKind(ctx, model.KindInvitation)
	require.NoError(t, err)
	assert.Equal(t, int64(50), invite.Price)
	assert.True(t, invite.Enabled)
}
