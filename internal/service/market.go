package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/recshare/internal/apperror"
	"github.com/sakif/recshare/internal/model"
	"github.com/sakif/recshare/internal/repository"
)

const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 2000
	MaxTags              = 20

	// MaxPrice keeps price × MaxBuyQuantity well inside an int64.
	MaxPrice int64 = 1_000_000_000
)

// systemActor is recorded as creator of items seeded at start-up.
const systemActor = "system"

// ItemInput carries the editable fields of a market item. Enabled is a
// pointer so updates can leave it unchanged; on create a nil Enabled means
// enabled.
type ItemInput struct {
	Title       string
	Description string
	Price       int64
	Enabled     *bool
	Tags        []string
	Details     model.ItemDetails
}

// MarketQuery is a catalog search request.
type MarketQuery struct {
	Query   string
	Variant model.ItemVariant
	Enabled *bool
	Page    int
	PerPage int
}

// MarketService is the catalog registry. Writes are admin-only.
type MarketService struct {
	store  repository.Store
	logger *slog.Logger
}

func NewMarketService(store repository.Store, logger *slog.Logger) *MarketService {
	return &MarketService{store: store, logger: logger}
}

// CreateItem validates input and stores a new item. Title uniqueness is
// case-insensitive and covers disabled items; consumable kinds are unique
// among consumables.
func (s *MarketService) CreateItem(ctx context.Context, actor model.Actor, in ItemInput) (*model.MarketItem, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	in, err := normalizeItemInput(in)
	if err != nil {
		return nil, err
	}

	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}
	item := &model.MarketItem{
		Title:       in.Title,
		Description: in.Description,
		Price:       in.Price,
		Enabled:     enabled,
		Tags:        in.Tags,
		Details:     in.Details,
		CreatedBy:   actor.UserID,
		ModifiedBy:  actor.UserID,
	}

	scope, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/market: %w", err)
	}
	defer scope.End()

	if err := checkItemUnique(ctx, scope.Market(), item, ""); err != nil {
		return nil, err
	}
	if err := scope.Market().CreateItem(ctx, item); err != nil {
		return nil, s.storeError("create", item.Title, err)
	}
	if err := scope.Commit(); err != nil {
		return nil, fmt.Errorf("service/market: committing item %q: %w", item.Title, err)
	}

	s.logger.Info("market item created",
		slog.String("itemID", item.ID),
		slog.String("title", item.Title),
		slog.String("variant", string(item.Variant())),
		slog.String("by", actor.UserID),
	)
	return item, nil
}

// UpdateItem replaces the editable fields of item id. The variant of an
// item cannot change.
func (s *MarketService) UpdateItem(ctx context.Context, actor model.Actor, id string, in ItemInput) (*model.MarketItem, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "market item ID is required")
	}
	in, err := normalizeItemInput(in)
	if err != nil {
		return nil, err
	}

	scope, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/market: %w", err)
	}
	defer scope.End()

	item, err := scope.Market().GetItemByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Variant() != in.Details.Variant() {
		return nil, apperror.ValidationFailed("variant",
			fmt.Sprintf("cannot change variant of item from %s to %s", item.Variant(), in.Details.Variant()))
	}
	if was, ok := item.Details.(model.ConsumableItem); ok {
		if now, _ := in.Details.(model.ConsumableItem); now.Kind != was.Kind {
			return nil, apperror.ValidationFailed("kind",
				fmt.Sprintf("cannot change kind of consumable from %s to %s", was.Kind, now.Kind))
		}
	}

	item.Title = in.Title
	item.Description = in.Description
	item.Price = in.Price
	item.Tags = in.Tags
	item.Details = in.Details
	if in.Enabled != nil {
		item.Enabled = *in.Enabled
	}
	item.ModifiedBy = actor.UserID

	if err := checkItemUnique(ctx, scope.Market(), item, item.ID); err != nil {
		return nil, err
	}
	if err := scope.Market().UpdateItem(ctx, item); err != nil {
		return nil, s.storeError("update", item.Title, err)
	}
	if err := scope.Commit(); err != nil {
		return nil, fmt.Errorf("service/market: committing item %s: %w", item.ID, err)
	}

	s.logger.Info("market item updated",
		slog.String("itemID", item.ID),
		slog.String("title", item.Title),
		slog.Bool("enabled", item.Enabled),
		slog.String("by", actor.UserID),
	)
	return item, nil
}

// GetItem returns item id. Non-admins get ErrDisabled for disabled items.
func (s *MarketService) GetItem(ctx context.Context, actor model.Actor, id string) (*model.MarketItem, error) {
	item, err := s.store.Market().GetItemByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if !item.Enabled && !actor.IsAdmin() {
		return nil, apperror.Disabled("market item", item.ID)
	}
	return item, nil
}

// SearchItems returns one page of the catalog. Non-admins only ever see
// enabled items, whatever the query asks for.
func (s *MarketService) SearchItems(ctx context.Context, actor model.Actor, q MarketQuery) (repository.Page[model.MarketItem], error) {
	opts, page, perPage := pageOptions(q.Page, q.PerPage)

	filter := repository.MarketFilter{
		Query:   strings.TrimSpace(q.Query),
		Variant: q.Variant,
		Enabled: q.Enabled,
	}
	if !actor.IsAdmin() {
		enabled := true
		filter.Enabled = &enabled
	}

	items, total, err := s.store.Market().SearchItems(ctx, filter, opts)
	if err != nil {
		s.logger.Error("failed to search market", slog.String("error", err.Error()))
		return repository.Page[model.MarketItem]{}, fmt.Errorf("service/market: searching: %w", err)
	}
	return repository.NewPage(items, total, page, perPage), nil
}

// EnsurePresets creates the consumable item of every preset whose kind has
// no catalog entry yet. Existing items are left as they are, so admins may
// retitle or reprice them.
func (s *MarketService) EnsurePresets(ctx context.Context, presets Presets) error {
	scope, err := s.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("service/market: %w", err)
	}
	defer scope.End()

	created := 0
	for _, p := range presets.List() {
		_, err := scope.Market().GetItemByConsumableKind(ctx, p.Kind)
		if err == nil {
			continue
		}
		if !errors.Is(err, apperror.ErrNotFound) {
			return fmt.Errorf("service/market: looking up preset %s: %w", p.Kind, err)
		}

		item := &model.MarketItem{
			Title:       p.Title,
			Description: p.Description,
			Price:       p.Price,
			Enabled:     true,
			Tags:        []string{string(p.Kind)},
			Details:     model.ConsumableItem{Kind: p.Kind},
			CreatedBy:   systemActor,
			ModifiedBy:  systemActor,
		}
		if err := scope.Market().CreateItem(ctx, item); err != nil {
			return fmt.Errorf("service/market: seeding preset %s: %w", p.Kind, err)
		}
		created++
		s.logger.Info("preset market item seeded",
			slog.String("itemID", item.ID),
			slog.String("kind", string(p.Kind)),
			slog.Int64("price", p.Price),
		)
	}

	if err := scope.Commit(); err != nil {
		return fmt.Errorf("service/market: committing presets: %w", err)
	}
	if created == 0 {
		s.logger.Debug("preset market items already present")
	}
	return nil
}

func (s *MarketService) storeError(op, title string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	s.logger.Error("failed to "+op+" market item",
		slog.String("title", title),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("service/market: %s item %q: %w", op, title, err)
}

func checkItemUnique(ctx context.Context, market repository.MarketRepository, item *model.MarketItem, excludeID string) error {
	exists, err := market.TitleExists(ctx, item.Title, excludeID)
	if err != nil {
		return fmt.Errorf("service/market: %w", err)
	}
	if exists {
		return apperror.DuplicateName(item.Title)
	}

	kind, ok := item.ConsumableKind()
	if !ok {
		return nil
	}
	exists, err = market.ConsumableKindExists(ctx, kind, excludeID)
	if err != nil {
		return fmt.Errorf("service/market: %w", err)
	}
	if exists {
		return apperror.DuplicateConsumableKind(string(kind))
	}
	return nil
}

// normalizeItemInput trims the text fields and rejects invalid input before
// anything touches the store.
func normalizeItemInput(in ItemInput) (ItemInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)

	if in.Title == "" {
		return in, apperror.ValidationFailed("title", "title is required")
	}
	if len(in.Title) > MaxTitleLength {
		return in, apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	if len(in.Description) > MaxDescriptionLength {
		return in, apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}
	if in.Price <= 0 {
		return in, apperror.ValidationFailed("price", "price must be a positive integer")
	}
	if in.Price > MaxPrice {
		return in, apperror.ValidationFailed("price", fmt.Sprintf("price must be at most %d", MaxPrice))
	}
	if len(in.Tags) > MaxTags {
		return in, apperror.ValidationFailed("tags", fmt.Sprintf("at most %d tags are allowed", MaxTags))
	}

	details, err := normalizeItemDetails(in.Details)
	if err != nil {
		return in, err
	}
	in.Details = details
	return in, nil
}

func normalizeItemDetails(d model.ItemDetails) (model.ItemDetails, error) {
	switch d := d.(type) {
	case model.IconItem:
		d.Icon = strings.TrimSpace(d.Icon)
		if d.Icon == "" {
			return nil, apperror.ValidationFailed("icon", "icon reference is required")
		}
		return d, nil
	case model.TitleItem:
		d.Label = strings.TrimSpace(d.Label)
		if d.Label == "" {
			return nil, apperror.ValidationFailed("label", "title label is required")
		}
		return d, nil
	case model.ConsumableItem:
		switch d.Kind {
		case model.KindInvitation, model.KindGift:
			return d, nil
		case "":
			return nil, apperror.ValidationFailed("kind", "consumable kind is required")
		default:
			return nil, apperror.ValidationFailed("kind", fmt.Sprintf("unknown consumable kind %q", d.Kind))
		}
	case model.ProviderItem:
		d.Provider = strings.TrimSpace(d.Provider)
		if d.Provider == "" {
			return nil, apperror.ValidationFailed("provider", "provider is required")
		}
		return d, nil
	case nil:
		return nil, apperror.ValidationFailed("variant", "item variant is required")
	default:
		return nil, apperror.UnsupportedVariant(string(d.Variant()))
	}
}
