package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/recshare/internal/apperror"
	"github.com/sakif/recshare/internal/metrics"
	"github.com/sakif/recshare/internal/model"
	"github.com/sakif/recshare/internal/repository"
)

// PurchaseQuery is a search over one user's purchases.
type PurchaseQuery struct {
	Query   string
	Variant model.PurchaseVariant
	Status  repository.PurchaseStatus
	Page    int
	PerPage int
}

// PurchaseLedger owns purchase records: one per (user, item).
type PurchaseLedger struct {
	store  repository.Store
	authz  Authorizer
	logger *slog.Logger
	now    func() time.Time
}

func NewPurchaseLedger(store repository.Store, authz Authorizer, logger *slog.Logger) *PurchaseLedger {
	return &PurchaseLedger{
		store:  store,
		authz:  authz,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// FindOrInit returns the user's record for item, or a new unsaved record
// (quantity 0) whose details are derived from the item's variant. The unit
// price of a new record is locked to the item's current price.
func (l *PurchaseLedger) FindOrInit(ctx context.Context, repos repository.Repositories, item *model.MarketItem, user *model.User) (*model.Purchase, error) {
	if user == nil {
		return nil, apperror.UserRequired()
	}

	record, err := repos.Purchases().FindPurchase(ctx, user.ID, item.ID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/purchase: finding record of item %s: %w", item.ID, err)
	}

	details, err := purchaseDetailsFor(item)
	if err != nil {
		return nil, err
	}
	return &model.Purchase{
		UserID:    user.ID,
		ItemID:    item.ID,
		ItemTitle: item.Title,
		Quantity:  0,
		Payment:   model.PaymentDetails{Price: item.Price},
		Details:   details,
	}, nil
}

func purchaseDetailsFor(item *model.MarketItem) (model.PurchaseDetails, error) {
	switch d := item.Details.(type) {
	case model.IconItem:
		return model.IconPurchase{Icon: d.Icon}, nil
	case model.TitleItem:
		return model.TitlePurchase{Label: d.Label}, nil
	case model.ConsumableItem:
		return model.ConsumablePurchase{Kind: d.Kind}, nil
	case model.ProviderItem:
		return model.ProviderPurchase{Provider: d.Provider}, nil
	default:
		return nil, apperror.UnsupportedVariant(string(item.Variant()))
	}
}

// Search returns one page of userID's purchases, newest first.
func (l *PurchaseLedger) Search(ctx context.Context, actor model.Actor, userID string, q PurchaseQuery) (repository.Page[model.Purchase], error) {
	if err := requireSelfOrAdmin(l.authz, actor, userID); err != nil {
		return repository.Page[model.Purchase]{}, err
	}
	switch q.Status {
	case repository.StatusAny, repository.StatusAvailable, repository.StatusDepleted:
	default:
		return repository.Page[model.Purchase]{}, apperror.ValidationFailed("status",
			fmt.Sprintf("status must be %q or %q", repository.StatusAvailable, repository.StatusDepleted))
	}

	opts, page, perPage := pageOptions(q.Page, q.PerPage)
	filter := repository.PurchaseFilter{
		Query:   strings.TrimSpace(q.Query),
		Variant: q.Variant,
		Status:  q.Status,
	}

	records, total, err := l.store.Purchases().SearchPurchases(ctx, userID, filter, opts)
	if err != nil {
		l.logger.Error("failed to search purchases",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return repository.Page[model.Purchase]{}, fmt.Errorf("service/purchase: searching: %w", err)
	}
	return repository.NewPage(records, total, page, perPage), nil
}

// Get returns purchase id owned by userID.
func (l *PurchaseLedger) Get(ctx context.Context, actor model.Actor, userID, id string) (*model.Purchase, error) {
	if err := requireSelfOrAdmin(l.authz, actor, userID); err != nil {
		return nil, err
	}
	return l.store.Purchases().GetPurchase(ctx, userID, strings.TrimSpace(id))
}

// Redeem applies the effect of record to its owner:
//
//	IconPurchase        user.Avatar = icon
//	TitlePurchase       user.Title = label
//	ConsumablePurchase  one unit is used up (quantity-1, Used, UsedAt)
//	ProviderPurchase    nothing
//
// Invitations are not redeemable here; they are spent by minting a token.
// Any other variant fails with ErrInvalidPurchaseVariant.
func (l *PurchaseLedger) Redeem(ctx context.Context, repos repository.Repositories, user *model.User, record *model.Purchase) error {
	if user == nil {
		return apperror.UserRequired()
	}

	switch d := record.Details.(type) {
	case model.IconPurchase:
		user.Avatar = d.Icon
		if err := repos.Users().UpdateProfile(ctx, user); err != nil {
			return fmt.Errorf("service/purchase: applying icon: %w", err)
		}

	case model.TitlePurchase:
		user.Title = d.Label
		if err := repos.Users().UpdateProfile(ctx, user); err != nil {
			return fmt.Errorf("service/purchase: applying title: %w", err)
		}

	case model.ConsumablePurchase:
		if d.Kind == model.KindInvitation {
			return apperror.ValidationFailed("variant", "invitations are used by minting a token")
		}
		if record.Quantity <= 0 {
			return apperror.Forbidden("Nothing left to redeem")
		}
		now := l.now()
		d.Used = true
		d.UsedAt = &now
		record.Details = d
		record.Quantity--
		if err := repos.Purchases().SavePurchase(ctx, record); err != nil {
			return fmt.Errorf("service/purchase: consuming %s: %w", d.Kind, err)
		}

	case model.ProviderPurchase:
		// Provider access is granted by ownership alone.

	default:
		return apperror.InvalidPurchaseVariant(string(record.Variant()))
	}

	l.logger.Info("purchase redeemed",
		slog.String("userID", user.ID),
		slog.String("purchaseID", record.ID),
		slog.String("variant", string(record.Variant())),
	)
	return nil
}

// recordRedemption counts a redemption attempt once its scope has ended.
func recordRedemption(record *model.Purchase, err error) {
	variant := ""
	if record != nil {
		variant = string(record.Variant())
	}
	metrics.RecordRedemption(variant, err)
}
