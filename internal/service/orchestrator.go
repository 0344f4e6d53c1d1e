package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/sakif/recshare/internal/apperror"
	"github.com/sakif/recshare/internal/metrics"
	"github.com/sakif/recshare/internal/model"
	"github.com/sakif/recshare/internal/repository"
)

// MaxBuyQuantity caps a single buy.
const MaxBuyQuantity = 1000

// Stage is the progress of one purchase through its unit of work:
//
//	Started → LedgerRead → Debited → Persisted → Committed
//
// A failure at any stage before Committed ends in Aborted.
type Stage int

const (
	StageStarted Stage = iota
	StageLedgerRead
	StageDebited
	StagePersisted
	StageCommitted
	StageAborted
)

func (s Stage) String() string {
	switch s {
	case StageStarted:
		return "started"
	case StageLedgerRead:
		return "ledger_read"
	case StageDebited:
		return "debited"
	case StagePersisted:
		return "persisted"
	case StageCommitted:
		return "committed"
	case StageAborted:
		return "aborted"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Rewards are the credits granted for a like.
type Rewards struct {
	Like       int64 // liker is not the author of the request
	AuthorLike int64 // liker authored the request being answered
}

func DefaultRewards() Rewards {
	return Rewards{Like: 1, AuthorLike: 5}
}

func (r Rewards) amount(isRequestAuthor bool) int64 {
	if isRequestAuthor {
		return r.AuthorLike
	}
	return r.Like
}

// BuyResult is the outcome of a committed buy.
type BuyResult struct {
	Purchase *model.Purchase `json:"purchase"`
	Charged  int64           `json:"charged"`
	Balance  int64           `json:"balance"`
}

// RedeemResult is the outcome of a committed redemption.
type RedeemResult struct {
	Purchase *model.Purchase `json:"purchase"`
	User     *model.User     `json:"user"`
}

// RewardResult is the outcome of a like or unlike.
type RewardResult struct {
	OwnerID string `json:"ownerId"`
	Amount  int64  `json:"amount"` // credited, or actually removed on unlike
	Balance int64  `json:"balance"`
}

// OrchestratorDeps are the collaborators of an Orchestrator.
type OrchestratorDeps struct {
	Store     repository.Store
	Currency  *CurrencyLedger
	Purchases *PurchaseLedger
	Notifier  Notifier
	Authz     Authorizer
	Presets   Presets
	Rewards   Rewards
	Logger    *slog.Logger
}

// Orchestrator runs the operations that touch more than one ledger. Each
// operation is exactly one scope: it either commits all of its writes or
// none of them.
type Orchestrator struct {
	store     repository.Store
	currency  *CurrencyLedger
	purchases *PurchaseLedger
	notifier  Notifier
	authz     Authorizer
	presets   Presets
	rewards   Rewards
	logger    *slog.Logger
}

func NewOrchestrator(d OrchestratorDeps) *Orchestrator {
	if d.Authz == nil {
		d.Authz = RoleAuthorizer{}
	}
	if d.Presets == nil {
		d.Presets = DefaultPresets(0, 0)
	}
	if d.Rewards == (Rewards{}) {
		d.Rewards = DefaultRewards()
	}
	return &Orchestrator{
		store:     d.Store,
		currency:  d.Currency,
		purchases: d.Purchases,
		notifier:  d.Notifier,
		authz:     d.Authz,
		presets:   d.Presets,
		rewards:   d.Rewards,
		logger:    d.Logger,
	}
}

// Buy charges userID for quantity units of item itemID and records them on
// the user's purchase record. A quantity of 0 means 1.
//
// The charge is the record's locked unit price times quantity, so an owner
// keeps paying the price of their first purchase after the catalog price
// changes.
func (o *Orchestrator) Buy(ctx context.Context, actor model.Actor, itemID, userID string, quantity int64) (*BuyResult, error) {
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 || quantity > MaxBuyQuantity {
		return nil, apperror.ValidationFailed("quantity",
			fmt.Sprintf("quantity must be between 1 and %d", MaxBuyQuantity))
	}
	if err := requireSelfOrAdmin(o.authz, actor, userID); err != nil {
		return nil, err
	}
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return nil, apperror.ValidationFailed("itemId", "market item ID is required")
	}

	return o.buy(ctx, buyRequest{
		userID:   userID,
		quantity: quantity,
		resolve: func(ctx context.Context, repos repository.Repositories) (*model.MarketItem, error) {
			return repos.Market().GetItemByID(ctx, itemID)
		},
	})
}

// BuyCanned buys one unit of a preset consumable (invitation or gift) at the
// preset's price.
func (o *Orchestrator) BuyCanned(ctx context.Context, actor model.Actor, userID string, kind model.ConsumableKind) (*BuyResult, error) {
	preset, ok := o.presets[kind]
	if !ok {
		return nil, apperror.UnsupportedVariant(string(kind))
	}
	if err := requireSelfOrAdmin(o.authz, actor, userID); err != nil {
		return nil, err
	}

	return o.buy(ctx, buyRequest{
		userID:   userID,
		quantity: 1,
		resolve: func(ctx context.Context, repos repository.Repositories) (*model.MarketItem, error) {
			return repos.Market().GetItemByConsumableKind(ctx, preset.Kind)
		},
		lockPrice: preset.Price,
	})
}

type buyRequest struct {
	userID   string
	quantity int64
	resolve  func(context.Context, repository.Repositories) (*model.MarketItem, error)

	// lockPrice, when set, replaces the item price as the unit price of a
	// new record.
	lockPrice int64
}

// buy is the shared unit of work of Buy and BuyCanned.
func (o *Orchestrator) buy(ctx context.Context, req buyRequest) (result *BuyResult, err error) {
	stage := StageStarted
	variant := ""
	log := o.logger.With(slog.String("userID", req.userID))

	defer func() {
		if err == nil {
			metrics.RecordPurchase(variant, StageCommitted.String())
			return
		}
		failedAt := stage
		stage = StageAborted
		metrics.RecordPurchase(variant, "aborted_at_"+failedAt.String())
		attrs := []any{
			slog.String("stage", stage.String()),
			slog.String("failedAt", failedAt.String()),
			slog.String("error", err.Error()),
		}
		if isDomainError(err) {
			log.Info("purchase aborted", attrs...)
		} else {
			log.Error("purchase aborted", attrs...)
		}
	}()

	scope, err := o.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/orchestrator: %w", err)
	}
	defer scope.End()

	item, err := req.resolve(ctx, scope)
	if err != nil {
		return nil, err
	}
	variant = string(item.Variant())
	log = log.With(slog.String("itemID", item.ID))
	if !item.Enabled {
		return nil, apperror.Disabled("market item", item.ID)
	}

	user, err := scope.Users().GetUserByID(ctx, req.userID)
	if err != nil {
		return nil, err
	}
	record, err := o.purchases.FindOrInit(ctx, scope, item, user)
	if err != nil {
		return nil, err
	}
	if record.IsNew() && req.lockPrice > 0 {
		record.Payment.Price = req.lockPrice
	}
	stage = StageLedgerRead

	charge, err := chargeFor(record, req.quantity)
	if err != nil {
		return nil, err
	}
	record.Quantity += req.quantity

	balance, err := o.currency.Debit(ctx, scope, user, charge)
	if err != nil {
		return nil, err
	}
	stage = StageDebited

	if err := scope.Purchases().SavePurchase(ctx, record); err != nil {
		return nil, fmt.Errorf("service/orchestrator: saving purchase: %w", err)
	}
	stage = StagePersisted

	if err := scope.Commit(); err != nil {
		return nil, fmt.Errorf("service/orchestrator: committing purchase: %w", err)
	}
	stage = StageCommitted
	metrics.RecordCredit("debit", "purchase", charge)

	log.Info("purchase committed",
		slog.String("purchaseID", record.ID),
		slog.Int64("quantity", record.Quantity),
		slog.Int64("charged", charge),
		slog.Int64("balance", balance),
	)
	return &BuyResult{Purchase: record, Charged: charge, Balance: balance}, nil
}

// RedeemFlow applies purchase purchaseID of userID, see PurchaseLedger.Redeem.
func (o *Orchestrator) RedeemFlow(ctx context.Context, actor model.Actor, userID, purchaseID string) (result *RedeemResult, err error) {
	if err := requireSelfOrAdmin(o.authz, actor, userID); err != nil {
		return nil, err
	}

	var record *model.Purchase
	defer func() { recordRedemption(record, err) }()

	scope, err := o.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/orchestrator: %w", err)
	}
	defer scope.End()

	record, err = scope.Purchases().GetPurchase(ctx, userID, strings.TrimSpace(purchaseID))
	if err != nil {
		return nil, err
	}
	user, err := scope.Users().GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := o.purchases.Redeem(ctx, scope, user, record); err != nil {
		return nil, err
	}
	if err := scope.Commit(); err != nil {
		return nil, fmt.Errorf("service/orchestrator: committing redemption: %w", err)
	}
	return &RedeemResult{Purchase: record, User: user}, nil
}

// RewardOnLike credits ownerID for a like by actor and, in the same scope,
// emits a like_reward notification to the owner.
func (o *Orchestrator) RewardOnLike(ctx context.Context, actor model.Actor, ownerID string, isRequestAuthor bool) (*RewardResult, error) {
	if err := checkLike(actor, ownerID); err != nil {
		return nil, err
	}
	amount := o.rewards.amount(isRequestAuthor)

	scope, err := o.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/orchestrator: %w", err)
	}
	defer scope.End()

	owner, err := scope.Users().GetUserByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	balance, err := o.currency.Credit(ctx, scope, owner, amount)
	if err != nil {
		return nil, err
	}
	if err := o.notifier.Notify(ctx, scope, &model.Notification{
		ToUser:   ownerID,
		FromUser: actor.UserID,
		Type:     model.NotificationLikeReward,
		Amount:   amount,
	}); err != nil {
		return nil, err
	}
	if err := scope.Commit(); err != nil {
		return nil, fmt.Errorf("service/orchestrator: committing like reward: %w", err)
	}
	metrics.RecordCredit("credit", "like", amount)

	o.logger.Info("like rewarded",
		slog.String("userID", ownerID),
		slog.String("from", actor.UserID),
		slog.Int64("amount", amount),
	)
	return &RewardResult{OwnerID: ownerID, Amount: amount, Balance: balance}, nil
}

// RewardOnUnlike takes back the reward of a like. The removal is clamped at
// the owner's balance, so it never fails for lack of funds.
func (o *Orchestrator) RewardOnUnlike(ctx context.Context, actor model.Actor, ownerID string, isRequestAuthor bool) (*RewardResult, error) {
	if err := checkLike(actor, ownerID); err != nil {
		return nil, err
	}
	amount := o.rewards.amount(isRequestAuthor)

	scope, err := o.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/orchestrator: %w", err)
	}
	defer scope.End()

	owner, err := scope.Users().GetUserByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	removed, balance, err := o.currency.DebitClamped(ctx, scope, owner, amount)
	if err != nil {
		return nil, err
	}
	if err := scope.Commit(); err != nil {
		return nil, fmt.Errorf("service/orchestrator: committing unlike: %w", err)
	}
	metrics.RecordCredit("debit", "unlike", removed)

	o.logger.Info("like reward reversed",
		slog.String("userID", ownerID),
		slog.String("from", actor.UserID),
		slog.Int64("removed", removed),
	)
	return &RewardResult{OwnerID: ownerID, Amount: removed, Balance: balance}, nil
}

// chargeFor returns unit price × quantity for a buy on record, rejecting a
// charge or a resulting quantity that does not fit in an int64.
func chargeFor(record *model.Purchase, quantity int64) (int64, error) {
	price := record.Payment.Price
	if price <= 0 {
		return 0, apperror.InvalidAmount(fmt.Sprintf("unit price must be positive, got %d", price))
	}
	if price > math.MaxInt64/quantity {
		return 0, apperror.ValidationFailed("quantity",
			fmt.Sprintf("%d units at %d each exceeds the largest chargeable amount", quantity, price))
	}
	if record.Quantity > math.MaxInt64-quantity {
		return 0, apperror.ValidationFailed("quantity", "purchase quantity would overflow")
	}
	return price * quantity, nil
}

func checkLike(actor model.Actor, ownerID string) error {
	if actor.UserID == "" {
		return apperror.Forbidden("an authenticated user is required")
	}
	if strings.TrimSpace(ownerID) == "" {
		return apperror.ValidationFailed("ownerId", "recommendation owner is required")
	}
	if ownerID == actor.UserID {
		return apperror.ValidationFailed("ownerId", "cannot like your own recommendation")
	}
	return nil
}

// isDomainError reports whether err is an expected business outcome rather
// than a store failure.
func isDomainError(err error) bool {
	var appErr *apperror.AppError
	var insufficient *apperror.InsufficientCreditError
	return errors.As(err, &appErr) || errors.As(err, &insufficient)
}
