// Package repository declares the storage contracts of the credit and
// purchase engine.
//
// UNIT OF WORK:
// Every mutating operation runs inside a Scope obtained from Store.Begin.
// A scope is released exactly once through End, which aborts it unless
// Commit already succeeded:
//
//	scope, err := store.Begin(ctx)
//	if err != nil { ... }
//	defer scope.End()
//	... reads and writes through scope.Users(), scope.Purchases() ...
//	return scope.Commit()
//
// Repositories reached through the Store itself (outside a scope) are meant
// for read-only queries such as searches.
package repository

import (
	"context"
	"time"

	"github.com/sakif/recshare/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// Page is one page of search results.
type Page[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	TotalPages int `json:"totalPages"`
}

// NewPage builds a Page from a slice of results and the total match count.
func NewPage[T any](items []T, total, page, perPage int) Page[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := 0
	if perPage > 0 {
		totalPages = (total + perPage - 1) / perPage
	}
	return Page[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)

	// UpdateProfile persists Avatar and Title. It never touches Balance.
	UpdateProfile(ctx context.Context, user *model.User) error

	// AdjustBalance adds delta to the balance and returns the new value.
	// The update is refused with *apperror.InsufficientCreditError when it
	// would leave the balance negative.
	AdjustBalance(ctx context.Context, id string, delta int64) (int64, error)
}

// MarketFilter narrows a market search. Zero values mean "any".
type MarketFilter struct {
	Query   string // case-insensitive substring of title, label or tags
	Variant model.ItemVariant
	Enabled *bool
}

type MarketRepository interface {
	CreateItem(ctx context.Context, item *model.MarketItem) error
	UpdateItem(ctx context.Context, item *model.MarketItem) error
	GetItemByID(ctx context.Context, id string) (*model.MarketItem, error)
	GetItemByConsumableKind(ctx context.Context, kind model.ConsumableKind) (*model.MarketItem, error)

	// TitleExists matches case-insensitively across enabled and disabled
	// items. excludeID may be empty.
	TitleExists(ctx context.Context, title, excludeID string) (bool, error)
	ConsumableKindExists(ctx context.Context, kind model.ConsumableKind, excludeID string) (bool, error)

	SearchItems(ctx context.Context, filter MarketFilter, opts ListOptions) ([]model.MarketItem, int, error)
}

// PurchaseStatus filters purchases by remaining quantity.
type PurchaseStatus string

const (
	StatusAny       PurchaseStatus = ""
	StatusAvailable PurchaseStatus = "available" // quantity > 0
	StatusDepleted  PurchaseStatus = "depleted"  // quantity == 0
)

type PurchaseFilter struct {
	Query   string // case-insensitive substring of the item title
	Variant model.PurchaseVariant
	Status  PurchaseStatus
}

type PurchaseRepository interface {
	// FindPurchase returns the record for (userID, itemID) or NotFound.
	FindPurchase(ctx context.Context, userID, itemID string) (*model.Purchase, error)
	GetPurchase(ctx context.Context, userID, id string) (*model.Purchase, error)
	// FindConsumablePurchase returns a user's record of kind, preferring one with
	// units left and then the oldest.
	FindConsumablePurchase(ctx context.Context, userID string, kind model.ConsumableKind) (*model.Purchase, error)

	// SavePurchase inserts a new record (assigning ID and Version 1) or
	// updates quantity and variant fields of an existing one. Updates are
	// version-checked and fail with ErrConcurrentModification on mismatch.
	// Payment details are written on insert only.
	SavePurchase(ctx context.Context, p *model.Purchase) error

	// SearchPurchases returns a user's purchases, newest first.
	SearchPurchases(ctx context.Context, userID string, filter PurchaseFilter, opts ListOptions) ([]model.Purchase, int, error)
}

type TokenRepository interface {
	CreateToken(ctx context.Context, token *model.AccountToken) error
	GetToken(ctx context.Context, id string) (*model.AccountToken, error)

	// MarkTokenUsed stamps an unused token. It fails with ErrConflict when
	// the token was already used.
	MarkTokenUsed(ctx context.Context, id, usedBy string, at time.Time) error
	ListTokensByCreator(ctx context.Context, userID string) ([]model.AccountToken, error)
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
	ListNotifications(ctx context.Context, userID string, opts ListOptions) ([]model.Notification, error)
}

// Repositories groups every repository of one backing store or scope.
type Repositories interface {
	Users() UserRepository
	Market() MarketRepository
	Purchases() PurchaseRepository
	Tokens() TokenRepository
	Notifications() NotificationRepository
}

// Scope is an atomic unit of work. Reads and writes made through its
// repositories become visible to others only after Commit.
type Scope interface {
	Repositories

	Commit() error
	Abort() error

	// End releases the scope. It aborts when neither Commit nor Abort has
	// been called and is a no-op afterwards, so it is safe to defer.
	End()
}

type Store interface {
	Repositories
	Begin(ctx context.Context) (Scope, error)
}
