// Package handler is the HTTP boundary of the engine. Handlers decode the
// request, take the acting user from the request context, call one service
// operation and encode its result. They hold no business rules.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/sakif/recshare/internal/apperror"
	"github.com/sakif/recshare/internal/auth"
	"github.com/sakif/recshare/internal/model"
	"github.com/sakif/recshare/internal/repository"
	"github.com/sakif/recshare/internal/service"
)

// The interfaces below are what the handlers need from the service layer.
// The *service types satisfy them; tests may substitute their own.

type MarketService interface {
	CreateItem(ctx context.Context, actor model.Actor, in service.ItemInput) (*model.MarketItem, error)
	UpdateItem(ctx context.Context, actor model.Actor, id string, in service.ItemInput) (*model.MarketItem, error)
	GetItem(ctx context.Context, actor model.Actor, id string) (*model.MarketItem, error)
	SearchItems(ctx context.Context, actor model.Actor, q service.MarketQuery) (repository.Page[model.MarketItem], error)
}

type PurchaseService interface {
	Search(ctx context.Context, actor model.Actor, userID string, q service.PurchaseQuery) (repository.Page[model.Purchase], error)
	Get(ctx context.Context, actor model.Actor, userID, id string) (*model.Purchase, error)
}

type Orchestrator interface {
	Buy(ctx context.Context, actor model.Actor, itemID, userID string, quantity int64) (*service.BuyResult, error)
	BuyCanned(ctx context.Context, actor model.Actor, userID string, kind model.ConsumableKind) (*service.BuyResult, error)
	RedeemFlow(ctx context.Context, actor model.Actor, userID, purchaseID string) (*service.RedeemResult, error)
	RewardOnLike(ctx context.Context, actor model.Actor, ownerID string, isRequestAuthor bool) (*service.RewardResult, error)
	RewardOnUnlike(ctx context.Context, actor model.Actor, ownerID string, isRequestAuthor bool) (*service.RewardResult, error)
}

type InvitationService interface {
	MintInvitationToken(ctx context.Context, actor model.Actor) (*service.MintedToken, error)
	ConsumeToken(ctx context.Context, actor model.Actor, raw, newUserID string) (*model.AccountToken, error)
	ListTokens(ctx context.Context, actor model.Actor, userID string) ([]model.AccountToken, error)
}

type NotificationService interface {
	ListNotifications(ctx context.Context, actor model.Actor, userID string, page, perPage int) ([]model.Notification, error)
}

var (
	_ MarketService     = (*service.MarketService)(nil)
	_ PurchaseService   = (*service.PurchaseLedger)(nil)
	_ Orchestrator      = (*service.Orchestrator)(nil)
	_ InvitationService = (*service.InvitationService)(nil)

	_ NotificationService = (*service.NotificationService)(nil)
)

// requireActor returns the caller stored by auth.RequireAuth, answering 401
// itself when there is none.
func requireActor(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "valid authentication required",
		})
	}
	return actor, ok
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(name, name+" must be an integer")
	}
	return n, nil
}

// queryBool returns nil when the parameter is absent.
func queryBool(r *http.Request, name string) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperror.ValidationFailed(name, name+" must be true or false")
	}
	return &b, nil
}

func pageParams(r *http.Request) (page, perPage int, err error) {
	if page, err = queryInt(r, "page"); err != nil {
		return 0, 0, err
	}
	if perPage, err = queryInt(r, "perPage"); err != nil {
		return 0, 0, err
	}
	return page, perPage, nil
}
