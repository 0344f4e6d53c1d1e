package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/recshare/internal/auth"
	"github.com/sakif/recshare/internal/handler"
	"github.com/sakif/recshare/internal/model"
	"github.com/sakif/recshare/internal/repository/memory"
	"github.com/sakif/recshare/internal/service"
)

var admin = model.Actor{UserID: "admin-1", Role: model.RoleAdmin}

// api is the /api route table over real services and an in-memory store.
// Requests carry their actor in the context; authentication itself is
// covered by the auth package.
type api struct {
	router http.Handler
	store  *memory.Store
}

func newAPI(t *testing.T) *api {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	authz := service.RoleAuthorizer{}
	currency := service.NewCurrencyLedger(logger)
	purchases := service.NewPurchaseLedger(store, authz, logger)
	market := service.NewMarketService(store, logger)
	orders := service.NewOrchestrator(service.OrchestratorDeps{
		Store:     store,
		Currency:  currency,
		Purchases: purchases,
		Notifier:  service.NewStoreNotifier(logger),
		Logger:    logger,
	})
	invitations := service.NewInvitationService(store, auth.NewSecretHasherForTest(bcrypt.MinCost), authz, logger)
	require.NoError(t, market.EnsurePresets(context.Background(), service.DefaultPresets(0, 0)))

	mh := handler.NewMarketHandler(market, orders, logger)
	ph := handler.NewPurchaseHandler(purchases, orders, logger)
	rh := handler.NewRewardHandler(orders, logger)
	ih := handler.NewInvitationHandler(invitations, logger)
	nh := handler.NewNotificationHandler(service.NewNotificationService(store, authz), logger)

	r := chi.NewRouter()
	r.Get("/api/market", mh.HandleSearch)
	r.Post("/api/market", mh.HandleCreate)
	r.Get("/api/market/{id}", mh.HandleGet)
	r.Put("/api/market/{id}", mh.HandleUpdate)
	r.Post("/api/market/{id}/buy", mh.HandleBuy)
	r.Get("/api/users/{userID}/purchases", ph.HandleSearch)
	r.Post("/api/users/{userID}/purchases/canned", ph.HandleBuyCanned)
	r.Get("/api/users/{userID}/purchases/{id}", ph.HandleGet)
	r.Post("/api/users/{userID}/purchases/{id}/redeem", ph.HandleRedeem)
	r.Post("/api/rewards/like", rh.HandleLike)
	r.Post("/api/rewards/unlike", rh.HandleUnlike)
	r.Post("/api/invitations", ih.HandleMint)
	r.Post("/api/invitations/consume", ih.HandleConsume)
	r.Get("/api/users/{userID}/invitations", ih.HandleList)
	r.Get("/api/users/{userID}/notifications", nh.HandleList)

	return &api{router: r, store: store}
}

func (a *api) user(t *testing.T, username string, balance int64) model.Actor {
	t.Helper()
	u := &model.User{Username: username, Role: model.RoleUser, Balance: balance}
	require.NoError(t, a.store.Users().Create(context.Background(), u))
	return model.Actor{UserID: u.ID, Role: u.Role}
}

func (a *api) balance(t *testing.T, userID string) int64 {
	t.Helper()
	u, err := a.store.Users().GetUserByID(context.Background(), userID)
	require.NoError(t, err)
	return u.Balance
}

// do sends a request as actor. A zero actor sends it unauthenticated.
func (a *api) do(t *testing.T, actor model.Actor, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor.UserID != "" {
		req = req.WithContext(auth.WithActor(req.Context(), actor))
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), rr.Body.String())
	return v
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

type itemBody struct {
	ID      string          `json:"id"`
	Title   string          `json:"title"`
	Price   int64           `json:"price"`
	Enabled bool            `json:"enabled"`
	Variant string          `json:"variant"`
	Details json.RawMessage `json:"details"`
}

type purchaseBody struct {
	ID       string `json:"id"`
	ItemID   string `json:"itemId"`
	Quantity int64  `json:"quantity"`
	Variant  string `json:"variant"`
	Payment  struct {
		Price int64 `json:"price"`
	} `json:"payment"`
}

type buyBody struct {
	Purchase purchaseBody `json:"purchase"`
	Charged  int64        `json:"charged"`
	Balance  int64        `json:"balance"`
}

type pageBody[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func (a *api) createItem(t *testing.T, body map[string]any) itemBody {
	t.Helper()
	rr := a.do(t, admin, http.MethodPost, "/api/market", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[itemBody](t, rr)
}

func iconItem(title string, price int64) map[string]any {
	return map[string]any{
		"title":   title,
		"price":   price,
		"variant": "icon",
		"details": map[string]string{"icon": title + ".png"},
	}
}
