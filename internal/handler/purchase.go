package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/recshare/internal/model"
	"github.com/sakif/recshare/internal/repository"
	"github.com/sakif/recshare/internal/service"
)

// PurchaseHandler serves a user's purchase records under
// /api/users/{userID}/purchases.
type PurchaseHandler struct {
	purchases PurchaseService
	orders    Orchestrator
	logger    *slog.Logger
}

func NewPurchaseHandler(purchases PurchaseService, orders Orchestrator, logger *slog.Logger) *PurchaseHandler {
	return &PurchaseHandler{purchases: purchases, orders: orders, logger: logger}
}

// HandleSearch lists the user's records.
//
// HTTP: GET /api/users/{userID}/purchases?q=&variant=&status=available
func (h *PurchaseHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	page, perPage, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()

	result, err := h.purchases.Search(r.Context(), actor, chi.URLParam(r, "userID"), service.PurchaseQuery{
		Query:   q.Get("q"),
		Variant: model.PurchaseVariant(q.Get("variant")),
		Status:  repository.PurchaseStatus(q.Get("status")),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPage(result, newPurchaseResponse))
}

// HandleGet returns one record.
//
// HTTP: GET /api/users/{userID}/purchases/{id}
func (h *PurchaseHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	p, err := h.purchases.Get(r.Context(), actor, chi.URLParam(r, "userID"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPurchaseResponse(p))
}

// HandleRedeem applies a record to its owner's profile.
//
// HTTP: POST /api/users/{userID}/purchases/{id}/redeem
func (h *PurchaseHandler) HandleRedeem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	res, err := h.orders.RedeemFlow(r.Context(), actor, chi.URLParam(r, "userID"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, redeemResponse{
		Purchase: newPurchaseResponse(res.Purchase),
		User:     res.User,
	})
}

type cannedRequest struct {
	Kind model.ConsumableKind `json:"kind"`
}

// HandleBuyCanned buys one preset consumable.
//
// HTTP: POST /api/users/{userID}/purchases/canned
// REQUEST BODY: {"kind": "invitation"}
func (h *PurchaseHandler) HandleBuyCanned(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req cannedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.orders.BuyCanned(r.Context(), actor, chi.URLParam(r, "userID"), req.Kind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newBuyResponse(res))
}
