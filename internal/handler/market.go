package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/recshare/internal/model"
	"github.com/sakif/recshare/internal/service"
)

// MarketHandler serves the catalog and the buy endpoint.
type MarketHandler struct {
	market MarketService
	orders Orchestrator
	logger *slog.Logger
}

func NewMarketHandler(market MarketService, orders Orchestrator, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{market: market, orders: orders, logger: logger}
}

// HandleSearch lists catalog items.
//
// HTTP: GET /api/market?q=crown&variant=icon&enabled=true&page=1&perPage=20
func (h *MarketHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	page, perPage, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	enabled, err := queryBool(r, "enabled")
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.market.SearchItems(r.Context(), actor, service.MarketQuery{
		Query:   r.URL.Query().Get("q"),
		Variant: model.ItemVariant(r.URL.Query().Get("variant")),
		Enabled: enabled,
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPage(result, newItemResponse))
}

// HandleGet returns one item.
//
// HTTP: GET /api/market/{id}
func (h *MarketHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	item, err := h.market.GetItem(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newItemResponse(item))
}

// HandleCreate adds an item to the catalog. Admin only.
//
// HTTP: POST /api/market
// REQUEST BODY: {"title":"Crown","price":30,"variant":"icon","details":{"icon":"crown.png"}}
func (h *MarketHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req itemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(w, err)
		return
	}

	item, err := h.market.CreateItem(r.Context(), actor, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newItemResponse(item))
}

// HandleUpdate replaces the editable fields of an item. Admin only.
//
// HTTP: PUT /api/market/{id}
func (h *MarketHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req itemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(w, err)
		return
	}

	item, err := h.market.UpdateItem(r.Context(), actor, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newItemResponse(item))
}

type buyRequest struct {
	Quantity int64  `json:"quantity"`
	UserID   string `json:"userId"` // admins may buy for someone else
}

// HandleBuy charges the caller for an item.
//
// HTTP: POST /api/market/{id}/buy
// REQUEST BODY: {"quantity": 2}
func (h *MarketHandler) HandleBuy(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req buyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID := req.UserID
	if userID == "" {
		userID = actor.UserID
	}

	res, err := h.orders.Buy(r.Context(), actor, chi.URLParam(r, "id"), userID, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newBuyResponse(res))
}
