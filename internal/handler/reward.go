package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/recshare/internal/model"
	"github.com/sakif/recshare/internal/service"
)

// RewardHandler is called by the recommendation feed when an answer is
// liked or unliked.
type RewardHandler struct {
	orders Orchestrator
	logger *slog.Logger
}

func NewRewardHandler(orders Orchestrator, logger *slog.Logger) *RewardHandler {
	return &RewardHandler{orders: orders, logger: logger}
}

type rewardRequest struct {
	OwnerID       string `json:"ownerId"`
	RequestAuthor bool   `json:"requestAuthor"` // liker authored the request being answered
}

// HandleLike credits the owner of a liked recommendation.
//
// HTTP: POST /api/rewards/like
// REQUEST BODY: {"ownerId": "...", "requestAuthor": true}
func (h *RewardHandler) HandleLike(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, h.orders.RewardOnLike)
}

// HandleUnlike takes the reward back, never below a zero balance.
//
// HTTP: POST /api/rewards/unlike
func (h *RewardHandler) HandleUnlike(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, h.orders.RewardOnUnlike)
}

type rewardFunc func(ctx context.Context, actor model.Actor, ownerID string, isRequestAuthor bool) (*service.RewardResult, error)

func (h *RewardHandler) handle(w http.ResponseWriter, r *http.Request, fn rewardFunc) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req rewardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := fn(r.Context(), actor, req.OwnerID, req.RequestAuthor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
