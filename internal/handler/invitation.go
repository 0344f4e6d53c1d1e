package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// InvitationHandler mints and consumes account-creation tokens.
type InvitationHandler struct {
	invitations InvitationService
	logger      *slog.Logger
}

func NewInvitationHandler(invitations InvitationService, logger *slog.Logger) *InvitationHandler {
	return &InvitationHandler{invitations: invitations, logger: logger}
}

// HandleMint spends one invitation of the caller on a new token. The
// plaintext token is in this response and nowhere else.
//
// HTTP: POST /api/invitations
func (h *InvitationHandler) HandleMint(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	minted, err := h.invitations.MintInvitationToken(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, minted)
}

// HandleList returns the tokens a user has minted.
//
// HTTP: GET /api/users/{userID}/invitations
func (h *InvitationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	tokens, err := h.invitations.ListTokens(r.Context(), actor, chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

type consumeRequest struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

// HandleConsume marks a token used by the account being created. Only the
// admin-role signup flow may call it.
//
// HTTP: POST /api/invitations/consume
// REQUEST BODY: {"token": "<id>.<secret>", "userId": "..."}
func (h *InvitationHandler) HandleConsume(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req consumeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	token, err := h.invitations.ConsumeToken(r.Context(), actor, req.Token, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.logger.Debug("invitation consumed via API", slog.String("tokenID", token.ID))
	writeJSON(w, http.StatusOK, token)
}
