package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/xid"

	"github.com/sakif/recshare/internal/apperror"
	"github.com/sakif/recshare/internal/auth"
	"github.com/sakif/recshare/internal/metrics"
	"github.com/sakif/recshare/internal/model"
	"github.com/sakif/recshare/internal/repository"
)

// tokenSeparator splits the plaintext token "<id>.<secret>". Neither xid
// ids nor uuids contain a dot.
const tokenSeparator = "."

// MintedToken is returned once, when a token is minted. Token is the only
// place the plaintext secret ever appears.
type MintedToken struct {
	model.AccountToken
	Token string `json:"token"`
}

// SecretHasher hashes and checks token secrets. *auth.SecretHasher is the
// production implementation.
type SecretHasher interface {
	Hash(plaintext string) (string, error)
	Verify(hash, plaintext string) error
}

// InvitationService turns invitation inventory into account-creation
// tokens.
type InvitationService struct {
	store  repository.Store
	hasher SecretHasher
	authz  Authorizer
	logger *slog.Logger
	now    func() time.Time
}

func NewInvitationService(store repository.Store, hasher SecretHasher, authz Authorizer, logger *slog.Logger) *InvitationService {
	return &InvitationService{
		store:  store,
		hasher: hasher,
		authz:  authz,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// MintInvitationToken spends one unit of the actor's invitation inventory
// on a new account token. The token row and the decrement commit together
// or not at all.
func (s *InvitationService) MintInvitationToken(ctx context.Context, actor model.Actor) (minted *MintedToken, err error) {
	if actor.UserID == "" {
		return nil, apperror.Forbidden("an authenticated user is required")
	}
	defer func() { metrics.RecordToken("mint", err) }()

	scope, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/invitation: %w", err)
	}
	defer scope.End()

	record, err := scope.Purchases().FindConsumablePurchase(ctx, actor.UserID, model.KindInvitation)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Forbidden("Not enough invitations")
		}
		return nil, fmt.Errorf("service/invitation: reading inventory: %w", err)
	}
	if record.Quantity <= 0 {
		return nil, apperror.Forbidden("Not enough invitations")
	}

	secret := uuid.NewString()
	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return nil, fmt.Errorf("service/invitation: %w", err)
	}
	token := &model.AccountToken{
		ID:         xid.New().String(),
		CreatedBy:  actor.UserID,
		SecretHash: hash,
		CreatedAt:  s.now(),
	}
	if err := scope.Tokens().CreateToken(ctx, token); err != nil {
		return nil, fmt.Errorf("service/invitation: storing token: %w", err)
	}

	record.Quantity--
	if err := scope.Purchases().SavePurchase(ctx, record); err != nil {
		return nil, fmt.Errorf("service/invitation: spending invitation: %w", err)
	}
	if err := scope.Commit(); err != nil {
		return nil, fmt.Errorf("service/invitation: committing: %w", err)
	}

	s.logger.Info("invitation token minted",
		slog.String("userID", actor.UserID),
		slog.String("tokenID", token.ID),
		slog.Int64("remaining", record.Quantity),
	)
	return &MintedToken{
		AccountToken: *token,
		Token:        token.ID + tokenSeparator + secret,
	}, nil
}

// ConsumeToken redeems a plaintext token for the account newUserID being
// created by the signup flow, which calls it with an admin actor. Unknown
// tokens are NotFound; used tokens and wrong secrets are Forbidden.
func (s *InvitationService) ConsumeToken(ctx context.Context, actor model.Actor, raw, newUserID string) (token *model.AccountToken, err error) {
	defer func() { metrics.RecordToken("consume", err) }()

	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	id, secret, ok := strings.Cut(strings.TrimSpace(raw), tokenSeparator)
	if !ok || id == "" || secret == "" {
		return nil, apperror.ValidationFailed("token", "malformed invitation token")
	}
	newUserID = strings.TrimSpace(newUserID)
	if newUserID == "" {
		return nil, apperror.ValidationFailed("userId", "the new user's ID is required")
	}

	scope, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/invitation: %w", err)
	}
	defer scope.End()

	token, err = scope.Tokens().GetToken(ctx, id)
	if err != nil {
		return nil, err
	}
	if token.Used() {
		return nil, apperror.Forbidden("invitation token already used")
	}
	if err := s.hasher.Verify(token.SecretHash, secret); err != nil {
		if errors.Is(err, auth.ErrSecretMismatch) {
			return nil, apperror.Forbidden("invalid invitation token")
		}
		return nil, fmt.Errorf("service/invitation: %w", err)
	}

	at := s.now()
	if err := scope.Tokens().MarkTokenUsed(ctx, token.ID, newUserID, at); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.Forbidden("invitation token already used")
		}
		return nil, fmt.Errorf("service/invitation: marking token used: %w", err)
	}
	if err := scope.Commit(); err != nil {
		return nil, fmt.Errorf("service/invitation: committing: %w", err)
	}

	token.UsedBy = newUserID
	token.UsedAt = &at
	s.logger.Info("invitation token consumed",
		slog.String("tokenID", token.ID),
		slog.String("createdBy", token.CreatedBy),
		slog.String("userID", newUserID),
	)
	return token, nil
}

// ListTokens returns the tokens minted by userID, newest first.
func (s *InvitationService) ListTokens(ctx context.Context, actor model.Actor, userID string) ([]model.AccountToken, error) {
	if err := requireSelfOrAdmin(s.authz, actor, userID); err != nil {
		return nil, err
	}
	tokens, err := s.store.Tokens().ListTokensByCreator(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/invitation: listing tokens: %w", err)
	}
	return tokens, nil
}
