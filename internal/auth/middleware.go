package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sakif/recshare/internal/model"
)

type contextKey string

const actorKey contextKey = "actor"

// CookieName is the cookie the web client stores the access token in.
const CookieName = "token"

// RequireAuth rejects requests without a valid access token with 401 and
// stores the authenticated model.Actor in the request context.
//
// The token is read from "Authorization: Bearer <jwt>" first, then from the
// token cookie.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := extractActor(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// WithActor returns a copy of ctx carrying actor.
func WithActor(ctx context.Context, actor model.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the actor stored by RequireAuth.
func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(model.Actor)
	return actor, ok && actor.UserID != ""
}

var errNoToken = errors.New("auth: no token on request")

func extractActor(r *http.Request, tokens *TokenService) (model.Actor, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return model.Actor{}, errNoToken
		}
		return tokens.Validate(strings.TrimSpace(token))
	}

	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return model.Actor{}, errNoToken
	}
	return tokens.Validate(cookie.Value)
}
