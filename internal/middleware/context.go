package middleware

import "context"

type contextKey string

const actorHolderKey contextKey = "actor-holder"

type actorHolder struct {
	userID string
}

func withActorHolder(ctx context.Context, h *actorHolder) context.Context {
	return context.WithValue(ctx, actorHolderKey, h)
}
