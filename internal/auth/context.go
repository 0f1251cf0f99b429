package auth

import (
	"context"
)

// Actor identifies the user on whose behalf a request runs. Identity is
// established upstream; this service only carries the id along.
type Actor struct {
	UserID int64
	// ViaAPIKey is set when the caller also presented the shared API key
	ViaAPIKey bool
}

type contextKey string

const actorContextKey contextKey = "actor"

// WithActor adds the actor to the context
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// FromContext extracts the actor from the context
func FromContext(ctx context.Context) (*Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(*Actor)
	return actor, ok
}

// ActorID returns the acting user id, or 0 when the context carries none
func ActorID(ctx context.Context) int64 {
	if actor, ok := FromContext(ctx); ok {
		return actor.UserID
	}
	return 0
}
