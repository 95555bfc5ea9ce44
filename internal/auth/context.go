package auth

import (
	"context"

	"github.com/chikezeogu/fundflow/internal/domain"
)

type contextKey string

const contextActor contextKey = "actor"

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, contextActor, actor)
}

// ActorFrom returns the authenticated actor, if the request passed
// through the auth middleware.
func ActorFrom(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(contextActor).(domain.Actor)
	return actor, ok
}
