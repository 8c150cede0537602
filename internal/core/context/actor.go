package context

import (
	"context"
)

// ActorContext identifies who is performing the current operation.
// Ledger movements record the actor verbatim for traceability; the core
// performs no permission checks of its own.
type ActorContext struct {
	Actor string // login, service name or integration id
	Via   string // entry path: "api", "worker", "import"
}

type actorContextKey struct{}

// WithActor adds ActorContext to context.
func WithActor(ctx context.Context, actor *ActorContext) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// GetActor returns ActorContext from context, or nil.
func GetActor(ctx context.Context) *ActorContext {
	if v, ok := ctx.Value(actorContextKey{}).(*ActorContext); ok {
		return v
	}
	return nil
}

// ActorName returns the actor name from context or "system" when absent.
// Background jobs run without a request actor and fall back to this default.
func ActorName(ctx context.Context) string {
	if a := GetActor(ctx); a != nil && a.Actor != "" {
		return a.Actor
	}
	return "system"
}
