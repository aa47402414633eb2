// Package appctx carries request-scoped values shared across layers.
package appctx

import "context"

type contextKey string

const actorKey contextKey = "actor"

// SystemActor is stamped on records changed by scheduled jobs.
const SystemActor = "system"

// WithActor returns a context carrying the id of the user performing an operation.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom returns the acting user id, or SystemActor when none is set.
func ActorFrom(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey).(string); ok && v != "" {
		return v
	}
	return SystemActor
}
