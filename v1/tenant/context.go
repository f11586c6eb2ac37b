package tenant

import (
	"context"
	"errors"
)

// ErrTenantRequired is returned when an operation needs a tenant binding
// and the context carries none. It indicates a misconfigured call site.
var ErrTenantRequired = errors.New("tenant: no tenant bound to context")

type ctxKey int

const (
	tenantKey ctxKey = iota
	actorKey
)

// WithTenant binds a tenant id to the context for the duration of a logical
// request. Bind at request entry; the binding dies with the context.
func WithTenant(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, tenantKey, id)
}

// FromContext returns the bound tenant id, if any.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(tenantKey).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// HasTenant reports whether a tenant is bound.
func HasTenant(ctx context.Context) bool {
	_, ok := FromContext(ctx)
	return ok
}

// Require returns the bound tenant id or ErrTenantRequired.
func Require(ctx context.Context) (string, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return "", ErrTenantRequired
	}
	return id, nil
}

// WithActor binds the acting identity (the audit trail's changed-by value).
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the bound actor, if any.
func ActorFromContext(ctx context.Context) (string, bool) {
	a, ok := ctx.Value(actorKey).(string)
	if !ok || a == "" {
		return "", false
	}
	return a, true
}
