// Package tenancy resolves which tenant and team an inbound request belongs
// to and scopes data access by that binding.
package tenancy

import (
	"context"

	"github.com/ssntpl/neev/internal/domain"
)

// ResolvedContext is the per-request binding of which containers apply.
// It is created empty at request start, populated once by the resolver
// chain, and read many times afterwards. Never shared across requests.
type ResolvedContext struct {
	Tenant *domain.Tenant
	Team   *domain.Team
}

// HasTenant reports whether a tenant is bound.
func (rc *ResolvedContext) HasTenant() bool { return rc != nil && rc.Tenant != nil }

// HasTeam reports whether a team is bound.
func (rc *ResolvedContext) HasTeam() bool { return rc != nil && rc.Team != nil }

type contextKey int

const (
	keyResolved contextKey = iota
	keyBypassTenant
	keyBypassTeam
)

// WithResolved binds a resolved context to the request context.
func WithResolved(ctx context.Context, rc *ResolvedContext) context.Context {
	return context.WithValue(ctx, keyResolved, rc)
}

// Resolved extracts the request's resolved context.
func Resolved(ctx context.Context) (*ResolvedContext, bool) {
	rc, ok := ctx.Value(keyResolved).(*ResolvedContext)
	return rc, ok && rc != nil
}

// WithoutTenantScope marks the request context so queries intentionally
// cross tenant boundaries. The escape hatch is explicit per scope kind.
func WithoutTenantScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, keyBypassTenant, true)
}

// WithoutTeamScope marks the request context so queries intentionally
// cross team boundaries.
func WithoutTeamScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, keyBypassTeam, true)
}

func tenantScopeBypassed(ctx context.Context) bool {
	v, _ := ctx.Value(keyBypassTenant).(bool)
	return v
}

func teamScopeBypassed(ctx context.Context) bool {
	v, _ := ctx.Value(keyBypassTeam).(bool)
	return v
}
