package tenancy

import (
	"context"
	"fmt"
)

// Scope is the query-isolation strategy for one scope kind. Variants are
// Unbound (no-op) and BoundTo (equality predicate on the context column).
type Scope interface {
	// Predicate appends the scope's condition and bind argument, or returns
	// both slices unchanged when the scope does not apply. Placeholders are
	// numbered after the existing args.
	Predicate(column string, conds []string, args []any) ([]string, []any)

	// Bound reports whether the scope carries a container id.
	Bound() bool
}

// Unbound is the no-op scope: queries run unscoped. Used when no context of
// the kind is bound for the request, when the kind is not managed by this
// installation, or when the caller explicitly bypassed the scope.
type Unbound struct{}

func (Unbound) Predicate(_ string, conds []string, args []any) ([]string, []any) {
	return conds, args
}

func (Unbound) Bound() bool { return false }

// BoundTo scopes queries to a single container id.
type BoundTo string

func (b BoundTo) Predicate(column string, conds []string, args []any) ([]string, []any) {
	args = append(args, string(b))
	conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	return conds, args
}

func (b BoundTo) Bound() bool { return true }

// ScopeSet carries the per-request scope for each kind. Both kinds can apply
// to the same entity simultaneously; their predicates are ANDed.
type ScopeSet struct {
	Tenant Scope
	Team   Scope
}

// Scoper derives scope sets from the ambient resolved context. Kinds that
// are not managed by the installation always yield Unbound so truly global
// deployments are never filtered to empty result sets.
type Scoper struct {
	manageTenant bool
	manageTeam   bool
}

// NewScoper configures which scope kinds are active.
func NewScoper(manageTenant, manageTeam bool) *Scoper {
	return &Scoper{manageTenant: manageTenant, manageTeam: manageTeam}
}

// Scopes reads the ambient resolved context and bypass flags off ctx.
func (s *Scoper) Scopes(ctx context.Context) ScopeSet {
	set := ScopeSet{Tenant: Unbound{}, Team: Unbound{}}
	rc, ok := Resolved(ctx)
	if !ok {
		return set
	}
	if s.manageTenant && rc.HasTenant() && !tenantScopeBypassed(ctx) {
		set.Tenant = BoundTo(rc.Tenant.ID)
	}
	if s.manageTeam && rc.HasTeam() && !teamScopeBypassed(ctx) {
		set.Team = BoundTo(rc.Team.ID)
	}
	return set
}
