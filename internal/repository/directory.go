package repository

import (
	"context"
	"errors"

	"github.com/ssntpl/neev/internal/domain"
	"github.com/ssntpl/neev/internal/tenancy"
)

// TenantDirectory adapts TenantRepository lookups to the resolver's
// read-only directory contract.
type TenantDirectory struct {
	Tenants TenantRepository
}

func (d TenantDirectory) ByID(ctx context.Context, id string) (*domain.Tenant, error) {
	return mapNotFound(d.Tenants.GetTenantByID(ctx, id))
}

func (d TenantDirectory) BySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	return mapNotFound(d.Tenants.GetTenantBySlug(ctx, slug))
}

func (d TenantDirectory) ByDomain(ctx context.Context, host string) (*domain.Tenant, error) {
	return mapNotFound(d.Tenants.GetTenantByDomain(ctx, host))
}

// TeamDirectory adapts TeamRepository lookups for the resolver.
type TeamDirectory struct {
	Teams TeamRepository
}

func (d TeamDirectory) ByID(ctx context.Context, id string) (*domain.Team, error) {
	return mapNotFound(d.Teams.GetTeamByID(ctx, id))
}

func (d TeamDirectory) BySlug(ctx context.Context, slug string) (*domain.Team, error) {
	return mapNotFound(d.Teams.GetTeamBySlug(ctx, slug))
}

func (d TeamDirectory) ByDomain(ctx context.Context, host string) (*domain.Team, error) {
	return mapNotFound(d.Teams.GetTeamByDomain(ctx, host))
}

var (
	_ tenancy.Directory[*domain.Tenant] = TenantDirectory{}
	_ tenancy.Directory[*domain.Team]   = TeamDirectory{}
)

func mapNotFound[T any](got T, err error) (T, error) {
	if errors.Is(err, ErrNotFound) {
		var zero T
		return zero, tenancy.ErrNotFound
	}
	return got, err
}
