// Package postgres implements the persistence interfaces on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ssntpl/neev/internal/domain"
	"github.com/ssntpl/neev/internal/repository"
	"github.com/ssntpl/neev/internal/tenancy"
)

// Repository implements persistence interfaces on PostgreSQL. Queries
// against scoped entities consult the ambient resolved context through the
// configured Scoper.
type Repository struct {
	pool   *pgxpool.Pool
	scoper *tenancy.Scoper
}

// New constructs a Repository.
func New(pool *pgxpool.Pool, scoper *tenancy.Scoper) *Repository {
	if scoper == nil {
		scoper = tenancy.NewScoper(false, false)
	}
	return &Repository{pool: pool, scoper: scoper}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository            = (*Repository)(nil)
	_ repository.TenantRepository          = (*Repository)(nil)
	_ repository.TeamRepository            = (*Repository)(nil)
	_ repository.InvitationRepository      = (*Repository)(nil)
	_ repository.PasswordHistoryRepository = (*Repository)(nil)
	_ repository.PasswordRuleRepository    = (*Repository)(nil)
	_ repository.LoginAttemptRepository    = (*Repository)(nil)
)

const userColumns = `id, name, username, email, password_hash, password_changed_at, tenant_id, created_at`

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, name, username, email, password_hash, password_changed_at, tenant_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query, user.ID, user.Name, user.Username, user.Email,
		user.PasswordHash, user.PasswordChangedAt, nullable(user.TenantID), user.CreatedAt)
	return err
}

// GetUserByEmail fetches a user by email, scoped to the ambient tenant.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	conds := []string{"email = $1"}
	args := []any{email}
	conds, args = r.scoper.Scopes(ctx).Tenant.Predicate("tenant_id", conds, args)
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + strings.Join(conds, " AND ")
	return r.scanUser(r.pool.QueryRow(ctx, query, args...))
}

// GetUserByID retrieves a user by identifier, scoped to the ambient tenant.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	conds := []string{"id = $1"}
	args := []any{id}
	conds, args = r.scoper.Scopes(ctx).Tenant.Predicate("tenant_id", conds, args)
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + strings.Join(conds, " AND ")
	return r.scanUser(r.pool.QueryRow(ctx, query, args...))
}

// UpdatePassword stores a new password hash and its change timestamp.
func (r *Repository) UpdatePassword(ctx context.Context, userID string, hash []byte, changedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, password_changed_at = $3 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, userID, hash, changedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *Repository) scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	var tenantID *string
	if err := row.Scan(&u.ID, &u.Name, &u.Username, &u.Email, &u.PasswordHash,
		&u.PasswordChangedAt, &tenantID, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if tenantID != nil {
		u.TenantID = *tenantID
	}
	return &u, nil
}

const tenantColumns = `id, slug, display_name, domain, domain_verified,
		auth_method, sso_provider, sso_client_id, sso_client_secret, sso_tenant_id,
		auto_provision, auto_provision_role, created_at`

// CreateTenant inserts a tenant with its identity provider settings.
func (r *Repository) CreateTenant(ctx context.Context, tenant *domain.Tenant) error {
	const query = `INSERT INTO tenants (id, slug, display_name, domain, domain_verified,
		auth_method, sso_provider, sso_client_id, sso_client_secret, sso_tenant_id,
		auto_provision, auto_provision_role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	p := tenant.Provider
	_, err := r.pool.Exec(ctx, query, tenant.ID, tenant.Slug, tenant.DisplayName,
		tenant.Domain, tenant.DomainVerified, string(p.AuthMethod), p.SSOProvider,
		p.SSOClientID, p.SSOClientSecret, p.SSOTenantID, p.AutoProvision,
		p.AutoProvisionRole, tenant.CreatedAt)
	return err
}

// GetTenantByID retrieves a tenant by identifier.
func (r *Repository) GetTenantByID(ctx context.Context, id string) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	return r.scanTenant(r.pool.QueryRow(ctx, query, id))
}

// GetTenantBySlug retrieves a tenant by slug.
func (r *Repository) GetTenantBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE slug = $1`
	return r.scanTenant(r.pool.QueryRow(ctx, query, slug))
}

// GetTenantByDomain retrieves a tenant by verified custom domain.
func (r *Repository) GetTenantByDomain(ctx context.Context, host string) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE domain = $1 AND domain_verified`
	return r.scanTenant(r.pool.QueryRow(ctx, query, host))
}

// TenantSlugExists reports whether a slug is taken by another tenant.
// Uniqueness is per entity class, so the check is deliberately unscoped.
func (r *Repository) TenantSlugExists(ctx context.Context, slug, excludeID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM tenants WHERE slug = $1 AND id <> $2)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, slug, excludeID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *Repository) scanTenant(row pgx.Row) (*domain.Tenant, error) {
	var t domain.Tenant
	var method string
	if err := row.Scan(&t.ID, &t.Slug, &t.DisplayName, &t.Domain, &t.DomainVerified,
		&method, &t.Provider.SSOProvider, &t.Provider.SSOClientID, &t.Provider.SSOClientSecret,
		&t.Provider.SSOTenantID, &t.Provider.AutoProvision, &t.Provider.AutoProvisionRole,
		&t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	t.Provider.AuthMethod = domain.AuthMethod(method)
	return &t, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
