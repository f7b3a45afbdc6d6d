package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ssntpl/neev/internal/domain"
	"github.com/ssntpl/neev/internal/repository"
)

const teamColumns = `id, tenant_id, slug, display_name, owner_id, domain, domain_verified,
		auth_method, sso_provider, sso_client_id, sso_client_secret, sso_tenant_id,
		auto_provision, auto_provision_role, created_at`

// CreateTeam creates a team record.
func (r *Repository) CreateTeam(ctx context.Context, team *domain.Team) error {
	const query = `INSERT INTO teams (id, tenant_id, slug, display_name, owner_id, domain, domain_verified,
		auth_method, sso_provider, sso_client_id, sso_client_secret, sso_tenant_id,
		auto_provision, auto_provision_role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	p := team.Provider
	_, err := r.pool.Exec(ctx, query, team.ID, nullable(team.TenantID), team.Slug,
		team.DisplayName, team.OwnerID, team.Domain, team.DomainVerified,
		string(p.AuthMethod), p.SSOProvider, p.SSOClientID, p.SSOClientSecret,
		p.SSOTenantID, p.AutoProvision, p.AutoProvisionRole, team.CreatedAt)
	return err
}

// UpdateTeam rewrites the mutable team fields.
func (r *Repository) UpdateTeam(ctx context.Context, team *domain.Team) error {
	const query = `UPDATE teams SET slug = $2, display_name = $3, domain = $4, domain_verified = $5,
		auth_method = $6, sso_provider = $7, sso_client_id = $8, sso_client_secret = $9,
		sso_tenant_id = $10, auto_provision = $11, auto_provision_role = $12
		WHERE id = $1`
	p := team.Provider
	tag, err := r.pool.Exec(ctx, query, team.ID, team.Slug, team.DisplayName,
		team.Domain, team.DomainVerified, string(p.AuthMethod), p.SSOProvider,
		p.SSOClientID, p.SSOClientSecret, p.SSOTenantID, p.AutoProvision, p.AutoProvisionRole)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetTeamByID returns a team by identifier, scoped to the ambient tenant.
func (r *Repository) GetTeamByID(ctx context.Context, id string) (*domain.Team, error) {
	conds := []string{"id = $1"}
	args := []any{id}
	conds, args = r.scoper.Scopes(ctx).Tenant.Predicate("tenant_id", conds, args)
	query := `SELECT ` + teamColumns + ` FROM teams WHERE ` + strings.Join(conds, " AND ")
	return r.scanTeam(r.pool.QueryRow(ctx, query, args...))
}

// GetTeamBySlug returns a team by slug, scoped to the ambient tenant.
func (r *Repository) GetTeamBySlug(ctx context.Context, slug string) (*domain.Team, error) {
	conds := []string{"slug = $1"}
	args := []any{slug}
	conds, args = r.scoper.Scopes(ctx).Tenant.Predicate("tenant_id", conds, args)
	query := `SELECT ` + teamColumns + ` FROM teams WHERE ` + strings.Join(conds, " AND ")
	return r.scanTeam(r.pool.QueryRow(ctx, query, args...))
}

// GetTeamByDomain returns a team by verified custom domain.
func (r *Repository) GetTeamByDomain(ctx context.Context, host string) (*domain.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE domain = $1 AND domain_verified`
	return r.scanTeam(r.pool.QueryRow(ctx, query, host))
}

// GetVerifiedTeamByEmailDomain returns the verified team owning an email
// domain, used for password policy federation.
func (r *Repository) GetVerifiedTeamByEmailDomain(ctx context.Context, emailDomain string) (*domain.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE domain = $1 AND domain_verified`
	return r.scanTeam(r.pool.QueryRow(ctx, query, emailDomain))
}

// TeamSlugExists reports whether a slug is taken by another team. Uniqueness
// is per entity class, so the check is deliberately unscoped.
func (r *Repository) TeamSlugExists(ctx context.Context, slug, excludeID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM teams WHERE slug = $1 AND id <> $2)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, slug, excludeID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// ListTeamsByUser returns teams a user belongs to, scoped to the ambient tenant.
func (r *Repository) ListTeamsByUser(ctx context.Context, userID string) ([]domain.Team, error) {
	conds := []string{"m.user_id = $1"}
	args := []any{userID}
	conds, args = r.scoper.Scopes(ctx).Tenant.Predicate("t.tenant_id", conds, args)
	query := `SELECT ` + prefixColumns(teamColumns, "t") + ` FROM teams t
		JOIN memberships m ON m.team_id = t.id
		WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY t.created_at`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teams []domain.Team
	for rows.Next() {
		team, err := r.scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, *team)
	}
	return teams, rows.Err()
}

// UpsertMember adds or updates a membership.
func (r *Repository) UpsertMember(ctx context.Context, member *domain.Membership) error {
	const query = `INSERT INTO memberships (team_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (team_id, user_id) DO UPDATE SET role = EXCLUDED.role`
	_, err := r.pool.Exec(ctx, query, member.TeamID, member.UserID, member.Role, member.JoinedAt)
	return err
}

// GetMember fetches one membership row.
func (r *Repository) GetMember(ctx context.Context, teamID, userID string) (*domain.Membership, error) {
	const query = `SELECT team_id, user_id, role, joined_at FROM memberships
		WHERE team_id = $1 AND user_id = $2`
	var m domain.Membership
	if err := r.pool.QueryRow(ctx, query, teamID, userID).Scan(&m.TeamID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// CreateInvitation stores an unresolved membership.
func (r *Repository) CreateInvitation(ctx context.Context, invite *domain.Invitation) error {
	const query = `INSERT INTO invitations (id, team_id, email, user_id, role, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query, invite.ID, invite.TeamID, invite.Email,
		nullable(invite.UserID), invite.Role, invite.Status, invite.ExpiresAt, invite.CreatedAt)
	return err
}

// GetInvitationByID fetches an invitation.
func (r *Repository) GetInvitationByID(ctx context.Context, id string) (*domain.Invitation, error) {
	const query = `SELECT id, team_id, email, user_id, role, status, expires_at, created_at
		FROM invitations WHERE id = $1`
	var inv domain.Invitation
	var userID *string
	if err := r.pool.QueryRow(ctx, query, id).Scan(&inv.ID, &inv.TeamID, &inv.Email,
		&userID, &inv.Role, &inv.Status, &inv.ExpiresAt, &inv.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if userID != nil {
		inv.UserID = *userID
	}
	return &inv, nil
}

// UpdateInvitationStatus moves an invitation through its lifecycle.
func (r *Repository) UpdateInvitationStatus(ctx context.Context, id, status string) error {
	const query = `UPDATE invitations SET status = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListInvitationsByTeam lists invitations, scoped to the ambient team.
func (r *Repository) ListInvitationsByTeam(ctx context.Context, teamID string) ([]domain.Invitation, error) {
	conds := []string{"team_id = $1"}
	args := []any{teamID}
	conds, args = r.scoper.Scopes(ctx).Team.Predicate("team_id", conds, args)
	query := `SELECT id, team_id, email, user_id, role, status, expires_at, created_at
		FROM invitations WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invites []domain.Invitation
	for rows.Next() {
		var inv domain.Invitation
		var userID *string
		if err := rows.Scan(&inv.ID, &inv.TeamID, &inv.Email, &userID, &inv.Role,
			&inv.Status, &inv.ExpiresAt, &inv.CreatedAt); err != nil {
			return nil, err
		}
		if userID != nil {
			inv.UserID = *userID
		}
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}

func (r *Repository) scanTeam(row pgx.Row) (*domain.Team, error) {
	var t domain.Team
	var tenantID *string
	var method string
	if err := row.Scan(&t.ID, &tenantID, &t.Slug, &t.DisplayName, &t.OwnerID,
		&t.Domain, &t.DomainVerified, &method, &t.Provider.SSOProvider,
		&t.Provider.SSOClientID, &t.Provider.SSOClientSecret, &t.Provider.SSOTenantID,
		&t.Provider.AutoProvision, &t.Provider.AutoProvisionRole, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if tenantID != nil {
		t.TenantID = *tenantID
	}
	t.Provider.AuthMethod = domain.AuthMethod(method)
	return &t, nil
}

func prefixColumns(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}
