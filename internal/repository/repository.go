package repository

import (
	"context"
	"time"

	"github.com/ssntpl/neev/internal/domain"
)

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	UpdatePassword(ctx context.Context, userID string, hash []byte, changedAt time.Time) error
}

// TenantRepository manages top-level tenants.
type TenantRepository interface {
	CreateTenant(ctx context.Context, tenant *domain.Tenant) error
	GetTenantByID(ctx context.Context, id string) (*domain.Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*domain.Tenant, error)
	GetTenantByDomain(ctx context.Context, host string) (*domain.Tenant, error)
	TenantSlugExists(ctx context.Context, slug, excludeID string) (bool, error)
}

// TeamRepository manages teams and memberships.
type TeamRepository interface {
	CreateTeam(ctx context.Context, team *domain.Team) error
	UpdateTeam(ctx context.Context, team *domain.Team) error
	GetTeamByID(ctx context.Context, id string) (*domain.Team, error)
	GetTeamBySlug(ctx context.Context, slug string) (*domain.Team, error)
	GetTeamByDomain(ctx context.Context, host string) (*domain.Team, error)
	GetVerifiedTeamByEmailDomain(ctx context.Context, emailDomain string) (*domain.Team, error)
	TeamSlugExists(ctx context.Context, slug, excludeID string) (bool, error)
	ListTeamsByUser(ctx context.Context, userID string) ([]domain.Team, error)
	UpsertMember(ctx context.Context, member *domain.Membership) error
	GetMember(ctx context.Context, teamID, userID string) (*domain.Membership, error)
}

// InvitationRepository stores unresolved memberships.
type InvitationRepository interface {
	CreateInvitation(ctx context.Context, invite *domain.Invitation) error
	GetInvitationByID(ctx context.Context, id string) (*domain.Invitation, error)
	UpdateInvitationStatus(ctx context.Context, id, status string) error
	ListInvitationsByTeam(ctx context.Context, teamID string) ([]domain.Invitation, error)
}

// PasswordHistoryRepository stores the append-only password hash history.
type PasswordHistoryRepository interface {
	AppendPasswordHistory(ctx context.Context, entry *domain.PasswordHistory) error
	ListRecentPasswordHistory(ctx context.Context, userID string, limit int) ([]domain.PasswordHistory, error)
	PrunePasswordHistory(ctx context.Context, userID string, keep int) error
}

// PasswordRuleRepository reads per-domain policy overrides.
type PasswordRuleRepository interface {
	GetPasswordRuleByTeam(ctx context.Context, teamID string) (*domain.PasswordRule, error)
}

// LoginAttemptRepository stores the durable login attempt log.
type LoginAttemptRepository interface {
	InsertLoginAttempt(ctx context.Context, attempt *domain.LoginAttempt) error
	ListLoginAttemptsByUser(ctx context.Context, userID string, limit int) ([]domain.LoginAttempt, error)
}
