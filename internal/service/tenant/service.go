// Package tenant manages context containers: tenants, teams, memberships
// and the unresolved invitations that precede them.
package tenant

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/ssntpl/neev/internal/domain"
	"github.com/ssntpl/neev/internal/repository"
	"github.com/ssntpl/neev/internal/slug"
	"github.com/ssntpl/neev/pkg/config"
	"github.com/ssntpl/neev/pkg/crypto"
)

var (
	ErrInvalidName    = errors.New("tenant: display name is required")
	ErrInvalidSlug    = errors.New("tenant: slug is invalid or reserved")
	ErrSlugTaken      = errors.New("tenant: slug is already in use")
	ErrInviteResolved = errors.New("tenant: invitation already resolved")
	ErrInviteExpired  = errors.New("tenant: invitation expired")
)

const defaultInviteTTL = 7 * 24 * time.Hour

// Service handles container lifecycle workflows.
type Service struct {
	tenants     repository.TenantRepository
	teams       repository.TeamRepository
	invites     repository.InvitationRepository
	tenantSlugs *slug.Generator
	teamSlugs   *slug.Generator
	logger      *slog.Logger
	secretsKey  string
}

// New constructs a Service. Slug generators share the reserved-word set but
// check existence per entity class.
func New(tenants repository.TenantRepository, teams repository.TeamRepository,
	invites repository.InvitationRepository, logger *slog.Logger, cfg config.Config) *Service {
	s := &Service{
		tenants:    tenants,
		teams:      teams,
		invites:    invites,
		logger:     logger,
		secretsKey: cfg.SecretsKey,
	}
	s.tenantSlugs = slug.NewGenerator(cfg.ReservedSlugs, func(ctx context.Context, candidate, excludeID string) (bool, error) {
		return tenants.TenantSlugExists(ctx, candidate, excludeID)
	})
	s.teamSlugs = slug.NewGenerator(cfg.ReservedSlugs, func(ctx context.Context, candidate, excludeID string) (bool, error) {
		return teams.TeamSlugExists(ctx, candidate, excludeID)
	})
	return s
}

// CreateTenant registers a tenant with a generated slug.
func (s *Service) CreateTenant(ctx context.Context, name string) (*domain.Tenant, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	generated, err := s.tenantSlugs.Generate(ctx, name, "")
	if err != nil {
		return nil, err
	}
	tenant := &domain.Tenant{
		ID:          uuid.NewString(),
		Slug:        generated,
		DisplayName: name,
		Provider:    domain.ProviderSettings{AuthMethod: domain.AuthMethodPassword},
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.tenants.CreateTenant(ctx, tenant); err != nil {
		return nil, err
	}
	s.logger.Info("tenant created", "tenant_id", tenant.ID, "slug", tenant.Slug)
	return tenant, nil
}

// CreateTeam registers a team for the owner with a generated slug and an
// owner membership.
func (s *Service) CreateTeam(ctx context.Context, tenantID, ownerID, name string) (*domain.Team, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	generated, err := s.teamSlugs.Generate(ctx, name, "")
	if err != nil {
		return nil, err
	}
	team := &domain.Team{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Slug:        generated,
		DisplayName: name,
		OwnerID:     ownerID,
		Provider:    domain.ProviderSettings{AuthMethod: domain.AuthMethodPassword},
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.teams.CreateTeam(ctx, team); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	member := &domain.Membership{TeamID: team.ID, UserID: ownerID, Role: "owner", JoinedAt: &now}
	if err := s.teams.UpsertMember(ctx, member); err != nil {
		return nil, err
	}
	s.logger.Info("team created", "team_id", team.ID, "slug", team.Slug, "owner_id", ownerID)
	return team, nil
}

// RenameTeam updates the display name and regenerates the slug, treating
// the team's own current slug as non-conflicting.
func (s *Service) RenameTeam(ctx context.Context, teamID, name string) (*domain.Team, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	team, err := s.teams.GetTeamByID(ctx, teamID)
	if err != nil {
		return nil, err
	}
	generated, err := s.teamSlugs.Generate(ctx, name, team.ID)
	if err != nil {
		return nil, err
	}
	team.DisplayName = name
	team.Slug = generated
	if err := s.teams.UpdateTeam(ctx, team); err != nil {
		return nil, err
	}
	return team, nil
}

// SetVanitySlug assigns an externally supplied slug after validation.
func (s *Service) SetVanitySlug(ctx context.Context, teamID, vanity string) (*domain.Team, error) {
	if !s.teamSlugs.IsValid(vanity) {
		return nil, ErrInvalidSlug
	}
	taken, err := s.teams.TeamSlugExists(ctx, vanity, teamID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrSlugTaken
	}
	team, err := s.teams.GetTeamByID(ctx, teamID)
	if err != nil {
		return nil, err
	}
	team.Slug = vanity
	if err := s.teams.UpdateTeam(ctx, team); err != nil {
		return nil, err
	}
	return team, nil
}

// ConfigureProvider writes a team's identity provider settings, encrypting
// the client secret at rest.
func (s *Service) ConfigureProvider(ctx context.Context, teamID string, settings domain.ProviderSettings) (*domain.Team, error) {
	team, err := s.teams.GetTeamByID(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if settings.SSOClientSecret != "" {
		sealed, err := crypto.EncryptString(s.secretsKey, settings.SSOClientSecret)
		if err != nil {
			return nil, err
		}
		settings.SSOClientSecret = base64.StdEncoding.EncodeToString(sealed)
	}
	team.Provider = settings
	if err := s.teams.UpdateTeam(ctx, team); err != nil {
		return nil, err
	}
	s.logger.Info("identity provider configured", "team_id", team.ID,
		"auth_method", string(settings.AuthMethod), "provider", settings.SSOProvider)
	return team, nil
}

// ProviderOAuthConfig returns the decrypted OAuth configuration for a
// team, or nil when SSO is not fully configured.
func (s *Service) ProviderOAuthConfig(ctx context.Context, teamID string) (*domain.OAuthConfig, error) {
	team, err := s.teams.GetTeamByID(ctx, teamID)
	if err != nil {
		return nil, err
	}
	cfg := team.Provider.SSOConfig()
	if cfg == nil {
		return nil, nil
	}
	sealed, err := base64.StdEncoding.DecodeString(cfg.ClientSecret)
	if err != nil {
		return nil, err
	}
	plain, err := crypto.DecryptToString(s.secretsKey, sealed)
	if err != nil {
		return nil, err
	}
	cfg.ClientSecret = plain
	return cfg, nil
}

// Invite records an unresolved membership for an email address.
func (s *Service) Invite(ctx context.Context, teamID, email, role string) (*domain.Invitation, error) {
	invite := &domain.Invitation{
		ID:        uuid.NewString(),
		TeamID:    teamID,
		Email:     email,
		Role:      role,
		Status:    domain.InviteStatusPending,
		ExpiresAt: time.Now().UTC().Add(defaultInviteTTL),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.invites.CreateInvitation(ctx, invite); err != nil {
		return nil, err
	}
	s.logger.Info("invitation created", "team_id", teamID, "invite_id", invite.ID)
	return invite, nil
}

// AcceptInvitation resolves a pending invitation into a membership.
func (s *Service) AcceptInvitation(ctx context.Context, inviteID, userID string) (*domain.Membership, error) {
	invite, err := s.invites.GetInvitationByID(ctx, inviteID)
	if err != nil {
		return nil, err
	}
	if invite.Status != domain.InviteStatusPending {
		return nil, ErrInviteResolved
	}
	if invite.Expired(time.Now()) {
		if err := s.invites.UpdateInvitationStatus(ctx, invite.ID, domain.InviteStatusExpired); err != nil {
			s.logger.Warn("invitation expiry update failed", "invite_id", invite.ID, "error", err)
		}
		return nil, ErrInviteExpired
	}
	now := time.Now().UTC()
	member := &domain.Membership{TeamID: invite.TeamID, UserID: userID, Role: invite.Role, JoinedAt: &now}
	if err := s.teams.UpsertMember(ctx, member); err != nil {
		return nil, err
	}
	if err := s.invites.UpdateInvitationStatus(ctx, invite.ID, domain.InviteStatusAccepted); err != nil {
		return nil, err
	}
	s.logger.Info("invitation accepted", "invite_id", invite.ID, "user_id", userID)
	return member, nil
}

// ListInvitations returns a team's invitations.
func (s *Service) ListInvitations(ctx context.Context, teamID string) ([]domain.Invitation, error) {
	return s.invites.ListInvitationsByTeam(ctx, teamID)
}

// TeamsForUser lists the teams a user belongs to.
func (s *Service) TeamsForUser(ctx context.Context, userID string) ([]domain.Team, error) {
	return s.teams.ListTeamsByUser(ctx, userID)
}
