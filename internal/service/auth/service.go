// Package auth orchestrates the authentication lifecycle: throttling,
// SSO-vs-password routing, credential checks and the attempt audit log.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/ssntpl/neev/internal/domain"
	"github.com/ssntpl/neev/internal/repository"
	"github.com/ssntpl/neev/internal/service/password"
	"github.com/ssntpl/neev/internal/tenancy"
	"github.com/ssntpl/neev/pkg/config"
	"github.com/ssntpl/neev/pkg/crypto"
	jwtpkg "github.com/ssntpl/neev/pkg/jwt"
)

var (
	// ErrInvalidCredentials covers both unknown identifiers and wrong
	// passwords, deliberately indistinguishable to avoid enumeration.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrSSOMisconfigured reports a container demanding SSO without usable
	// provider credentials. An operational alert, not a user error.
	ErrSSOMisconfigured = errors.New("auth: sso required but not configured")

	// ErrPasswordExpired blocks login until the password is reset.
	ErrPasswordExpired = errors.New("auth: password expired")

	// ErrAutoProvisionDisabled rejects SSO provisioning for containers that
	// have not opted in.
	ErrAutoProvisionDisabled = errors.New("auth: auto-provisioning disabled")
)

// SSORequiredError deflects a password login to the container's provider.
type SSORequiredError struct {
	Provider string
}

func (e *SSORequiredError) Error() string {
	return fmt.Sprintf("auth: sso login required via %s", e.Provider)
}

// RequestMeta carries origin details recorded on every attempt.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// TokenPair contains access and refresh tokens.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Service handles authentication workflows.
type Service struct {
	users    repository.UserRepository
	teams    repository.TeamRepository
	attempts repository.LoginAttemptRepository
	throttle *Throttle
	policy   *password.Engine
	logger   *slog.Logger
	cfg      config.Config
}

// New constructs a Service.
func New(users repository.UserRepository, teams repository.TeamRepository,
	attempts repository.LoginAttemptRepository, throttle *Throttle,
	policy *password.Engine, logger *slog.Logger, cfg config.Config) *Service {
	return &Service{
		users:    users,
		teams:    teams,
		attempts: attempts,
		throttle: throttle,
		policy:   policy,
		logger:   logger,
		cfg:      cfg,
	}
}

// Login authenticates a user by email and password. The throttle gate runs
// before any credential comparison, and SSO routing off the resolved
// context runs before the user lookup, so a locked-out or locked-to-SSO
// request never learns whether the account exists.
func (s *Service) Login(ctx context.Context, email, plain string, meta RequestMeta) (*domain.User, TokenPair, error) {
	key := ThrottleKey(email, meta.IP)

	remaining, err := s.throttle.AvailableIn(ctx, key)
	if err != nil {
		return nil, TokenPair{}, err
	}
	if remaining > 0 {
		s.recordAttempt(ctx, "", meta, false, true)
		return nil, TokenPair{}, &ThrottledError{RetryAfter: remaining}
	}

	if err := s.routeSSO(ctx); err != nil {
		return nil, TokenPair{}, err
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, TokenPair{}, s.failCredentials(ctx, key, "", meta)
		}
		return nil, TokenPair{}, err
	}
	if err := crypto.ComparePassword(user.PasswordHash, plain); err != nil {
		return nil, TokenPair{}, s.failCredentials(ctx, key, user.ID, meta)
	}

	if s.policy.IsLoginBlocked(ctx, user, time.Now()) {
		s.recordAttempt(ctx, user.ID, meta, false, false)
		return nil, TokenPair{}, ErrPasswordExpired
	}

	if err := s.throttle.Reset(ctx, key); err != nil {
		s.logger.Error("throttle reset failed", "key", key, "error", err)
	}
	s.recordAttempt(ctx, user.ID, meta, true, false)

	tokens, err := s.issueTokens(ctx, user.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, tokens, nil
}

// PasswordWarning surfaces the soft-expiry advisory for a logged-in user.
func (s *Service) PasswordWarning(ctx context.Context, user *domain.User) (string, bool) {
	return s.policy.CheckWarning(ctx, user, time.Now())
}

// Signup registers a new user after the candidate password clears policy.
func (s *Service) Signup(ctx context.Context, name, email, plain string, meta RequestMeta) (*domain.User, TokenPair, error) {
	user := &domain.User{
		ID:                uuid.NewString(),
		Name:              name,
		Email:             email,
		PasswordChangedAt: time.Now().UTC(),
		CreatedAt:         time.Now().UTC(),
	}
	if rc, ok := tenancy.Resolved(ctx); ok && rc.HasTenant() {
		user.TenantID = rc.Tenant.ID
	}
	if err := s.policy.Validate(ctx, user, plain); err != nil {
		return nil, TokenPair{}, err
	}
	hash, err := crypto.HashPassword(plain)
	if err != nil {
		return nil, TokenPair{}, err
	}
	user.PasswordHash = hash
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, TokenPair{}, err
	}
	if err := s.policy.Record(ctx, user, hash); err != nil {
		s.logger.Error("password history append failed", "user_id", user.ID, "error", err)
	}

	tokens, err := s.issueTokens(ctx, user.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, tokens, nil
}

// ChangePassword verifies the current password, validates the candidate
// against policy and writes the new hash plus its history entry.
func (s *Service) ChangePassword(ctx context.Context, userID, current, candidate string) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := crypto.ComparePassword(user.PasswordHash, current); err != nil {
		return ErrInvalidCredentials
	}
	if err := s.policy.Validate(ctx, user, candidate); err != nil {
		return err
	}
	hash, err := crypto.HashPassword(candidate)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash, time.Now().UTC()); err != nil {
		return err
	}
	if err := s.policy.Record(ctx, user, hash); err != nil {
		s.logger.Error("password history append failed", "user_id", user.ID, "error", err)
	}
	s.logger.Info("password changed", "user_id", user.ID)
	return nil
}

// ProvisionSSOUser creates an account for an SSO-authenticated identity the
// installation has not seen before, plus a membership under the resolved
// container's configured default role. Rejected unless the container opted
// in to auto-provisioning.
func (s *Service) ProvisionSSOUser(ctx context.Context, name, email string, meta RequestMeta) (*domain.User, error) {
	rc, ok := tenancy.Resolved(ctx)
	if !ok {
		return nil, ErrAutoProvisionDisabled
	}

	var owner domain.IdentityProviderOwner
	switch {
	case rc.HasTeam():
		owner = rc.Team
	case rc.HasTenant():
		owner = rc.Tenant
	default:
		return nil, ErrAutoProvisionDisabled
	}
	provider := owner.IdentityProvider()
	if !provider.AllowsAutoProvision() {
		return nil, ErrAutoProvisionDisabled
	}

	user := &domain.User{
		ID:                uuid.NewString(),
		Name:              name,
		Email:             email,
		PasswordChangedAt: time.Now().UTC(),
		CreatedAt:         time.Now().UTC(),
	}
	if rc.HasTenant() {
		user.TenantID = rc.Tenant.ID
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	if rc.HasTeam() && s.teams != nil {
		now := time.Now().UTC()
		member := &domain.Membership{
			TeamID:   rc.Team.ID,
			UserID:   user.ID,
			Role:     provider.ProvisionRole(),
			JoinedAt: &now,
		}
		if err := s.teams.UpsertMember(ctx, member); err != nil {
			return nil, err
		}
	}
	s.recordAttemptMethod(ctx, user.ID, meta, domain.LoginMethodSSO, true, false)
	s.logger.Info("sso user provisioned", "user_id", user.ID, "role", provider.ProvisionRole())
	return user, nil
}

// RecentAttempts lists a user's durable login attempt history.
func (s *Service) RecentAttempts(ctx context.Context, userID string) ([]domain.LoginAttempt, error) {
	limit := s.cfg.LoginAttemptLogLimit
	if limit <= 0 {
		limit = 50
	}
	return s.attempts.ListLoginAttemptsByUser(ctx, userID, limit)
}

// Authorize validates a bearer token and returns the user and claims.
func (s *Service) Authorize(ctx context.Context, token string) (*domain.User, *jwtpkg.Claims, error) {
	claims, err := jwtpkg.Parse(token, s.cfg.JWTSecret)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, nil, err
	}
	return user, claims, nil
}

// routeSSO consults the resolved context's identity provider before
// password auth proceeds. The bound team wins over the tenant.
func (s *Service) routeSSO(ctx context.Context) error {
	rc, ok := tenancy.Resolved(ctx)
	if !ok {
		return nil
	}
	var owner domain.ContextContainer
	var provider domain.ProviderSettings
	switch {
	case rc.HasTeam() && rc.Team.IdentityProvider().RequiresSSO():
		owner, provider = rc.Team, rc.Team.IdentityProvider()
	case rc.HasTenant() && rc.Tenant.IdentityProvider().RequiresSSO():
		owner, provider = rc.Tenant, rc.Tenant.IdentityProvider()
	default:
		return nil
	}
	if !provider.HasSSOConfigured() {
		s.logger.Error("container requires sso without provider credentials",
			"container_id", owner.ContainerID())
		return ErrSSOMisconfigured
	}
	return &SSORequiredError{Provider: provider.SSOProvider}
}

func (s *Service) failCredentials(ctx context.Context, key, userID string, meta RequestMeta) error {
	state, err := s.throttle.RegisterFailure(ctx, key)
	if err != nil {
		s.logger.Error("throttle increment failed", "key", key, "error", err)
	}
	s.recordAttempt(ctx, userID, meta, false, state == StateHardLimited)
	return ErrInvalidCredentials
}

func (s *Service) recordAttempt(ctx context.Context, userID string, meta RequestMeta, success, suspicious bool) {
	s.recordAttemptMethod(ctx, userID, meta, domain.LoginMethodPassword, success, suspicious)
}

func (s *Service) recordAttemptMethod(ctx context.Context, userID string, meta RequestMeta, method string, success, suspicious bool) {
	if s.attempts == nil {
		return
	}
	agent := sniffUserAgent(meta.UserAgent)
	attempt := &domain.LoginAttempt{
		ID:         uuid.NewString(),
		UserID:     userID,
		Method:     method,
		IP:         meta.IP,
		Platform:   agent.platform,
		Browser:    agent.browser,
		Device:     agent.device,
		Success:    success,
		Suspicious: suspicious,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.attempts.InsertLoginAttempt(ctx, attempt); err != nil {
		s.logger.Error("login attempt log failed", "error", err)
	}
}

func (s *Service) issueTokens(ctx context.Context, userID string) (TokenPair, error) {
	var tenantID, teamID string
	if rc, ok := tenancy.Resolved(ctx); ok {
		if rc.HasTenant() {
			tenantID = rc.Tenant.ID
		}
		if rc.HasTeam() {
			teamID = rc.Team.ID
		}
	}
	access, err := jwtpkg.GenerateToken(userID, tenantID, teamID, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := jwtpkg.GenerateToken(userID, tenantID, teamID, s.cfg.JWTSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: s.cfg.AccessTokenTTL}, nil
}
