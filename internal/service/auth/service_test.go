package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ssntpl/neev/internal/domain"
	"github.com/ssntpl/neev/internal/repository"
	"github.com/ssntpl/neev/internal/service/password"
	"github.com/ssntpl/neev/internal/tenancy"
	"github.com/ssntpl/neev/pkg/config"
	"github.com/ssntpl/neev/pkg/crypto"
)

type userRepoMock struct {
	createFunc     func(ctx context.Context, user *domain.User) error
	getByEmailFunc func(ctx context.Context, email string) (*domain.User, error)
	getByIDFunc    func(ctx context.Context, id string) (*domain.User, error)
	updateFunc     func(ctx context.Context, userID string, hash []byte, changedAt time.Time) error
}

func (m *userRepoMock) CreateUser(ctx context.Context, user *domain.User) error {
	if m.createFunc == nil {
		return nil
	}
	return m.createFunc(ctx, user)
}

func (m *userRepoMock) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	if m.getByEmailFunc == nil {
		return nil, repository.ErrNotFound
	}
	return m.getByEmailFunc(ctx, email)
}

func (m *userRepoMock) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	if m.getByIDFunc == nil {
		return nil, repository.ErrNotFound
	}
	return m.getByIDFunc(ctx, id)
}

func (m *userRepoMock) UpdatePassword(ctx context.Context, userID string, hash []byte, changedAt time.Time) error {
	if m.updateFunc == nil {
		return nil
	}
	return m.updateFunc(ctx, userID, hash, changedAt)
}

type attemptsRepoMock struct {
	insertFunc func(ctx context.Context, attempt *domain.LoginAttempt) error
	listFunc   func(ctx context.Context, userID string, limit int) ([]domain.LoginAttempt, error)
}

func (m *attemptsRepoMock) InsertLoginAttempt(ctx context.Context, attempt *domain.LoginAttempt) error {
	if m.insertFunc == nil {
		return nil
	}
	return m.insertFunc(ctx, attempt)
}

func (m *attemptsRepoMock) ListLoginAttemptsByUser(ctx context.Context, userID string, limit int) ([]domain.LoginAttempt, error) {
	if m.listFunc == nil {
		return nil, nil
	}
	return m.listFunc(ctx, userID, limit)
}

type teamRepoMock struct {
	upsertMemberFunc func(ctx context.Context, member *domain.Membership) error
}

func (m *teamRepoMock) CreateTeam(context.Context, *domain.Team) error { return nil }
func (m *teamRepoMock) UpdateTeam(context.Context, *domain.Team) error { return nil }
func (m *teamRepoMock) GetTeamByID(context.Context, string) (*domain.Team, error) {
	return nil, repository.ErrNotFound
}
func (m *teamRepoMock) GetTeamBySlug(context.Context, string) (*domain.Team, error) {
	return nil, repository.ErrNotFound
}
func (m *teamRepoMock) GetTeamByDomain(context.Context, string) (*domain.Team, error) {
	return nil, repository.ErrNotFound
}
func (m *teamRepoMock) GetVerifiedTeamByEmailDomain(context.Context, string) (*domain.Team, error) {
	return nil, repository.ErrNotFound
}
func (m *teamRepoMock) TeamSlugExists(context.Context, string, string) (bool, error) {
	return false, nil
}
func (m *teamRepoMock) ListTeamsByUser(context.Context, string) ([]domain.Team, error) {
	return nil, nil
}
func (m *teamRepoMock) UpsertMember(ctx context.Context, member *domain.Membership) error {
	if m.upsertMemberFunc == nil {
		return nil
	}
	return m.upsertMemberFunc(ctx, member)
}
func (m *teamRepoMock) GetMember(context.Context, string, string) (*domain.Membership, error) {
	return nil, repository.ErrNotFound
}

type historyRepoMock struct{}

func (historyRepoMock) AppendPasswordHistory(context.Context, *domain.PasswordHistory) error {
	return nil
}
func (historyRepoMock) ListRecentPasswordHistory(context.Context, string, int) ([]domain.PasswordHistory, error) {
	return nil, nil
}
func (historyRepoMock) PrunePasswordHistory(context.Context, string, int) error { return nil }

type rulesRepoMock struct{}

func (rulesRepoMock) GetPasswordRuleByTeam(context.Context, string) (*domain.PasswordRule, error) {
	return nil, repository.ErrNotFound
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:         "test-secret",
		AccessTokenTTL:    time.Minute,
		RefreshTokenTTL:   time.Hour,
		SoftFailAttempts:  2,
		HardFailAttempts:  20,
		LoginBlockMinutes: 5,
		PasswordMinLength: 4,
		PasswordMaxLength: 64,
	}
}

func newService(t *testing.T, users repository.UserRepository, attempts repository.LoginAttemptRepository, cfg config.Config) *Service {
	t.Helper()
	store, closeStore := NewMemoryAttemptStore()
	t.Cleanup(closeStore)
	throttle := NewThrottle(store, newLogger(), cfg.SoftFailAttempts, cfg.HardFailAttempts, cfg.LoginBlockMinutes)
	policy := password.New(historyRepoMock{}, rulesRepoMock{}, &teamRepoMock{}, newLogger(), cfg)
	return New(users, &teamRepoMock{}, attempts, throttle, policy, newLogger(), cfg)
}

func meta() RequestMeta {
	return RequestMeta{IP: "1.2.3.4", UserAgent: "curl/8.0"}
}

func TestLoginSuccess(t *testing.T) {
	hash, err := crypto.HashPassword("Testing123!")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	logged := []*domain.LoginAttempt{}
	users := &userRepoMock{
		getByEmailFunc: func(_ context.Context, email string) (*domain.User, error) {
			if email != "alice@example.com" {
				t.Fatalf("unexpected email lookup: %s", email)
			}
			return &domain.User{ID: "u1", Email: email, PasswordHash: hash}, nil
		},
	}
	attempts := &attemptsRepoMock{
		insertFunc: func(_ context.Context, attempt *domain.LoginAttempt) error {
			logged = append(logged, attempt)
			return nil
		},
	}
	svc := newService(t, users, attempts, testConfig())

	user, tokens, err := svc.Login(context.Background(), "alice@example.com", "Testing123!", meta())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != "u1" || tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("expected user and token pair, got %+v %+v", user, tokens)
	}
	if len(logged) != 1 || !logged[0].Success || logged[0].Method != domain.LoginMethodPassword {
		t.Fatalf("expected one successful attempt logged, got %+v", logged)
	}
	if logged[0].IP != "1.2.3.4" || logged[0].Browser != "curl" {
		t.Fatalf("expected origin metadata on the attempt, got %+v", logged[0])
	}
}

func TestLoginUnknownUserIndistinguishable(t *testing.T) {
	hash, err := crypto.HashPassword("Testing123!")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	users := &userRepoMock{
		getByEmailFunc: func(_ context.Context, email string) (*domain.User, error) {
			if email == "alice@example.com" {
				return &domain.User{ID: "u1", Email: email, PasswordHash: hash}, nil
			}
			return nil, repository.ErrNotFound
		},
	}
	svc := newService(t, users, &attemptsRepoMock{}, testConfig())

	_, _, missErr := svc.Login(context.Background(), "ghost@example.com", "whatever1", meta())
	_, _, wrongErr := svc.Login(context.Background(), "alice@example.com", "wrong-pass", meta())
	if !errors.Is(missErr, ErrInvalidCredentials) || !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("unknown user and wrong password must be indistinguishable, got %v vs %v", missErr, wrongErr)
	}
}

func TestLoginThrottledFailsFastWithoutCredentialCheck(t *testing.T) {
	lookups := 0
	users := &userRepoMock{
		getByEmailFunc: func(context.Context, string) (*domain.User, error) {
			lookups++
			return nil, repository.ErrNotFound
		},
	}
	svc := newService(t, users, &attemptsRepoMock{}, testConfig())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, _, err := svc.Login(ctx, "ghost@example.com", "bad", meta()); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	}
	_, _, err := svc.Login(ctx, "ghost@example.com", "bad", meta())
	var throttled *ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected ThrottledError, got %v", err)
	}
	if secs := throttled.RetryAfterSeconds(); secs <= 0 || secs > 300 {
		t.Fatalf("expected positive retry-after of at most 300s, got %d", secs)
	}
	if lookups != 2 {
		t.Fatalf("throttled attempt must not touch credentials, got %d lookups", lookups)
	}
}

func TestLoginSuccessResetsThrottle(t *testing.T) {
	hash, err := crypto.HashPassword("Testing123!")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	users := &userRepoMock{
		getByEmailFunc: func(_ context.Context, email string) (*domain.User, error) {
			return &domain.User{ID: "u1", Email: email, PasswordHash: hash}, nil
		},
	}
	svc := newService(t, users, &attemptsRepoMock{}, testConfig())
	ctx := context.Background()

	// One failure, then a success, then the counter must be back at zero:
	// a single further failure stays open instead of tipping the soft limit.
	if _, _, err := svc.Login(ctx, "alice@example.com", "wrong", meta()); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected failure, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "alice@example.com", "Testing123!", meta()); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "alice@example.com", "wrong", meta()); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected plain failure after reset, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "alice@example.com", "Testing123!", meta()); err != nil {
		t.Fatalf("counter should not have reached the soft limit, got %v", err)
	}
}

func TestLoginSSORequired(t *testing.T) {
	users := &userRepoMock{
		getByEmailFunc: func(context.Context, string) (*domain.User, error) {
			t.Fatalf("sso routing must run before the user lookup")
			return nil, repository.ErrNotFound
		},
	}
	svc := newService(t, users, &attemptsRepoMock{}, testConfig())
	ctx := tenancy.WithResolved(context.Background(), &tenancy.ResolvedContext{
		Tenant: &domain.Tenant{ID: "t1", Provider: domain.ProviderSettings{
			AuthMethod:      domain.AuthMethodSSO,
			SSOProvider:     "azure",
			SSOClientID:     "client",
			SSOClientSecret: "secret",
			SSOTenantID:     "tenant",
		}},
	})

	_, _, err := svc.Login(ctx, "alice@example.com", "Testing123!", meta())
	var ssoErr *SSORequiredError
	if !errors.As(err, &ssoErr) {
		t.Fatalf("expected SSORequiredError, got %v", err)
	}
	if ssoErr.Provider != "azure" {
		t.Fatalf("expected provider azure, got %q", ssoErr.Provider)
	}
}

func TestLoginSSOMisconfigured(t *testing.T) {
	svc := newService(t, &userRepoMock{}, &attemptsRepoMock{}, testConfig())
	ctx := tenancy.WithResolved(context.Background(), &tenancy.ResolvedContext{
		Tenant: &domain.Tenant{ID: "t1", Provider: domain.ProviderSettings{
			AuthMethod:  domain.AuthMethodSSO,
			SSOProvider: "azure",
		}},
	})

	if _, _, err := svc.Login(ctx, "alice@example.com", "x", meta()); !errors.Is(err, ErrSSOMisconfigured) {
		t.Fatalf("expected ErrSSOMisconfigured, got %v", err)
	}
}

func TestLoginTeamSSOWinsOverTenant(t *testing.T) {
	svc := newService(t, &userRepoMock{}, &attemptsRepoMock{}, testConfig())
	ctx := tenancy.WithResolved(context.Background(), &tenancy.ResolvedContext{
		Tenant: &domain.Tenant{ID: "t1", Provider: domain.ProviderSettings{
			AuthMethod: domain.AuthMethodPassword,
		}},
		Team: &domain.Team{ID: "team1", Provider: domain.ProviderSettings{
			AuthMethod:      domain.AuthMethodSSO,
			SSOProvider:     "okta",
			SSOClientID:     "client",
			SSOClientSecret: "secret",
			SSOTenantID:     "tenant",
		}},
	})

	_, _, err := svc.Login(ctx, "alice@example.com", "x", meta())
	var ssoErr *SSORequiredError
	if !errors.As(err, &ssoErr) || ssoErr.Provider != "okta" {
		t.Fatalf("expected team sso routing to okta, got %v", err)
	}
}

func TestLoginPasswordExpired(t *testing.T) {
	hash, err := crypto.HashPassword("Testing123!")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	cfg := testConfig()
	cfg.PasswordHardDays = 90
	users := &userRepoMock{
		getByEmailFunc: func(_ context.Context, email string) (*domain.User, error) {
			return &domain.User{
				ID:                "u1",
				Email:             email,
				PasswordHash:      hash,
				PasswordChangedAt: time.Now().Add(-100 * 24 * time.Hour),
			}, nil
		},
	}
	svc := newService(t, users, &attemptsRepoMock{}, cfg)

	if _, _, err := svc.Login(context.Background(), "alice@example.com", "Testing123!", meta()); !errors.Is(err, ErrPasswordExpired) {
		t.Fatalf("expected ErrPasswordExpired, got %v", err)
	}
}

func TestSignupRejectsWeakPassword(t *testing.T) {
	created := false
	users := &userRepoMock{
		createFunc: func(context.Context, *domain.User) error {
			created = true
			return nil
		},
	}
	svc := newService(t, users, &attemptsRepoMock{}, testConfig())

	_, _, err := svc.Signup(context.Background(), "Alice", "alice@example.com", "ab", meta())
	var violation *password.Violation
	if !errors.As(err, &violation) {
		t.Fatalf("expected policy violation, got %v", err)
	}
	if created {
		t.Fatalf("user must not be created on policy failure")
	}
}

func TestChangePasswordRequiresCurrent(t *testing.T) {
	hash, err := crypto.HashPassword("Current123!")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	users := &userRepoMock{
		getByIDFunc: func(_ context.Context, id string) (*domain.User, error) {
			return &domain.User{ID: id, Email: "alice@example.com", PasswordHash: hash}, nil
		},
	}
	svc := newService(t, users, &attemptsRepoMock{}, testConfig())

	if err := svc.ChangePassword(context.Background(), "u1", "wrong", "NewPass123!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := svc.ChangePassword(context.Background(), "u1", "Current123!", "NewPass123!"); err != nil {
		t.Fatalf("expected change to succeed, got %v", err)
	}
}

func TestProvisionSSOUser(t *testing.T) {
	var member *domain.Membership
	teams := &teamRepoMock{
		upsertMemberFunc: func(_ context.Context, m *domain.Membership) error {
			member = m
			return nil
		},
	}
	store, closeStore := NewMemoryAttemptStore()
	t.Cleanup(closeStore)
	cfg := testConfig()
	throttle := NewThrottle(store, newLogger(), cfg.SoftFailAttempts, cfg.HardFailAttempts, cfg.LoginBlockMinutes)
	policy := password.New(historyRepoMock{}, rulesRepoMock{}, teams, newLogger(), cfg)
	svc := New(&userRepoMock{}, teams, &attemptsRepoMock{}, throttle, policy, newLogger(), cfg)

	ctx := tenancy.WithResolved(context.Background(), &tenancy.ResolvedContext{
		Team: &domain.Team{ID: "team1", Provider: domain.ProviderSettings{
			AuthMethod:        domain.AuthMethodSSO,
			AutoProvision:     true,
			AutoProvisionRole: "viewer",
		}},
	})
	user, err := svc.ProvisionSSOUser(ctx, "Bob", "bob@example.com", meta())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Email != "bob@example.com" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if member == nil || member.TeamID != "team1" || member.Role != "viewer" {
		t.Fatalf("expected membership under configured role, got %+v", member)
	}
}

func TestProvisionSSOUserDisabled(t *testing.T) {
	svc := newService(t, &userRepoMock{}, &attemptsRepoMock{}, testConfig())
	ctx := tenancy.WithResolved(context.Background(), &tenancy.ResolvedContext{
		Team: &domain.Team{ID: "team1", Provider: domain.ProviderSettings{AutoProvision: false}},
	})

	if _, err := svc.ProvisionSSOUser(ctx, "Bob", "bob@example.com", meta()); !errors.Is(err, ErrAutoProvisionDisabled) {
		t.Fatalf("expected ErrAutoProvisionDisabled, got %v", err)
	}
}
