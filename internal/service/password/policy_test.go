package password

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"log/slog"

	"github.com/ssntpl/neev/internal/domain"
	"github.com/ssntpl/neev/internal/repository"
	"github.com/ssntpl/neev/pkg/config"
	"github.com/ssntpl/neev/pkg/crypto"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type historyMock struct {
	listFunc   func(ctx context.Context, userID string, limit int) ([]domain.PasswordHistory, error)
	appendFunc func(ctx context.Context, entry *domain.PasswordHistory) error
	pruneFunc  func(ctx context.Context, userID string, keep int) error
}

func (m *historyMock) AppendPasswordHistory(ctx context.Context, entry *domain.PasswordHistory) error {
	if m.appendFunc == nil {
		return nil
	}
	return m.appendFunc(ctx, entry)
}

func (m *historyMock) ListRecentPasswordHistory(ctx context.Context, userID string, limit int) ([]domain.PasswordHistory, error) {
	if m.listFunc == nil {
		return nil, nil
	}
	return m.listFunc(ctx, userID, limit)
}

func (m *historyMock) PrunePasswordHistory(ctx context.Context, userID string, keep int) error {
	if m.pruneFunc == nil {
		return nil
	}
	return m.pruneFunc(ctx, userID, keep)
}

type rulesMock struct {
	getFunc func(ctx context.Context, teamID string) (*domain.PasswordRule, error)
}

func (m *rulesMock) GetPasswordRuleByTeam(ctx context.Context, teamID string) (*domain.PasswordRule, error) {
	if m.getFunc == nil {
		return nil, repository.ErrNotFound
	}
	return m.getFunc(ctx, teamID)
}

type teamsMock struct {
	byEmailDomainFunc func(ctx context.Context, emailDomain string) (*domain.Team, error)
}

func (m *teamsMock) CreateTeam(context.Context, *domain.Team) error { return nil }
func (m *teamsMock) UpdateTeam(context.Context, *domain.Team) error { return nil }
func (m *teamsMock) GetTeamByID(context.Context, string) (*domain.Team, error) {
	return nil, repository.ErrNotFound
}
func (m *teamsMock) GetTeamBySlug(context.Context, string) (*domain.Team, error) {
	return nil, repository.ErrNotFound
}
func (m *teamsMock) GetTeamByDomain(context.Context, string) (*domain.Team, error) {
	return nil, repository.ErrNotFound
}
func (m *teamsMock) GetVerifiedTeamByEmailDomain(ctx context.Context, emailDomain string) (*domain.Team, error) {
	if m.byEmailDomainFunc == nil {
		return nil, repository.ErrNotFound
	}
	return m.byEmailDomainFunc(ctx, emailDomain)
}
func (m *teamsMock) TeamSlugExists(context.Context, string, string) (bool, error) {
	return false, nil
}
func (m *teamsMock) ListTeamsByUser(context.Context, string) ([]domain.Team, error) {
	return nil, nil
}
func (m *teamsMock) UpsertMember(context.Context, *domain.Membership) error { return nil }
func (m *teamsMock) GetMember(context.Context, string, string) (*domain.Membership, error) {
	return nil, repository.ErrNotFound
}

func baseConfig() config.Config {
	return config.Config{
		PasswordMinLength: 4,
		PasswordMaxLength: 64,
		CombinationTypes:  []string{CombinationAlphabets, CombinationNumbers},
		OldPasswordCount:  3,
		CheckUserColumns:  []string{"name", "email"},
	}
}

func mustHash(t *testing.T, plain string) []byte {
	t.Helper()
	hash, err := crypto.HashPassword(plain)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}

func violationRule(t *testing.T, err error) string {
	t.Helper()
	var v *Violation
	if !errors.As(err, &v) {
		t.Fatalf("expected *Violation, got %v", err)
	}
	return v.Rule
}

func TestLengthRule(t *testing.T) {
	engine := New(&historyMock{}, &rulesMock{}, &teamsMock{}, newLogger(), baseConfig())
	user := &domain.User{ID: "u1", Email: "x@example.com"}

	if err := engine.Validate(context.Background(), user, "ab1"); violationRule(t, err) != "length" {
		t.Fatalf("expected length violation, got %v", err)
	}
	if err := engine.Validate(context.Background(), user, "good-pass-1"); err != nil {
		t.Fatalf("expected pass, got %v", err)
	}
}

func TestCombinationRule(t *testing.T) {
	cfg := baseConfig()
	cfg.CombinationTypes = []string{CombinationAlphabets, CombinationNumbers, CombinationSymbols}
	engine := New(&historyMock{}, &rulesMock{}, &teamsMock{}, newLogger(), cfg)
	user := &domain.User{ID: "u1", Email: "x@example.com"}

	if err := engine.Validate(context.Background(), user, "letters-only"); violationRule(t, err) != "combination" {
		t.Fatalf("expected combination violation, got %v", err)
	}
	if err := engine.Validate(context.Background(), user, "12345678"); violationRule(t, err) != "combination" {
		t.Fatalf("expected combination violation, got %v", err)
	}
	if err := engine.Validate(context.Background(), user, "pass-w0rd!"); err != nil {
		t.Fatalf("expected pass, got %v", err)
	}
}

func TestPersonalDataRuleCaseInsensitive(t *testing.T) {
	engine := New(&historyMock{}, &rulesMock{}, &teamsMock{}, newLogger(), baseConfig())
	user := &domain.User{ID: "u1", Name: "Alice", Email: "alice@example.com"}

	if err := engine.Validate(context.Background(), user, "myALICEpw1"); violationRule(t, err) != "personal_data" {
		t.Fatalf("expected personal_data violation, got %v", err)
	}
}

func TestPersonalDataRuleIgnoresShortValues(t *testing.T) {
	engine := New(&historyMock{}, &rulesMock{}, &teamsMock{}, newLogger(), baseConfig())
	user := &domain.User{ID: "u1", Name: "Al", Email: "x@example.com"}

	if err := engine.Validate(context.Background(), user, "myALpassword1"); err != nil {
		t.Fatalf("two-character attribute must be ignored, got %v", err)
	}
}

func TestReuseRuleRejectsRecentWindow(t *testing.T) {
	hashes := []domain.PasswordHistory{
		{UserID: "u1", PasswordHash: mustHash(t, "pass-three3")},
		{UserID: "u1", PasswordHash: mustHash(t, "pass-two2")},
		{UserID: "u1", PasswordHash: mustHash(t, "pass-one1")},
	}
	history := &historyMock{
		listFunc: func(_ context.Context, userID string, limit int) ([]domain.PasswordHistory, error) {
			if userID != "u1" {
				t.Fatalf("unexpected user: %s", userID)
			}
			if limit != 3 {
				t.Fatalf("expected reuse window of 3, got %d", limit)
			}
			return hashes, nil
		},
	}
	engine := New(history, &rulesMock{}, &teamsMock{}, newLogger(), baseConfig())
	user := &domain.User{ID: "u1", Email: "x@example.com"}

	for _, old := range []string{"pass-one1", "pass-two2", "pass-three3"} {
		if err := engine.Validate(context.Background(), user, old); violationRule(t, err) != "reuse" {
			t.Fatalf("expected reuse violation for %q, got %v", old, err)
		}
	}
	// A password beyond the window is not in the listed entries and passes.
	if err := engine.Validate(context.Background(), user, "pass-zero0"); err != nil {
		t.Fatalf("expected pass for password beyond window, got %v", err)
	}
}

func TestDomainFederationOverridesMinLength(t *testing.T) {
	cfg := baseConfig()
	cfg.DomainFederationEnabled = true
	teams := &teamsMock{
		byEmailDomainFunc: func(_ context.Context, emailDomain string) (*domain.Team, error) {
			if emailDomain != "corp.example.com" {
				t.Fatalf("unexpected domain lookup: %s", emailDomain)
			}
			return &domain.Team{ID: "team-1", Domain: emailDomain, DomainVerified: true}, nil
		},
	}
	rules := &rulesMock{
		getFunc: func(_ context.Context, teamID string) (*domain.PasswordRule, error) {
			return &domain.PasswordRule{TeamID: teamID, MinLength: 10}, nil
		},
	}
	engine := New(&historyMock{}, rules, teams, newLogger(), cfg)
	user := &domain.User{ID: "u1", Email: "bob@corp.example.com"}

	// 8 characters passes the global min of 4 but fails the override of 10.
	if err := engine.Validate(context.Background(), user, "short-p1"); violationRule(t, err) != "length" {
		t.Fatalf("expected override length violation, got %v", err)
	}
}

func TestValidateShortCircuitsAtFirstFailure(t *testing.T) {
	history := &historyMock{
		listFunc: func(context.Context, string, int) ([]domain.PasswordHistory, error) {
			t.Fatalf("reuse rule must not run after an earlier failure")
			return nil, nil
		},
	}
	engine := New(history, &rulesMock{}, &teamsMock{}, newLogger(), baseConfig())
	user := &domain.User{ID: "u1", Email: "x@example.com"}

	if err := engine.Validate(context.Background(), user, "a1"); violationRule(t, err) != "length" {
		t.Fatalf("expected length violation, got %v", err)
	}
}

func TestExpiryAdvisory(t *testing.T) {
	cfg := baseConfig()
	cfg.PasswordSoftDays = 30
	cfg.PasswordHardDays = 90
	engine := New(&historyMock{}, &rulesMock{}, &teamsMock{}, newLogger(), cfg)
	now := time.Now()

	fresh := &domain.User{ID: "u1", Email: "x@example.com", PasswordChangedAt: now.Add(-24 * time.Hour)}
	if _, warned := engine.CheckWarning(context.Background(), fresh, now); warned {
		t.Fatalf("fresh password must not warn")
	}
	if engine.IsLoginBlocked(context.Background(), fresh, now) {
		t.Fatalf("fresh password must not block")
	}

	stale := &domain.User{ID: "u1", Email: "x@example.com", PasswordChangedAt: now.Add(-40 * 24 * time.Hour)}
	if msg, warned := engine.CheckWarning(context.Background(), stale, now); !warned || msg == "" {
		t.Fatalf("expected soft expiry warning")
	}
	if engine.IsLoginBlocked(context.Background(), stale, now) {
		t.Fatalf("soft-expired password must not block")
	}

	expired := &domain.User{ID: "u1", Email: "x@example.com", PasswordChangedAt: now.Add(-91 * 24 * time.Hour)}
	if !engine.IsLoginBlocked(context.Background(), expired, now) {
		t.Fatalf("expected hard expiry block")
	}
}

func TestExpiryDisabledWhenUnconfigured(t *testing.T) {
	engine := New(&historyMock{}, &rulesMock{}, &teamsMock{}, newLogger(), baseConfig())
	now := time.Now()
	ancient := &domain.User{ID: "u1", Email: "x@example.com", PasswordChangedAt: now.Add(-400 * 24 * time.Hour)}

	if _, warned := engine.CheckWarning(context.Background(), ancient, now); warned {
		t.Fatalf("warning requires a configured soft day count")
	}
	if engine.IsLoginBlocked(context.Background(), ancient, now) {
		t.Fatalf("block requires a configured hard day count")
	}
	if engine.IsLoginBlocked(context.Background(), nil, now) {
		t.Fatalf("block requires a user")
	}
}

func TestRecordAppendsAndPrunes(t *testing.T) {
	appended := false
	pruned := false
	history := &historyMock{
		appendFunc: func(_ context.Context, entry *domain.PasswordHistory) error {
			if entry.UserID != "u1" || len(entry.PasswordHash) == 0 || entry.ID == "" {
				t.Fatalf("malformed history entry: %+v", entry)
			}
			appended = true
			return nil
		},
		pruneFunc: func(_ context.Context, userID string, keep int) error {
			if keep != 3 {
				t.Fatalf("expected prune keep of 3, got %d", keep)
			}
			pruned = true
			return nil
		},
	}
	engine := New(history, &rulesMock{}, &teamsMock{}, newLogger(), baseConfig())
	user := &domain.User{ID: "u1", Email: "x@example.com"}

	if err := engine.Record(context.Background(), user, mustHash(t, "new-pass1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !appended || !pruned {
		t.Fatalf("expected append and prune, got append=%v prune=%v", appended, pruned)
	}
}

func TestRecordPrunesWithFederatedReuseWindow(t *testing.T) {
	cfg := baseConfig()
	cfg.DomainFederationEnabled = true
	pruned := false
	history := &historyMock{
		pruneFunc: func(_ context.Context, _ string, keep int) error {
			if keep != 5 {
				t.Fatalf("expected prune with override window of 5, got %d", keep)
			}
			pruned = true
			return nil
		},
	}
	teams := &teamsMock{
		byEmailDomainFunc: func(_ context.Context, emailDomain string) (*domain.Team, error) {
			return &domain.Team{ID: "team-1", Domain: emailDomain, DomainVerified: true}, nil
		},
	}
	rules := &rulesMock{
		getFunc: func(_ context.Context, teamID string) (*domain.PasswordRule, error) {
			return &domain.PasswordRule{TeamID: teamID, OldPasswordCount: 5}, nil
		},
	}
	engine := New(history, rules, teams, newLogger(), cfg)
	user := &domain.User{ID: "u1", Email: "bob@corp.example.com"}

	if err := engine.Record(context.Background(), user, mustHash(t, "new-pass1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pruned {
		t.Fatal("expected prune with the effective window")
	}
}
