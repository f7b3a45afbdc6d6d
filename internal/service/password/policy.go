// Package password evaluates candidate passwords against the composable
// policy rule pipeline and owns the password history side effects.
package password

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"log/slog"

	"github.com/google/uuid"

	"github.com/ssntpl/neev/internal/domain"
	"github.com/ssntpl/neev/internal/repository"
	"github.com/ssntpl/neev/pkg/config"
	"github.com/ssntpl/neev/pkg/crypto"
)

// Combination type names accepted in policy configuration.
const (
	CombinationAlphabets = "alphabets"
	CombinationNumbers   = "numbers"
	CombinationSymbols   = "symbols"
)

// personalDataFloor ignores user attribute values shorter than this; they
// are too noisy to be meaningful substrings.
const personalDataFloor = 3

// Violation reports which rule failed and the user-facing message.
type Violation struct {
	Rule    string
	Message string
}

func (v *Violation) Error() string { return v.Message }

// Policy holds the effective rule configuration for one validation run.
// Zero values disable the corresponding rule.
type Policy struct {
	MinLength        int
	MaxLength        int
	CombinationTypes []string
	OldPasswordCount int
	CheckUserColumns []string
	SoftDays         int
	HardDays         int
}

// Rule is one independent check in the pipeline.
type Rule interface {
	Check(ctx context.Context, user *domain.User, candidate string) *Violation
}

// Engine composes rules from the effective policy and evaluates candidates.
// Validation short-circuits at the first failing rule.
type Engine struct {
	history    repository.PasswordHistoryRepository
	rules      repository.PasswordRuleRepository
	teams      repository.TeamRepository
	logger     *slog.Logger
	global     Policy
	federation bool
}

// New constructs an Engine from the global configuration.
func New(history repository.PasswordHistoryRepository, rules repository.PasswordRuleRepository,
	teams repository.TeamRepository, logger *slog.Logger, cfg config.Config) *Engine {
	return &Engine{
		history: history,
		rules:   rules,
		teams:   teams,
		logger:  logger,
		global: Policy{
			MinLength:        cfg.PasswordMinLength,
			MaxLength:        cfg.PasswordMaxLength,
			CombinationTypes: cfg.CombinationTypes,
			OldPasswordCount: cfg.OldPasswordCount,
			CheckUserColumns: cfg.CheckUserColumns,
			SoftDays:         cfg.PasswordSoftDays,
			HardDays:         cfg.PasswordHardDays,
		},
		federation: cfg.DomainFederationEnabled,
	}
}

// EffectivePolicy returns the policy applying to a user. When domain
// federation is enabled and a verified team owns the user's email domain,
// every field its rule record defines replaces the global value; fields are
// never merged.
func (e *Engine) EffectivePolicy(ctx context.Context, user *domain.User) Policy {
	policy := e.global
	if !e.federation || user == nil || e.teams == nil || e.rules == nil {
		return policy
	}
	emailDomain := user.EmailDomain()
	if emailDomain == "" {
		return policy
	}
	team, err := e.teams.GetVerifiedTeamByEmailDomain(ctx, emailDomain)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			e.logger.Error("federated team lookup failed", "domain", emailDomain, "error", err)
		}
		return policy
	}
	rule, err := e.rules.GetPasswordRuleByTeam(ctx, team.ID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			e.logger.Error("password rule lookup failed", "team_id", team.ID, "error", err)
		}
		return policy
	}
	if rule.MinLength > 0 {
		policy.MinLength = rule.MinLength
	}
	if rule.MaxLength > 0 {
		policy.MaxLength = rule.MaxLength
	}
	if rule.CombinationTypes != nil {
		policy.CombinationTypes = rule.CombinationTypes
	}
	if rule.OldPasswordCount > 0 {
		policy.OldPasswordCount = rule.OldPasswordCount
	}
	if rule.CheckUserColumns != nil {
		policy.CheckUserColumns = rule.CheckUserColumns
	}
	return policy
}

// Validate runs the rule pipeline against a candidate password. The error
// is a *Violation for policy failures.
func (e *Engine) Validate(ctx context.Context, user *domain.User, candidate string) error {
	policy := e.EffectivePolicy(ctx, user)
	pipeline := []Rule{
		LengthRule{Min: policy.MinLength, Max: policy.MaxLength},
		CombinationRule{Types: policy.CombinationTypes},
		PersonalDataRule{Columns: policy.CheckUserColumns},
		ReuseRule{History: e.history, Count: policy.OldPasswordCount},
	}
	for _, rule := range pipeline {
		if v := rule.Check(ctx, user, candidate); v != nil {
			return v
		}
	}
	return nil
}

// Record appends a new password hash to the user's history and prunes
// entries beyond the user's effective reuse window, so a federated override
// that widens the window keeps enough rows for its reuse check. Called
// after a successful change.
func (e *Engine) Record(ctx context.Context, user *domain.User, hash []byte) error {
	entry := &domain.PasswordHistory{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.history.AppendPasswordHistory(ctx, entry); err != nil {
		return err
	}
	keep := e.EffectivePolicy(ctx, user).OldPasswordCount
	if keep <= 0 {
		return nil
	}
	if err := e.history.PrunePasswordHistory(ctx, user.ID, keep); err != nil {
		// Pruning is housekeeping; a failure must not fail the change.
		e.logger.Warn("password history prune failed", "user_id", user.ID, "error", err)
	}
	return nil
}

// CheckWarning returns a human-readable expiry notice once SoftDays have
// elapsed since the user's last password change. Evaluated only when a user
// and a configured day count exist.
func (e *Engine) CheckWarning(ctx context.Context, user *domain.User, now time.Time) (string, bool) {
	if user == nil {
		return "", false
	}
	policy := e.EffectivePolicy(ctx, user)
	if policy.SoftDays <= 0 || user.PasswordChangedAt.IsZero() {
		return "", false
	}
	age := now.Sub(user.PasswordChangedAt)
	if age < time.Duration(policy.SoftDays)*24*time.Hour {
		return "", false
	}
	days := int(age.Hours() / 24)
	return fmt.Sprintf("Your password is %d days old. Please change it.", days), true
}

// IsLoginBlocked reports whether HardDays have elapsed since the last
// password change; callers must treat this as a hard authentication failure
// requiring a reset.
func (e *Engine) IsLoginBlocked(ctx context.Context, user *domain.User, now time.Time) bool {
	if user == nil {
		return false
	}
	policy := e.EffectivePolicy(ctx, user)
	if policy.HardDays <= 0 || user.PasswordChangedAt.IsZero() {
		return false
	}
	return now.Sub(user.PasswordChangedAt) >= time.Duration(policy.HardDays)*24*time.Hour
}

// LengthRule fails candidates outside the configured bounds.
type LengthRule struct {
	Min int
	Max int
}

func (r LengthRule) Check(_ context.Context, _ *domain.User, candidate string) *Violation {
	if r.Min > 0 && len(candidate) < r.Min {
		return &Violation{Rule: "length", Message: fmt.Sprintf("Password must be at least %d characters long.", r.Min)}
	}
	if r.Max > 0 && len(candidate) > r.Max {
		return &Violation{Rule: "length", Message: fmt.Sprintf("Password must be at most %d characters long.", r.Max)}
	}
	return nil
}

// CombinationRule requires at least one character of each configured class.
type CombinationRule struct {
	Types []string
}

func (r CombinationRule) Check(_ context.Context, _ *domain.User, candidate string) *Violation {
	for _, class := range r.Types {
		var ok bool
		switch class {
		case CombinationAlphabets:
			ok = strings.ContainsFunc(candidate, unicode.IsLetter)
		case CombinationNumbers:
			ok = strings.ContainsFunc(candidate, unicode.IsDigit)
		case CombinationSymbols:
			ok = strings.ContainsFunc(candidate, func(c rune) bool {
				return !unicode.IsLetter(c) && !unicode.IsDigit(c)
			})
		default:
			continue
		}
		if !ok {
			return &Violation{Rule: "combination", Message: fmt.Sprintf("Password must contain at least one of: %s.", class)}
		}
	}
	return nil
}

// PersonalDataRule rejects candidates containing a user attribute value as
// a case-insensitive substring, in either direction. Attribute values
// shorter than three characters are ignored.
type PersonalDataRule struct {
	Columns []string
}

func (r PersonalDataRule) Check(_ context.Context, user *domain.User, candidate string) *Violation {
	if user == nil {
		return nil
	}
	lowered := strings.ToLower(candidate)
	for _, column := range r.Columns {
		value := strings.ToLower(user.Attribute(column))
		if len(value) < personalDataFloor {
			continue
		}
		if strings.Contains(lowered, value) || strings.Contains(value, lowered) {
			return &Violation{Rule: "personal_data", Message: fmt.Sprintf("Password must not contain your %s.", column)}
		}
	}
	return nil
}

// ReuseRule rejects candidates matching any of the most recent Count stored
// hashes. Older history entries are audit data and excluded.
type ReuseRule struct {
	History repository.PasswordHistoryRepository
	Count   int
}

func (r ReuseRule) Check(ctx context.Context, user *domain.User, candidate string) *Violation {
	if user == nil || r.Count <= 0 || r.History == nil {
		return nil
	}
	entries, err := r.History.ListRecentPasswordHistory(ctx, user.ID, r.Count)
	if err != nil {
		// Fail closed: an unreadable history must not let reuse through.
		return &Violation{Rule: "reuse", Message: "Password could not be verified against your history. Try again."}
	}
	for _, entry := range entries {
		if crypto.ComparePassword(entry.PasswordHash, candidate) == nil {
			return &Violation{Rule: "reuse", Message: fmt.Sprintf("Password must not match your last %d passwords.", r.Count)}
		}
	}
	return nil
}
