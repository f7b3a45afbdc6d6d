package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ssntpl/neev/internal/domain"
	"github.com/ssntpl/neev/internal/repository"
)

// AppendPasswordHistory records a password hash in the user's history.
func (r *Repository) AppendPasswordHistory(ctx context.Context, entry *domain.PasswordHistory) error {
	const query = `INSERT INTO password_histories (id, user_id, password_hash, created_at)
		VALUES ($1, $2, $3, $4)`
	_, err := r.pool.Exec(ctx, query, entry.ID, entry.UserID, entry.PasswordHash, entry.CreatedAt)
	return err
}

// ListRecentPasswordHistory returns the most recent history entries,
// newest first.
func (r *Repository) ListRecentPasswordHistory(ctx context.Context, userID string, limit int) ([]domain.PasswordHistory, error) {
	const query = `SELECT id, user_id, password_hash, created_at FROM password_histories
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.PasswordHistory
	for rows.Next() {
		var entry domain.PasswordHistory
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.PasswordHash, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// PrunePasswordHistory drops entries beyond the newest keep rows.
func (r *Repository) PrunePasswordHistory(ctx context.Context, userID string, keep int) error {
	const query = `DELETE FROM password_histories WHERE user_id = $1 AND id NOT IN (
		SELECT id FROM password_histories WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2)`
	_, err := r.pool.Exec(ctx, query, userID, keep)
	return err
}

// GetPasswordRuleByTeam reads a team's policy override, if any.
func (r *Repository) GetPasswordRuleByTeam(ctx context.Context, teamID string) (*domain.PasswordRule, error) {
	const query = `SELECT id, team_id, min_length, max_length, combination_types,
		old_password_count, check_user_columns, created_at
		FROM password_rules WHERE team_id = $1`
	var rule domain.PasswordRule
	if err := r.pool.QueryRow(ctx, query, teamID).Scan(&rule.ID, &rule.TeamID,
		&rule.MinLength, &rule.MaxLength, &rule.CombinationTypes,
		&rule.OldPasswordCount, &rule.CheckUserColumns, &rule.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &rule, nil
}

// InsertLoginAttempt records one durable audit row per attempt.
func (r *Repository) InsertLoginAttempt(ctx context.Context, attempt *domain.LoginAttempt) error {
	const query = `INSERT INTO login_attempts (id, user_id, method, ip, platform, browser, device,
		success, suspicious, mfa_method, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.pool.Exec(ctx, query, attempt.ID, nullable(attempt.UserID), attempt.Method,
		attempt.IP, attempt.Platform, attempt.Browser, attempt.Device,
		attempt.Success, attempt.Suspicious, nullable(attempt.MFAMethod), attempt.CreatedAt)
	return err
}

// ListLoginAttemptsByUser returns a user's recent attempts, newest first.
func (r *Repository) ListLoginAttemptsByUser(ctx context.Context, userID string, limit int) ([]domain.LoginAttempt, error) {
	const query = `SELECT id, user_id, method, ip, platform, browser, device,
		success, suspicious, mfa_method, created_at
		FROM login_attempts WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []domain.LoginAttempt
	for rows.Next() {
		var a domain.LoginAttempt
		var userID, mfa *string
		if err := rows.Scan(&a.ID, &userID, &a.Method, &a.IP, &a.Platform, &a.Browser,
			&a.Device, &a.Success, &a.Suspicious, &mfa, &a.CreatedAt); err != nil {
			return nil, err
		}
		if userID != nil {
			a.UserID = *userID
		}
		if mfa != nil {
			a.MFAMethod = *mfa
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
