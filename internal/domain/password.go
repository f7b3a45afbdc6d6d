package domain

import "time"

// PasswordHistory is one entry of a user's append-only password hash history,
// ordered by recency. Only the most recent N entries participate in reuse
// checks; older rows are audit data and eligible for pruning.
type PasswordHistory struct {
	ID           string
	UserID       string
	PasswordHash []byte
	CreatedAt    time.Time
}

// PasswordRule is a per-domain override of the global password policy,
// attached to a verified team. Every field it defines replaces the global
// value; it never merges.
type PasswordRule struct {
	ID               string
	TeamID           string
	MinLength        int
	MaxLength        int
	CombinationTypes []string
	OldPasswordCount int
	CheckUserColumns []string
	CreatedAt        time.Time
}
