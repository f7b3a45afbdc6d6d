package domain

import "time"

// Membership links a user to a team with a role.
type Membership struct {
	TeamID   string
	UserID   string
	Role     string
	JoinedAt *time.Time
}

// Invitation statuses.
const (
	InviteStatusPending  = "pending"
	InviteStatusAccepted = "accepted"
	InviteStatusDeclined = "declined"
	InviteStatusExpired  = "expired"
)

// Invitation is an unresolved membership: an invite or join request that has
// not yet produced a Membership row.
type Invitation struct {
	ID        string
	TeamID    string
	Email     string
	UserID    string
	Role      string
	Status    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the invitation lapsed before being resolved.
func (i *Invitation) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}
