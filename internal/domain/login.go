package domain

import "time"

// LoginAttempt is the durable audit record of one authentication attempt.
// It is independent of the throttle counter, which is ephemeral.
type LoginAttempt struct {
	ID         string
	UserID     string
	Method     string
	IP         string
	Platform   string
	Browser    string
	Device     string
	Success    bool
	Suspicious bool
	MFAMethod  string
	CreatedAt  time.Time
}

// Login methods recorded on attempts.
const (
	LoginMethodPassword = "password"
	LoginMethodSSO      = "sso"
	LoginMethodMagic    = "magicauth"
)
