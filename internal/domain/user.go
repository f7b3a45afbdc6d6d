package domain

import "time"

// User represents a platform account.
type User struct {
	ID                string
	Name              string
	Username          string
	Email             string
	PasswordHash      []byte
	PasswordChangedAt time.Time
	TenantID          string
	CreatedAt         time.Time
}

// Attribute returns a named user column value for password policy checks.
// Unknown columns resolve to the empty string.
func (u *User) Attribute(column string) string {
	switch column {
	case "name":
		return u.Name
	case "username":
		return u.Username
	case "email":
		return u.Email
	default:
		return ""
	}
}

// EmailDomain returns the part of the email after '@', or "" when malformed.
func (u *User) EmailDomain() string {
	for i := len(u.Email) - 1; i >= 0; i-- {
		if u.Email[i] == '@' {
			return u.Email[i+1:]
		}
	}
	return ""
}
