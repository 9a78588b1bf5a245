package domain

import "time"

// UserRole controls which bot commands a registered user may run.
type UserRole string

const (
	UserRoleAdmin  UserRole = "admin"
	UserRoleMember UserRole = "member"
)

// User is a registered Telegram user. The first user to register becomes
// admin; admins can flip runtime switches like dry-run.
type User struct {
	ID            int64 // Telegram numeric user id
	Username      string
	Role          UserRole
	NotifyEnabled bool
	CreatedAt     time.Time
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}
