package types

import (
	"time"

	"github.com/google/uuid"
)

// Role is the coarse permission tier of a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is the account record owned by the auth subsystem.
// PasswordHash is only ever assigned by the credential store.
type User struct {
	ID                uuid.UUID  `json:"id" example:"d290f1ee-6c54-4b01-90e6-d701748f0851"`
	Username          string     `json:"username" example:"alice"`
	Email             *string    `json:"email,omitempty" example:"alice@example.com"`
	PasswordHash      string     `json:"-"`
	Role              Role       `json:"role" example:"user"`
	IsActive          bool       `json:"is_active"`
	LastLogin         *time.Time `json:"last_login,omitempty"`
	ResetToken        *string    `json:"-"`
	ResetTokenExpires *time.Time `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// EmailAddress returns the email or "" when none is stored.
func (u *User) EmailAddress() string {
	if u.Email == nil {
		return ""
	}
	return *u.Email
}

// Session is a server-side login session.
type Session struct {
	ID            string     `json:"-"`
	UserID        uuid.UUID  `json:"user_id"`
	Remember      bool       `json:"remember"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	InvalidatedAt *time.Time `json:"-"`
}

// Valid reports whether the session can still authenticate requests at now.
func (s *Session) Valid(now time.Time) bool {
	return s.InvalidatedAt == nil && s.ExpiresAt.After(now)
}

// Principal is the authenticated caller attached to a request context.
type Principal struct {
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	SessionID string    `json:"-"`
}

// UpdateUserParams are the admin-editable fields of a user.
type UpdateUserParams struct {
	Role     Role `json:"role"`
	IsActive bool `json:"is_active"`
}
