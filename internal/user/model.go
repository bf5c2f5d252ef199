package user

import "time"

// User is a service account with a metered calculation balance.
//
// While the user has at least one live connection the in-memory copy held
// by the registry is authoritative for Balance; the database copy catches
// up on every persisted mutation.
type User struct {
	ID           int64
	Login        string
	PasswordHash string
	Balance      int64
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAdmin reports whether the user may register accounts and operate on
// other users' balances.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Role is the authorization level of an account.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// ParseRole normalizes a stored role string, defaulting to USER for
// anything unrecognized so a corrupt row never grants admin rights.
func ParseRole(s string) Role {
	if Role(s) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}
