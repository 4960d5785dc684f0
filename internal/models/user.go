package models

import "time"

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleTeller Role = "teller"
)

type User struct {
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         Role      `json:"role" db:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Identity is the authenticated caller of a service operation.
type Identity struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// OwnerScope returns the username entries must be restricted to, or "" for admins.
func (i Identity) OwnerScope() string {
	if i.IsAdmin() {
		return ""
	}
	return i.Username
}
