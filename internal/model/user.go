package model

import "time"

// UserID uniquely identifies a user across the system
type UserID string

// Role distinguishes players from administrators
type Role string

const (
	RolePlayer Role = "player"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RolePlayer || r == RoleAdmin
}

// User is an identity owning a click counter.
// The backing store owns users; everything else holds transient copies.
type User struct {
	ID           UserID
	Username     string // unique, changed only by an admin rename
	PasswordHash string // bcrypt hash, opaque outside auth
	Role         Role
	Counter      int64 // never decreases except by an admin reset
	Blocked      bool
	Active       bool // at least one live connection
	Seq          int64 // creation order, used as the ranking tie-break
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAdmin returns true if the user has the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Clone returns a copy that can be mutated without affecting the original
func (u *User) Clone() *User {
	c := *u
	return &c
}
