package entity

import "time"

// Column limits of the users table, in characters.
const (
	MaxUsernameLen  = 250
	MaxPasswordLen  = 120
	MaxFirstNameLen = 120
	MaxLastNameLen  = 120
	MaxEmailLen     = 250
)

// User represents an account row in the `users` table.
// Password holds whatever credential blob the caller hands over (normally a
// hash); the store never interprets it.
type User struct {
	ID        int64     `db:"id" json:"id"`
	Username  string    `db:"username" json:"username" validate:"required,max=250"`
	Password  string    `db:"password" json:"-" validate:"required,max=120"`
	FirstName string    `db:"first_name" json:"first_name" validate:"required,max=120"`
	LastName  string    `db:"last_name" json:"last_name" validate:"required,max=120"`
	Email     string    `db:"email" json:"email" validate:"required,max=250"`
	Enabled   bool      `db:"enabled" json:"enabled"`
	Expired   bool      `db:"expired" json:"expired"`
	Locked    bool      `db:"locked" json:"locked"`
	Version   int64     `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	// Roles is filled by UserRepo.LoadRoles only.
	Roles       RoleSet `db:"-" json:"roles,omitempty"`
	rolesLoaded bool
}

// RolesLoaded reports whether Roles has been resolved from the store.
func (u *User) RolesLoaded() bool { return u.rolesLoaded }

// SetRoles installs a resolved role set.
func (u *User) SetRoles(rs RoleSet) {
	if rs == nil {
		rs = RoleSet{}
	}
	u.Roles = rs
	u.rolesLoaded = true
}

// Usable reports whether the account may authenticate.
func (u *User) Usable() bool {
	return u.Enabled && !u.Expired && !u.Locked
}
