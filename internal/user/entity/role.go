package entity

import (
	"sort"
	"time"
)

const MaxRoleNameLen = 120

// Role is an entry of the `roles` catalogue.
type Role struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name" validate:"required,max=120"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// RoleSet holds roles keyed by ID. Adding a present role or removing an
// absent one leaves the set unchanged.
type RoleSet map[string]Role

func NewRoleSet(roles ...Role) RoleSet {
	rs := make(RoleSet, len(roles))
	for _, r := range roles {
		rs.Add(r)
	}
	return rs
}

func (rs RoleSet) Add(r Role) { rs[r.ID] = r }

func (rs RoleSet) Remove(id string) { delete(rs, id) }

func (rs RoleSet) Has(id string) bool {
	_, ok := rs[id]
	return ok
}

func (rs RoleSet) Len() int { return len(rs) }

// Slice returns the roles sorted by name, then ID.
func (rs RoleSet) Slice() []Role {
	out := make([]Role, 0, len(rs))
	for _, r := range rs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Names returns the sorted role names.
func (rs RoleSet) Names() []string {
	roles := rs.Slice()
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.Name
	}
	return names
}
