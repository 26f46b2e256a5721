// Package role defines the fixed set of team roles and what each may do.
package role

// Owner is reserved for the team's creator and is never assignable to members.
const Owner = "owner"

const (
	Admin  = "admin"
	Member = "member"
)

// Permission names a capability granted by a role.
type Permission string

const (
	PermissionViewTeam          Permission = "team:view"
	PermissionUpdateTeam        Permission = "team:update"
	PermissionDeleteTeam        Permission = "team:delete"
	PermissionManageMembers     Permission = "members:manage"
	PermissionManageInvitations Permission = "invitations:manage"
	PermissionManageResources   Permission = "resources:manage"
)

// Role is display metadata for a role identifier.
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions"`
}

var registry = []Role{
	{
		ID:          Owner,
		Name:        "Owner",
		Description: "Created the team. Can rename or delete it and manage members and invitations.",
		Permissions: []Permission{
			PermissionViewTeam,
			PermissionUpdateTeam,
			PermissionDeleteTeam,
			PermissionManageMembers,
			PermissionManageInvitations,
			PermissionManageResources,
		},
	},
	{
		ID:          Admin,
		Name:        "Administrator",
		Description: "Trusted member with elevated access to team resources.",
		Permissions: []Permission{PermissionViewTeam, PermissionManageResources},
	},
	{
		ID:          Member,
		Name:        "Member",
		Description: "Regular member of the team.",
		Permissions: []Permission{PermissionViewTeam},
	},
}

// All returns every role in display order, owner first.
func All() []Role {
	out := make([]Role, len(registry))
	copy(out, registry)
	return out
}

// Assignable returns the roles an owner may grant to members.
func Assignable() []Role {
	out := make([]Role, 0, len(registry)-1)
	for _, r := range registry {
		if r.ID == Owner {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Lookup finds a role by identifier.
func Lookup(id string) (Role, bool) {
	for _, r := range registry {
		if r.ID == id {
			return r, true
		}
	}
	return Role{}, false
}

// IsAssignable reports whether id may be set on a membership.
func IsAssignable(id string) bool {
	if id == Owner {
		return false
	}
	_, ok := Lookup(id)
	return ok
}

// Has reports whether the role grants the permission.
func (r Role) Has(p Permission) bool {
	for _, granted := range r.Permissions {
		if granted == p {
			return true
		}
	}
	return false
}
