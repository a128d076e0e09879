// Package identity models the resolved user record and its capability set.
package identity

// Permission is an opaque capability tag granted through a role.
type Permission string

// WildcardPermission implies every other permission. Can expands it
// centrally so callers never need to check it separately.
const WildcardPermission Permission = "full:access"

// Role is a named collection of permissions.
type Role struct {
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
}

// Identity is the canonical user record returned by the who-am-I endpoint.
// It is derived state: recomputed on demand from the current access token and
// never persisted directly.
type Identity struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Gender    string `json:"gender,omitempty"`
	IsActive  bool   `json:"is_active"`
	Role      Role   `json:"role"`
	TenantID  string `json:"tenant_id,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
}

// FullName returns the display name.
func (i *Identity) FullName() string {
	if i == nil {
		return ""
	}
	return i.FirstName + " " + i.LastName
}

// Can reports whether the identity's role grants the permission, treating
// WildcardPermission as implying all others. A nil identity can do nothing:
// permission unknown is permission denied.
func (i *Identity) Can(permission Permission) bool {
	if i == nil {
		return false
	}
	for _, p := range i.Role.Permissions {
		if p == permission || p == WildcardPermission {
			return true
		}
	}
	return false
}

// ProfileUpdate carries the mutable identity fields. Nil fields are left
// unchanged by the backend.
type ProfileUpdate struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Gender    *string `json:"gender,omitempty"`
	ImageURL  *string `json:"image_url,omitempty"`
}

// Empty reports whether the update would change nothing.
func (u ProfileUpdate) Empty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Gender == nil && u.ImageURL == nil
}
