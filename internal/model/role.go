package model

import "strings"

// Role is the closed set of role names a user can hold.
type Role string

const (
    RoleUser   Role = "user"
    RoleEditor Role = "editor"
    RoleAdmin  Role = "admin"
    // RoleViewer is accepted in the permission table as a synonym of
    // RoleUser. It is never written to the store.
    RoleViewer Role = "viewer"
)

// Permission is a named capability checked independently of role names.
type Permission string

const (
    PermManageUsers Permission = "manage_users"
    PermEditContent Permission = "edit_content"
    PermViewContent Permission = "view_content"
    PermReadEntries Permission = "read_entries"
    PermCreateEntry Permission = "create_entry"
    PermUpdateEntry Permission = "update_entry"
    PermDeleteEntry Permission = "delete_entry"
)

// PermissionSet is an immutable set of permissions.
type PermissionSet map[Permission]struct{}

func newPermissionSet(perms ...Permission) PermissionSet {
    s := make(PermissionSet, len(perms))
    for _, p := range perms {
        s[p] = struct{}{}
    }
    return s
}

// Has reports whether p is in the set.
func (s PermissionSet) Has(p Permission) bool {
    _, ok := s[p]
    return ok
}

var viewerPermissions = newPermissionSet(PermViewContent, PermReadEntries)

var rolePermissions = map[Role]PermissionSet{
    RoleAdmin: newPermissionSet(
        PermManageUsers, PermEditContent, PermViewContent,
        PermReadEntries, PermCreateEntry, PermUpdateEntry, PermDeleteEntry,
    ),
    RoleEditor: newPermissionSet(
        PermEditContent, PermViewContent,
        PermReadEntries, PermCreateEntry, PermUpdateEntry,
    ),
    RoleUser:   viewerPermissions,
    RoleViewer: viewerPermissions,
}

// Permissions returns the permission set for r. ok is false for a role that
// is not in the table.
func (r Role) Permissions() (PermissionSet, bool) {
    s, ok := rolePermissions[r]
    return s, ok
}

// Can reports whether r grants p. Unknown roles grant nothing.
func (r Role) Can(p Permission) bool {
    s, ok := r.Permissions()
    return ok && s.Has(p)
}

// Storable reports whether r may be persisted on a user record.
func (r Role) Storable() bool {
    switch r {
    case RoleUser, RoleEditor, RoleAdmin:
        return true
    }
    return false
}

// ParseRole normalizes s and returns the matching storable role.
func ParseRole(s string) (Role, bool) {
    r := Role(strings.ToLower(strings.TrimSpace(s)))
    if !r.Storable() {
        return "", false
    }
    return r, true
}
