package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRolePermissions(t *testing.T) {
	all := []Permission{
		PermManageUsers, PermEditContent, PermViewContent,
		PermReadEntries, PermCreateEntry, PermUpdateEntry, PermDeleteEntry,
	}
	want := map[Role][]Permission{
		RoleAdmin:  all,
		RoleEditor: {PermEditContent, PermViewContent, PermReadEntries, PermCreateEntry, PermUpdateEntry},
		RoleUser:   {PermViewContent, PermReadEntries},
		RoleViewer: {PermViewContent, PermReadEntries},
	}
	for role, granted := range want {
		t.Run(string(role), func(t *testing.T) {
			set, ok := role.Permissions()
			assert.True(t, ok)
			assert.Len(t, set, len(granted))
			for _, p := range all {
				assert.Equal(t, contains(granted, p), role.Can(p), "%s/%s", role, p)
			}
		})
	}
}

func contains(ps []Permission, p Permission) bool {
	for _, x := range ps {
		if x == p {
			return true
		}
	}
	return false
}

func TestUnknownRoleGrantsNothing(t *testing.T) {
	_, ok := Role("superuser").Permissions()
	assert.False(t, ok)
	assert.False(t, Role("superuser").Can(PermReadEntries))
	assert.False(t, Role("").Can(PermViewContent))
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole("  Editor ")
	assert.True(t, ok)
	assert.Equal(t, RoleEditor, r)

	_, ok = ParseRole("viewer")
	assert.False(t, ok, "viewer is an alias and never stored")

	_, ok = ParseRole("root")
	assert.False(t, ok)
}
