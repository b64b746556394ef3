package rbac

import (
	"testing"

	"github.com/geocoder89/orderhub/internal/domain/user"
)

func TestDefaultRegistry(t *testing.T) {
	reg := NewDefaultRegistry()

	tests := []struct {
		role user.Role
		perm Permission
		want bool
	}{
		{user.RoleUser, ReadUser, true},
		{user.RoleUser, CreateOrder, true},
		{user.RoleUser, EditOrder, true},
		{user.RoleUser, ViewOrder, true},
		{user.RoleUser, ManageUser, false},
		{user.RoleUser, DeleteOrder, false},
		{user.RoleAdmin, ManageUser, true},
		{user.RoleAdmin, DeleteOrder, true},
		{user.RoleAdmin, ReadUser, true},
	}

	for _, tc := range tests {
		if got := reg.Allows(tc.role, tc.perm); got != tc.want {
			t.Errorf("Allows(%s, %s) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
}

func TestAdminIsSupersetOfUser(t *testing.T) {
	reg := NewDefaultRegistry()
	admin := reg.PermissionsFor(user.RoleAdmin)

	for p := range reg.PermissionsFor(user.RoleUser) {
		if !admin.Has(p) {
			t.Fatalf("admin is missing user permission %s", p)
		}
	}
}

func TestUnknownRoleFailsClosed(t *testing.T) {
	reg := NewDefaultRegistry()

	set := reg.PermissionsFor(user.Role("superuser"))
	if set == nil {
		t.Fatalf("expected empty set, got nil")
	}
	if len(set) != 0 {
		t.Fatalf("expected no permissions, got %v", set.List())
	}
	if reg.Allows(user.Role(""), ReadUser) {
		t.Fatalf("empty role must not be allowed anything")
	}
}

func TestEveryKnownRoleHasPermissions(t *testing.T) {
	for _, role := range []user.Role{user.RoleUser, user.RoleAdmin} {
		if len(DefaultPermissions(role)) == 0 {
			t.Fatalf("role %s maps to an empty set", role)
		}
	}
}

func TestNewRegistryCopiesTable(t *testing.T) {
	table := map[user.Role][]Permission{user.RoleUser: {ReadUser}}
	reg := NewRegistry(table)

	table[user.RoleUser] = append(table[user.RoleUser], ManageUser)

	if reg.Allows(user.RoleUser, ManageUser) {
		t.Fatalf("registry must not observe later table mutations")
	}
}
