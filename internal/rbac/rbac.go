// Package rbac maps roles onto permission sets. The table is built once at
// startup and only read afterwards, so it is safe for concurrent use.
package rbac

import "github.com/geocoder89/orderhub/internal/domain/user"

type Permission string

const (
	ReadUser    Permission = "readUser"
	ManageUser  Permission = "manageUser"
	CreateOrder Permission = "createOrder"
	EditOrder   Permission = "editOrder"
	ViewOrder   Permission = "viewOrder"
	DeleteOrder Permission = "deleteOrder"
)

// Set is a read-only permission set.
type Set map[Permission]struct{}

func (s Set) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

func (s Set) List() []Permission {
	out := make([]Permission, 0, len(s))
	for _, p := range allPermissions {
		if s.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

var allPermissions = []Permission{ReadUser, ManageUser, CreateOrder, EditOrder, ViewOrder, DeleteOrder}

// DefaultPermissions is the deployment's role table. Adding a role means adding a case here.
func DefaultPermissions(role user.Role) []Permission {
	switch role {
	case user.RoleUser:
		return []Permission{ReadUser, CreateOrder, EditOrder, ViewOrder}
	case user.RoleAdmin:
		return []Permission{ReadUser, ManageUser, CreateOrder, DeleteOrder, EditOrder, ViewOrder}
	default:
		return nil
	}
}

type Registry struct {
	table map[user.Role]Set
}

// NewRegistry snapshots table. Later changes to the caller's map are not observed.
func NewRegistry(table map[user.Role][]Permission) *Registry {
	r := &Registry{table: make(map[user.Role]Set, len(table))}
	for role, perms := range table {
		set := make(Set, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		r.table[role] = set
	}
	return r
}

func NewDefaultRegistry() *Registry {
	return NewRegistry(map[user.Role][]Permission{
		user.RoleUser:  DefaultPermissions(user.RoleUser),
		user.RoleAdmin: DefaultPermissions(user.RoleAdmin),
	})
}

// PermissionsFor fails closed: an unknown role gets an empty set.
func (r *Registry) PermissionsFor(role user.Role) Set {
	set, ok := r.table[role]
	if !ok {
		return Set{}
	}
	return set
}

func (r *Registry) Allows(role user.Role, p Permission) bool {
	return r.PermissionsFor(role).Has(p)
}
