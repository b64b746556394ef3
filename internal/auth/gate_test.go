package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/geocoder89/orderhub/internal/apperr"
	"github.com/geocoder89/orderhub/internal/auth"
	"github.com/geocoder89/orderhub/internal/domain/token"
	"github.com/geocoder89/orderhub/internal/domain/user"
	"github.com/geocoder89/orderhub/internal/rbac"
	"github.com/geocoder89/orderhub/internal/repo/memory"
)

type gateFixture struct {
	gate   *auth.Gate
	issuer *auth.Issuer
	users  *memory.UsersRepo
}

func newGateFixture(t *testing.T) gateFixture {
	t.Helper()
	iss, _ := newIssuer(t)
	users := memory.NewUsersRepo()
	return gateFixture{
		gate:   auth.NewGate(iss, users, rbac.NewDefaultRegistry()),
		issuer: iss,
		users:  users,
	}
}

func (f gateFixture) seed(t *testing.T, role user.Role) (user.User, string) {
	t.Helper()
	u := user.NewUser{Email: string(role) + "@example.com", Role: role}.Build(time.Now().UTC())
	if _, err := f.users.Create(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	issued, err := f.issuer.Issue(context.Background(), u.ID, token.TypeAccess, 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return u, issued.Token
}

func TestGate_Authorize(t *testing.T) {
	f := newGateFixture(t)
	u, access := f.seed(t, user.RoleUser)
	_, adminAccess := f.seed(t, user.RoleAdmin)

	tests := []struct {
		name     string
		raw      string
		required []rbac.Permission
		wantKind apperr.Kind
		wantOK   bool
	}{
		{name: "missing token", raw: "", required: []rbac.Permission{rbac.ReadUser}, wantKind: apperr.KindUnauthenticated},
		{name: "missing token no permission", raw: "", wantKind: apperr.KindUnauthenticated},
		{name: "garbage token", raw: "garbage", required: []rbac.Permission{rbac.ReadUser}, wantKind: apperr.KindUnauthenticated},
		{name: "user granted", raw: access, required: []rbac.Permission{rbac.ReadUser}, wantOK: true},
		{name: "user any authenticated", raw: access, wantOK: true},
		{name: "user forbidden", raw: access, required: []rbac.Permission{rbac.ManageUser}, wantKind: apperr.KindForbidden},
		{name: "admin manage", raw: adminAccess, required: []rbac.Permission{rbac.ManageUser}, wantOK: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.gate.Authorize(context.Background(), tc.raw, tc.required...)
			if tc.wantOK {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.ID == "" {
					t.Fatalf("expected resolved user")
				}
				return
			}
			if apperr.KindOf(err) != tc.wantKind {
				t.Fatalf("kind = %v, want %v (err=%v)", apperr.KindOf(err), tc.wantKind, err)
			}
		})
	}

	if got, _ := f.gate.Authorize(context.Background(), access); got.ID != u.ID {
		t.Fatalf("gate resolved the wrong user")
	}
}

func TestGate_RefreshTokenIsNotAccess(t *testing.T) {
	f := newGateFixture(t)
	u, _ := f.seed(t, user.RoleAdmin)

	refresh, _ := f.issuer.Issue(context.Background(), u.ID, token.TypeRefresh, 0)

	_, err := f.gate.Authorize(context.Background(), refresh.Token)
	if apperr.KindOf(err) != apperr.KindUnauthenticated {
		t.Fatalf("refresh token must not pass the gate, got %v", err)
	}
}

func TestGate_DeletedUser(t *testing.T) {
	f := newGateFixture(t)
	u, access := f.seed(t, user.RoleAdmin)

	if err := f.users.SoftDelete(context.Background(), u.ID, time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	_, err := f.gate.Authorize(context.Background(), access, rbac.ReadUser)
	if apperr.KindOf(err) != apperr.KindUnauthenticated {
		t.Fatalf("deleted user must be unauthenticated, got %v", err)
	}
}

type brokenUsers struct{}

func (brokenUsers) GetByID(context.Context, string) (user.User, error) {
	return user.User{}, errors.New("connection reset")
}

func TestGate_StoreFailureIsInternal(t *testing.T) {
	iss, _ := newIssuer(t)
	g := auth.NewGate(iss, brokenUsers{}, rbac.NewDefaultRegistry())

	issued, _ := iss.Issue(context.Background(), "u1", token.TypeAccess, 0)

	_, err := g.Authorize(context.Background(), issued.Token)
	if apperr.KindOf(err) != apperr.KindInternal {
		t.Fatalf("store failure must be internal, got %v", err)
	}
}

type unknownRoleUsers struct{}

func (unknownRoleUsers) GetByID(_ context.Context, id string) (user.User, error) {
	return user.User{ID: id, Role: user.Role("ghost")}, nil
}

func TestGate_UnknownRoleFailsClosed(t *testing.T) {
	iss, _ := newIssuer(t)
	g := auth.NewGate(iss, unknownRoleUsers{}, rbac.NewDefaultRegistry())

	issued, _ := iss.Issue(context.Background(), "u1", token.TypeAccess, 0)

	if _, err := g.Authorize(context.Background(), issued.Token); err != nil {
		t.Fatalf("no permission required, should pass: %v", err)
	}
	_, err := g.Authorize(context.Background(), issued.Token, rbac.ReadUser)
	if apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("unknown role must be forbidden, got %v", err)
	}
}
