package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/geocoder89/orderhub/internal/domain/token"
	"github.com/geocoder89/orderhub/internal/domain/user"
)

func seedUser(t *testing.T, r *UsersRepo, id, email, username string) user.User {
	t.Helper()

	now := time.Now().UTC()
	u, err := r.Create(context.Background(), user.User{
		ID: id, Email: email, Username: username,
		Role: user.RoleUser, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
	return u
}

func TestUsersRepo_Uniqueness(t *testing.T) {
	r := NewUsersRepo()
	ctx := context.Background()

	seedUser(t, r, "u1", "a@x.com", "alice")

	if _, err := r.Create(ctx, user.User{ID: "u2", Email: "A@X.com", Username: "other"}); !errors.Is(err, user.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	if _, err := r.Create(ctx, user.User{ID: "u2", Email: "b@x.com", Username: "ALICE"}); !errors.Is(err, user.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	// a soft-deleted account frees its email
	if err := r.SoftDelete(ctx, "u1", time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetByEmail(ctx, "a@x.com"); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("deleted user must not be found, got %v", err)
	}
	seedUser(t, r, "u2", "a@x.com", "alice2")
}

func TestUsersRepo_ListPagesAndSorts(t *testing.T) {
	r := NewUsersRepo()

	seedUser(t, r, "u1", "carol@x.com", "carol")
	seedUser(t, r, "u2", "alice@x.com", "alice")
	seedUser(t, r, "u3", "bob@y.com", "bob")

	got, total, err := r.List(context.Background(), user.ListFilter{SortBy: "email", Limit: 2, Page: 1})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(got) != 2 || got[0].Email != "alice@x.com" || got[1].Email != "bob@y.com" {
		t.Fatalf("page 1 = %+v (total %d)", got, total)
	}

	got, _, _ = r.List(context.Background(), user.ListFilter{SortBy: "email", Limit: 2, Page: 2})
	if len(got) != 1 || got[0].Email != "carol@x.com" {
		t.Fatalf("page 2 = %+v", got)
	}

	got, total, _ = r.List(context.Background(), user.ListFilter{Search: "@X.", SortBy: "email", SortDesc: true})
	if total != 2 || got[0].Email != "carol@x.com" {
		t.Fatalf("search desc = %+v", got)
	}
}

func TestTokensRepo_ReplaceKeepsOnePerType(t *testing.T) {
	r := NewTokensRepo()
	ctx := context.Background()
	now := time.Now().UTC()

	for _, id := range []string{"t1", "t2"} {
		err := r.Replace(ctx, token.Token{ID: id, UserID: "u", Value: id, Type: token.TypeRefresh, Expires: now.Add(time.Hour)})
		if err != nil {
			t.Fatal(err)
		}
	}
	_ = r.Replace(ctx, token.Token{ID: "a1", UserID: "u", Value: "a1", Type: token.TypeAccess, CreatedAt: now, Expires: now.Add(time.Hour)})

	if n := r.Count("u", token.TypeRefresh); n != 1 {
		t.Fatalf("refresh tokens = %d, want 1", n)
	}
	if _, err := r.FindByValue(ctx, "t1", token.TypeRefresh); err == nil {
		t.Fatalf("replaced token must be gone")
	}

	sessions, err := r.LastSessions(ctx, []string{"u", "nobody"})
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || !sessions[0].IssuedAt.Equal(now) {
		t.Fatalf("sessions = %+v", sessions)
	}

	if err := r.DeleteAllForUser(ctx, "u"); err != nil {
		t.Fatal(err)
	}
	if r.Count("u", token.TypeRefresh)+r.Count("u", token.TypeAccess) != 0 {
		t.Fatalf("expected every token revoked")
	}
}

func TestTokensRepo_DeleteReportsMiss(t *testing.T) {
	r := NewTokensRepo()
	ctx := context.Background()

	_ = r.Replace(ctx, token.Token{ID: "t1", UserID: "u", Value: "v", Type: token.TypeRefresh, Expires: time.Now().Add(time.Hour)})

	if err := r.Delete(ctx, "t1"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := r.Delete(ctx, "t1"); !errors.Is(err, token.ErrNotFound) {
		t.Fatalf("second delete = %v, want token.ErrNotFound", err)
	}
}
