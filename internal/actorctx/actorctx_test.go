package actorctx

import (
	"context"
	"testing"

	"github.com/geocoder89/orderhub/internal/domain/user"
)

func TestUserRoundTrip(t *testing.T) {
	if _, ok := UserFrom(context.Background()); ok {
		t.Fatalf("empty context must not carry a user")
	}

	ctx := WithUser(context.Background(), user.User{ID: "u1", Role: user.RoleAdmin})

	id, ok := UserIDFrom(ctx)
	if !ok || id != "u1" {
		t.Fatalf("got %q %v", id, ok)
	}

	if _, ok := UserFrom(WithUser(context.Background(), user.User{})); ok {
		t.Fatalf("a user without id is not an actor")
	}
}
