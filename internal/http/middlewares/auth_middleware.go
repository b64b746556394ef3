package middlewares

import (
	"context"
	"strings"

	"github.com/geocoder89/orderhub/internal/actorctx"
	"github.com/geocoder89/orderhub/internal/domain/user"
	"github.com/geocoder89/orderhub/internal/http/handlers"
	"github.com/geocoder89/orderhub/internal/rbac"
	"github.com/gin-gonic/gin"
)

// Keep this small interface so tests can fake it easily.
type Authorizer interface {
	Authorize(ctx context.Context, raw string, required ...rbac.Permission) (user.User, error)
}

type AuthMiddleware struct {
	gate Authorizer
}

func NewAuthMiddleware(gate Authorizer) *AuthMiddleware {
	return &AuthMiddleware{gate: gate}
}

// bearerToken returns "" when the header is absent or not a Bearer credential.
func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) < len("Bearer ") || !strings.EqualFold(authHeader[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(authHeader[len("Bearer "):])
}

// Require authenticates the caller and checks every listed permission. With no
// permissions any authenticated user passes.
func (m *AuthMiddleware) Require(perms ...rbac.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := m.gate.Authorize(c.Request.Context(), bearerToken(c), perms...)
		if err != nil {
			handlers.RespondAppError(c, err)
			c.Abort()
			return
		}

		// Stash identity for handlers (context) and for the access log (gin keys)
		c.Request = c.Request.WithContext(actorctx.WithUser(c.Request.Context(), u))
		c.Set(CtxUserID, u.ID)
		c.Set(CtxRole, string(u.Role))

		c.Next()
	}
}

// Authenticated is Require with no permission.
func (m *AuthMiddleware) Authenticated() gin.HandlerFunc {
	return m.Require()
}

func UserIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxUserID)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
