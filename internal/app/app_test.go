package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/orderhub/internal/app"
	"github.com/geocoder89/orderhub/internal/config"
	"github.com/geocoder89/orderhub/internal/db"
	"github.com/geocoder89/orderhub/internal/http/middlewares"
	"github.com/geocoder89/orderhub/internal/notifications"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "adminpass1"
)

type outbox struct {
	mu    sync.Mutex
	reset []notifications.TokenMessage
}

func (o *outbox) SendResetPassword(_ context.Context, msg notifications.TokenMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reset = append(o.reset, msg)
	return nil
}

func (o *outbox) SendVerifyEmail(context.Context, notifications.TokenMessage) error { return nil }

func (o *outbox) lastReset(t *testing.T) notifications.TokenMessage {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.reset, "no reset message sent")
	return o.reset[len(o.reset)-1]
}

func testConfig() config.Config {
	return config.Config{
		Env:                        "test",
		Store:                      "memory",
		JWTSecret:                  "test-secret-key",
		JWTAccessTTLMinutes:        30,
		JWTRefreshTTLDays:          30,
		JWTResetPasswordTTLMinutes: 10,
		JWTVerifyEmailTTLMinutes:   10,
		RequestTimeout:             2 * time.Second,
		AdminEmail:                 adminEmail,
		AdminPassword:              adminPassword,
		AdminName:                  "Test Admin",
	}
}

type harness struct {
	router *gin.Engine
	outbox *outbox
	app    *app.App
}

func newHarness(t *testing.T, limiter middlewares.Limiter) *harness {
	return newHarnessWith(t, app.MemoryStores(), limiter)
}

func newHarnessWith(t *testing.T, stores app.Stores, limiter middlewares.Limiter) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig()
	box := &outbox{}

	a, err := app.New(cfg, log, stores, app.Deps{
		Notifier: box,
		Limiter:  limiter,
		HashCost: bcrypt.MinCost,
	})
	require.NoError(t, err)

	created, err := db.EnsureAdminUser(context.Background(), a.Stores.Users, a.Hasher, cfg)
	require.NoError(t, err)
	require.True(t, created)

	return &harness{router: a.Router, outbox: box, app: a}
}

func (h *harness) do(t *testing.T, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

type issued struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type tokens struct {
	Access  issued `json:"access"`
	Refresh issued `json:"refresh"`
}

type authResponse struct {
	User   map[string]interface{} `json:"user"`
	Tokens tokens                 `json:"tokens"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body=%s", w.Body.String())
	return out
}

func (h *harness) register(t *testing.T, email, password string) authResponse {
	t.Helper()
	w := h.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[authResponse](t, w)
}

func (h *harness) login(t *testing.T, email, password string) authResponse {
	t.Helper()
	w := h.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[authResponse](t, w)
}

func TestRegisterLoginRefresh(t *testing.T) {
	h := newHarness(t, nil)

	reg := h.register(t, "a@x.com", "password1")
	assert.Equal(t, "a@x.com", reg.User["email"])
	assert.NotEmpty(t, reg.Tokens.Access.Token)
	assert.NotEmpty(t, reg.Tokens.Refresh.Token)
	assert.NotContains(t, reg.User, "password")
	assert.NotContains(t, reg.User, "passwordHash")

	// bad password and unknown email look the same
	wrong := h.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "a@x.com", "password": "wrongpass1"})
	unknown := h.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "nobody@x.com", "password": "wrongpass1"})
	assert.Equal(t, http.StatusNotFound, wrong.Code)
	assert.Equal(t, wrong.Code, unknown.Code)
	assert.Equal(t, decode[errorResponse](t, wrong).Error, decode[errorResponse](t, unknown).Error)

	w := h.do(t, http.MethodPost, "/v1/auth/refresh-tokens", "", map[string]string{"refreshToken": reg.Tokens.Refresh.Token})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	refreshed := decode[struct {
		Tokens tokens `json:"tokens"`
	}](t, w)
	assert.NotEqual(t, reg.Tokens.Refresh.Token, refreshed.Tokens.Refresh.Token)

	// the consumed refresh token is gone
	w = h.do(t, http.MethodPost, "/v1/auth/refresh-tokens", "", map[string]string{"refreshToken": reg.Tokens.Refresh.Token})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(t, http.MethodGet, "/v1/users/me", refreshed.Tokens.Access.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestRegisterDuplicateEmail(t *testing.T) {
	h := newHarness(t, nil)

	h.register(t, "dup@x.com", "password1")

	w := h.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{"email": "dup@x.com", "password": "password2"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "email_taken", decode[errorResponse](t, w).Error.Code)

	// same password, different email is fine
	h.register(t, "other@x.com", "password2")
}

func TestLogoutRevokesAccess(t *testing.T) {
	h := newHarness(t, nil)

	reg := h.register(t, "b@x.com", "password1")

	w := h.do(t, http.MethodPost, "/v1/auth/logout", "", map[string]string{"refreshToken": reg.Tokens.Refresh.Token})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = h.do(t, http.MethodGet, "/v1/users/me", reg.Tokens.Access.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(t, http.MethodPost, "/v1/auth/logout", "", map[string]string{"refreshToken": reg.Tokens.Refresh.Token})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPermissions(t *testing.T) {
	h := newHarness(t, nil)

	reg := h.register(t, "c@x.com", "password1")
	access := reg.Tokens.Access.Token

	w := h.do(t, http.MethodGet, "/v1/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(t, http.MethodGet, "/v1/users", reg.Tokens.Refresh.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "refresh token must not authenticate")

	w = h.do(t, http.MethodGet, "/v1/users", access, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	newUser := map[string]string{"email": "d@x.com", "password": "password1"}

	w = h.do(t, http.MethodPost, "/v1/users", access, newUser)
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := h.login(t, adminEmail, adminPassword)
	w = h.do(t, http.MethodPost, "/v1/users", admin.Tokens.Access.Token, newUser)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "d@x.com", decode[map[string]interface{}](t, w)["username"])
}

func TestListUsersCarriesLastSeen(t *testing.T) {
	h := newHarness(t, nil)

	reg := h.register(t, "e@x.com", "password1")

	w := h.do(t, http.MethodGet, "/v1/users?search=e@x&sortBy=email&sortType=desc&limit=5", reg.Tokens.Access.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	page := decode[struct {
		Results      []map[string]interface{} `json:"results"`
		Limit        int                      `json:"limit"`
		TotalResults int                      `json:"totalResults"`
	}](t, w)
	require.Len(t, page.Results, 1)
	assert.Equal(t, 5, page.Limit)
	assert.Equal(t, 1, page.TotalResults)
	assert.Contains(t, page.Results[0], "lastSeen")

	w = h.do(t, http.MethodGet, "/v1/users?sortBy=password", reg.Tokens.Access.Token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodGet, "/v1/users?search=e", reg.Tokens.Access.Token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestForgotAndResetPassword(t *testing.T) {
	h := newHarness(t, nil)

	h.register(t, "f@x.com", "password1")

	w := h.do(t, http.MethodPost, "/v1/auth/forgot-password", "", map[string]string{"email": "nobody@x.com"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = h.do(t, http.MethodPost, "/v1/auth/forgot-password", "", map[string]string{"email": "f@x.com"})
	require.Equal(t, http.StatusNoContent, w.Code)

	h.app.Auth.Wait()
	msg := h.outbox.lastReset(t)
	assert.Equal(t, "f@x.com", msg.Email)

	w = h.do(t, http.MethodPost, "/v1/auth/reset-password?token="+msg.Token, "", map[string]string{"password": "newpassword2"})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	h.login(t, "f@x.com", "newpassword2")

	w = h.do(t, http.MethodPost, "/v1/auth/reset-password?token="+msg.Token, "", map[string]string{"password": "another3pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOrdersOwnership(t *testing.T) {
	h := newHarness(t, nil)

	owner := h.register(t, "g@x.com", "password1")
	other := h.register(t, "h@x.com", "password1")

	w := h.do(t, http.MethodPost, "/v1/orders", owner.Tokens.Access.Token, map[string]interface{}{
		"items": []map[string]interface{}{{"productId": 1, "productName": "pen", "quantity": 2, "price": 1.5}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	created := decode[struct {
		ID    string `json:"id"`
		Items []struct {
			Total float64 `json:"total"`
		} `json:"items"`
	}](t, w)
	require.Len(t, created.Items, 1)
	assert.Equal(t, 3.0, created.Items[0].Total)

	w = h.do(t, http.MethodGet, "/v1/orders/"+created.ID, owner.Tokens.Access.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodGet, "/v1/orders/"+created.ID, other.Tokens.Access.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(t, http.MethodPatch, "/v1/orders/"+created.ID, other.Tokens.Access.Token, map[string]string{"status": "COMPLETED"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// users hold no deleteOrder permission
	w = h.do(t, http.MethodDelete, "/v1/orders/"+created.ID, owner.Tokens.Access.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := h.login(t, adminEmail, adminPassword)
	w = h.do(t, http.MethodDelete, "/v1/orders/"+created.ID, admin.Tokens.Access.Token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestAuthRoutesAreRateLimited(t *testing.T) {
	h := newHarness(t, middlewares.NewRateLimiter(2, time.Minute))

	body := map[string]string{"email": "nobody@x.com", "password": "password1"}
	for i := 0; i < 2; i++ {
		w := h.do(t, http.MethodPost, "/v1/auth/login", "", body)
		require.Equal(t, http.StatusNotFound, w.Code)
	}

	w := h.do(t, http.MethodPost, "/v1/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestVerificationEmailIsLimitedPerUser(t *testing.T) {
	h := newHarness(t, middlewares.NewRateLimiter(2, time.Minute))

	alice := h.register(t, "alice@x.com", "password1")
	bob := h.register(t, "bob@x.com", "password1")

	for i := 0; i < 2; i++ {
		w := h.do(t, http.MethodPost, "/v1/auth/send-verification-email", alice.Tokens.Access.Token, nil)
		require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	}

	w := h.do(t, http.MethodPost, "/v1/auth/send-verification-email", alice.Tokens.Access.Token, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// same client address, different caller: separate budget
	w = h.do(t, http.MethodPost, "/v1/auth/send-verification-email", bob.Tokens.Access.Token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
}

// Same flow against postgres: TEST_DB_DSN=postgres://... go test ./internal/app/
func TestPostgresStack(t *testing.T) {
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE order_items, orders, tokens, users CASCADE`)
	require.NoError(t, err)

	h := newHarnessWith(t, app.PostgresStores(pool, nil), nil)

	reg := h.register(t, "pg@x.com", "password1")

	w := h.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{"email": "PG@x.com", "password": "password1"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "email uniqueness is case-insensitive")

	w = h.do(t, http.MethodPost, "/v1/auth/refresh-tokens", "", map[string]string{"refreshToken": reg.Tokens.Refresh.Token})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(t, http.MethodPost, "/v1/auth/refresh-tokens", "", map[string]string{"refreshToken": reg.Tokens.Refresh.Token})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(t, http.MethodGet, "/v1/users", reg.Tokens.Access.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "refresh replaced the access token")
}
