package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/orderhub/internal/auth"
	"github.com/geocoder89/orderhub/internal/notifications"
	"github.com/geocoder89/orderhub/internal/rbac"
	"github.com/geocoder89/orderhub/internal/repo/memory"
	"github.com/geocoder89/orderhub/internal/security"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type recordingNotifier struct {
	mu     sync.Mutex
	resets []notifications.TokenMessage
	verify []notifications.TokenMessage
	err    error
}

func (n *recordingNotifier) SendResetPassword(_ context.Context, msg notifications.TokenMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets = append(n.resets, msg)
	return n.err
}

func (n *recordingNotifier) SendVerifyEmail(_ context.Context, msg notifications.TokenMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verify = append(n.verify, msg)
	return n.err
}

type fixture struct {
	users    *memory.UsersRepo
	tokens   *memory.TokensRepo
	orders   *memory.OrdersRepo
	issuer   *auth.Issuer
	hasher   *security.Hasher
	notifier *recordingNotifier
	perms    *rbac.Registry

	auth     *AuthService
	userSvc  *UserService
	orderSvc *OrderService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		users:    memory.NewUsersRepo(),
		tokens:   memory.NewTokensRepo(),
		orders:   memory.NewOrdersRepo(),
		hasher:   security.NewHasher(bcrypt.MinCost),
		notifier: &recordingNotifier{},
		perms:    rbac.NewDefaultRegistry(),
	}

	iss, err := auth.NewIssuer("service-test-secret", f.tokens, auth.TTLs{
		Access:        15 * time.Minute,
		Refresh:       24 * time.Hour,
		ResetPassword: 10 * time.Minute,
		VerifyEmail:   10 * time.Minute,
	})
	require.NoError(t, err)
	f.issuer = iss

	f.auth = NewAuthService(f.users, iss, f.hasher, f.notifier, nil)
	f.userSvc = NewUserService(f.users, f.tokens, iss, f.hasher, nil)
	f.orderSvc = NewOrderService(f.orders, f.users, f.perms, nil)
	return f
}

func (f *fixture) register(t *testing.T, email string) AuthResult {
	t.Helper()
	res, err := f.auth.Register(context.Background(), RegisterInput{Email: email, Password: "password1"})
	require.NoError(t, err)
	return res
}
