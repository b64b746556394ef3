// Package app assembles stores, services and the HTTP router from config.
package app

import (
	"log/slog"
	"time"

	"github.com/geocoder89/orderhub/internal/auth"
	"github.com/geocoder89/orderhub/internal/config"
	"github.com/geocoder89/orderhub/internal/domain/token"
	httpx "github.com/geocoder89/orderhub/internal/http"
	"github.com/geocoder89/orderhub/internal/http/middlewares"
	"github.com/geocoder89/orderhub/internal/notifications"
	"github.com/geocoder89/orderhub/internal/observability"
	"github.com/geocoder89/orderhub/internal/rbac"
	"github.com/geocoder89/orderhub/internal/repo/memory"
	"github.com/geocoder89/orderhub/internal/repo/postgres"
	"github.com/geocoder89/orderhub/internal/security"
	"github.com/geocoder89/orderhub/internal/service"
	"github.com/geocoder89/orderhub/internal/sweeper"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// TokenRepo is everything the process needs from the token table.
type TokenRepo interface {
	auth.TokenStore
	service.SessionReader
	sweeper.Purger
}

type Stores struct {
	Users  service.UserStore
	Tokens TokenRepo
	Orders service.OrderStore
}

func MemoryStores() Stores {
	return Stores{
		Users:  memory.NewUsersRepo(),
		Tokens: memory.NewTokensRepo(),
		Orders: memory.NewOrdersRepo(),
	}
}

func PostgresStores(pool *pgxpool.Pool, prom *observability.Prom) Stores {
	return Stores{
		Users:  postgres.NewUsersRepo(pool, prom),
		Tokens: postgres.NewTokensRepo(pool, prom),
		Orders: postgres.NewOrdersRepo(pool, prom),
	}
}

// Deps are the optional collaborators. Zero values disable the feature.
type Deps struct {
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
	Ping     func() error
	Limiter  middlewares.Limiter
	Notifier notifications.Notifier
	// HashCost overrides the bcrypt cost; tests use bcrypt.MinCost.
	HashCost    int
	ServiceName string
}

type App struct {
	Router *gin.Engine
	// Auth is exposed so shutdown can wait for background mail.
	Auth   *service.AuthService
	Issuer *auth.Issuer
	Hasher *security.Hasher
	Stores Stores
}

func New(cfg config.Config, log *slog.Logger, stores Stores, deps Deps) (*App, error) {
	issuer, err := auth.NewIssuer(cfg.JWTSecret, stores.Tokens, auth.TTLs{
		Access:        cfg.AccessTTL(),
		Refresh:       cfg.RefreshTTL(),
		ResetPassword: cfg.ResetPasswordTTL(),
		VerifyEmail:   cfg.VerifyEmailTTL(),
	})
	if err != nil {
		return nil, err
	}
	issuer.OnIssue(func(t token.Type) { deps.Prom.ObserveIssued(string(t)) })

	perms := rbac.NewDefaultRegistry()
	gate := auth.NewGate(issuer, stores.Users, perms).OnDecision(deps.Prom.ObserveDecision)

	hasher := security.NewHasher(deps.HashCost)

	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewProtectedNotifier(notifications.NewLogNotifier(log), notifications.ProtectedNotifierConfig{
			Timeout:          2 * time.Second,
			FailureThreshold: 5,
			Cooldown:         30 * time.Second,
			HalfOpenMaxCalls: 1,
			OnStateChange: func(from, to string) {
				log.Warn("notifier circuit changed", "from", from, "to", to)
			},
		})
	}

	authSvc := service.NewAuthService(stores.Users, issuer, hasher, notifier, log)

	router := httpx.NewRouter(log, httpx.Options{
		Env:            cfg.Env,
		ServiceName:    deps.ServiceName,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,

		Auth:   authSvc,
		Users:  service.NewUserService(stores.Users, stores.Tokens, issuer, hasher, log),
		Orders: service.NewOrderService(stores.Orders, stores.Users, perms, log),
		Gate:   gate,

		AuthLimiter: deps.Limiter,
		Ping:        deps.Ping,

		Prom:     deps.Prom,
		Gatherer: deps.Gatherer,
	})

	return &App{
		Router: router,
		Auth:   authSvc,
		Issuer: issuer,
		Hasher: hasher,
		Stores: stores,
	}, nil
}
