package http

import (
	"log/slog"
	"time"

	"github.com/geocoder89/orderhub/internal/http/handlers"
	"github.com/geocoder89/orderhub/internal/http/middlewares"
	"github.com/geocoder89/orderhub/internal/observability"
	"github.com/geocoder89/orderhub/internal/rbac"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const maxBodyBytes = 1 << 20

// Options carries everything the router wires. Nil Prom and Gatherer disable
// metrics; a nil AuthLimiter disables rate limiting on the auth routes.
type Options struct {
	Env            string
	ServiceName    string
	AllowedOrigins []string
	RequestTimeout time.Duration

	Auth   handlers.AuthAPI
	Users  handlers.UserAPI
	Orders handlers.OrderAPI
	Gate   middlewares.Authorizer

	AuthLimiter middlewares.Limiter
	Ping        func() error

	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
}

func NewRouter(log *slog.Logger, opts Options) *gin.Engine {
	if opts.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	if opts.ServiceName != "" {
		r.Use(otelgin.Middleware(opts.ServiceName))
	}
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	if opts.Prom != nil {
		r.Use(opts.Prom.GinHandleMiddleware())
	}
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(opts.AllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(maxBodyBytes))
	r.Use(middlewares.RequireJSON())

	// health
	h := handlers.NewHealthHandler(opts.Ping)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	r.GET("/docs", handlers.SwaggerUI)
	r.GET("/docs/openapi.yaml", handlers.OpenAPISpec)

	authn := middlewares.NewAuthMiddleware(opts.Gate)

	// limited keys anonymous auth routes by client IP; perUser runs after
	// authentication and keys by the caller.
	limited := func(c *gin.Context) { c.Next() }
	perUser := limited
	if opts.AuthLimiter != nil {
		limited = middlewares.RateLimit(opts.AuthLimiter, middlewares.KeyByIP, opts.Prom.ObserveRateLimited)
		perUser = middlewares.RateLimit(opts.AuthLimiter, middlewares.KeyByUserOrIP, opts.Prom.ObserveRateLimited)
	}

	v1 := r.Group("/v1")

	authHandler := handlers.NewAuthHandler(opts.Auth, opts.RequestTimeout, opts.Env)
	authRoutes := v1.Group("/auth")
	{
		authRoutes.POST("/register", limited, authHandler.Register)
		authRoutes.POST("/login", limited, authHandler.Login)
		authRoutes.POST("/logout", authHandler.Logout)
		authRoutes.POST("/refresh-tokens", limited, authHandler.RefreshTokens)
		authRoutes.POST("/forgot-password", limited, authHandler.ForgotPassword)
		authRoutes.POST("/reset-password", limited, authHandler.ResetPassword)
		authRoutes.POST("/send-verification-email", authn.Authenticated(), perUser, authHandler.SendVerificationEmail)
		authRoutes.POST("/verify-email", authHandler.VerifyEmail)
	}

	usersHandler := handlers.NewUsersHandler(opts.Users, opts.RequestTimeout)
	users := v1.Group("/users")
	{
		users.POST("", authn.Require(rbac.ManageUser), usersHandler.Create)
		users.GET("", authn.Require(rbac.ReadUser), usersHandler.List)
		users.GET("/me", authn.Authenticated(), usersHandler.Me)
		users.GET("/user/:userId", authn.Require(rbac.ReadUser), usersHandler.Get)
		users.PATCH("/user/:userId", authn.Require(rbac.ManageUser), usersHandler.Update)
		users.DELETE("/user/:userId", authn.Require(rbac.ManageUser), usersHandler.Delete)
	}

	ordersHandler := handlers.NewOrdersHandler(opts.Orders, opts.RequestTimeout)
	orders := v1.Group("/orders")
	{
		orders.POST("", authn.Require(rbac.CreateOrder), ordersHandler.Create)
		orders.GET("/user/:userId", authn.Require(rbac.ViewOrder), ordersHandler.ListByUser)
		orders.GET("/:orderId", authn.Require(rbac.ViewOrder), ordersHandler.Get)
		orders.PATCH("/:orderId", authn.Require(rbac.EditOrder), ordersHandler.Update)
		orders.DELETE("/:orderId", authn.Require(rbac.DeleteOrder), ordersHandler.Delete)
		orders.POST("/:orderId/items", authn.Require(rbac.EditOrder), ordersHandler.AddItems)
		orders.DELETE("/:orderId/items", authn.Require(rbac.EditOrder), ordersHandler.RemoveItems)
	}

	r.NoRoute(func(c *gin.Context) {
		handlers.RespondNotFound(c, "Route not found")
	})

	return r
}
