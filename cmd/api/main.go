package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/orderhub/internal/app"
	"github.com/geocoder89/orderhub/internal/config"
	"github.com/geocoder89/orderhub/internal/db"
	"github.com/geocoder89/orderhub/internal/http/middlewares"
	"github.com/geocoder89/orderhub/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

const serviceName = "orderhub-api"

func main() {
	// Load the config set up
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName: serviceName,
		Env:         cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(sctx)
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	deps := app.Deps{
		Prom:        prom,
		Gatherer:    reg,
		ServiceName: serviceName,
	}

	var stores app.Stores

	switch cfg.Store {
	case "memory":
		log.Warn("using in-memory store, data is lost on restart")
		stores = app.MemoryStores()
	default:
		pool, err := db.NewPool(ctx, cfg.DBURL)
		if err != nil {
			log.Error("db connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := db.Migrate(ctx, pool); err != nil {
			log.Error("migrations failed", "err", err)
			os.Exit(1)
		}

		stores = app.PostgresStores(pool, prom)
		deps.Ping = func() error {
			pctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return pool.Ping(pctx)
		}
	}

	if cfg.RateLimitAuth > 0 {
		if cfg.RedisAddr != "" {
			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
			defer rdb.Close()

			if err := rdb.Ping(ctx).Err(); err != nil {
				// the limiter fails open, so a missing redis only weakens throttling
				log.Warn("redis unreachable, rate limiting will fail open", "addr", cfg.RedisAddr, "err", err)
			}
			deps.Limiter = middlewares.NewRedisRateLimiter(rdb, cfg.RateLimitAuth, time.Minute, "orderhub:ratelimit")
		} else {
			deps.Limiter = middlewares.NewRateLimiter(cfg.RateLimitAuth, time.Minute)
		}
	}

	a, err := app.New(cfg, log, stores, deps)
	if err != nil {
		log.Error("app init failed", "err", err)
		os.Exit(1)
	}

	created, err := db.EnsureAdminUser(ctx, stores.Users, a.Hasher, cfg)
	if err != nil {
		log.Error("admin seed failed", "err", err)
		os.Exit(1)
	}
	if created {
		log.Info("admin user created", "email", cfg.AdminEmail)
	}

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           a.Router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.Store)
		err := srv.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "err", err)
			stop()
		}
	}()

	// Graceful shutdown

	<-ctx.Done()
	log.Info("server shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(sctx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
		return
	}

	// reset mails accepted before shutdown still go out
	a.Auth.Wait()

	log.Info("shutdown complete")
}
