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

	"github.com/geocoder89/orderhub/internal/config"
	"github.com/geocoder89/orderhub/internal/db"
	"github.com/geocoder89/orderhub/internal/observability"
	"github.com/geocoder89/orderhub/internal/repo/postgres"
	"github.com/geocoder89/orderhub/internal/sweeper"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Env).With("component", "sweeper")
	slog.SetDefault(log)

	if cfg.Store != "postgres" {
		log.Error("the sweeper only runs against postgres", "store", cfg.Store)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	pool, err := db.NewPool(ctx, cfg.DBURL)

	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}

	defer pool.Close()

	sweepCfg := sweeper.Config{
		Interval:   cfg.SweepInterval,
		RunTimeout: 30 * time.Second,
	}
	if cfg.SweepSchedule != "" {
		schedule, err := sweeper.ParseSchedule(cfg.SweepSchedule)
		if err != nil {
			log.Error("invalid SWEEP_SCHEDULE", "schedule", cfg.SweepSchedule, "err", err)
			os.Exit(1)
		}
		sweepCfg.Schedule = schedule
	}

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	s := sweeper.New(sweepCfg, postgres.NewTokensRepo(pool, prom), log, prom)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.SweeperPort),
		Handler:           s.HealthHandler(pool, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("health server failed", "err", err)
		}
	}()

	log.Info("sweeper has started", "interval", cfg.SweepInterval.String(), "schedule", cfg.SweepSchedule, "port", cfg.SweeperPort)

	if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("sweeper stopped with error", "err", err)
	}

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(sctx)

	log.Info("sweeper shutdown complete")
}
