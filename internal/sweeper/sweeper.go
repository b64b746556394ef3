// Package sweeper deletes token rows whose expiry has passed. Expired tokens
// already fail verification; the sweep only keeps the table small.
package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/orderhub/internal/observability"
	"github.com/robfig/cron/v3"
)

type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type Config struct {
	Interval time.Duration
	// Schedule, when set, replaces Interval: each successful run sleeps
	// until the schedule's next activation.
	Schedule cron.Schedule
	// RunTimeout bounds a single purge statement.
	RunTimeout time.Duration
}

type Sweeper struct {
	cfg   Config
	store Purger
	log   *slog.Logger
	prom  *observability.Prom
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, store Purger, log *slog.Logger, prom *observability.Prom) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	return &Sweeper{
		cfg:   cfg,
		store: store,
		log:   log,
		prom:  prom,
		now:   func() time.Time { return time.Now().UTC() },
		sleep: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *Sweeper) setReady(v bool) {
	s.readyMu.Lock()
	s.ready = v
	s.readyMu.Unlock()
}

func (s *Sweeper) Ready() bool {
	s.readyMu.RLock()
	defer s.readyMu.RUnlock()
	return s.ready
}

// SweepOnce runs one purge and reports how many rows went.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	n, err := s.store.PurgeExpired(runCtx, s.now())

	s.prom.ObserveSweep(n, err)

	return n, err
}

func (s *Sweeper) nextWait() time.Duration {
	if s.cfg.Schedule == nil {
		return s.cfg.Interval
	}
	now := s.now()
	return s.cfg.Schedule.Next(now).Sub(now)
}

// ParseSchedule accepts a standard five-field cron expression or a
// descriptor such as "@hourly" or "@every 10m".
func ParseSchedule(spec string) (cron.Schedule, error) {
	return cron.ParseStandard(spec)
}

// Run sweeps every Interval until ctx is cancelled. Consecutive failures back
// off exponentially instead of hammering a sick database.
func (s *Sweeper) Run(ctx context.Context) error {
	s.setReady(true)
	defer s.setReady(false)

	failures := 0

	for {
		n, err := s.SweepOnce(ctx)

		wait := s.nextWait()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			wait = ExponentialBackoff(failures)
			failures++
			s.log.ErrorContext(ctx, "sweep_failed", "err", err, "attempt", failures, "retry_in", wait.String())
		} else {
			failures = 0
			s.log.InfoContext(ctx, "sweep_done", "deleted", n)
		}

		if !s.sleep(ctx, wait) {
			break
		}
	}

	s.log.Info("sweeper received shutdown signal")
	return nil
}
