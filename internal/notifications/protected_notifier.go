package notifications

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker open")

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

func (s circuitState) String() string {
	switch s {
	case circuitOpen:
		return "open"
	case circuitHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

type ProtectedNotifierConfig struct {
	Timeout          time.Duration // per send
	FailureThreshold int           // consecutive failures before opening
	Cooldown         time.Duration // open -> half-open
	HalfOpenMaxCalls int           // concurrent trial sends while half-open

	// OnStateChange is called outside the lock.
	OnStateChange func(from, to string)
}

// ProtectedNotifier bounds every send with a timeout and stops calling a
// provider that keeps failing. Mail is best effort, so callers see
// ErrCircuitOpen instead of waiting on a dead provider.
type ProtectedNotifier struct {
	inner Notifier
	cfg   ProtectedNotifierConfig
	now   func() time.Time

	mu       sync.Mutex
	state    circuitState
	failures int
	openedAt time.Time
	trials   int
}

func NewProtectedNotifier(inner Notifier, cfg ProtectedNotifierConfig) *ProtectedNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}

	return &ProtectedNotifier{inner: inner, cfg: cfg, now: time.Now}
}

func (n *ProtectedNotifier) SendResetPassword(ctx context.Context, msg TokenMessage) error {
	return n.do(ctx, func(ctx context.Context) error {
		return n.inner.SendResetPassword(ctx, msg)
	})
}

func (n *ProtectedNotifier) SendVerifyEmail(ctx context.Context, msg TokenMessage) error {
	return n.do(ctx, func(ctx context.Context) error {
		return n.inner.SendVerifyEmail(ctx, msg)
	})
}

// State reports "closed", "open" or "half_open".
func (n *ProtectedNotifier) State() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.String()
}

func (n *ProtectedNotifier) do(ctx context.Context, send func(context.Context) error) error {
	trial, ok := n.acquire()
	if !ok {
		return ErrCircuitOpen
	}

	sendCtx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	err := send(sendCtx)
	cancel()

	// the caller giving up says nothing about the provider
	if err != nil && ctx.Err() != nil {
		n.release(trial)
		return err
	}

	n.record(trial, err)
	return err
}

func (n *ProtectedNotifier) acquire() (trial, ok bool) {
	n.mu.Lock()
	from := n.state

	switch n.state {
	case circuitOpen:
		if n.now().Sub(n.openedAt) < n.cfg.Cooldown {
			n.mu.Unlock()
			return false, false
		}
		n.state = circuitHalfOpen
		n.trials = 0
		fallthrough
	case circuitHalfOpen:
		if n.trials >= n.cfg.HalfOpenMaxCalls {
			to := n.state
			n.mu.Unlock()
			n.changed(from, to.String())
			return false, false
		}
		n.trials++
		trial = true
	}

	to := n.state
	n.mu.Unlock()

	n.changed(from, to.String())
	return trial, true
}

func (n *ProtectedNotifier) release(trial bool) {
	if !trial {
		return
	}
	n.mu.Lock()
	if n.trials > 0 {
		n.trials--
	}
	n.mu.Unlock()
}

func (n *ProtectedNotifier) record(trial bool, err error) {
	n.mu.Lock()
	from := n.state

	if trial && n.trials > 0 {
		n.trials--
	}

	switch {
	case err == nil:
		n.failures = 0
		n.state = circuitClosed
	case n.state == circuitHalfOpen:
		n.trip()
	default:
		n.failures++
		if n.failures >= n.cfg.FailureThreshold {
			n.trip()
		}
	}

	to := n.state
	n.mu.Unlock()

	n.changed(from, to.String())
}

// trip requires n.mu.
func (n *ProtectedNotifier) trip() {
	n.state = circuitOpen
	n.openedAt = n.now()
}

func (n *ProtectedNotifier) changed(from circuitState, to string) {
	if n.cfg.OnStateChange != nil && from.String() != to {
		n.cfg.OnStateChange(from.String(), to)
	}
}
