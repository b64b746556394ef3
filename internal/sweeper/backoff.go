package sweeper

import (
	"math"
	"math/rand"
	"time"
)

const (
	backoffBase = 2 * time.Second
	backoffCap  = 5 * time.Minute
)

// ExponentialBackoff returns 2s, 4s, 8s ... capped at 5m, plus up to 250ms of jitter.
func ExponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	multiple := math.Pow(2, float64(attempt))
	delay := time.Duration(float64(backoffBase) * multiple)

	if delay > backoffCap || delay <= 0 {
		delay = backoffCap
	}

	// jitter spreads retries from several instances
	delay += time.Duration(rand.Intn(250)) * time.Millisecond
	return delay
}
