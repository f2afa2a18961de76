package grpcstore

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff is the reconnect schedule of a subscription: exponential from Base,
// capped at Max, with up to half of Base added as jitter.
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int // zero retries forever
}

var DefaultBackoff = Backoff{Base: time.Second, Max: 30 * time.Second, MaxAttempts: 10}

// Allow reports whether attempt (zero based) may run.
func (b Backoff) Allow(attempt int) bool {
	return b.MaxAttempts == 0 || attempt < b.MaxAttempts
}

// Delay returns the wait before attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	jitter := rand.Float64() * float64(b.Base) * 0.5
	d := math.Min(float64(b.Base)*math.Pow(2, float64(attempt))+jitter, float64(b.Max))
	return time.Duration(d)
}
