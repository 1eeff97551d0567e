package resilience

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket rate limiter. The embedding pipeline uses it to
// pace batch windows against external service rate limits.
type Limiter struct {
	lim *rate.Limiter
}

// NewLimiter creates a limiter that admits r events per second with the
// given burst capacity.
func NewLimiter(r float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{lim: rate.NewLimiter(rate.Limit(r), burst)}
}

// Allow reports whether an event may happen now (non-blocking).
func (l *Limiter) Allow() bool {
	return l.lim.Allow()
}

// Wait blocks until an event is permitted or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.lim.Wait(ctx)
}
