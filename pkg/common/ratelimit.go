package common

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// IntervalLimiter paces a polling loop to one event per interval. The first
// event is allowed immediately.
type IntervalLimiter struct {
	limiter *rate.Limiter
}

// NewIntervalLimiter returns a limiter allowing one event per interval.
func NewIntervalLimiter(interval time.Duration) *IntervalLimiter {
	return &IntervalLimiter{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next event is allowed or ctx is done.
func (l *IntervalLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
