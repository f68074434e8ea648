package domain

import (
	"context"
	"math"
	"time"
)

type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfterSeconds rounds the time until the window resets up to whole
// seconds, never below one.
func (d RateLimitDecision) RetryAfterSeconds(now time.Time) int {
	wait := d.ResetAt.Sub(now).Seconds()
	if wait < 1 {
		return 1
	}
	return int(math.Ceil(wait))
}

// RateLimiter counts sign requests per caller within fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateLimitDecision, error)
}
