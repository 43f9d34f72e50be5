package ratelimiter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces a minimum interval between successive sends to the email
// provider. It is a token bucket with burst 1, so the first send of an idle
// period goes out immediately and each later one waits for the interval to
// elapse since the previous token. Pacing therefore applies between sends,
// never after the last one.
type Pacer struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// New creates a Pacer. A non-positive interval disables pacing.
func New(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		interval: interval,
	}
}

// Wait blocks until the next send is allowed.
// Returns a non-nil error only if ctx is cancelled while waiting.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

func (p *Pacer) Interval() time.Duration {
	return p.interval
}
