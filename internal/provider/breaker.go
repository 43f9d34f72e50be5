package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned while the breaker rejects sends. It is a
// transient error: the item fails and is retried on a later run.
var ErrCircuitOpen = errors.New("email gateway circuit is open")

type BreakerConfig struct {
	Name string
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval clears the closed-state counts.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
}

func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:                name,
		MaxRequests:         1,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// BreakerGateway wraps a Gateway with a circuit breaker so a dead provider
// fails fast instead of costing a full timeout per queue item.
type BreakerGateway struct {
	next    Gateway
	breaker *gobreaker.CircuitBreaker
}

func NewBreakerGateway(next Gateway, cfg BreakerConfig, logger *zap.Logger) *BreakerGateway {
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("email gateway circuit state changed",
				zap.String("circuit", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &BreakerGateway{next: next, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (g *BreakerGateway) Send(ctx context.Context, msg Message) (*SendResult, error) {
	v, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Send(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	if err != nil {
		return nil, err
	}
	return v.(*SendResult), nil
}

// State reports the breaker state for health output.
func (g *BreakerGateway) State() string {
	return g.breaker.State().String()
}

var _ Gateway = (*BreakerGateway)(nil)
