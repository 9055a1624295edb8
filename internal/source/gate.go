package source

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Gate enforces a minimum interval between requests to one provider.
// Waiters released by cancellation do not consume a slot.
type Gate struct {
	limiter *rate.Limiter
}

// NewGate allows one request per interval with a burst of one. A
// non-positive interval disables the gate.
func NewGate(interval time.Duration) *Gate {
	if interval <= 0 {
		return &Gate{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Gate{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// GateFromSeconds is NewGate for fractional-second config values.
func GateFromSeconds(secs float64) *Gate {
	return NewGate(time.Duration(secs * float64(time.Second)))
}

// Wait blocks until the next request may be sent or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}
