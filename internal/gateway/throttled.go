package gateway

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/roach88/agreements/internal/ir"
)

// Throttled limits how fast replies reach the wrapped gateway.
// Reads are not limited.
type Throttled struct {
	next    Gateway
	limiter *rate.Limiter
}

// NewThrottled allows perSecond replies on average with bursts of burst.
func NewThrottled(next Gateway, perSecond float64, burst int) *Throttled {
	if burst < 1 {
		burst = 1
	}
	return &Throttled{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// FetchMessage implements Gateway.
func (t *Throttled) FetchMessage(ctx context.Context, id int64) (ir.Message, error) {
	return t.next.FetchMessage(ctx, id)
}

// Mentions implements Gateway.
func (t *Throttled) Mentions(ctx context.Context, sinceID int64) ([]ir.Message, error) {
	return t.next.Mentions(ctx, sinceID)
}

// Emit waits for the limiter, then emits.
func (t *Throttled) Emit(ctx context.Context, text string, replyTo int64) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("throttled emit: %w", err)
	}
	return t.next.Emit(ctx, text, replyTo)
}
