package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/genricoloni/bluctl/internal/domain"
	"golang.org/x/time/rate"
)

// Throttle spaces requests to one service class.
// Waiters are served in the order they asked; a wait longer than maxWait fails.
type Throttle struct {
	limiter *rate.Limiter
	maxWait time.Duration
}

// NewThrottle allows one request per interval
func NewThrottle(interval, maxWait time.Duration) *Throttle {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Throttle{
		limiter: rate.NewLimiter(limit, 1),
		maxWait: maxWait,
	}
}

// Wait blocks until the next request may be issued.
// It returns domain.ErrRateLimited when the slot is further away than maxWait.
func (t *Throttle) Wait(ctx context.Context) error {
	waitCtx := ctx
	if t.maxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, t.maxWait)
		defer cancel()
	}

	if err := t.limiter.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
	}
	return nil
}
