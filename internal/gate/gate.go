package gate

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kinetic-field/faultline/internal/domain"
)

// Gate is a counting semaphore sized to an external provider's concurrent
// request budget. All expert passes toward one provider share a single Gate
// so fan-out cannot trigger provider-side throttling.
type Gate struct {
	sem     *semaphore.Weighted
	maxWait time.Duration
}

// New creates a gate admitting at most size concurrent holders.
// maxWait bounds how long Acquire blocks before giving up.
func New(size int, maxWait time.Duration) *Gate {
	if size < 1 {
		size = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(size)), maxWait: maxWait}
}

// Acquire claims one slot, waiting at most maxWait (or until ctx is done,
// whichever comes first). Returns ErrRateLimited when the wait budget runs
// out; the caller counts that as a failed pass, not a pipeline failure.
func (g *Gate) Acquire(ctx context.Context) error {
	waitCtx := ctx
	if g.maxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, g.maxWait)
		defer cancel()
	}

	if err := g.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("gate acquire: %w", ctx.Err())
		}
		return fmt.Errorf("%w: gate wait exceeded %s", domain.ErrRateLimited, g.maxWait)
	}
	return nil
}

// Release returns a slot claimed by Acquire.
func (g *Gate) Release() {
	g.sem.Release(1)
}
