package reflection

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/metrics"
)

// admission caps concurrent review calls. A caller that cannot get a slot
// within wait gives up instead of queuing.
type admission struct {
	sem  *semaphore.Weighted
	wait time.Duration
}

// newAdmission returns nil (no cap) when max is not positive.
func newAdmission(max int, wait time.Duration) *admission {
	if max <= 0 {
		return nil
	}
	return &admission{sem: semaphore.NewWeighted(int64(max)), wait: wait}
}

// acquire returns a release func, or false when no slot was obtained.
func (a *admission) acquire(ctx context.Context) (func(), bool) {
	if a == nil {
		return func() {}, true
	}
	if !a.sem.TryAcquire(1) {
		if a.wait <= 0 {
			return nil, false
		}
		waitCtx, cancel := context.WithTimeout(ctx, a.wait)
		defer cancel()
		if err := a.sem.Acquire(waitCtx, 1); err != nil {
			return nil, false
		}
	}
	metrics.ReviewsInFlight.Inc()
	return func() {
		metrics.ReviewsInFlight.Dec()
		a.sem.Release(1)
	}, true
}
