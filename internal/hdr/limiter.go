package hdr

import (
	"context"
	"runtime"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is the number of external tool invocations allowed in flight when nothing
// else is configured. Tool invocations are dominated by JVM start-up, so we oversubscribe the
// cores by a factor of two.
func DefaultConcurrency() int {
	return 2 * runtime.NumCPU()
}

// Limiter bounds the number of external tool invocations running at the same time.
// One Limiter should be shared by everything that spawns tool processes on this machine.
// Waiters are admitted in FIFO order.
type Limiter struct {
	sem      *semaphore.Weighted
	size     int
	inFlight int64
	metrics  *Metrics
}

// NewLimiter returns a Limiter admitting at most size concurrent invocations.
// A non-positive size means DefaultConcurrency.
func NewLimiter(size int, metrics *Metrics) *Limiter {
	if size <= 0 {
		size = DefaultConcurrency()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Limiter{
		sem:     semaphore.NewWeighted(int64(size)),
		size:    size,
		metrics: metrics,
	}
}

// Size returns the maximum number of concurrent invocations.
func (l *Limiter) Size() int {
	return l.size
}

// InFlight returns the number of invocations currently holding a slot.
func (l *Limiter) InFlight() int {
	return int(atomic.LoadInt64(&l.inFlight))
}

// Do blocks until a slot is free, then calls fn while holding it.
// The slot is released when fn returns, whatever the outcome.
// If ctx is cancelled while waiting, fn is not called and the context error is returned.
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return errors.WithStack(err)
	}
	atomic.AddInt64(&l.inFlight, 1)
	l.metrics.inFlight.Inc()
	defer func() {
		l.metrics.inFlight.Dec()
		atomic.AddInt64(&l.inFlight, -1)
		l.sem.Release(1)
	}()
	return fn()
}
