package worker

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is the number of uploads allowed in flight
const DefaultConcurrency = 10

// Limiter caps the number of tasks holding a slot at once
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int64

	inUse    atomic.Int64
	peak     atomic.Int64
	acquired atomic.Int64
	released atomic.Int64
}

// NewLimiter creates a limiter with the given capacity (at least 1)
func NewLimiter(capacity int) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	return &Limiter{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
	}
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	l.acquired.Add(1)
	n := l.inUse.Add(1)
	for {
		p := l.peak.Load()
		if n <= p || l.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return nil
}

// Release returns a slot taken by Acquire.
func (l *Limiter) Release() {
	if l.inUse.Add(-1) < 0 {
		panic("worker: limiter released more times than acquired")
	}
	l.released.Add(1)
	l.sem.Release(1)
}

func (l *Limiter) Capacity() int { return int(l.capacity) }
func (l *Limiter) InUse() int    { return int(l.inUse.Load()) }
func (l *Limiter) Peak() int     { return int(l.peak.Load()) }
func (l *Limiter) Acquired() int { return int(l.acquired.Load()) }
func (l *Limiter) Released() int { return int(l.released.Load()) }
