package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter is an in-process token bucket per key. Bursts up to limit,
// refilling limit tokens per window.
type LocalLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    int64
	window   time.Duration
	every    rate.Limit
	now      func() time.Time
	checks   int
}

// NewLocalLimiter creates an in-process limiter
func NewLocalLimiter(limit int64, window time.Duration) *LocalLimiter {
	return &LocalLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		window:   window,
		every:    rate.Every(window / time.Duration(limit)),
		now:      time.Now,
	}
}

// Allow takes one token for key
func (l *LocalLimiter) Allow(_ context.Context, key string) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.checks++
	if l.checks%1024 == 0 {
		l.prune(now)
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.every, int(l.limit))}
		l.visitors[key] = v
	}
	v.lastSeen = now

	if v.limiter.AllowN(now, 1) {
		return &Result{Allowed: true, Limit: l.limit}, nil
	}

	r := v.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)

	return &Result{
		Allowed:           false,
		Limit:             l.limit,
		RetryAfterSeconds: int64(math.Ceil(delay.Seconds())),
	}, nil
}

// prune drops keys idle for a full window; their buckets are full again
func (l *LocalLimiter) prune(now time.Time) {
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.window {
			delete(l.visitors, key)
		}
	}
}
