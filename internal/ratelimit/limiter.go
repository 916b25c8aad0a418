package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a keyed token bucket rate limiter. Keys are arbitrary strings
// (an IP address for the HTTP layer, a mailbox address for outbound send
// pacing). Stale entries are cleaned up automatically.
type Limiter struct {
	buckets map[string]*bucket
	mu      sync.RWMutex
	rps     rate.Limit
	burst   int
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a keyed limiter allowing rps events per second with the
// given burst size. A background goroutine removes keys not seen for 5 or
// more minutes, running every 3 minutes.
func NewLimiter(rps float64, burst int) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
	go l.cleanup()
	return l
}

func (l *Limiter) get(key string) *bucket {
	l.mu.Lock()
	b, exists := l.buckets[key]
	if !exists {
		b = &bucket{
			limiter: rate.NewLimiter(l.rps, l.burst),
		}
		l.buckets[key] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()
	return b
}

// Allow reports whether an event for the given key should be permitted right
// now, consuming a token if so.
func (l *Limiter) Allow(key string) bool {
	return l.get(key).limiter.Allow()
}

// Wait blocks until a token for the given key is available or the context is
// done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.get(key).limiter.Wait(ctx)
}

// cleanup periodically removes keys that have not been seen for 5 or more
// minutes. It runs in a loop every 3 minutes.
func (l *Limiter) cleanup() {
	for {
		time.Sleep(3 * time.Minute)

		l.mu.Lock()
		for key, b := range l.buckets {
			if time.Since(b.lastSeen) >= 5*time.Minute {
				delete(l.buckets, key)
			}
		}
		l.mu.Unlock()
	}
}
