/*
Package limiter provides client-side rate limiting for outgoing chat messages.

It uses the Token Bucket algorithm (rate.Limiter), keeping one bucket per conversation
partner so that a burst towards one peer does not starve the others. A background
goroutine periodically removes idle buckets.
*/
package limiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"stompchat/internal/pkg/logx"
)

// cleanupInterval is how often idle buckets are swept.
const cleanupInterval = 3 * time.Minute

// SendLimiter is a keyed token-bucket limiter. A zero rate disables limiting.
type SendLimiter struct {
	// mu protects concurrent access to the limits map.
	mu sync.RWMutex

	// limits maps a key (peer handle) to its bucket.
	limits map[string]*rate.Limiter

	// r is the refill rate in events per second.
	r rate.Limit

	// b is the bucket size.
	b int

	stop     chan struct{}
	stopOnce sync.Once
}

// NewSendLimiter creates a SendLimiter with rate r and burst b and starts its cleanup goroutine.
func NewSendLimiter(r rate.Limit, b int) *SendLimiter {
	l := &SendLimiter{
		limits: make(map[string]*rate.Limiter),
		r:      r,
		b:      b,
		stop:   make(chan struct{}),
	}

	if l.enabled() {
		go l.cleanUpIdle()
	}

	return l
}

func (l *SendLimiter) enabled() bool {
	return l.r > 0 && l.b > 0
}

// GetLimiter returns the bucket for key, creating it on first use.
func (l *SendLimiter) GetLimiter(key string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limits[key]
	l.mu.RUnlock()

	if !exists {
		l.mu.Lock()
		limiter, exists = l.limits[key]
		if !exists {
			limiter = rate.NewLimiter(l.r, l.b)
			l.limits[key] = limiter
		}
		l.mu.Unlock()
	}

	return limiter
}

// Allow reports whether one more message to key may be sent now.
func (l *SendLimiter) Allow(key string) bool {
	if !l.enabled() {
		return true
	}
	return l.GetLimiter(key).Allow()
}

// Size returns the number of tracked buckets.
func (l *SendLimiter) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limits)
}

// Sweep removes buckets that have refilled completely and returns how many were removed.
func (l *SendLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	for key, limiter := range l.limits {
		if limiter.TokensAt(now) >= float64(limiter.Burst()) {
			delete(l.limits, key)
			count++
		}
	}
	return count
}

// Close stops the cleanup goroutine. It is safe to call multiple times.
func (l *SendLimiter) Close() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
}

func (l *SendLimiter) cleanUpIdle() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			removed := l.Sweep(now)
			if removed > 0 {
				logx.Debug("Send limiter cleanup removed idle buckets.", "removed", removed, "remaining", l.Size())
			}
		}
	}
}
