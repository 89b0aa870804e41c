package auth

import (
	"sync"
	"time"
)

// TokenBucketLimiter implements token bucket rate limiting keyed by an
// arbitrary string (client IP for the REST surface).
type TokenBucketLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	maxTokens  int
	refillRate time.Duration
	idleTTL    time.Duration
	now        func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// NewTokenBucketLimiter creates a limiter that allows bursts of maxTokens
// and regains one token per refillRate.
func NewTokenBucketLimiter(maxTokens int, refillRate time.Duration) *TokenBucketLimiter {
	l := &TokenBucketLimiter{
		buckets:    make(map[string]*bucket),
		maxTokens:  maxTokens,
		refillRate: refillRate,
		idleTTL:    time.Hour,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	go l.cleanup(5 * time.Minute)
	return l
}

// NewPerMinuteLimiter allows perMinute requests per key per minute with
// bursts up to the same amount
func NewPerMinuteLimiter(perMinute int) *TokenBucketLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	return NewTokenBucketLimiter(perMinute, time.Minute/time.Duration(perMinute))
}

// Burst is the bucket capacity
func (l *TokenBucketLimiter) Burst() int {
	return l.maxTokens
}

// Allow consumes a token for key and reports whether one was available
func (l *TokenBucketLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.maxTokens, lastRefill: now}
		l.buckets[key] = b
	}

	if l.refillRate > 0 {
		if add := int(now.Sub(b.lastRefill) / l.refillRate); add > 0 {
			b.tokens = min(b.tokens+add, l.maxTokens)
			b.lastRefill = b.lastRefill.Add(time.Duration(add) * l.refillRate)
		}
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// Reset forgets the bucket for key
func (l *TokenBucketLimiter) Reset(key string) {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}

// Stop ends the background cleanup
func (l *TokenBucketLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *TokenBucketLimiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			now := l.now()
			for key, b := range l.buckets {
				if now.Sub(b.lastRefill) > l.idleTTL {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		}
	}
}
