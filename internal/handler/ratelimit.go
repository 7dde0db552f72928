package handler

import (
	"sync"
	"time"
)

// RateLimiter is a token bucket.
type RateLimiter struct {
	mu       sync.Mutex
	tokens   float64
	max      float64
	rate     float64 // tokens per second
	lastTime time.Time
}

func NewRateLimiter(maxBurst int, ratePerMinute float64) *RateLimiter {
	if maxBurst <= 0 {
		maxBurst = 5
	}
	if ratePerMinute <= 0 {
		ratePerMinute = 20
	}
	return &RateLimiter{
		tokens:   float64(maxBurst),
		max:      float64(maxBurst),
		rate:     ratePerMinute / 60.0,
		lastTime: time.Now(),
	}
}

// Allow takes a token if one is available. It never blocks.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.tokens += now.Sub(rl.lastTime).Seconds() * rl.rate
	if rl.tokens > rl.max {
		rl.tokens = rl.max
	}
	rl.lastTime = now

	if rl.tokens >= 1.0 {
		rl.tokens -= 1.0
		return true
	}
	return false
}

// KeyedLimiter keeps one token bucket per key.
type KeyedLimiter struct {
	mu       sync.Mutex
	burst    int
	perMin   float64
	limiters map[string]*RateLimiter
}

func NewKeyedLimiter(maxBurst int, ratePerMinute float64) *KeyedLimiter {
	return &KeyedLimiter{
		burst:    maxBurst,
		perMin:   ratePerMinute,
		limiters: make(map[string]*RateLimiter),
	}
}

func (k *KeyedLimiter) Allow(key string) bool {
	k.mu.Lock()
	rl, ok := k.limiters[key]
	if !ok {
		rl = NewRateLimiter(k.burst, k.perMin)
		k.limiters[key] = rl
	}
	k.mu.Unlock()
	return rl.Allow()
}
