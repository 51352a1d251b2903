package ratelimit

import (
	"math"
	"sync"
	"time"
)

// NewTokenBucketRateLimit creates a refilling token bucket limiter. Each key
// gets a bucket of max tokens that regains one token per refill interval.
func NewTokenBucketRateLimit(max int, refillInterval time.Duration) TokenBucketRateLimit {
	ratelimit := TokenBucketRateLimit{
		mu:                         &sync.Mutex{},
		storage:                    map[string]refillingTokenBucket{},
		max:                        max,
		refillIntervalMilliseconds: refillInterval.Milliseconds(),
	}
	return ratelimit
}

type TokenBucketRateLimit struct {
	mu                         *sync.Mutex
	storage                    map[string]refillingTokenBucket
	max                        int
	refillIntervalMilliseconds int64
}

func (rl *TokenBucketRateLimit) Consume(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	bucket, ok := rl.storage[key]
	if !ok {
		rl.storage[key] = refillingTokenBucket{rl.max - 1, now.UnixMilli()}
		return true
	}
	refill := int((now.UnixMilli() - bucket.refilledAtUnixMilliseconds) / rl.refillIntervalMilliseconds)
	count := int(math.Min(float64(bucket.count+refill), float64(rl.max)))
	if count < 1 {
		return false
	}
	rl.storage[key] = refillingTokenBucket{count - 1, now.UnixMilli()}
	return true
}

func (rl *TokenBucketRateLimit) Reset(key string) {
	rl.mu.Lock()
	delete(rl.storage, key)
	rl.mu.Unlock()
}

type refillingTokenBucket struct {
	count                      int
	refilledAtUnixMilliseconds int64
}
