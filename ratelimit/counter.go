package ratelimit

import "sync"

// NewLimitCounter creates a counter that allows up to max strikes per key.
// The verify endpoint uses it to lock out clients that keep submitting
// requests with bad signatures.
func NewLimitCounter(max int) LimitCounter {
	counter := LimitCounter{
		mu:      &sync.Mutex{},
		storage: map[string]int{},
		max:     max,
	}
	return counter
}

type LimitCounter struct {
	mu      *sync.Mutex
	storage map[string]int
	max     int
}

func (lc *LimitCounter) Consume(key string) bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.storage[key] >= lc.max {
		return false
	}
	lc.storage[key]++
	return true
}

// Exhausted reports whether key has used up its strikes. The count persists
// until Delete clears it, so an exhausted key stays locked out.
func (lc *LimitCounter) Exhausted(key string) bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.storage[key] >= lc.max
}

func (lc *LimitCounter) Delete(key string) {
	lc.mu.Lock()
	delete(lc.storage, key)
	lc.mu.Unlock()
}

func (lc *LimitCounter) Clear() {
	lc.mu.Lock()
	size := len(lc.storage)
	lc.storage = make(map[string]int, size/2)
	lc.mu.Unlock()
}
