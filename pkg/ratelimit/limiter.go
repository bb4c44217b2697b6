package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// MultiLimiter manages one token bucket per outbound service
type MultiLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

// NewMultiLimiter creates a new multi-limiter
func NewMultiLimiter() *MultiLimiter {
	return &MultiLimiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

// AddLimiter adds or replaces the limiter for a service.
// requestsPerSecond: the refill rate, burst: maximum burst size
func (m *MultiLimiter) AddLimiter(name string, requestsPerSecond float64, burst int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[name] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// AddPerMinute is a convenience for limits expressed per minute
func (m *MultiLimiter) AddPerMinute(name string, perMinute float64, burst int) {
	m.AddLimiter(name, perMinute/60, burst)
}

func (m *MultiLimiter) get(name string) (*rate.Limiter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	limiter, ok := m.limiters[name]
	return limiter, ok
}

// Wait blocks until the limiter allows an event
func (m *MultiLimiter) Wait(ctx context.Context, name string) error {
	limiter, ok := m.get(name)
	if !ok {
		return fmt.Errorf("limiter %s not found", name)
	}

	return limiter.Wait(ctx)
}

// Allow reports whether an event may happen now
func (m *MultiLimiter) Allow(name string) bool {
	limiter, ok := m.get(name)
	if !ok {
		return false
	}

	return limiter.Allow()
}

// Limiter names
const (
	LimiterLinkedIn  = "linkedin"
	LimiterGenerator = "generator"
	LimiterUnsplash  = "unsplash"
	LimiterSheets    = "sheets"
)

// NewDefaultLimiter creates a limiter with default rate limits
func NewDefaultLimiter() *MultiLimiter {
	m := NewMultiLimiter()

	// LinkedIn member API: 100 calls per day, burst 5
	m.AddLimiter(LimiterLinkedIn, 100.0/(24*60*60), 5)

	// Text generation: 10 requests per minute, burst 2
	m.AddPerMinute(LimiterGenerator, 10, 2)

	// Unsplash demo apps: 50 requests per hour
	m.AddLimiter(LimiterUnsplash, 50.0/(60*60), 5)

	// Sheets write quota is 60 per minute per user
	m.AddPerMinute(LimiterSheets, 60, 10)

	return m
}
