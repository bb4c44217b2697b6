package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Server-reported quota headers
const (
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// Quota tracks the quota a remote API reports in its response headers.
// Once the server says nothing is left, the next Wait blocks until the reset time.
type Quota struct {
	mu        sync.Mutex
	remaining int
	resetAt   time.Time
	exhausted bool

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewQuota creates an empty quota tracker
func NewQuota() *Quota {
	return &Quota{
		now:   time.Now,
		sleep: Sleep,
	}
}

// Observe records the quota headers of a response. Missing or malformed headers are ignored.
func (q *Quota) Observe(h http.Header) {
	remainingRaw := h.Get(HeaderRemaining)
	if remainingRaw == "" {
		return
	}
	remaining, err := strconv.Atoi(remainingRaw)
	if err != nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.remaining = remaining
	q.exhausted = remaining <= 0
	if reset, err := strconv.ParseInt(h.Get(HeaderReset), 10, 64); err == nil {
		q.resetAt = time.Unix(reset, 0)
	} else {
		q.resetAt = time.Time{}
	}
}

// Remaining returns the last reported remaining count and whether the quota is exhausted
func (q *Quota) Remaining() (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.remaining, q.exhausted
}

// Delay returns how long the next call must wait
func (q *Quota) Delay() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.exhausted || q.resetAt.IsZero() {
		return 0
	}
	if d := q.resetAt.Sub(q.now()); d > 0 {
		return d
	}
	return 0
}

// Wait blocks until the reported reset time when the quota is exhausted
func (q *Quota) Wait(ctx context.Context) error {
	d := q.Delay()
	if d > 0 {
		if err := q.sleep(ctx, d); err != nil {
			return err
		}
	}

	q.mu.Lock()
	q.exhausted = false
	q.mu.Unlock()
	return nil
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
