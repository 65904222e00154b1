package github

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// authenticatedLimit is GitHub's hourly quota for a user token.
	authenticatedLimit = 5000
	// proactiveRate keeps one token under ~4300 requests/hour.
	proactiveRate = 1.2
	// minBuffer is the remaining quota below which callers wait for reset.
	minBuffer = 50

	headerRateLimit     = "X-RateLimit-Limit"
	headerRateRemaining = "X-RateLimit-Remaining"
	headerRateReset     = "X-RateLimit-Reset"
)

// RateLimiter throttles one token proactively and backs off when
// the quota reported by GitHub runs low.
type RateLimiter struct {
	mu        sync.Mutex
	remaining int
	limit     int
	resetTime time.Time
	bucket    *rate.Limiter
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		remaining: authenticatedLimit,
		limit:     authenticatedLimit,
		bucket:    rate.NewLimiter(rate.Limit(proactiveRate), 3),
	}
}

// Wait blocks until it's safe to make a request.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.bucket.Wait(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	remaining := r.remaining
	resetTime := r.resetTime
	r.mu.Unlock()

	if remaining < minBuffer && time.Now().Before(resetTime) {
		timer := time.NewTimer(time.Until(resetTime))
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// UpdateFromResponse updates rate limit state from response headers.
func (r *RateLimiter) UpdateFromResponse(resp *http.Response) {
	if resp == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if v, err := strconv.Atoi(resp.Header.Get(headerRateRemaining)); err == nil {
		r.remaining = v
	}
	if v, err := strconv.Atoi(resp.Header.Get(headerRateLimit)); err == nil {
		r.limit = v
	}
	if v, err := strconv.ParseInt(resp.Header.Get(headerRateReset), 10, 64); err == nil {
		r.resetTime = time.Unix(v, 0)
	}
}

func (r *RateLimiter) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining
}

func (r *RateLimiter) Limit() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.limit
}

func (r *RateLimiter) ResetTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resetTime
}
