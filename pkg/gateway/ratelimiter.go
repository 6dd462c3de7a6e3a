package gateway

import (
	"sync"
	"time"
)

const rateWindow = time.Minute

// Reasons returned by CheckRequestAllowed
const (
	reasonRateLimited   = "rate limit exceeded"
	reasonTooConcurrent = "too many concurrent requests"
)

// ClientRateLimiter is a per-connection sliding window limiter.
// A requestsPerMinute of zero disables the window check.
type ClientRateLimiter struct {
	mu                 sync.Mutex
	requestsPerMinute  int
	maxConcurrent      int
	requests           []time.Time
	concurrentRequests int
	now                func() time.Time
}

// NewClientRateLimiter creates a limiter allowing requestsPerMinute requests and one in flight.
func NewClientRateLimiter(requestsPerMinute int) *ClientRateLimiter {
	return NewClientRateLimiterWithLimits(requestsPerMinute, 1)
}

// NewClientRateLimiterWithLimits creates a rate limiter with custom limits
func NewClientRateLimiterWithLimits(requestsPerMinute, maxConcurrent int) *ClientRateLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &ClientRateLimiter{
		requestsPerMinute: requestsPerMinute,
		maxConcurrent:     maxConcurrent,
		now:               time.Now,
	}
}

// CheckRequestAllowed reports whether a new request fits the limits, and why not.
func (r *ClientRateLimiter) CheckRequestAllowed() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.concurrentRequests >= r.maxConcurrent {
		return false, reasonTooConcurrent
	}

	r.prune()
	if r.requestsPerMinute > 0 && len(r.requests) >= r.requestsPerMinute {
		return false, reasonRateLimited
	}

	return true, ""
}

// RecordRequestStart records the start of a request
func (r *ClientRateLimiter) RecordRequestStart() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.requests = append(r.requests, r.now())
	r.concurrentRequests++
}

// RecordRequestEnd records the end of a request
func (r *ClientRateLimiter) RecordRequestEnd() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.concurrentRequests > 0 {
		r.concurrentRequests--
	}
}

// GetStats returns the requests inside the window and those in flight
func (r *ClientRateLimiter) GetStats() (requestCount, concurrentCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune()
	return len(r.requests), r.concurrentRequests
}

// prune drops requests older than the window. Caller holds mu.
func (r *ClientRateLimiter) prune() {
	cutoff := r.now().Add(-rateWindow)
	kept := r.requests[:0]
	for _, t := range r.requests {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.requests = kept
}
