package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientRateLimiter_CheckRequestAllowed(t *testing.T) {
	t.Run("should allow requests under limit", func(t *testing.T) {
		limiter := NewClientRateLimiter(5)

		for i := 0; i < 5; i++ {
			allowed, reason := limiter.CheckRequestAllowed()
			assert.True(t, allowed)
			assert.Empty(t, reason)
			limiter.RecordRequestStart()
			limiter.RecordRequestEnd()
		}

		allowed, reason := limiter.CheckRequestAllowed()
		assert.False(t, allowed)
		assert.Equal(t, reasonRateLimited, reason)
	})

	t.Run("should allow one request in flight", func(t *testing.T) {
		limiter := NewClientRateLimiter(100)
		limiter.RecordRequestStart()

		allowed, reason := limiter.CheckRequestAllowed()
		assert.False(t, allowed)
		assert.Equal(t, reasonTooConcurrent, reason)

		limiter.RecordRequestEnd()
		allowed, _ = limiter.CheckRequestAllowed()
		assert.True(t, allowed)
	})

	t.Run("should allow requests after window expires", func(t *testing.T) {
		now := time.Now()
		limiter := NewClientRateLimiterWithLimits(2, 10)
		limiter.now = func() time.Time { return now }

		limiter.RecordRequestStart()
		limiter.RecordRequestEnd()
		limiter.RecordRequestStart()
		limiter.RecordRequestEnd()

		allowed, _ := limiter.CheckRequestAllowed()
		assert.False(t, allowed)

		now = now.Add(rateWindow + time.Second)
		allowed, _ = limiter.CheckRequestAllowed()
		assert.True(t, allowed)
	})

	t.Run("should not limit when requests per minute is zero", func(t *testing.T) {
		limiter := NewClientRateLimiter(0)
		for i := 0; i < 100; i++ {
			limiter.RecordRequestStart()
			limiter.RecordRequestEnd()
		}
		allowed, _ := limiter.CheckRequestAllowed()
		assert.True(t, allowed)
	})
}

func TestClientRateLimiter_GetStats(t *testing.T) {
	limiter := NewClientRateLimiterWithLimits(10, 3)

	limiter.RecordRequestStart()
	limiter.RecordRequestStart()
	limiter.RecordRequestEnd()

	requests, concurrent := limiter.GetStats()
	assert.Equal(t, 2, requests)
	assert.Equal(t, 1, concurrent)

	limiter.RecordRequestEnd()
	limiter.RecordRequestEnd()
	_, concurrent = limiter.GetStats()
	assert.Equal(t, 0, concurrent)
}
