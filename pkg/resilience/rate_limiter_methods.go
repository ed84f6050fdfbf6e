package resilience

import "context"

// Allow reports whether a request may proceed right now, consuming a
// token if so.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// AdjustRateLimit re-derives the underlying limit/burst from a new
// RateLimiterConfig, for limiters whose budget changes at runtime (an
// API-reported quota, for instance).
func (r *RateLimiter) AdjustRateLimit(config RateLimiterConfig) {
	r.config = config
	r.limiter.SetLimit(rateLimit(config))
	r.limiter.SetBurst(rateBurst(config))
}
