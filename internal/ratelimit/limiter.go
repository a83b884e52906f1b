// Package ratelimit provides the two request-spacing strategies used by
// the pipeline: a token-bucket Limiter for plain download endpoints and a
// Pacer that imitates human browsing cadence for scraped pages.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limiter wraps rate.Limiter with a name for logging/debugging.
type Limiter struct {
	limiter *rate.Limiter
	name    string
}

// New creates a new rate limiter with the given requests per second.
func New(name string, requestsPerSecond float64) *Limiter {
	burst := int(requestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		name:    name,
	}
}

// Wait blocks until the rate limiter allows a request to proceed.
// Returns an error if the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", l.name, err)
	}
	return nil
}

// Name returns the name of this rate limiter.
func (l *Limiter) Name() string {
	return l.name
}
