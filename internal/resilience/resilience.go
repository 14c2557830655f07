// Package resilience provides the retry and circuit-breaker helpers used
// by external adapters (STT/TTS/telephony); pure computation elsewhere in
// the core never needs them.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// RateLimitError represents a provider rate-limit response.
type RateLimitError struct {
	Provider string
	Message  string
}

func (e RateLimitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "rate limit"
}

// IsRateLimit reports whether err is a RateLimitError.
func IsRateLimit(err error) bool {
	var rl RateLimitError
	return errors.As(err, &rl)
}

// CircuitBreakerConfig tunes a CircuitBreaker. Zero values take the
// defaults below.
type CircuitBreakerConfig struct {
	Threshold int
	Cooldown  time.Duration
}

// CircuitBreaker opens after repeated rate-limit failures from an adapter,
// short-circuiting further calls until the cooldown elapses.
type CircuitBreaker struct {
	mu        sync.Mutex
	failures  int
	threshold int
	openUntil time.Time
	cooldown  time.Duration
}

// NewCircuitBreaker constructs a CircuitBreaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &CircuitBreaker{threshold: cfg.Threshold, cooldown: cfg.Cooldown}
}

// Allow reports whether a call may proceed.
func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !time.Now().Before(c.openUntil)
}

// Do runs fn if the breaker is closed, recording the outcome. It returns
// an open-circuit error without calling fn if the breaker is open.
func (c *CircuitBreaker) Do(fn func() error) error {
	if !c.Allow() {
		return errors.New("resilience: circuit open")
	}
	err := fn()
	if err == nil {
		c.onSuccess()
	} else {
		c.onError(err)
	}
	return err
}

func (c *CircuitBreaker) onSuccess() {
	c.mu.Lock()
	c.failures = 0
	c.openUntil = time.Time{}
	c.mu.Unlock()
}

func (c *CircuitBreaker) onError(err error) {
	if !IsRateLimit(err) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	if c.failures >= c.threshold {
		c.openUntil = time.Now().Add(c.cooldown)
	}
}

// RetryPolicy retries a transient operation with a fixed backoff.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// NewRetryPolicy constructs a RetryPolicy.
func NewRetryPolicy(maxRetries int, backoff time.Duration) RetryPolicy {
	if maxRetries <= 0 {
		maxRetries = 2
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return RetryPolicy{MaxRetries: maxRetries, Backoff: backoff}
}

// Do runs fn, retrying up to MaxRetries times with the configured backoff
// between attempts.
func (r RetryPolicy) Do(fn func() error) error {
	var err error
	for i := 0; i <= r.MaxRetries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if i == r.MaxRetries {
			return err
		}
		time.Sleep(r.Backoff)
	}
	return err
}
