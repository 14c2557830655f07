package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryConfig tunes WithRetry's backoff. Zero values take the defaults
// below.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
	IsRetryable func(error) bool
	Sleep       func(time.Duration)
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 2 * time.Second
	}
	if cfg.IsRetryable == nil {
		cfg.IsRetryable = DefaultIsRetryable
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	return cfg
}

// retryingPort wraps a Port with exponential backoff on retryable errors.
type retryingPort struct {
	next Port
	cfg  RetryConfig
	rand *rand.Rand
}

// WithRetry wraps p so Generate retries on transient errors (network
// failures, everything but a cancelled or exhausted context) with
// exponential backoff.
func WithRetry(p Port, cfg RetryConfig) Port {
	return &retryingPort{next: p, cfg: cfg.withDefaults(), rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (r *retryingPort) Name() string { return r.next.Name() }

func (r *retryingPort) Generate(ctx context.Context, turn Turn) (Response, error) {
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		resp, err := r.next.Generate(ctx, turn)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !r.cfg.IsRetryable(err) || attempt == r.cfg.MaxAttempts-1 {
			break
		}
		delay := backoffDelay(r.cfg.BaseDelay, r.cfg.MaxDelay, r.cfg.Jitter, attempt, r.rand)
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		default:
			r.cfg.Sleep(delay)
		}
	}
	return Response{}, fmt.Errorf("llm retry failed: %w", lastErr)
}

// DefaultIsRetryable retries any error except context cancellation or
// deadline expiry.
func DefaultIsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func backoffDelay(base, max time.Duration, jitter float64, attempt int, r *rand.Rand) time.Duration {
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > max {
		d = max
	}
	if jitter > 0 {
		d += time.Duration(float64(d) * jitter * r.Float64())
	}
	return d
}
