package model

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy configures exponential backoff for rate-limited and transient
// failures.
type RetryPolicy struct {
	MaxRetries int     `json:"max_retries,omitempty"`
	BaseDelay  float64 `json:"base_delay,omitempty"` // seconds
	MaxDelay   float64 `json:"max_delay,omitempty"`  // seconds
	Multiplier float64 `json:"multiplier,omitempty"`
	Jitter     bool    `json:"jitter,omitempty"`

	OnRetry func(err error, attempt int, delay time.Duration) `json:"-"`
}

// DefaultRetryPolicy returns three retries starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  1,
		MaxDelay:   60,
		Multiplier: 2,
		Jitter:     true,
	}
}

// Delay returns the wait before retry attempt n, counting from zero.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2
	}
	d := p.BaseDelay * math.Pow(mult, float64(attempt))
	if p.MaxDelay > 0 {
		d = math.Min(d, p.MaxDelay)
	}
	if p.Jitter {
		d *= 0.5 + rand.Float64()
	}
	return time.Duration(d * float64(time.Second))
}

type retrying struct {
	inner  Model
	policy RetryPolicy
}

// WithRetry wraps m so retryable failures are retried with backoff. Only
// attempts that fail before producing their first chunk are retried; once
// output has reached the caller the error is returned as is.
func WithRetry(m Model, policy RetryPolicy) Model {
	return &retrying{inner: m, policy: policy}
}

func (r *retrying) Stream(ctx context.Context, p Prompt) (*Stream, error) {
	return NewStream(ctx, func(ctx context.Context, send func(Chunk) error) error {
		for attempt := 0; ; attempt++ {
			sent, err := r.attempt(ctx, p, send)
			if err == nil || sent || attempt >= r.policy.MaxRetries || !IsRetryable(err) {
				return err
			}

			delay := r.policy.Delay(attempt)
			if me, ok := err.(*Error); ok && me.RetryAfter > delay {
				delay = me.RetryAfter
			}
			if r.policy.OnRetry != nil {
				r.policy.OnRetry(err, attempt+1, delay)
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return &Error{Kind: KindFatal, Err: ctx.Err()}
			case <-timer.C:
			}
		}
	}), nil
}

func (r *retrying) attempt(ctx context.Context, p Prompt, send func(Chunk) error) (bool, error) {
	s, err := r.inner.Stream(ctx, p)
	if err != nil {
		return false, err
	}
	sent := false
	for c := range s.Chunks() {
		if err := send(c); err != nil {
			// Drain so the producer goroutine can exit.
			for range s.Chunks() {
			}
			return true, err
		}
		sent = true
	}
	return sent, s.Err()
}
