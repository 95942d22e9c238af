package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies model failures so callers can pick a retry policy.
type Kind int

const (
	KindTransient Kind = iota
	KindRateLimited
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "fatal"
	}
}

// Error is a classified model failure.
type Error struct {
	Kind       Kind
	Provider   string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("model %s (%s): %v", e.Kind, e.Provider, e.Err)
	}
	return fmt.Sprintf("model %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure may succeed on a later attempt.
func (e *Error) Retryable() bool { return e.Kind != KindFatal }

// ErrScriptExhausted is returned by Scripted when it has no replies.
var ErrScriptExhausted = errors.New("script exhausted")

// IsRetryable reports whether err is a retryable model error.
func IsRetryable(err error) bool {
	var me *Error
	return errors.As(err, &me) && me.Retryable()
}

// Classify wraps a provider error into an *Error by inspecting its message.
// Context cancellation is always fatal; unrecognized failures are treated as
// transient.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	var me *Error
	if errors.As(err, &me) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindFatal, Provider: provider, Err: err}
	}

	msg := strings.ToLower(err.Error())
	kind := KindTransient
	switch {
	case containsAny(msg, "429", "rate limit", "too many requests"):
		kind = KindRateLimited
	case containsAny(msg, "401", "unauthorized", "invalid api key", "invalid key", "403", "forbidden",
		"400", "bad request", "context length", "too many tokens", "content filter"):
		kind = KindFatal
	}
	return &Error{Kind: kind, Provider: provider, Err: err}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
