package model_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/tailored-agentic-units/monologue/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.Kind
	}{
		{"rate limit status", errors.New("HTTP 429: slow down"), model.KindRateLimited},
		{"rate limit text", errors.New("Rate limit exceeded"), model.KindRateLimited},
		{"auth", errors.New("401 Unauthorized"), model.KindFatal},
		{"bad request", errors.New("400 bad request: malformed"), model.KindFatal},
		{"context length", errors.New("maximum context length exceeded"), model.KindFatal},
		{"server", errors.New("500 internal server error"), model.KindTransient},
		{"network", errors.New("connection reset by peer"), model.KindTransient},
		{"cancelled", fmt.Errorf("request: %w", context.Canceled), model.KindFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var me *model.Error
			if !errors.As(model.Classify("openai", tt.err), &me) {
				t.Fatal("Classify() did not return *model.Error")
			}
			if me.Kind != tt.want {
				t.Errorf("Kind = %s, want %s", me.Kind, tt.want)
			}
			if !errors.Is(me, tt.err) {
				t.Error("classified error does not unwrap to the cause")
			}
		})
	}
}

func TestClassify_KeepsClassified(t *testing.T) {
	orig := &model.Error{Kind: model.KindRateLimited, Err: errors.New("x")}
	if got := model.Classify("p", orig); got != orig {
		t.Errorf("Classify() re-wrapped an *Error: %v", got)
	}
	if model.Classify("p", nil) != nil {
		t.Error("Classify(nil) != nil")
	}
}

func TestIsRetryable(t *testing.T) {
	if !model.IsRetryable(&model.Error{Kind: model.KindTransient, Err: errors.New("x")}) {
		t.Error("transient should be retryable")
	}
	if model.IsRetryable(&model.Error{Kind: model.KindFatal, Err: errors.New("x")}) {
		t.Error("fatal should not be retryable")
	}
	if model.IsRetryable(errors.New("plain")) {
		t.Error("unclassified errors should not be retryable")
	}
}
