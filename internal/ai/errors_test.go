package ai

import (
	"context"
	"errors"
	"testing"
	"time"
)

func isA[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		status int
		code   string
		msg    string
		check  func(error) bool
	}{
		{401, "", "", isA[*AuthError]},
		{429, "", "", isA[*RateLimitError]},
		{429, "RESOURCE_EXHAUSTED", "You exceeded your current quota", isA[*QuotaExceededError]},
		{404, "", "model gemini-9 not found", isA[*ModelNotFoundError]},
		{400, "", "bad", isA[*BadRequestError]},
		{503, "", "overloaded", isA[*ServerError]},
		{402, "", "insufficient billing credits", isA[*QuotaExceededError]},
	}
	for _, tc := range cases {
		err := classify(&APIError{StatusCode: tc.status, Code: tc.code, Message: tc.msg}, 2*time.Second)
		if !tc.check(err) {
			t.Fatalf("status %d: unexpected classification %T: %v", tc.status, err, err)
		}
	}

	var rl *RateLimitError
	err := classify(&APIError{StatusCode: 429}, 2*time.Second)
	if !errors.As(err, &rl) || rl.RetryAfter != 2*time.Second {
		t.Fatalf("expected Retry-After to be carried, got %v", err)
	}
}

func TestBackoffStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := errors.New("permanent")
	err := backoff{attempts: 3, base: time.Millisecond}.do(context.Background(), func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) || calls != 1 {
		t.Fatalf("expected a single call returning the permanent error, got %d calls, %v", calls, err)
	}
}

func TestBackoffHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := backoff{attempts: 5, base: time.Hour}.do(ctx, func() error {
		calls++
		cancel()
		return &retryable{err: errors.New("busy")}
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Fatalf("expected cancellation after one call, got %d calls, %v", calls, err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d, err := parseRetryAfter("3"); err != nil || d != 3*time.Second {
		t.Fatalf("unexpected %v %v", d, err)
	}
	if _, err := parseRetryAfter("soon"); err == nil {
		t.Fatalf("expected an error for an invalid header")
	}
	if d, _ := parseRetryAfter(""); d != 0 {
		t.Fatalf("empty header means no delay")
	}
}
