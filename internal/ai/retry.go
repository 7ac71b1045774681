package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"
)

// backoff is the retry policy shared by the HTTP runtimes.
type backoff struct {
	attempts int
	base     time.Duration
	max      time.Duration
}

// retryable marks an attempt failure worth another try. after, when set,
// replaces the computed delay (Retry-After).
type retryable struct {
	err   error
	after time.Duration
}

func (r *retryable) Error() string { return r.err.Error() }
func (r *retryable) Unwrap() error { return r.err }

// do runs op until it succeeds, fails without a retryable mark, or the
// attempts run out. The last underlying error is returned unwrapped.
func (b backoff) do(ctx context.Context, op func() error) error {
	delay := b.base
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	attempts := b.attempts
	if attempts <= 0 {
		attempts = 1
	}
	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := op()
		if err == nil {
			return nil
		}
		var r *retryable
		if !errors.As(err, &r) {
			return err
		}
		last = r.err
		if attempt == attempts {
			break
		}
		wait := r.after
		if wait <= 0 {
			wait = withJitter(delay)
			if b.max > 0 && wait > b.max {
				wait = b.max
			}
			delay *= 2
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
	return last
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// withJitter returns a backoff duration with +/- 20% jitter applied.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 500 * time.Millisecond
	}
	f := 0.8 + rand.Float64()*0.4
	out := time.Duration(float64(d) * f)
	if out <= 0 {
		return d
	}
	return out
}

func isRetryableNetErr(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

// parseRetryAfter interprets a Retry-After header as seconds or an HTTP date.
func parseRetryAfter(v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	if s, err := strconv.Atoi(v); err == nil {
		return time.Duration(s) * time.Second, nil
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, nil
	}
	return 0, fmt.Errorf("invalid Retry-After: %q", v)
}

// extractRequestID pulls a best-effort request ID from common headers.
func extractRequestID(resp *http.Response) string {
	if resp == nil {
		return ""
	}
	for _, k := range []string{"X-Request-Id", "OpenAI-Request-ID", "Openrouter-Request-ID", "X-Amzn-Requestid"} {
		if v := resp.Header.Get(k); v != "" {
			return v
		}
	}
	return ""
}
