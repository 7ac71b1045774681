package ai

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrImagesUnsupported is returned when a runtime cannot accept one of the
// request's attachments. Callers retry without attachments.
var ErrImagesUnsupported = errors.New("runtime does not accept these attachments")

// APIError represents a structured provider error response.
type APIError struct {
	StatusCode int            `json:"-"`
	Code       string         `json:"code,omitempty"`
	Message    string         `json:"message,omitempty"`
	Raw        map[string]any `json:"-"`
	RequestID  string         `json:"-"`
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "api error: status=%d", e.StatusCode)
	if e.Code != "" {
		fmt.Fprintf(&b, " code=%s", e.Code)
	}
	if e.RequestID != "" {
		fmt.Fprintf(&b, " request_id=%s", e.RequestID)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, " message=%s", e.Message)
	}
	return b.String()
}

// AuthError indicates authentication/authorization failures (401/403).
type AuthError struct{ *APIError }

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.APIError.Error())
}

// RateLimitError indicates 429 responses and may include a Retry-After.
type RateLimitError struct {
	*APIError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: wait about %ds before retrying: %s", int(e.RetryAfter.Seconds()), e.APIError.Error())
	}
	return fmt.Sprintf("rate limited: %s", e.APIError.Error())
}

// ModelNotFoundError indicates the requested model is not available.
type ModelNotFoundError struct{ *APIError }

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model not found: %s", e.APIError.Error())
}

// BadRequestError indicates a 4xx request problem such as a 400 validation failure.
type BadRequestError struct{ *APIError }

func (e *BadRequestError) Error() string { return fmt.Sprintf("bad request: %s", e.APIError.Error()) }

// QuotaExceededError indicates billing/quota problems.
type QuotaExceededError struct{ *APIError }

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s", e.APIError.Error())
}

// ServerError indicates 5xx errors from the provider.
type ServerError struct{ *APIError }

func (e *ServerError) Error() string { return fmt.Sprintf("provider error: %s", e.APIError.Error()) }

// UnreachableError indicates the target runtime is not reachable (e.g. local Ollama down).
type UnreachableError struct {
	Host string
	Err  error
}

func (e *UnreachableError) Error() string {
	if e == nil {
		return "unreachable"
	}
	if e.Host != "" {
		return fmt.Sprintf("endpoint unreachable at %s: %v", e.Host, e.Err)
	}
	return fmt.Sprintf("endpoint unreachable: %v", e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// classify maps a generic APIError to a typed error. retryAfter comes from
// the response's Retry-After header when there is one.
func classify(apiErr *APIError, retryAfter time.Duration) error {
	sc := apiErr.StatusCode
	msg := apiErr.Message
	code := apiErr.Code
	switch {
	case sc == http.StatusUnauthorized || sc == http.StatusForbidden:
		return &AuthError{APIError: apiErr}
	case sc == http.StatusTooManyRequests:
		if code == "RESOURCE_EXHAUSTED" && containsAnyFold(msg, "quota", "billing") {
			return &QuotaExceededError{APIError: apiErr}
		}
		return &RateLimitError{APIError: apiErr, RetryAfter: retryAfter}
	case sc == http.StatusNotFound:
		if code == "model_not_found" || code == "NOT_FOUND" || containsAllFold(msg, "model", "not", "found") {
			return &ModelNotFoundError{APIError: apiErr}
		}
		return apiErr
	case sc == http.StatusBadRequest:
		return &BadRequestError{APIError: apiErr}
	case code == "quota_exceeded" || containsAnyFold(msg, "quota", "billing", "limit exceeded"):
		return &QuotaExceededError{APIError: apiErr}
	case sc >= 500 && sc <= 599:
		return &ServerError{APIError: apiErr}
	}
	return apiErr
}

// Hint returns a short Korean remedy for errors a user can act on, or "".
func Hint(err error) string {
	var (
		auth  *AuthError
		rate  *RateLimitError
		quota *QuotaExceededError
		model *ModelNotFoundError
		down  *UnreachableError
	)
	switch {
	case errors.As(err, &auth):
		return "API 키를 확인하세요 (ANALYST_API_KEY 또는 config set api_key)."
	case errors.As(err, &quota):
		return "사용량 한도를 초과했습니다. 요금제 또는 할당량을 확인하세요."
	case errors.As(err, &rate):
		if rate.RetryAfter > 0 {
			return fmt.Sprintf("요청이 너무 많습니다. 약 %d초 후 다시 시도하세요.", int(rate.RetryAfter.Seconds()))
		}
		return "요청이 너무 많습니다. 잠시 후 다시 시도하세요."
	case errors.As(err, &model):
		return "모델 이름을 확인하세요 (analyst models)."
	case errors.As(err, &down):
		return "LLM 서버에 연결할 수 없습니다. 호스트 설정을 확인하세요."
	}
	return ""
}

func containsAllFold(s string, subs ...string) bool {
	for _, sub := range subs {
		if !containsFold(s, sub) {
			return false
		}
	}
	return true
}

func containsAnyFold(s string, subs ...string) bool {
	for _, sub := range subs {
		if containsFold(s, sub) {
			return true
		}
	}
	return false
}

func containsFold(s, sub string) bool {
	if s == "" || sub == "" {
		return false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
