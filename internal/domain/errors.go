package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration       = errors.New("platform not configured")
	ErrMissingParameters   = errors.New("missing required parameters")
	ErrSessionNotFound     = errors.New("auth session not found or expired")
	ErrTokenExchangeFailed = errors.New("token exchange failed")
	ErrProfileFetchFailed  = errors.New("profile fetch failed")
	ErrNotConnected        = errors.New("platform account not connected")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrQuotaExceeded       = errors.New("daily quota exceeded")
	ErrSystemOverloaded    = errors.New("system temporarily unavailable")
	ErrValidation          = errors.New("content validation failed")
	ErrPlatformAPI         = errors.New("platform api error")
)

// ValidationError lists every rule the content broke.
type ValidationError struct {
	Platform Platform
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Platform, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// PlatformAPIError is a non-success response from a platform endpoint.
type PlatformAPIError struct {
	Platform   Platform
	Operation  string
	StatusCode int
	Body       string
	APIVersion string
}

func (e *PlatformAPIError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s failed: %s", e.Platform, e.Operation, body)
	}
	return fmt.Sprintf("%s %s failed with status %d: %s", e.Platform, e.Operation, e.StatusCode, body)
}

func (e *PlatformAPIError) Unwrap() error { return ErrPlatformAPI }

// QuotaError carries the decision that caused a refusal. It unwraps to
// ErrQuotaExceeded or ErrSystemOverloaded.
type QuotaError struct {
	Reason   error
	Decision QuotaDecision
}

func (e *QuotaError) Error() string {
	if e.Reason == ErrQuotaExceeded {
		return fmt.Sprintf("%s: %d of %d used", e.Reason.Error(), e.Decision.Used, e.Decision.Limit)
	}
	return e.Reason.Error()
}

func (e *QuotaError) Unwrap() error { return e.Reason }

// IsRetryable reports whether another attempt could plausibly succeed.
// Validation and configuration problems never fix themselves.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrNotConnected),
		errors.Is(err, ErrUnsupportedPlatform),
		errors.Is(err, ErrMissingParameters),
		errors.Is(err, ErrQuotaExceeded),
		errors.Is(err, ErrSystemOverloaded):
		return false
	}
	return true
}

// ErrorCode maps an error to the machine-readable code surfaced to clients.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "VALIDATION_FAILED"
	case errors.Is(err, ErrConfiguration):
		return "CONFIGURATION_ERROR"
	case errors.Is(err, ErrMissingParameters):
		return "MISSING_PARAMETERS"
	case errors.Is(err, ErrSessionNotFound):
		return "SESSION_NOT_FOUND"
	case errors.Is(err, ErrTokenExchangeFailed):
		return "TOKEN_EXCHANGE_FAILED"
	case errors.Is(err, ErrProfileFetchFailed):
		return "PROFILE_FETCH_FAILED"
	case errors.Is(err, ErrNotConnected):
		return "NOT_CONNECTED"
	case errors.Is(err, ErrUnsupportedPlatform):
		return "UNSUPPORTED_PLATFORM"
	case errors.Is(err, ErrQuotaExceeded):
		return "QUOTA_EXCEEDED"
	case errors.Is(err, ErrSystemOverloaded):
		return "SYSTEM_OVERLOADED"
	case errors.Is(err, ErrPlatformAPI):
		return "PLATFORM_API_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}
