// Package errors provides the standardized error taxonomy for the
// aggregation pipeline.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Caller-facing codes.
	ErrCodeInvalidQuery           ErrorCode = "INVALID_QUERY"
	ErrCodeAggregationUnavailable ErrorCode = "AGGREGATION_UNAVAILABLE"

	// Provider-level codes, absorbed inside the orchestrator.
	ErrCodeProviderError    ErrorCode = "PROVIDER_ERROR"
	ErrCodeProviderTimeout  ErrorCode = "PROVIDER_TIMEOUT"
	ErrCodeScrapeBlocked    ErrorCode = "SCRAPE_BLOCKED"
	ErrCodeGenerationFailed ErrorCode = "GENERATION_FAILED"

	// Internal signals, never surfaced to the caller.
	ErrCodeInsufficientResults ErrorCode = "INSUFFICIENT_RESULTS"
	ErrCodeCacheUnavailable    ErrorCode = "CACHE_UNAVAILABLE"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// NewInvalidQueryError creates a non-retryable validation error. It fails
// fast, before any network activity.
func NewInvalidQueryError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidQuery,
		Message:   "Malformed aggregation query",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewProviderError creates a retryable provider fault for the named source.
func NewProviderError(source string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderError,
		Message:   fmt.Sprintf("Provider '%s' error", source),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewProviderTimeoutError creates a timeout error for the named source.
// Timed-out providers are excluded from the run, not retried mid-run.
func NewProviderTimeoutError(source string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderTimeout,
		Message:   fmt.Sprintf("Provider '%s' timeout", source),
		Details:   "call exceeded its timeout budget",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewScrapeBlockedError marks a scraper sub-source rejected by the target
// site (captcha, 403, rate-limit response).
func NewScrapeBlockedError(source string, statusCode int) *StandardError {
	return &StandardError{
		Code:      ErrCodeScrapeBlocked,
		Message:   fmt.Sprintf("Scrape source '%s' blocked", source),
		Details:   fmt.Sprintf("status: %d", statusCode),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewGenerationFailedError creates a retryable generative-provider error.
func NewGenerationFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeGenerationFailed,
		Message:   "Generative fallback failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInsufficientResultsError is the internal signal that triggers the
// fallback cascade.
func NewInsufficientResultsError(have, want int) *StandardError {
	return &StandardError{
		Code:      ErrCodeInsufficientResults,
		Message:   "Aggregation yielded below the minimum result threshold",
		Details:   fmt.Sprintf("have: %d, want: %d", have, want),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAggregationUnavailableError covers the catastrophic case where even
// the emergency placeholder tier produced nothing.
func NewAggregationUnavailableError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAggregationUnavailable,
		Message:   "No tier of the fallback cascade produced results",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewCacheUnavailableError marks a degraded (but non-fatal) cache backend.
func NewCacheUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCacheUnavailable,
		Message:   "Result cache backend unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// GetRetryCount returns the recommended in-run retry count per code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeProviderError, ErrCodeGenerationFailed:
		return 3
	case ErrCodeScrapeBlocked:
		return 2
	default:
		// Timeouts are excluded rather than retried; validation and
		// internal signals never retry.
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "QUERY"):
		return "VALIDATION"
	case strings.Contains(codeStr, "PROVIDER") || strings.Contains(codeStr, "SCRAPE") || strings.Contains(codeStr, "GENERATION"):
		return "PROVIDER"
	case strings.Contains(codeStr, "CACHE"):
		return "CACHE"
	default:
		return "AGGREGATION"
	}
}
