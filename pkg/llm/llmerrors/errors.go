// Package llmerrors provides structured error classification for LLM API interactions.
package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind represents the category of a gateway error.
type Kind int8

const (
	// KindAuth represents authentication errors (401/403, bad API key).
	KindAuth Kind = iota
	// KindRateLimit represents rate limiting errors (429, quota exceeded).
	KindRateLimit
	// KindTimeout represents requests that exceeded their deadline.
	KindTimeout
	// KindMalformedResponse represents structurally unusable responses
	// (empty body, no choices, unparseable payload).
	KindMalformedResponse
	// KindUnknown is the default for unclassified errors.
	KindUnknown
)

// String returns the string representation of the error kind.
func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindTimeout:
		return "timeout"
	case KindMalformedResponse:
		return "malformed_response"
	case KindUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Error represents a classified gateway error.
type Error struct {
	Err        error  // Wrapped underlying error
	Message    string // Human-readable error message
	Kind       Kind   // Classified error kind
	StatusCode int    // HTTP status code if applicable
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway error (%s): %s", e.Kind.String(), e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("gateway error (%s): %v", e.Kind.String(), e.Err)
	}
	return fmt.Sprintf("gateway error (%s): status %d", e.Kind.String(), e.StatusCode)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is checks if an error is a gateway error of the given kind.
func Is(err error, kind Kind) bool {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind == kind
	}
	return false
}

// KindOf returns the kind of an error, or KindUnknown if not classified.
func KindOf(err error) Kind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return KindUnknown
}

// New creates a new classified gateway error.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
	}
}

// NewWithStatus creates a new classified gateway error with an HTTP status.
func NewWithStatus(kind Kind, statusCode int, message string) *Error {
	return &Error{
		Kind:       kind,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewWithCause creates a new classified gateway error wrapping another error.
func NewWithCause(kind Kind, cause error, message string) *Error {
	return &Error{
		Kind:    kind,
		Err:     cause,
		Message: message,
	}
}

// Classify maps an arbitrary provider SDK error to a classified gateway error.
// Already-classified errors pass through unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr
	}

	// Context errors first: a deadline hit is the timeout contract.
	if errors.Is(err, context.DeadlineExceeded) {
		return NewWithCause(KindTimeout, err, "request deadline exceeded")
	}
	if errors.Is(err, context.Canceled) {
		return NewWithCause(KindTimeout, err, "request canceled")
	}

	errStr := err.Error()

	// SDKs typically include status codes in error messages.
	switch extractStatusCode(errStr) {
	case 401:
		return NewWithStatus(KindAuth, 401, "authentication failed - check API key")
	case 403:
		return NewWithStatus(KindAuth, 403, "permission denied - check API access")
	case 429:
		return NewWithStatus(KindRateLimit, 429, "rate limit exceeded")
	}

	lower := strings.ToLower(errStr)

	if strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline") {
		return NewWithCause(KindTimeout, err, "request timed out")
	}
	if strings.Contains(lower, "rate") || strings.Contains(lower, "quota") {
		return NewWithCause(KindRateLimit, err, "rate limiting detected")
	}
	if strings.Contains(lower, "unauthorized") || strings.Contains(lower, "api key") ||
		strings.Contains(lower, "authentication") {
		return NewWithCause(KindAuth, err, "authentication error")
	}
	if strings.Contains(lower, "unmarshal") || strings.Contains(lower, "decode") ||
		strings.Contains(lower, "empty response") {
		return NewWithCause(KindMalformedResponse, err, "unusable provider response")
	}

	return NewWithCause(KindUnknown, err, "unclassified error")
}

// extractStatusCode attempts to extract an HTTP status code from an error string.
func extractStatusCode(errStr string) int {
	patterns := []string{
		"status code: ",
		"status: ",
		"http ",
		"code ",
	}

	lower := strings.ToLower(errStr)
	for _, pattern := range patterns {
		idx := strings.Index(lower, pattern)
		if idx == -1 {
			continue
		}
		rest := lower[idx+len(pattern):]
		for _, code := range []string{"400", "401", "403", "429", "500", "502", "503", "504"} {
			if strings.HasPrefix(rest, code) {
				switch code {
				case "400":
					return 400
				case "401":
					return 401
				case "403":
					return 403
				case "429":
					return 429
				case "500":
					return 500
				case "502":
					return 502
				case "503":
					return 503
				case "504":
					return 504
				}
			}
		}
	}

	return 0
}
