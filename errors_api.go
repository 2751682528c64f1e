package chatsdk

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrorKind classifies failures reported by the REST API.
type ErrorKind int

const (
	KindGeneric ErrorKind = iota
	KindAuthentication
	KindTokenExpired
	KindRateLimit
	KindValidation
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindTokenExpired:
		return "token_expired"
	case KindRateLimit:
		return "rate_limit"
	case KindValidation:
		return "validation"
	default:
		return "generic"
	}
}

const (
	codeAuthentication = "AUTHENTICATION_ERROR"
	codeTokenExpired   = "TOKEN_EXPIRED"
	codeRateLimit      = "RATE_LIMIT_EXCEEDED"
	codeValidation     = "VALIDATION_ERROR"

	defaultRetryAfter = 60 * time.Second
)

// APIError is the error value produced for every non-2xx API response, and for
// requests rejected locally before being sent.
type APIError struct {
	Kind    ErrorKind
	Status  int
	Code    string
	Message string
	// Details maps field names to their validation messages.
	Details map[string][]string
	// RetryAfter is only set for KindRateLimit.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (status=%d, code=%s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("%s (status=%d)", e.Message, e.Status)
}

// IsKind reports whether err carries an *APIError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Kind == kind
}

func newAuthenticationError(msg string) *APIError {
	return &APIError{Kind: KindAuthentication, Status: 401, Code: codeAuthentication, Message: msg}
}

func newValidationError(msg string, details map[string][]string) *APIError {
	return &APIError{Kind: KindValidation, Status: 422, Code: codeValidation, Message: msg, Details: details}
}

// newAPIError decides the error kind from the response status and the
// server-provided code.
func newAPIError(status int, code, msg string, details map[string][]string, retryAfter time.Duration) *APIError {
	e := &APIError{Status: status, Code: code, Message: msg, Details: details}

	switch status {
	case 401:
		if code == codeTokenExpired {
			e.Kind = KindTokenExpired
		} else {
			e.Kind = KindAuthentication
		}
	case 422:
		e.Kind = KindValidation
	case 429:
		e.Kind = KindRateLimit
		e.RetryAfter = retryAfter
		if e.RetryAfter <= 0 {
			e.RetryAfter = defaultRetryAfter
		}
	default:
		e.Kind = KindGeneric
	}

	return e
}
