package client

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"capstan/internal/api"
)

// Kind discriminates the error taxonomy for failed orchestrator calls.
// Callers branch on Kind rather than parsing messages.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindTimeout
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindValidation
	KindRateLimited
	KindServer
)

// String returns the lowercase taxonomy name.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Error is the structured failure produced for every unsuccessful call. Only
// the fields relevant to its Kind are populated.
type Error struct {
	Kind    Kind
	Status  int
	Code    string
	Message string
	Body    string

	// Validation
	Fields []api.FieldError

	// NotFound
	Resource   string
	ResourceID string

	// Authorization
	DeniedResource string
	DeniedAction   string

	// RateLimited
	RetryAfter time.Duration
	Limit      int
	Remaining  int

	// Timeout
	Timeout time.Duration

	cause error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Status > 0 {
		fmt.Fprintf(&b, " (http %d)", e.Status)
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	switch e.Kind {
	case KindValidation:
		for _, f := range e.Fields {
			fmt.Fprintf(&b, "; %s: %s", f.Field, f.Message)
		}
	case KindNotFound:
		fmt.Fprintf(&b, " (%s %q)", e.Resource, e.ResourceID)
	case KindRateLimited:
		if e.RetryAfter > 0 {
			fmt.Fprintf(&b, " (retry after %s)", e.RetryAfter)
		}
	case KindTimeout:
		if e.Timeout > 0 {
			fmt.Fprintf(&b, " (after %s)", e.Timeout)
		}
	}
	if e.cause != nil {
		fmt.Fprintf(&b, ": %v", e.cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.cause }

// Retryable reports whether the failure is transient: retrying without caller
// intervention can plausibly succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout, KindServer, KindRateLimited:
		return true
	default:
		return false
	}
}

// RetriesExhaustedError is returned when a transient failure persists past
// the configured retry ceiling. Last carries the final concrete error so
// callers always see why retries stopped.
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Last }

// KindOf extracts the taxonomy kind from err, unwrapping RetriesExhaustedError
// and fmt wrappers. Returns KindUnknown when err carries no *Error.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is a transient classified failure.
func IsRetryable(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}
