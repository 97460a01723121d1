package client

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"capstan/internal/api"
)

// classifyStatus maps a non-2xx response onto the error taxonomy. The body is
// expected to be the standard failure envelope; anything else degrades to a
// classification from the status code alone with the raw body preserved.
// timeout is the request timeout in effect, attached to timeout-kind errors.
func classifyStatus(status int, header http.Header, body []byte, timeout time.Duration) *Error {
	e := &Error{
		Status: status,
		Body:   strings.TrimSpace(string(body)),
	}

	var env api.Envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		e.Code = env.Error.Code
		e.Message = env.Error.Message
	}

	switch {
	case status == http.StatusBadRequest:
		e.Kind = KindValidation
		var details api.ValidationDetails
		if decodeDetails(body, &details) {
			e.Fields = details.Fields
		}
	case status == http.StatusUnauthorized:
		e.Kind = KindAuthentication
	case status == http.StatusForbidden:
		e.Kind = KindAuthorization
		var details api.ForbiddenDetails
		if decodeDetails(body, &details) {
			e.DeniedResource = details.Resource
			e.DeniedAction = details.Action
		}
	case status == http.StatusNotFound:
		e.Kind = KindNotFound
		e.Resource = "resource"
		e.ResourceID = "unknown"
		var details api.NotFoundDetails
		if decodeDetails(body, &details) {
			if details.Resource != "" {
				e.Resource = details.Resource
			}
			if details.ID != "" {
				e.ResourceID = details.ID
			}
		}
	case status == http.StatusRequestTimeout:
		e.Kind = KindTimeout
		e.Timeout = timeout
	case status == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		var details api.RateLimitDetails
		if decodeDetails(body, &details) {
			e.RetryAfter = time.Duration(details.RetryAfter) * time.Second
			e.Limit = details.Limit
			e.Remaining = details.Remaining
		}
		if e.RetryAfter == 0 {
			e.RetryAfter = parseRetryAfter(header.Get("Retry-After"))
		}
	default:
		e.Kind = KindServer
	}
	return e
}

// decodeDetails unpacks envelope.error.details into out. Returns false when
// the envelope or details are absent or malformed.
func decodeDetails(body []byte, out any) bool {
	var env api.Envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil || len(env.Error.Details) == 0 {
		return false
	}
	return json.Unmarshal(env.Error.Details, out) == nil
}

// classifyTransport maps a transport-level failure (the request never got an
// HTTP response) onto the taxonomy. Deadline expiry in any form is a timeout;
// everything else is a network error.
func classifyTransport(err error, timeout time.Duration) *Error {
	e := &Error{cause: err}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		e.Kind = KindTimeout
		e.Timeout = timeout
	case errors.As(err, &netErr) && netErr.Timeout():
		e.Kind = KindTimeout
		e.Timeout = timeout
	default:
		e.Kind = KindNetwork
	}
	return e
}

// parseRetryAfter handles both forms the header allows, delta seconds and an
// HTTP date. Malformed values yield zero.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
