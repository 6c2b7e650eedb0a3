package platform

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

type ErrorKind string

const (
	KindAuthExpired       ErrorKind = "auth_expired"
	KindRateLimited       ErrorKind = "rate_limited"
	KindPayloadRejected   ErrorKind = "payload_rejected"
	KindMissingCredential ErrorKind = "missing_credential"
	KindUnknown           ErrorKind = "unknown"
)

// Error is a provider failure classified into the kinds the orchestrator
// cares about. RetryAfter carries the provider's Retry-After hint when the
// failure is a rate limit.
type Error struct {
	Platform   string
	Kind       ErrorKind
	Message    string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Platform, e.Kind, e.Message)
}

// Retryable reports whether a later attempt may succeed without user action.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimited
}

// AsError classifies err, wrapping anything untyped as KindUnknown.
func AsError(platformID string, err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	return &Error{Platform: platformID, Kind: KindUnknown, Message: err.Error()}
}

// classifyStatus maps a provider HTTP status to an Error. 429 parses the
// Retry-After header (seconds form) as the hint.
func classifyStatus(platformID string, resp *http.Response, message string) *Error {
	e := &Error{Platform: platformID, Message: message}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		e.Kind = KindAuthExpired
	case resp.StatusCode == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				e.RetryAfter = time.Duration(secs) * time.Second
			}
		}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		e.Kind = KindPayloadRejected
	default:
		e.Kind = KindUnknown
	}

	if e.Message == "" {
		e.Message = fmt.Sprintf("provider returned status %d", resp.StatusCode)
	}
	return e
}
