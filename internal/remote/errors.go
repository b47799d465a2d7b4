package remote

import (
	"errors"
	"fmt"
)

// Kind classifies a remote failure by what the caller should do about it.
type Kind string

const (
	// KindTransient covers offline, timeouts, rate limiting and 5xx.
	// Callers keep their data and retry later.
	KindTransient Kind = "TRANSIENT"

	// KindAuth means the server rejected the session token.
	KindAuth Kind = "AUTH"

	// KindForbidden means the session is valid but lacks permission.
	KindForbidden Kind = "FORBIDDEN"

	// KindNotFound means the plan, lot or meeting does not exist.
	KindNotFound Kind = "NOT_FOUND"

	// KindInvalid means the server refused the request as malformed.
	KindInvalid Kind = "INVALID"
)

// Wire error codes carried in the envelope's "code" field.
const (
	CodeAuthRejected   = "AUTH_REJECTED"
	CodeForbidden      = "FORBIDDEN"
	CodeNotFound       = "NOT_FOUND"
	CodeNoMeetingToday = "NO_MEETING_TODAY"
	CodeValidation     = "VALIDATION"
	CodeConflict       = "CONFLICT"
	CodeRateLimited    = "RATE_LIMITED"
	CodeInternal       = "INTERNAL"
)

// Error is a classified remote failure.
type Error struct {
	// Kind is the caller-facing classification.
	Kind Kind

	// Code is the server's wire code, empty for transport failures.
	Code string

	// Status is the HTTP status, zero for transport failures.
	Status int

	// Message is the server's error text or a transport description.
	Message string

	// Err is the underlying transport error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Code != "":
		return fmt.Sprintf("remote %s (%d %s): %s", e.Kind, e.Status, e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("remote %s: %s: %v", e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("remote %s: %s", e.Kind, e.Message)
	}
}

// Unwrap returns the underlying transport error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsAuthRejected reports whether err is a definitive session rejection.
// Uses errors.As to handle wrapped errors.
func IsAuthRejected(err error) bool {
	return hasKind(err, KindAuth)
}

// IsTransient reports whether err is worth retrying unchanged.
func IsTransient(err error) bool {
	return hasKind(err, KindTransient)
}

// IsNotFound reports whether the remote store has no such plan, lot or meeting.
func IsNotFound(err error) bool {
	return hasKind(err, KindNotFound)
}

// IsForbidden reports whether the session lacks permission.
func IsForbidden(err error) bool {
	return hasKind(err, KindForbidden)
}

// IsNoMeetingToday reports whether the plan has no column set for today.
func IsNoMeetingToday(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Code == CodeNoMeetingToday
}

// IsInvalid reports whether the server refused the request as malformed.
func IsInvalid(err error) bool {
	return hasKind(err, KindInvalid)
}

func hasKind(err error, k Kind) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind == k
	}
	return false
}

// classify maps an HTTP status and wire code to a Kind.
//
// CRITICAL: 401 is only KindAuth when the server says AUTH_REJECTED. A bare
// 401 from a proxy or captive portal is treated as transient so it cannot
// halt background sync.
func classify(status int, code string) Kind {
	switch {
	case status == 401 && code == CodeAuthRejected:
		return KindAuth
	case status == 403:
		return KindForbidden
	case status == 404:
		return KindNotFound
	case status == 429, status >= 500, status == 401:
		return KindTransient
	case status >= 400:
		return KindInvalid
	default:
		return KindTransient
	}
}
