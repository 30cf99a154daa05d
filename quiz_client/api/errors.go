package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies an API failure so callers can decide retry vs terminal
// without parsing message text.
type ErrorKind int

const (
	KindTransport  ErrorKind = iota // no response received; retryable
	KindAuth                        // missing/invalid/expired credential; needs re-login
	KindConflict                    // acting outside the allowed attempt state; terminal
	KindValidation                  // malformed request, client bug; logged, not retried
	KindServer                      // backend internal error; retryable
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindAuth:
		return "auth"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// APIError is the typed failure surfaced by every client operation.
type APIError struct {
	Kind       ErrorKind
	StatusCode int // 0 for transport failures
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("api %s error: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("api %s error (%d): %s", e.Kind, e.StatusCode, e.Message)
}

// Retryable reports whether the user may sensibly retry the same call.
func (e *APIError) Retryable() bool {
	return e.Kind == KindTransport || e.Kind == KindServer
}

// classifyStatus maps an HTTP status to an error kind. The mapping is by
// status code only, never by message text.
func classifyStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized:
		return KindAuth
	case code == http.StatusForbidden, code == http.StatusConflict, code == http.StatusNotFound:
		return KindConflict
	case code == http.StatusBadRequest, code == http.StatusUnprocessableEntity:
		return KindValidation
	case code >= 500:
		return KindServer
	default:
		return KindServer
	}
}

// KindOf returns the kind of an APIError in err's chain, or ok=false.
func KindOf(err error) (ErrorKind, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind, true
	}
	return 0, false
}

// IsRetryable reports whether err is an APIError the user may retry.
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable()
}

// IsAuth reports whether err requires re-authentication.
func IsAuth(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindAuth
}

// IsConflict reports whether err is a terminal state-conflict.
func IsConflict(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindConflict
}
