package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport matches every *Error: network failures, timeouts and non-2xx
	// answers that are not an expired session.
	ErrTransport = errors.New("transport: request failed")

	// ErrAuthExpired is returned when the upstream rejects the session token.
	// The registered auth-expired hook has already run when callers see it.
	ErrAuthExpired = errors.New("transport: authentication expired")

	// ErrInvalidCredentials is wrapped by the *Error of a rejected login.
	ErrInvalidCredentials = errors.New("transport: invalid credentials")
)

// Error describes a failed upstream call.
type Error struct {
	Method     string
	Path       string
	StatusCode int    // 0 for network failures
	Detail     string // upstream "detail" message, if any
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode == 0 && e.Err != nil:
		return fmt.Sprintf("transport: %s %s: %v", e.Method, e.Path, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("transport: %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Detail)
	default:
		return fmt.Sprintf("transport: %s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrTransport }

// StatusCode returns the upstream status carried by err, or 0.
func StatusCode(err error) int {
	var te *Error
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}
