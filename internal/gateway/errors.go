package gateway

import (
	"errors"
	"fmt"
)

// ErrAuth indicates the provider refused our credentials
var ErrAuth = errors.New("gateway authentication failed")

// Error is a gateway failure carrying an HTTP-status-like code so handlers
// can map it to a response without parsing free-text messages. Retryable
// separates network/timeout/5xx failures from provider business rejections.
type Error struct {
	Code      int
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	if e.Retryable {
		return fmt.Sprintf("gateway unavailable (code %d): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("gateway rejected request (code %d): %s", e.Code, e.Message)
}

// unavailable wraps a transport-level failure (timeout, refused, 5xx)
func unavailable(code int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Retryable: true}
}

// rejected wraps a provider-side business error
func rejected(code int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Retryable: false}
}

// IsUnavailable reports whether err is a retryable gateway failure
func IsUnavailable(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Retryable
}

// IsRejected reports whether err is a provider business rejection
func IsRejected(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && !ge.Retryable
}
