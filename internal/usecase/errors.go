package usecase

import "fmt"

type ErrorCode string

const (
	ErrorTransport  ErrorCode = "TRANSPORT_FAULT"
	ErrorRunFailure ErrorCode = "RUN_FAILURE"
	ErrorNoReply    ErrorCode = "NO_REPLY"
	ErrorSession    ErrorCode = "SESSION_FAULT"
	ErrorForward    ErrorCode = "FORWARD_FAULT"
)

// Error classifies a pipeline failure for logging. It never reaches the
// end user; every code maps to a fixed user-safe reply.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}
