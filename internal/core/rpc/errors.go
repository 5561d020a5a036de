package rpc

import (
	"errors"
	"fmt"
)

var (
	ErrServiceBusy       = errors.New("service busy")
	ErrResolutionFailed  = errors.New("service resolution failed")
	ErrConnectFailed     = errors.New("service connect failed")
	ErrRuntimeClosed     = errors.New("runtime is closed")
	ErrRuntimeNotStarted = errors.New("runtime is not started")
	ErrInvalidCode       = errors.New("invalid method code")
	ErrNoHandler         = errors.New("no handler for method code")
	ErrDuplicateHandler  = errors.New("method code already registered")
	ErrInvalidOptions    = errors.New("invalid runtime options")
)

// ErrorCode classifies errors surfaced to callers of a remote invocation.
type ErrorCode int

const (
	ErrorCodeServiceBusy       ErrorCode = 1001
	ErrorCodeResolutionFailed  ErrorCode = 1002
	ErrorCodeConnectFailed     ErrorCode = 1003
	ErrorCodeRuntimeClosed     ErrorCode = 1004
	ErrorCodeRuntimeNotStarted ErrorCode = 1005
	ErrorCodeUnknown           ErrorCode = 9999
)

var codeSentinels = map[ErrorCode]error{
	ErrorCodeServiceBusy:       ErrServiceBusy,
	ErrorCodeResolutionFailed:  ErrResolutionFailed,
	ErrorCodeConnectFailed:     ErrConnectFailed,
	ErrorCodeRuntimeClosed:     ErrRuntimeClosed,
	ErrorCodeRuntimeNotStarted: ErrRuntimeNotStarted,
}

// Error is an invocation failure with its classification and context.
// errors.Is matches it against the sentinel of its code.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

func newError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	sentinel, ok := codeSentinels[e.Code]
	return ok && sentinel == target
}

func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

// IsTemporary reports whether a later invocation may succeed without any
// intervention: busy and connect failures reset the connection state.
func (e *Error) IsTemporary() bool {
	switch e.Code {
	case ErrorCodeServiceBusy, ErrorCodeConnectFailed:
		return true
	default:
		return false
	}
}

// IsTemporary reports whether err is a temporary invocation failure.
func IsTemporary(err error) bool {
	var rpcErr *Error
	return errors.As(err, &rpcErr) && rpcErr.IsTemporary()
}

// RemoteError is a failure reported by the provider that served the call.
type RemoteError struct {
	Code    int32
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error (code %d): %s", e.Code, e.Message)
}
