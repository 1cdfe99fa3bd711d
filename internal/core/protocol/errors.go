package protocol

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a failure returned to an endpoint.
type ErrorCode string

const (
	CodeNotFound          ErrorCode = "NotFound"
	CodeNoHandlerFound    ErrorCode = "NoHandlerFound"
	CodeTimeout           ErrorCode = "Timeout"
	CodeMalformedMessage  ErrorCode = "MalformedMessage"
	CodeDuplicateIdentity ErrorCode = "DuplicateIdentity"
	CodeCancelled         ErrorCode = "Cancelled"
	CodeDisconnected      ErrorCode = "Disconnected"
)

// Error is a typed failure carried in an envelope.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message,omitempty"`
}

// Sentinels for errors.Is comparisons; only the code is compared.
var (
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrNoHandlerFound    = &Error{Code: CodeNoHandlerFound}
	ErrTimeout           = &Error{Code: CodeTimeout}
	ErrMalformedMessage  = &Error{Code: CodeMalformedMessage}
	ErrDuplicateIdentity = &Error{Code: CodeDuplicateIdentity}
	ErrCancelled         = &Error{Code: CodeCancelled}
	ErrDisconnected      = &Error{Code: CodeDisconnected}
)

// Errorf builds an Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// Is matches any Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// AsError converts err into a wire error. Errors that are not already typed
// are reported as MalformedMessage.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return &Error{Code: CodeMalformedMessage, Message: err.Error()}
}
