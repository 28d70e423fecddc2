package streams

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a StreamError.
type ErrorCode string

const (
	ErrCodeConfigError ErrorCode = "CONFIG_ERROR"
	ErrCodeProbeError  ErrorCode = "PROBE_ERROR"
	ErrCodeGraphBuild  ErrorCode = "GRAPH_BUILD_ERROR"
	ErrCodeGraphStart  ErrorCode = "GRAPH_START_ERROR"
	ErrCodeEngineError ErrorCode = "ENGINE_ERROR"
)

// StreamError is a failure with a code, a message and an optional cause.
type StreamError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *StreamError) Error() string {
	if e.Cause == nil {
		return string(e.Code) + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *StreamError) Unwrap() error { return e.Cause }

// NewStreamError wraps cause, which may be nil, under code.
func NewStreamError(code ErrorCode, message string, cause error) *StreamError {
	return &StreamError{Code: code, Message: message, Cause: cause}
}

// ConfigError builds a CONFIG_ERROR with a formatted message.
func ConfigError(format string, args ...any) *StreamError {
	return NewStreamError(ErrCodeConfigError, fmt.Sprintf(format, args...), nil)
}

// HasCode reports whether any StreamError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	var se *StreamError
	for errors.As(err, &se) {
		if se.Code == code {
			return true
		}
		err = se.Cause
	}
	return false
}

func IsConfigError(err error) bool { return HasCode(err, ErrCodeConfigError) }

// IsGraphError reports whether err came from building or starting a graph.
func IsGraphError(err error) bool {
	return HasCode(err, ErrCodeGraphBuild) || HasCode(err, ErrCodeGraphStart)
}
