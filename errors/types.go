package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG_INVALID"

	// Worker transport errors
	ErrCodeWorkerSpawn        ErrorCode = "WORKER_SPAWN"
	ErrCodeWorkerTimeout      ErrorCode = "WORKER_TIMEOUT"
	ErrCodeWorkerExited       ErrorCode = "WORKER_EXITED"
	ErrCodeMalformedResponse  ErrorCode = "MALFORMED_RESPONSE"
	ErrCodeChannelBusy        ErrorCode = "CHANNEL_BUSY"
	ErrCodeChannelClosed      ErrorCode = "CHANNEL_CLOSED"
	ErrCodeCommandRejected    ErrorCode = "COMMAND_REJECTED"
	ErrCodeDaemonUnavailable  ErrorCode = "DAEMON_UNAVAILABLE"
	ErrCodeDaemonRequestError ErrorCode = "DAEMON_REQUEST"

	// Story graph errors
	ErrCodeInvalidChange ErrorCode = "INVALID_CHANGE"
	ErrCodeNodeNotFound  ErrorCode = "NODE_NOT_FOUND"
	ErrCodeQueueClosed   ErrorCode = "QUEUE_CLOSED"
	ErrCodeSnapshot      ErrorCode = "SNAPSHOT_ERROR"

	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// Error represents a structured error with context
type Error struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *Error) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new Error
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an Error
func Wrap(err error, code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is checks if an error carries a specific code anywhere in its chain
func Is(err error, code ErrorCode) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Code == code {
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// GetCode extracts the outermost error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	e, ok := err.(*Error)
	if !ok {
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return GetCode(unwrapper.Unwrap())
		}
		return ""
	}

	return e.Code
}

// Detail returns a detail value from the outermost Error in the chain.
func Detail(err error, key string) (interface{}, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			v, found := e.Details[key]
			return v, found
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	return nil, false
}
