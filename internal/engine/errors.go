package engine

import (
	"errors"
	"fmt"
)

// SessionError reports why a session could not start or ended abnormally.
//
// Session errors never stop the supervisor; they are logged and the
// transport is reopened after the reconnect interval.
type SessionError struct {
	// Code identifies the error category.
	Code SessionErrorCode

	// Message is a human-readable description.
	Message string

	// Source names the transport (device address or file path).
	Source string

	// Token identifies the session, when one was started.
	Token string

	// Err is the underlying cause.
	Err error
}

// SessionErrorCode categorizes session errors.
type SessionErrorCode string

const (
	// ErrCodeTransportOpen indicates the transport could not be opened.
	ErrCodeTransportOpen SessionErrorCode = "TRANSPORT_OPEN_FAILED"

	// ErrCodeTransportClosed indicates the stream ended with an error.
	ErrCodeTransportClosed SessionErrorCode = "TRANSPORT_CLOSED"

	// ErrCodeSessionStart indicates the session row could not be written.
	ErrCodeSessionStart SessionErrorCode = "SESSION_START_FAILED"
)

// Error implements the error interface.
func (e *SessionError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Source != "" {
		msg += fmt.Sprintf(" (source=%s", e.Source)
		if e.Token != "" {
			msg += fmt.Sprintf(", session=%s", e.Token)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *SessionError) Unwrap() error {
	return e.Err
}

// IsTransportError returns true if err is a transport open or close error.
// Uses errors.As to handle wrapped errors.
func IsTransportError(err error) bool {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Code == ErrCodeTransportOpen || se.Code == ErrCodeTransportClosed
	}
	return false
}

func newOpenError(source string, err error) *SessionError {
	return &SessionError{
		Code:    ErrCodeTransportOpen,
		Message: "open transport",
		Source:  source,
		Err:     err,
	}
}

func newClosedError(source, token string, err error) *SessionError {
	return &SessionError{
		Code:    ErrCodeTransportClosed,
		Message: "stream ended",
		Source:  source,
		Token:   token,
		Err:     err,
	}
}

func newStartError(source, token string, err error) *SessionError {
	return &SessionError{
		Code:    ErrCodeSessionStart,
		Message: "begin session",
		Source:  source,
		Token:   token,
		Err:     err,
	}
}
