package adapter

import (
	"errors"
	"fmt"
)

// Normalized failure codes. Every failure surfaced by the control layer
// unwraps to exactly one of these.
var (
	ErrInvalidArgument = errors.New("INVALID_ARGUMENT")
	ErrBusy            = errors.New("BUSY")
	ErrDevice          = errors.New("DEVICE_ERROR")
	ErrLaunch          = errors.New("LAUNCH_ERROR")
	ErrTimeout         = errors.New("TIMEOUT")
	ErrProtocol        = errors.New("PROTOCOL_ERROR")
	ErrAlreadyRunning  = errors.New("ALREADY_RUNNING")
	ErrNotRunning      = errors.New("NOT_RUNNING")
)

// Codes lists the normalized codes in a stable order.
var Codes = []error{
	ErrInvalidArgument,
	ErrBusy,
	ErrDevice,
	ErrLaunch,
	ErrTimeout,
	ErrProtocol,
	ErrAlreadyRunning,
	ErrNotRunning,
}

// Error carries a normalized code together with the diagnostic text that
// produced it (stderr, parse input, validation message).
type Error struct {
	Code    error       // one of Codes
	Detail  string      // original diagnostic, never rewritten
	Details interface{} // optional structured payload
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Code.Error()
	}
	return fmt.Sprintf("%v: %s", e.Code, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Code
}

// NewError returns an *Error for code with the given detail.
func NewError(code error, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

// Errorf is NewError with a formatted detail.
func Errorf(code error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// CodeOf returns the normalized code err unwraps to, or nil when err is nil
// or carries no known code.
func CodeOf(err error) error {
	if err == nil {
		return nil
	}
	for _, code := range Codes {
		if errors.Is(err, code) {
			return code
		}
	}
	return nil
}

// DetailOf returns the diagnostic text attached to err, falling back to
// err.Error() for errors that are not *Error.
func DetailOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return err.Error()
}

// causeCodes maps a failed invocation cause onto the normalized code.
var causeCodes = map[Cause]error{
	CauseNonZeroExit: ErrDevice,
	CauseLaunch:      ErrLaunch,
	CauseTimeout:     ErrTimeout,
	CauseBusy:        ErrBusy,
}

// CodeForCause returns the normalized code for a failure cause.
func CodeForCause(c Cause) error {
	if code, ok := causeCodes[c]; ok {
		return code
	}
	return ErrDevice
}
