package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Endpoint identifies the physical transceiver. It is built once from
// configuration and shared read-only.
type Endpoint struct {
	Model           int           `json:"model"`
	Device          string        `json:"device"`
	Baud            int           `json:"baud"`
	ResponseTimeout time.Duration `json:"responseTimeout"`
}

// Validate reports whether the endpoint is usable.
func (e Endpoint) Validate() error {
	if e.Model <= 0 {
		return fmt.Errorf("endpoint model must be positive, got %d", e.Model)
	}
	if strings.TrimSpace(e.Device) == "" {
		return fmt.Errorf("endpoint device path is required")
	}
	if e.Baud <= 0 {
		return fmt.Errorf("endpoint baud must be positive, got %d", e.Baud)
	}
	if e.ResponseTimeout <= 0 {
		return fmt.Errorf("endpoint response timeout must be positive, got %v", e.ResponseTimeout)
	}
	return nil
}

// Invocation is one command token sequence addressed to an endpoint.
type Invocation struct {
	Endpoint Endpoint
	Tokens   []string
}

// Command returns the tokens joined by single spaces.
func (i Invocation) Command() string {
	return strings.Join(i.Tokens, " ")
}

// Cause classifies a failed invocation.
type Cause int

const (
	CauseNone Cause = iota
	CauseNonZeroExit
	CauseLaunch
	CauseTimeout
	CauseBusy
)

func (c Cause) String() string {
	switch c {
	case CauseNone:
		return "none"
	case CauseNonZeroExit:
		return "non_zero_exit"
	case CauseLaunch:
		return "launch_error"
	case CauseTimeout:
		return "timeout"
	case CauseBusy:
		return "busy"
	default:
		return fmt.Sprintf("cause(%d)", int(c))
	}
}

// Outcome is the raw result of one invocation: either success with the
// cleaned first line of output, or a failure with its cause and diagnostic.
type Outcome struct {
	OK       bool
	Text     string
	Cause    Cause
	Detail   string
	ExitCode int
}

// Success builds a successful outcome.
func Success(text string) Outcome {
	return Outcome{OK: true, Text: text}
}

// Failure builds a failed outcome.
func Failure(cause Cause, detail string) Outcome {
	return Outcome{Cause: cause, Detail: detail}
}

// Label is a short outcome name for logs and metrics.
func (o Outcome) Label() string {
	if o.OK {
		return "success"
	}
	return o.Cause.String()
}

// Err converts a failed outcome into a normalized *Error. It returns nil
// for successful outcomes.
func (o Outcome) Err() error {
	if o.OK {
		return nil
	}
	return &Error{
		Code:    CodeForCause(o.Cause),
		Detail:  o.Detail,
		Details: map[string]interface{}{"cause": o.Cause.String(), "exitCode": o.ExitCode},
	}
}

// FirstLine returns the first line of raw process output with surrounding
// whitespace removed. Later lines are not significant.
func FirstLine(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, '\n'); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(raw)
}

// Gateway executes a single invocation against the device.
// Implementations never retry and never panic into the caller.
type Gateway interface {
	Execute(ctx context.Context, inv Invocation) Outcome
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, inv Invocation) Outcome

// Execute calls f(ctx, inv).
func (f GatewayFunc) Execute(ctx context.Context, inv Invocation) Outcome {
	return f(ctx, inv)
}
