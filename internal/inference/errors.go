package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// ProtocolError means the engine exited cleanly but its output carried no valid payload.
type ProtocolError struct {
	Op     string
	Output string
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("inference %s: protocol error: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ProcessError means the engine could not be started or exited non-zero.
// ExitCode is -1 when the process never ran.
type ProcessError struct {
	Op       string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("inference %s: start engine: %v", e.Op, e.Err)
	}
	if e.Stderr == "" {
		return fmt.Sprintf("inference %s: engine exited with code %d", e.Op, e.ExitCode)
	}
	return fmt.Sprintf("inference %s: engine exited with code %d: %s", e.Op, e.ExitCode, e.Stderr)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// TimeoutError means the engine did not finish within its bound.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("inference %s: timed out after %s", e.Op, e.After)
	}
	return fmt.Sprintf("inference %s: timed out", e.Op)
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// ErrorKind labels a bridge error for metrics and logs.
func ErrorKind(err error) string {
	var (
		pe *ProtocolError
		xe *ProcessError
		te *TimeoutError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &pe):
		return "protocol"
	case errors.As(err, &xe):
		return "process"
	case errors.As(err, &te):
		return "timeout"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "other"
	}
}
