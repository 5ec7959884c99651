package action

import (
	"fmt"

	"github.com/wangfeng/cherrycake-gateway/pkg/output"
)

// Status is the result of running an action.
type Status uint8

const (
	// StatusAccepted indicates the handler took the request.
	StatusAccepted Status = iota
	// StatusDeclined indicates the action does not apply; dispatch moves on.
	StatusDeclined
	// StatusError indicates the handler failed; dispatch stops.
	StatusError
)

// String returns a string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusAccepted:
		return "accepted"
	case StatusDeclined:
		return "declined"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is what a handler, and Run, return.
type Outcome struct {
	Status   Status
	Err      error
	Response *output.Response
	CacheHit bool
}

// Accepted creates an accepted outcome.
func Accepted() Outcome {
	return Outcome{Status: StatusAccepted}
}

// Declined creates a declined outcome.
func Declined() Outcome {
	return Outcome{Status: StatusDeclined}
}

// Error creates an error outcome.
func Error(err error) Outcome {
	return Outcome{Status: StatusError, Err: err}
}

// Errorf creates an error outcome with a formatted message.
func Errorf(format string, args ...interface{}) Outcome {
	return Outcome{Status: StatusError, Err: fmt.Errorf(format, args...)}
}

// WithResponse returns a copy of the outcome carrying resp.
func (o Outcome) WithResponse(resp *output.Response) Outcome {
	o.Response = resp
	return o
}

// IsAccepted returns true if the outcome is accepted.
func (o Outcome) IsAccepted() bool {
	return o.Status == StatusAccepted
}

// IsDeclined returns true if the outcome is declined.
func (o Outcome) IsDeclined() bool {
	return o.Status == StatusDeclined
}

// IsError returns true if the outcome is an error.
func (o Outcome) IsError() bool {
	return o.Status == StatusError
}
