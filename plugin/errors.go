package plugin

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDevice is returned when a plugin has no NFC hardware to talk to.
	ErrNoDevice = errors.New("no NFC device")

	// ErrClosed is returned by plugins that have been shut down.
	ErrClosed = errors.New("plugin closed")

	// ErrTimeout is returned when a native call did not answer in time.
	ErrTimeout = errors.New("plugin call timed out")
)

// Error is a plugin-level failure. Reason carries one of the Reason*
// constants when the failure maps onto an NFC status.
type Error struct {
	Op     string
	Reason string
	Cause  error
}

// NewError creates a plugin error for op.
func NewError(op, reason string, cause error) *Error {
	return &Error{Op: op, Reason: reason, Cause: cause}
}

func (e *Error) Error() string {
	msg := e.Reason
	if e.Cause != nil {
		if msg != "" {
			msg += ": "
		}
		msg += e.Cause.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error with the same non-empty reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason != "" && t.Reason == e.Reason
}

// ReasonOf extracts the status reason carried by err. Errors that carry no
// reason report ReasonNoNfc.
func ReasonOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) && pe.Reason != "" {
		return pe.Reason
	}
	return ReasonNoNfc
}
