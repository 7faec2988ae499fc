package sys

import (
	"errors"
	"fmt"
)

// Status is a kernel status code. Zero is success; failures are negative.
type Status int32

const (
	OK Status = 0

	ErrInternal       Status = -1
	ErrNotSupported   Status = -2
	ErrNoResources    Status = -3
	ErrNoMemory       Status = -4
	ErrInvalidArgs    Status = -10
	ErrBadHandle      Status = -11
	ErrWrongType      Status = -12
	ErrOutOfRange     Status = -14
	ErrBufferTooSmall Status = -15
	ErrBadState       Status = -20
	ErrTimedOut       Status = -21
	ErrShouldWait     Status = -22
	ErrCanceled       Status = -23
	ErrPeerClosed     Status = -24
	ErrNotFound       Status = -25
	ErrAlreadyExists  Status = -26
	ErrUnavailable    Status = -28
	ErrAccessDenied   Status = -30
)

var statusNames = map[Status]string{
	OK:                "OK",
	ErrInternal:       "INTERNAL",
	ErrNotSupported:   "NOT_SUPPORTED",
	ErrNoResources:    "NO_RESOURCES",
	ErrNoMemory:       "NO_MEMORY",
	ErrInvalidArgs:    "INVALID_ARGS",
	ErrBadHandle:      "BAD_HANDLE",
	ErrWrongType:      "WRONG_TYPE",
	ErrOutOfRange:     "OUT_OF_RANGE",
	ErrBufferTooSmall: "BUFFER_TOO_SMALL",
	ErrBadState:       "BAD_STATE",
	ErrTimedOut:       "TIMED_OUT",
	ErrShouldWait:     "SHOULD_WAIT",
	ErrCanceled:       "CANCELED",
	ErrPeerClosed:     "PEER_CLOSED",
	ErrNotFound:       "NOT_FOUND",
	ErrAlreadyExists:  "ALREADY_EXISTS",
	ErrUnavailable:    "UNAVAILABLE",
	ErrAccessDenied:   "ACCESS_DENIED",
}

// String returns the symbolic name of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS(%d)", int32(s))
}

// Error implements error.
func (s Status) Error() string {
	return "fiber: " + s.String()
}

// StatusOf maps an error returned by the kernel back to its status code.
// Wrapped statuses are unwrapped; nil is OK and foreign errors are INTERNAL.
func StatusOf(err error) Status {
	if err == nil {
		return OK
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	return ErrInternal
}

// Err converts a status into an error, mapping OK to nil.
func (s Status) Err() error {
	if s == OK {
		return nil
	}
	return s
}
