package protocol

import (
	"errors"
	"fmt"
)

// StatusError represents a negative status returned by the Flash Driver Service
// or the Attribute Service.
type StatusError struct {
	// Operation is the request that failed
	Operation Opcode

	// Status is the negative status code
	Status int32
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: %s (%d)", e.Operation, StatusName(e.Status), e.Status)
}

// IsStatusError returns true if the error is, or wraps, a StatusError.
func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// StatusName returns a human-readable name for a status code.
func StatusName(code int32) string {
	if code >= 0 {
		return "success"
	}

	switch code {
	case StatusIO:
		return "I/O error"
	case StatusInvalidArgs:
		return "invalid arguments"
	case StatusOutOfRange:
		return "out of range"
	case StatusBadFrame:
		return "bad frame"
	case StatusNotSupported:
		return "not supported"
	default:
		return fmt.Sprintf("unknown status %d", code)
	}
}
