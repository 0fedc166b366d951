package verifier

import (
	"errors"
	"fmt"
)

// TransportError is a failed remote call: network error, timeout or a
// non-2xx answer from the function runtime.
type TransportError struct {
	Function   string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote function %s returned %d: %v", e.Function, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("remote function %s unavailable: %v", e.Function, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError is a response that arrived but has the wrong shape.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid response: " + e.Reason
	}
	return fmt.Sprintf("invalid response field %q: %s", e.Field, e.Reason)
}

// StateError reports a local precondition that does not hold, e.g. verifying
// a payment id the tracker has never seen. It is never fatal.
type StateError struct {
	Op     string
	ID     string
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.ID, e.Reason)
}

func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsState(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}
