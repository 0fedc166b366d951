package services

import (
	"errors"
	"fmt"
)

// InputError rejects a caller-supplied value before anything is stored or
// sent to the backend.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func IsInput(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
