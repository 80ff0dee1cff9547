package normalize

import "fmt"

// MissingFieldError reports a row missing a required identity field. The
// caller treats it as a precondition violation: such rows should never have
// been returned by the gateway.
type MissingFieldError struct {
	Entity string
	Field  string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s row missing required field %q", e.Entity, e.Field)
}
