package gateway

import (
	"errors"
	"fmt"
)

// ErrNotFound covers 404s and empty single-row responses: the target row is
// gone or never existed.
var ErrNotFound = errors.New("row not found")

// StatusError is any non-2xx gateway response that is not a plain 404.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway responded %d: %s", e.Code, e.Body)
}
