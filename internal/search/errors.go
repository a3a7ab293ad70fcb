package search

import (
	"errors"
	"fmt"
)

// ErrIntegrity means a vector row has no metadata. The index is damaged; the row is
// never skipped silently.
var ErrIntegrity = errors.New("index integrity violation")

// RequestError is a problem with the caller's input. It is never retried.
type RequestError struct {
	Detail string
}

func (e *RequestError) Error() string {
	return e.Detail
}

func badRequest(format string, args ...any) error {
	return &RequestError{Detail: fmt.Sprintf(format, args...)}
}
