package transport

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadySplit   = errors.New("transport: connection already split")
	ErrConnClosed     = errors.New("transport: connection closed")
	ErrSocketRequired = errors.New("transport: socket path required")
	ErrDecodeLimit    = errors.New("transport: too many consecutive decode failures")
)

// FatalError marks a condition after which the connection cannot be used:
// the byte stream is broken or no longer aligned on frame boundaries.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("transport: fatal %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
