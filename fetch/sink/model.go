package sink

import (
	"errors"
	"fmt"
)

var (
	// ErrFetchFailed is returned when the producer ended with an error terminal.
	ErrFetchFailed      = errors.New("fetch ended with error")
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

type Error struct {
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}
