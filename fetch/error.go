package fetch

import (
	"errors"
	"fmt"
)

var (
	// ErrConnect reports a transport or TLS handshake failure.
	ErrConnect = errors.New("connect failed")
	// ErrWrite reports a fatal fault while sending the request.
	ErrWrite = errors.New("write failed")
	// ErrRead reports a fatal fault while reading, including a read that
	// would have blocked.
	ErrRead = errors.New("read failed")
	// ErrNotFound reports a 404 response.
	ErrNotFound = errors.New("not found")
	// ErrFraming reports a first block without a recognisable header.
	ErrFraming = errors.New("framing failed")
	// ErrHandoffTimeout reports a consumer that did not keep up.
	ErrHandoffTimeout = errors.New("handoff timed out")
	// ErrCanceled reports a fetch stopped by its context.
	ErrCanceled = errors.New("fetch canceled")
	// ErrInvalidRequest reports a request that failed validation.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrFetchInProgress is returned when a Fetcher is already busy. No
	// terminal message is sent in that case.
	ErrFetchInProgress = errors.New("fetch already in progress")
)

// Kind classifies a fetch failure.
type Kind int

const (
	KindConnect Kind = iota + 1
	KindWrite
	KindRead
	KindNotFound
	KindFraming
	KindHandoffTimeout
	KindCanceled
	KindInvalid
)

var kindSentinels = map[Kind]error{
	KindConnect:        ErrConnect,
	KindWrite:          ErrWrite,
	KindRead:           ErrRead,
	KindNotFound:       ErrNotFound,
	KindFraming:        ErrFraming,
	KindHandoffTimeout: ErrHandoffTimeout,
	KindCanceled:       ErrCanceled,
	KindInvalid:        ErrInvalidRequest,
}

func (k Kind) String() string {
	if err, ok := kindSentinels[k]; ok {
		return err.Error()
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the terminal error of a failed fetch. errors.Is matches both the
// Kind sentinel (ErrNotFound, ErrRead, ...) and the wrapped cause.
type Error struct {
	Kind  Kind
	State State
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v while %s: %v", e.Kind, e.State, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}
