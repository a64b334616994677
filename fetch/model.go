package fetch

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is a position in the fetch state machine.
type State int

const (
	StateInit State = iota
	StateConnecting
	StateSending
	StateReceivingHeader
	StateReceivingBody
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateConnecting:
		return "connecting"
	case StateSending:
		return "sending"
	case StateReceivingHeader:
		return "receiving-header"
	case StateReceivingBody:
		return "receiving-body"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Report summarises one fetch once its terminal message has been sent.
type Report struct {
	ID uuid.UUID
	// State is StateDone or StateFailed.
	State State
	// FailedIn is the state the fetch was in when it failed.
	FailedIn State
	// Terminal is the length of the terminal message sent: 0 or negative.
	Terminal int
	// StatusCode is the response status code, zero when none was read.
	StatusCode int
	// DeclaredLength is the Content-Length value, or -1 when absent.
	DeclaredLength int64
	// TotalDelivered counts body bytes handed to the consumer.
	TotalDelivered int64
	// Chunks counts data messages handed to the consumer.
	Chunks   int
	Duration time.Duration
	Err      error
}
