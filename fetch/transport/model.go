package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
)

// State is the lifecycle position of a [Session].
type State int

const (
	StateUnconnected State = iota
	StateConnected
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrPeerClosed reports that the remote end closed the connection cleanly.
	ErrPeerClosed = errors.New("connection closed by peer")
	// ErrWouldBlock marks a read that hit its deadline.
	ErrWouldBlock = errors.New("operation would block")
	// ErrNotConnected is returned for I/O on a session that is not connected.
	ErrNotConnected = errors.New("session not connected")
)

// Diagnostic codes carried by [ConnectError].
const (
	CodeDial        = "dial"
	CodeDialTimeout = "dial-timeout"
	CodeCanceled    = "canceled"
	CodeHandshake   = "handshake"
	CodeRecord      = "tls-record-header"
	CodeUnknownCA   = "x509-unknown-authority"
	CodeHostname    = "x509-hostname"
	CodeInvalidCert = "x509-invalid"
	CodeTrustStore  = "trust-store"
)

// ConnectError reports a failure to establish the connection.
type ConnectError struct {
	Address string
	Code    string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %s: %v", e.Address, e.Code, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// IOError reports a fatal write or read fault.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// classify maps a dial or handshake error to a diagnostic code, falling back
// to fallback when nothing more specific is known.
func classify(err error, fallback string) string {
	var (
		alert    tls.AlertError
		record   tls.RecordHeaderError
		unknown  x509.UnknownAuthorityError
		hostname x509.HostnameError
		invalid  x509.CertificateInvalidError
	)

	switch {
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	case isTransient(err) || errors.Is(err, context.DeadlineExceeded):
		return CodeDialTimeout
	case errors.As(err, &unknown):
		return CodeUnknownCA
	case errors.As(err, &hostname):
		return CodeHostname
	case errors.As(err, &invalid):
		return CodeInvalidCert
	case errors.As(err, &alert):
		return fmt.Sprintf("tls-alert-0x%02x", uint8(alert))
	case errors.As(err, &record):
		return CodeRecord
	}

	return fallback
}
