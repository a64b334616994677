// Package transport owns the lifetime of a single TLS-over-TCP (or plain TCP)
// connection used by one fetch: open, write, read, close and error
// introspection.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// maxWriteRetries bounds how often WriteAll retries a transient write fault.
const maxWriteRetries = 8

// DefaultIOTimeout bounds a single dial, write or read when Target.IOTimeout
// is zero.
const DefaultIOTimeout = 10 * time.Second

// Dialer opens the raw connection. [net.Dialer] satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Target describes the remote end of a session.
type Target struct {
	// Address is the host:port to dial.
	Address string
	// ServerName is verified against the server certificate.
	ServerName string
	// TLS selects TLS over the dialed connection.
	TLS bool
	// Trust supplies the root certificates. Nil means the system pool.
	Trust TrustStore
	// IOTimeout bounds each dial, handshake, write and read.
	IOTimeout time.Duration
}

// Session is one connection lifetime. It is owned by a single goroutine and
// is not safe for concurrent use.
type Session struct {
	target Target
	dialer Dialer

	conn    net.Conn
	state   State
	lastErr error
	peerEOF bool

	closeOnce sync.Once
	closeErr  error
}

// New returns an unconnected session for target. A nil dialer uses a
// [net.Dialer].
func New(target Target, dialer Dialer) *Session {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	if target.IOTimeout <= 0 {
		target.IOTimeout = DefaultIOTimeout
	}

	return &Session{
		target: target,
		dialer: dialer,
		state:  StateUnconnected,
	}
}

// State returns the current state of the session.
func (s *Session) State() State { return s.state }

// LastError returns the error that moved the session to StateFailed, if any.
func (s *Session) LastError() error { return s.lastErr }

// Open dials the target and, for TLS targets, completes the handshake. On
// failure the returned *ConnectError carries a diagnostic code and the session
// cannot be used again.
func (s *Session) Open(ctx context.Context) error {
	if s.state != StateUnconnected {
		return fmt.Errorf("open: %w: session is %s", ErrNotConnected, s.state)
	}

	ctx, cancel := context.WithTimeout(ctx, s.target.IOTimeout)
	defer cancel()

	conn, err := s.dialer.DialContext(ctx, "tcp", s.target.Address)
	if err != nil {
		return s.fail(&ConnectError{Address: s.target.Address, Code: classify(err, CodeDial), Err: err})
	}

	if s.target.TLS {
		cfg, err := s.tlsConfig()
		if err != nil {
			conn.Close()
			return s.fail(&ConnectError{Address: s.target.Address, Code: CodeTrustStore, Err: err})
		}

		tlsConn := tls.Client(conn, cfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return s.fail(&ConnectError{Address: s.target.Address, Code: classify(err, CodeHandshake), Err: err})
		}
		conn = tlsConn
	}

	s.conn = conn
	s.state = StateConnected

	return nil
}

// WriteAll writes p in full. On a plain TCP session a deadline expiry is
// retried a bounded number of times. On a TLS session every write fault is
// fatal, since crypto/tls refuses further writes after a timeout. Any other
// fault fails the session.
func (s *Session) WriteAll(p []byte) error {
	if s.state != StateConnected {
		return fmt.Errorf("write: %w: session is %s", ErrNotConnected, s.state)
	}

	var retries int
	for len(p) > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.target.IOTimeout)); err != nil {
			return s.fail(&IOError{Op: "write", Err: err})
		}

		n, err := s.conn.Write(p)
		p = p[n:]
		if err == nil {
			continue
		}

		if s.retryable(err) && retries < maxWriteRetries {
			retries++
			continue
		}

		return s.fail(&IOError{Op: "write", Err: err})
	}

	return nil
}

// ReadInto performs one read attempt into buf.
//
// A clean close by the peer returns [ErrPeerClosed] without failing the
// session. A deadline expiry is not retried: it returns an *IOError wrapping
// [ErrWouldBlock] and fails the session, as does any other fault. Bytes that
// arrive together with end-of-file are returned first and the close is
// reported on the following call.
func (s *Session) ReadInto(buf []byte) (int, error) {
	if s.state != StateConnected {
		return 0, fmt.Errorf("read: %w: session is %s", ErrNotConnected, s.state)
	}
	if s.peerEOF {
		return 0, ErrPeerClosed
	}

	if err := s.conn.SetReadDeadline(time.Now().Add(s.target.IOTimeout)); err != nil {
		return 0, s.fail(&IOError{Op: "read", Err: err})
	}

	n, err := s.conn.Read(buf)
	switch {
	case err == nil:
		return n, nil

	case errors.Is(err, io.EOF):
		s.peerEOF = true
		if n > 0 {
			return n, nil
		}
		return 0, ErrPeerClosed

	case isTransient(err):
		return n, s.fail(&IOError{Op: "read", Err: fmt.Errorf("%w: %w", ErrWouldBlock, err)})

	default:
		return n, s.fail(&IOError{Op: "read", Err: err})
	}
}

// Close releases the connection. It is safe to call more than once and on a
// session that never connected; only the first call has an effect.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.conn != nil {
			s.closeErr = s.conn.Close()
		}
		if s.state != StateFailed {
			s.state = StateClosed
		}
	})

	return s.closeErr
}

func (s *Session) tlsConfig() (*tls.Config, error) {
	trust := s.target.Trust
	if trust == nil {
		trust = SystemTrustStore{}
	}

	pool, err := trust.CertPool()
	if err != nil {
		return nil, fmt.Errorf("loading trust store: %w", err)
	}

	return &tls.Config{
		RootCAs:    pool,
		ServerName: s.target.ServerName,
		MinVersion: tls.VersionTLS12,
	}, nil
}

func (s *Session) fail(err error) error {
	s.state = StateFailed
	s.lastErr = err

	return err
}

func (s *Session) retryable(err error) bool {
	return !s.target.TLS && isTransient(err)
}

func isTransient(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
