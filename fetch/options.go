package fetch

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adamwoolhether/streamfetch/fetch/throttle"
	"github.com/adamwoolhether/streamfetch/fetch/transport"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultReadBufferSize is sized for a small embedded network buffer.
	DefaultReadBufferSize = 4 << 10 // 4KB
	// DefaultUserAgent identifies the fetcher on the wire.
	DefaultUserAgent = "streamfetch/1.0"
)

// Option is a functional option for configuring a [Fetcher] via [Build].
type Option func(*options) error
type options struct {
	dialer         transport.Dialer
	logger         *slog.Logger
	tracer         trace.Tracer
	readBufferSize int
	handoffTimeout time.Duration
	ioTimeout      time.Duration
	userAgent      string
	throttle       *throttle.Config
}

// WithDialer replaces the [net.Dialer] used to open connections.
func WithDialer(d transport.Dialer) Option {
	return func(o *options) error {
		if d == nil {
			return errors.New("dialer must not be nil")
		}
		o.dialer = d
		return nil
	}
}

// WithLogger injects a custom [slog.Logger] into the [Fetcher].
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}

// WithTracer records one span per fetch on tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		o.tracer = tracer
		return nil
	}
}

// WithReadBufferSize sets the size of the single network read buffer. The
// first read must hold the whole response header.
func WithReadBufferSize(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return fmt.Errorf("read buffer size[%d] must be positive", n)
		}
		o.readBufferSize = n
		return nil
	}
}

// WithHandoffTimeout bounds every wait between producer and consumer.
func WithHandoffTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.New("handoff timeout must be positive")
		}
		o.handoffTimeout = d
		return nil
	}
}

// WithIOTimeout bounds each dial, handshake, write and read.
func WithIOTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.New("io timeout must be positive")
		}
		o.ioTimeout = d
		return nil
	}
}

// WithUserAgent sets the User-Agent sent with every request that does not
// carry its own.
func WithUserAgent(ua string) Option {
	return func(o *options) error {
		if ua == "" {
			return errors.New("user agent must not be empty")
		}
		o.userAgent = ua
		return nil
	}
}

// WithThrottle enables token-bucket rate limiting of connection attempts.
func WithThrottle(rps, burst int) Option {
	return func(o *options) error {
		if rps <= 0 || burst <= 0 {
			return fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, throttle.ErrMustNotBeZero)
		}
		o.throttle = &throttle.Config{RPS: rps, Burst: burst}
		return nil
	}
}

// RequestOption is a functional option for [NewRequest].
type RequestOption func(*Request) error

// WithHost overrides the Host header, which defaults to the URL host.
func WithHost(host string) RequestOption {
	return func(r *Request) error {
		if host == "" {
			return errors.New("host must not be empty")
		}
		r.Host = host
		return nil
	}
}

// WithTrustStore sets the trust anchor verifying the server certificate.
func WithTrustStore(ts transport.TrustStore) RequestOption {
	return func(r *Request) error {
		if ts == nil {
			return errors.New("trust store must not be nil")
		}
		r.Trust = ts
		return nil
	}
}

// WithTimeout bounds the whole fetch.
func WithTimeout(d time.Duration) RequestOption {
	return func(r *Request) error {
		if d < 0 {
			return errors.New("timeout must not be negative")
		}
		r.Timeout = d
		return nil
	}
}

// WithRequestUserAgent overrides the fetcher's User-Agent for one request.
func WithRequestUserAgent(ua string) RequestOption {
	return func(r *Request) error {
		r.UserAgent = ua
		return nil
	}
}
