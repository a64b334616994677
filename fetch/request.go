package fetch

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adamwoolhether/streamfetch/fetch/transport"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Request is the immutable description of one fetch.
type Request struct {
	URL    *url.URL `validate:"required"`
	Host   string   `validate:"required"`
	Method string   `validate:"oneof=GET HEAD"`
	// Trust verifies the server for https URLs. Nil uses the system pool.
	Trust transport.TrustStore
	// Timeout bounds the whole fetch. Zero means no overall bound beyond the
	// per-operation timeouts.
	Timeout time.Duration `validate:"gte=0"`
	// UserAgent overrides the fetcher default when set.
	UserAgent string
}

// NewRequest builds a Request for method and rawURL. The Host header defaults
// to the URL host.
func NewRequest(method, rawURL string, opts ...RequestOption) (Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Request{}, fmt.Errorf("parsing url: %w", err)
	}

	if method == "" {
		method = http.MethodGet
	}

	req := Request{
		URL:    u,
		Host:   u.Host,
		Method: strings.ToUpper(method),
	}

	for _, opt := range opts {
		if err := opt(&req); err != nil {
			return Request{}, fmt.Errorf("applying request option: %w", err)
		}
	}

	if err := req.Validate(); err != nil {
		return Request{}, err
	}

	return req, nil
}

// Validate checks the request is something the fetcher can send.
func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}

		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(fields, ", "))
	}

	switch r.URL.Scheme {
	case "https", "http":
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRequest, r.URL.Scheme)
	}

	if r.URL.Hostname() == "" {
		return fmt.Errorf("%w: url has no host", ErrInvalidRequest)
	}

	return nil
}

// wire renders the literal request bytes.
func (r Request) wire(defaultUA string) []byte {
	ua := r.UserAgent
	if ua == "" {
		ua = defaultUA
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	return fmt.Appendf(nil, "%s %s HTTP/1.1\r\nHost: %s\r\nUser-Agent: %s\r\n\r\n", method, r.URL.RequestURI(), r.Host, ua)
}

// target derives the transport target from the URL.
func (r Request) target(ioTimeout time.Duration) transport.Target {
	useTLS := r.URL.Scheme == "https"

	port := r.URL.Port()
	if port == "" {
		port = "80"
		if useTLS {
			port = "443"
		}
	}

	return transport.Target{
		Address:    net.JoinHostPort(r.URL.Hostname(), port),
		ServerName: r.URL.Hostname(),
		TLS:        useTLS,
		Trust:      r.Trust,
		IOTimeout:  ioTimeout,
	}
}

func (r Request) head() bool {
	return r.Method == http.MethodHead
}
