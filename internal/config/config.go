// Package config loads the fetch settings: where the update image lives,
// how to reach it and where to put it.
package config

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/adamwoolhether/streamfetch/fetch"
	"github.com/adamwoolhether/streamfetch/fetch/sink"
	"github.com/adamwoolhether/streamfetch/fetch/transport"
	"gopkg.in/yaml.v3"
)

// Config holds every setting of a fetch run. Durations are written as Go
// duration strings ("10s").
type Config struct {
	// Server is the update host, optionally with a port.
	Server string `yaml:"server" validate:"required"`
	Scheme string `yaml:"scheme" validate:"oneof=http https"`
	// Path is the directory on the server holding FileName.
	Path     string `yaml:"path"`
	FileName string `yaml:"file_name" validate:"required"`
	Method   string `yaml:"method" validate:"oneof=GET HEAD"`

	CAFile    string `yaml:"ca_file" validate:"omitempty,file"`
	UserAgent string `yaml:"user_agent"`

	Timeout         time.Duration `yaml:"timeout" validate:"gte=0"`
	HandoffTimeout  time.Duration `yaml:"handoff_timeout" validate:"gt=0"`
	IOTimeout       time.Duration `yaml:"io_timeout" validate:"gt=0"`
	ReadBufferSize  int           `yaml:"read_buffer_size" validate:"gt=0"`
	DestinationSize int           `yaml:"destination_size" validate:"gt=0"`

	// Output is a file path; Bucket a gocloud.dev blob URL written at Key.
	Output string `yaml:"output" validate:"required_without=Bucket"`
	Bucket string `yaml:"bucket" validate:"required_without=Output,excluded_with=Output"`
	Key    string `yaml:"key" validate:"required_with=Bucket"`

	SHA256   string    `yaml:"sha256" validate:"omitempty,hexadecimal,len=64"`
	Progress bool      `yaml:"progress"`
	Throttle *Throttle `yaml:"throttle"`
}

// Throttle limits how often connections are attempted.
type Throttle struct {
	RPS   int `yaml:"rps" validate:"gt=0"`
	Burst int `yaml:"burst" validate:"gt=0"`
}

// Default returns the settings used for anything a file or flag leaves out.
func Default() Config {
	return Config{
		Scheme:          "https",
		Method:          "GET",
		UserAgent:       fetch.DefaultUserAgent,
		HandoffTimeout:  10 * time.Second,
		IOTimeout:       transport.DefaultIOTimeout,
		ReadBufferSize:  fetch.DefaultReadBufferSize,
		DestinationSize: fetch.DefaultReadBufferSize,
	}
}

// LoadFromFile reads YAML settings from path over [Default]. Unknown keys
// are rejected. The result is not validated so that callers can apply
// overrides first.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML settings over [Default].
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	return cfg, nil
}

// Validate reports every invalid setting as [FieldErrors].
func (c Config) Validate() error {
	return check(c)
}

// URL joins scheme, server, path and file name.
func (c Config) URL() string {
	u := url.URL{
		Scheme: c.Scheme,
		Host:   c.Server,
		Path:   path.Join("/", c.Path, c.FileName),
	}
	return u.String()
}

// SetURL splits rawURL into scheme, server, path and file name.
func (c *Config) SetURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parsing url: %w", err)
	}
	if u.Host == "" || u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return fmt.Errorf("url %q must name a file on a host", rawURL)
	}

	c.Scheme = u.Scheme
	c.Server = u.Host
	c.Path = path.Dir(u.Path)
	c.FileName = path.Base(u.Path)

	return nil
}

// Request builds the fetch request described by c.
func (c Config) Request() (fetch.Request, error) {
	var opts []fetch.RequestOption
	if c.CAFile != "" {
		opts = append(opts, fetch.WithTrustStore(transport.PEMTrustStore{Path: c.CAFile}))
	}
	if c.Timeout > 0 {
		opts = append(opts, fetch.WithTimeout(c.Timeout))
	}

	return fetch.NewRequest(c.Method, c.URL(), opts...)
}

// FetchOptions returns the fetcher options described by c.
func (c Config) FetchOptions(logger *slog.Logger) []fetch.Option {
	opts := []fetch.Option{
		fetch.WithLogger(logger),
		fetch.WithHandoffTimeout(c.HandoffTimeout),
		fetch.WithIOTimeout(c.IOTimeout),
		fetch.WithReadBufferSize(c.ReadBufferSize),
	}
	if c.UserAgent != "" {
		opts = append(opts, fetch.WithUserAgent(c.UserAgent))
	}
	if c.Throttle != nil {
		opts = append(opts, fetch.WithThrottle(c.Throttle.RPS, c.Throttle.Burst))
	}

	return opts
}

// SinkOptions returns the sink options described by c. total is the
// expected body length, negative when unknown.
func (c Config) SinkOptions(logger *slog.Logger, total int64) []sink.Option {
	var opts []sink.Option
	if logger != nil {
		opts = append(opts, sink.WithLogger(logger))
	}
	if c.SHA256 != "" {
		opts = append(opts, sink.WithChecksum(sha256.New(), c.SHA256))
	}
	if c.Progress {
		opts = append(opts, sink.WithProgress(total))
	}

	return opts
}
