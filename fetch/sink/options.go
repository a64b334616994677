package sink

import (
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"log/slog"
)

// Option configures a sink.
//
// WithChecksum validates the received body against a hex-encoded digest of
// either case; h is a fresh hash.Hash such as sha256.New().
//
// WithProgress logs progress at most once per second. total is the expected
// body length, or a negative value when unknown.
type Option func(*options) error

type options struct {
	hash     hash.Hash
	sum      []byte
	progress bool
	total    int64
	logger   *slog.Logger
}

func WithChecksum(h hash.Hash, expected string) Option {
	return func(opts *options) error {
		if h == nil {
			return errors.New("hash must not be nil")
		}

		if expected == "" {
			return errors.New("expected checksum must not be empty")
		}

		sum, err := hex.DecodeString(expected)
		if err != nil {
			return fmt.Errorf("decoding expected checksum: %w", err)
		}

		opts.hash = h
		opts.sum = sum
		return nil
	}
}

func WithProgress(total int64) Option {
	return func(opts *options) error {
		opts.progress = true
		opts.total = total
		return nil
	}
}

// WithLogger sets the logger used for progress and cleanup failures.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		opts.logger = logger
		return nil
	}
}

func buildOptions(optFns []Option) (options, error) {
	opts := options{logger: slog.Default()}
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return options{}, err
		}
	}

	return opts, nil
}
