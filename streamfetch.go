// Package streamfetch exposes the fetcher builder and one-call helpers that
// stream a remote file into an io.Writer.
package streamfetch

import (
	"context"
	"io"
	"net/http"

	"github.com/adamwoolhether/streamfetch/fetch"
	"github.com/adamwoolhether/streamfetch/fetch/handoff"
	"github.com/adamwoolhether/streamfetch/fetch/sink"
)

// New instantiates a new *fetch.Fetcher with the provided options.
// If not specified, a net.Dialer, slog.Default() and a 4KB read buffer are
// used.
func New(opts ...fetch.Option) (*fetch.Fetcher, error) {
	return fetch.Build(opts...)
}

// Get streams the body of rawURL into w using a fresh fetcher.
func Get(ctx context.Context, rawURL string, w io.Writer, opts ...fetch.Option) (fetch.Report, error) {
	f, err := New(opts...)
	if err != nil {
		return fetch.Report{}, err
	}

	req, err := fetch.NewRequest(http.MethodGet, rawURL)
	if err != nil {
		return fetch.Report{}, err
	}

	return Do(ctx, f, req, w)
}

// Do runs req on f and writes the body to w as it arrives. The fetch error,
// when there is one, takes precedence over a write error.
func Do(ctx context.Context, f *fetch.Fetcher, req fetch.Request, w io.Writer, opts ...sink.Option) (fetch.Report, error) {
	dst := &handoff.Destination{Buf: make([]byte, fetch.DefaultReadBufferSize)}

	stream, err := f.Start(ctx, req, dst)
	if err != nil {
		return fetch.Report{}, err
	}

	_, sinkErr := sink.Drain(ctx, stream.Channel(), dst, w, opts...)
	if sinkErr != nil {
		stream.Cancel()
	}

	if err := stream.Err(); err != nil {
		return stream.Report(), err
	}

	return stream.Report(), sinkErr
}
