package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/adamwoolhether/streamfetch/fetch/framer"
	"github.com/adamwoolhether/streamfetch/fetch/handoff"
	"github.com/adamwoolhether/streamfetch/fetch/throttle"
	"github.com/adamwoolhether/streamfetch/fetch/transport"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ErrShortBody is wrapped by a read failure when the peer closes before the
// declared Content-Length was delivered.
var ErrShortBody = errors.New("connection closed before declared length")

// Fetcher is the producer side of a streaming fetch. It owns one read buffer
// that is reused, not reallocated, by every fetch, so it runs one fetch at a
// time.
type Fetcher struct {
	mu sync.Mutex

	dialer         transport.Dialer
	logger         *slog.Logger
	tracer         trace.Tracer
	readBuf        []byte
	handoffTimeout time.Duration
	ioTimeout      time.Duration
	userAgent      string
}

// Build creates a Fetcher. Unless overridden, it dials with a [net.Dialer],
// logs to slog.Default() and traces with a no-op tracer.
func Build(optFns ...Option) (*Fetcher, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying fetcher option: %w", err)
		}
	}

	f := &Fetcher{
		dialer:         &net.Dialer{},
		logger:         slog.Default(),
		tracer:         noop.NewTracerProvider().Tracer("no-op tracer"),
		readBuf:        make([]byte, DefaultReadBufferSize),
		handoffTimeout: handoff.DefaultTimeout,
		ioTimeout:      transport.DefaultIOTimeout,
		userAgent:      DefaultUserAgent,
	}

	if opts.dialer != nil {
		f.dialer = opts.dialer
	}
	if opts.logger != nil {
		f.logger = opts.logger
	}
	if opts.tracer != nil {
		f.tracer = opts.tracer
	}
	if opts.readBufferSize > 0 {
		f.readBuf = make([]byte, opts.readBufferSize)
	}
	if opts.handoffTimeout > 0 {
		f.handoffTimeout = opts.handoffTimeout
	}
	if opts.ioTimeout > 0 {
		f.ioTimeout = opts.ioTimeout
	}
	if opts.userAgent != "" {
		f.userAgent = opts.userAgent
	}

	if opts.throttle != nil {
		d, err := throttle.NewDialer(opts.throttle.RPS, opts.throttle.Burst, func() *slog.Logger { return f.logger }, f.dialer)
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
		f.dialer = d
	}

	return f, nil
}

// NewChannel returns a handoff channel using the fetcher's handoff timeout.
func (f *Fetcher) NewChannel() *handoff.Channel {
	return handoff.New(f.handoffTimeout)
}

// Fetch runs one fetch on the calling goroutine, delivering the body into dst
// through ch. A consumer must be draining ch on another goroutine.
//
// Apart from ErrFetchInProgress and a nil channel, every return is preceded
// by exactly one terminal message on ch. The returned error, when non-nil, is
// an *Error.
func (f *Fetcher) Fetch(ctx context.Context, req Request, dst *handoff.Destination, ch *handoff.Channel) (Report, error) {
	if ch == nil {
		return Report{State: StateFailed}, fmt.Errorf("%w: nil handoff channel", ErrInvalidRequest)
	}
	if !f.mu.TryLock() {
		return Report{State: StateFailed, Err: ErrFetchInProgress}, ErrFetchInProgress
	}

	return f.fetchLocked(ctx, req, dst, ch)
}

// fetchLocked expects f.mu to be held and releases it.
func (f *Fetcher) fetchLocked(ctx context.Context, req Request, dst *handoff.Destination, ch *handoff.Channel) (Report, error) {
	defer f.mu.Unlock()

	ch.Reset()
	clear(f.readBuf)

	r := &run{
		f:     f,
		req:   req,
		dst:   dst,
		ch:    ch,
		frame: framer.NewState(),
		report: Report{
			ID:             uuid.New(),
			DeclaredLength: framer.Unknown,
		},
		start: time.Now(),
	}
	r.log = f.logger.With("fetch_id", r.report.ID.String(), "host", req.Host)

	ctx, span := f.tracer.Start(ctx, "streamfetch.fetch", trace.WithAttributes(
		attribute.String("fetch.id", r.report.ID.String()),
		attribute.String("http.request.method", req.Method),
		attribute.String("server.address", req.Host),
	))
	defer span.End()

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	report := r.finish(ctx, r.execute(ctx))

	span.SetAttributes(
		attribute.Int64("fetch.bytes", report.TotalDelivered),
		attribute.Int("fetch.chunks", report.Chunks),
		attribute.Int("http.response.status_code", report.StatusCode),
	)
	if report.Err != nil {
		span.RecordError(report.Err)
		span.SetStatus(codes.Error, report.Err.Error())
		return report, report.Err
	}

	return report, nil
}

// run is the state of a single fetch.
type run struct {
	f   *Fetcher
	req Request
	dst *handoff.Destination
	ch  *handoff.Channel
	log *slog.Logger

	sess   *transport.Session
	state  State
	frame  framer.State
	report Report
	start  time.Time
}

func (r *run) execute(ctx context.Context) error {
	if err := r.req.Validate(); err != nil {
		return r.fail(ctx, KindInvalid, err)
	}
	if r.dst.Cap() == 0 {
		return r.fail(ctx, KindInvalid, errors.New("destination has no capacity"))
	}

	r.enter(StateConnecting)
	target := r.req.target(r.f.ioTimeout)
	r.sess = transport.New(target, r.f.dialer)
	if err := r.sess.Open(ctx); err != nil {
		return r.fail(ctx, KindConnect, err)
	}
	r.log.Info("connection established", "address", target.Address, "tls", target.TLS)

	r.enter(StateSending)
	if err := r.sess.WriteAll(r.req.wire(r.f.userAgent)); err != nil {
		return r.fail(ctx, KindWrite, err)
	}

	r.enter(StateReceivingHeader)
	if err := r.receiveHeader(ctx); err != nil {
		return err
	}
	if r.req.head() || r.frame.Complete() {
		return nil
	}

	r.enter(StateReceivingBody)
	return r.receiveBody(ctx)
}

// receiveHeader reads and frames the first block, then hands off the body
// fragment it carries.
func (r *run) receiveHeader(ctx context.Context) error {
	n, err := r.sess.ReadInto(r.f.readBuf)
	switch {
	case errors.Is(err, transport.ErrPeerClosed):
		return r.fail(ctx, KindFraming, fmt.Errorf("before response header: %w", err))
	case err != nil:
		return r.fail(ctx, KindRead, err)
	}

	block := r.f.readBuf[:n]
	frame, err := framer.Parse(block)
	r.report.StatusCode = frame.StatusCode
	switch {
	case errors.Is(err, framer.ErrNotFound):
		r.log.Error("file not found", "url", r.req.URL.String())
		return r.fail(ctx, KindNotFound, err)
	case err != nil:
		return r.fail(ctx, KindFraming, err)
	}

	r.frame.Start(frame)
	r.report.DeclaredLength = frame.DeclaredLength
	if frame.DeclaredLength >= 0 {
		r.log.Info("start receiving", "status", frame.StatusCode, "content_length", frame.DeclaredLength)
	} else {
		r.log.Warn("start receiving without content length", "status", frame.StatusCode)
	}

	if r.req.head() {
		return nil
	}

	return r.deliver(ctx, r.frame.Clip(frame.Body(block)))
}

// receiveBody delivers one chunk per read until the peer closes or the
// declared length has been handed off.
func (r *run) receiveBody(ctx context.Context) error {
	limit := min(len(r.f.readBuf), r.dst.Cap())

	for !r.frame.Complete() {
		if err := ctx.Err(); err != nil {
			return r.fail(ctx, KindCanceled, err)
		}

		n, err := r.sess.ReadInto(r.f.readBuf[:limit])
		switch {
		case errors.Is(err, transport.ErrPeerClosed):
			if r.frame.DeclaredLength >= 0 && r.frame.TotalDelivered < r.frame.DeclaredLength {
				return r.fail(ctx, KindRead, fmt.Errorf("%w: got %d of %d bytes", ErrShortBody, r.frame.TotalDelivered, r.frame.DeclaredLength))
			}
			r.log.Debug("connection closed by peer")
			return nil
		case err != nil:
			return r.fail(ctx, KindRead, err)
		}

		if err := r.deliver(ctx, r.frame.Clip(r.f.readBuf[:n])); err != nil {
			return err
		}
	}

	r.log.Debug("declared length reached", "bytes", r.frame.TotalDelivered)

	return nil
}

// deliver hands p to the consumer in pieces no larger than the destination,
// waiting for the consumer to release the destination before each one.
func (r *run) deliver(ctx context.Context, p []byte) error {
	for len(p) > 0 {
		if err := r.ch.Acquire(ctx); err != nil {
			r.log.Error("consumer not ready", "error", err)
			return r.fail(ctx, KindHandoffTimeout, err)
		}

		n := r.dst.Fill(p)
		if err := r.ch.Publish(ctx, handoff.ChunkMessage{Length: n}); err != nil {
			return r.fail(ctx, KindHandoffTimeout, err)
		}

		r.frame.Add(n)
		r.report.Chunks++
		r.log.Debug("chunk delivered", "chunk", r.report.Chunks, "bytes", n, "total", r.frame.TotalDelivered)

		p = p[n:]
	}

	return nil
}

// finish closes the session and sends the terminal message, in that order.
func (r *run) finish(ctx context.Context, err error) Report {
	if r.sess != nil {
		if cerr := r.sess.Close(); cerr != nil {
			r.log.Error("closing session", "error", cerr)
		}
	}

	msg := handoff.EndOfStream
	if err != nil {
		msg = handoff.EndWithError
	}

	sent, ferr := r.ch.Finish(ctx, msg)
	if ferr != nil && err == nil {
		err = r.fail(ctx, KindHandoffTimeout, ferr)
	}

	r.report.Terminal = sent.Length
	r.report.TotalDelivered = r.frame.TotalDelivered
	r.report.Duration = time.Since(r.start)
	r.report.Err = err

	if err != nil {
		r.enter(StateFailed)
		r.report.State = StateFailed
		r.log.Error("fetch failed", "failed_in", r.report.FailedIn, "chunks", r.report.Chunks, "bytes", r.report.TotalDelivered, "error", err)
		return r.report
	}

	r.enter(StateDone)
	r.report.State = StateDone
	r.log.Info("fetch complete", "chunks", r.report.Chunks, "bytes", r.report.TotalDelivered, "since", r.report.Duration.String())

	return r.report
}

func (r *run) enter(s State) {
	r.log.Debug("state transition", "from", r.state, "to", s)
	r.state = s
}

// fail records the failing state and builds the fetch error. A cancelled
// context takes precedence over transport and handoff faults.
func (r *run) fail(ctx context.Context, kind Kind, err error) error {
	switch kind {
	case KindConnect, KindWrite, KindRead, KindHandoffTimeout:
		if ctx.Err() != nil {
			kind = KindCanceled
		}
	}

	r.report.FailedIn = r.state

	return &Error{Kind: kind, State: r.state, Err: err}
}
