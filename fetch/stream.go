package fetch

import (
	"context"

	"github.com/adamwoolhether/streamfetch/fetch/handoff"
)

// Stream is an in-flight fetch started with [Fetcher.Start]. The consumer
// drains [Stream.Channel] while the producer runs on its own goroutine.
type Stream struct {
	ch     *handoff.Channel
	done   chan struct{}
	report Report
	err    error
	cancel context.CancelFunc
}

// Start runs a fetch on a new goroutine and returns immediately. It returns
// ErrFetchInProgress, without starting anything, while another fetch holds
// the fetcher.
func (f *Fetcher) Start(ctx context.Context, req Request, dst *handoff.Destination) (*Stream, error) {
	if !f.mu.TryLock() {
		return nil, ErrFetchInProgress
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		ch:     f.NewChannel(),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		defer close(s.done)
		defer cancel()
		s.report, s.err = f.fetchLocked(ctx, req, dst, s.ch)
	}()

	return s, nil
}

// Channel returns the handoff channel the consumer reads from.
func (s *Stream) Channel() *handoff.Channel { return s.ch }

// Done returns a channel that is closed once the terminal message was sent.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Err blocks until the fetch completes and returns its error.
func (s *Stream) Err() error {
	<-s.done
	return s.err
}

// Report blocks until the fetch completes and returns its summary.
func (s *Stream) Report() Report {
	<-s.done
	return s.report
}

// Cancel stops the fetch. The producer still closes the session and sends
// the terminal message.
func (s *Stream) Cancel() {
	s.cancel()
}
