package sink_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adamwoolhether/streamfetch/fetch/handoff"
	"github.com/adamwoolhether/streamfetch/fetch/sink"
	"gocloud.dev/blob/memblob"
)

var discard = slog.New(slog.DiscardHandler)

// produce plays the producer side of ch: it hands off chunks through dst
// and ends with terminal.
func produce(ch *handoff.Channel, dst *handoff.Destination, chunks []string, terminal handoff.ChunkMessage) <-chan error {
	errc := make(chan error, 1)
	go func() {
		ctx := context.Background()
		for _, c := range chunks {
			if err := ch.Acquire(ctx); err != nil {
				ch.Finish(ctx, handoff.EndWithError)
				errc <- err
				return
			}
			n := dst.Fill([]byte(c))
			if err := ch.Publish(ctx, handoff.ChunkMessage{Length: n}); err != nil {
				ch.Finish(ctx, handoff.EndWithError)
				errc <- err
				return
			}
		}
		_, err := ch.Finish(ctx, terminal)
		errc <- err
	}()

	return errc
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestDrain(t *testing.T) {
	chunks := []string{"firmware ", "image ", "v2"}
	body := strings.Join(chunks, "")

	testCases := []struct {
		name     string
		terminal handoff.ChunkMessage
		opts     []sink.Option
		expErr   error
	}{
		{
			name:     "success",
			terminal: handoff.EndOfStream,
		},
		{
			name:     "error terminal",
			terminal: handoff.EndWithError,
			expErr:   sink.ErrFetchFailed,
		},
		{
			name:     "checksum match",
			terminal: handoff.EndOfStream,
			opts:     []sink.Option{sink.WithChecksum(sha256.New(), digest(body))},
		},
		{
			name:     "checksum match uppercase",
			terminal: handoff.EndOfStream,
			opts:     []sink.Option{sink.WithChecksum(sha256.New(), strings.ToUpper(digest(body)))},
		},
		{
			name:     "checksum mismatch",
			terminal: handoff.EndOfStream,
			opts:     []sink.Option{sink.WithChecksum(sha256.New(), digest("something else"))},
			expErr:   sink.ErrChecksumMismatch,
		},
		{
			name:     "checksum mismatch on truncated digest",
			terminal: handoff.EndOfStream,
			opts:     []sink.Option{sink.WithChecksum(sha256.New(), digest(body)[:32])},
			expErr:   sink.ErrChecksumMismatch,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ch := handoff.New(time.Second)
			dst := &handoff.Destination{Buf: make([]byte, 16)}
			errc := produce(ch, dst, chunks, tc.terminal)

			var out bytes.Buffer
			n, err := sink.Drain(t.Context(), ch, dst, &out, append(tc.opts, sink.WithLogger(discard))...)
			if !errors.Is(err, tc.expErr) {
				t.Fatalf("exp err %v, got %v", tc.expErr, err)
			}
			if perr := <-errc; perr != nil {
				t.Errorf("producer: %v", perr)
			}

			if out.String() != body || n != int64(len(body)) {
				t.Errorf("exp %q (%d), got %q (%d)", body, len(body), out.String(), n)
			}
		})
	}
}

func TestDrain_InvalidChecksumOption(t *testing.T) {
	testCases := []struct {
		name     string
		expected string
	}{
		{name: "not hex", expected: "zz"},
		{name: "odd length", expected: "abc"},
		{name: "empty", expected: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ch := handoff.New(50 * time.Millisecond)
			dst := &handoff.Destination{Buf: make([]byte, 16)}

			n, err := sink.Drain(t.Context(), ch, dst, &bytes.Buffer{}, sink.WithChecksum(sha256.New(), tc.expected))
			if err == nil {
				t.Fatal("exp option error")
			}
			if errors.Is(err, sink.ErrChecksumMismatch) {
				t.Errorf("exp option error, got mismatch: %v", err)
			}
			if n != 0 {
				t.Errorf("exp nothing written, got %d", n)
			}
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestDrain_WriteFailureStallsProducer(t *testing.T) {
	ch := handoff.New(50 * time.Millisecond)
	dst := &handoff.Destination{Buf: make([]byte, 16)}
	errc := produce(ch, dst, []string{"one", "two"}, handoff.EndOfStream)

	if _, err := sink.Drain(t.Context(), ch, dst, failingWriter{}); err == nil {
		t.Fatal("exp write error")
	}

	if err := <-errc; !errors.Is(err, handoff.ErrTimeout) {
		t.Errorf("exp producer timeout, got %v", err)
	}
}

func TestDrain_Progress(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	ch := handoff.New(time.Second)
	dst := &handoff.Destination{Buf: make([]byte, 16)}
	errc := produce(ch, dst, []string{"abcd", "efgh"}, handoff.EndOfStream)

	if _, err := sink.Drain(t.Context(), ch, dst, &bytes.Buffer{}, sink.WithProgress(8), sink.WithLogger(logger)); err != nil {
		t.Fatalf("drain: %v", err)
	}
	<-errc

	if out := logs.String(); !strings.Contains(out, "receive complete") || !strings.Contains(out, "progress=100.0%") {
		t.Errorf("exp completion log, got %q", out)
	}
}

func TestToFile(t *testing.T) {
	testCases := []struct {
		name     string
		terminal handoff.ChunkMessage
		opts     []sink.Option
		expErr   error
	}{
		{
			name:     "success renames into place",
			terminal: handoff.EndOfStream,
		},
		{
			name:     "failed fetch leaves nothing behind",
			terminal: handoff.EndWithError,
			expErr:   sink.ErrFetchFailed,
		},
		{
			name:     "checksum mismatch leaves nothing behind",
			terminal: handoff.EndOfStream,
			opts:     []sink.Option{sink.WithChecksum(sha256.New(), digest("nope"))},
			expErr:   sink.ErrChecksumMismatch,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			dest := filepath.Join(dir, "fw.bin")

			ch := handoff.New(time.Second)
			dst := &handoff.Destination{Buf: make([]byte, 8)}
			errc := produce(ch, dst, []string{"01234567", "89"}, tc.terminal)

			err := sink.ToFile(t.Context(), ch, dst, dest, append(tc.opts, sink.WithLogger(discard))...)
			<-errc
			if !errors.Is(err, tc.expErr) {
				t.Fatalf("exp err %v, got %v", tc.expErr, err)
			}

			entries, rerr := os.ReadDir(dir)
			if rerr != nil {
				t.Fatal(rerr)
			}

			if tc.expErr != nil {
				if len(entries) != 0 {
					t.Errorf("exp empty dir, found %d entries", len(entries))
				}
				return
			}

			if len(entries) != 1 {
				t.Errorf("exp only the destination file, found %d entries", len(entries))
			}
			got, rerr := os.ReadFile(dest)
			if rerr != nil {
				t.Fatal(rerr)
			}
			if string(got) != "0123456789" {
				t.Errorf("exp %q, got %q", "0123456789", got)
			}
		})
	}
}

func TestToBucket(t *testing.T) {
	testCases := []struct {
		name     string
		terminal handoff.ChunkMessage
		expErr   error
	}{
		{
			name:     "success commits object",
			terminal: handoff.EndOfStream,
		},
		{
			name:     "failed fetch does not commit",
			terminal: handoff.EndWithError,
			expErr:   sink.ErrFetchFailed,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			bucket := memblob.OpenBucket(nil)
			defer bucket.Close()

			ch := handoff.New(time.Second)
			dst := &handoff.Destination{Buf: make([]byte, 8)}
			errc := produce(ch, dst, []string{"over", "the", "air"}, tc.terminal)

			err := sink.ToBucket(t.Context(), ch, dst, bucket, "images/fw.bin", sink.WithLogger(discard))
			<-errc
			if !errors.Is(err, tc.expErr) {
				t.Fatalf("exp err %v, got %v", tc.expErr, err)
			}

			exists, xerr := bucket.Exists(t.Context(), "images/fw.bin")
			if xerr != nil {
				t.Fatal(xerr)
			}
			if exists != (tc.expErr == nil) {
				t.Fatalf("exp exists=%v, got %v", tc.expErr == nil, exists)
			}
			if !exists {
				return
			}

			got, rerr := bucket.ReadAll(t.Context(), "images/fw.bin")
			if rerr != nil {
				t.Fatal(rerr)
			}
			if string(got) != "overtheair" {
				t.Errorf("exp %q, got %q", "overtheair", got)
			}
		})
	}
}
