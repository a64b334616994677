package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/adamwoolhether/streamfetch/fetch/handoff"
	"gocloud.dev/blob"
)

// Drain consumes ch until its terminal message, writing each chunk from dst
// to w. It returns the number of body bytes written.
//
// A negative terminal yields ErrFetchFailed. A write failure returns at once
// without acknowledging the chunk.
func Drain(ctx context.Context, ch *handoff.Channel, dst *handoff.Destination, w io.Writer, optFns ...Option) (int64, error) {
	opts, err := buildOptions(optFns)
	if err != nil {
		return 0, fmt.Errorf("applying option: %w", err)
	}

	return drain(ctx, ch, dst, w, opts)
}

func drain(ctx context.Context, ch *handoff.Channel, dst *handoff.Destination, w io.Writer, opts options) (int64, error) {
	if opts.progress {
		w = newProgressWriter(w, opts.total, opts.logger)
	}

	var written int64
	for {
		msg, err := ch.Receive(ctx)
		if err != nil {
			return written, fmt.Errorf("receiving chunk: %w", err)
		}

		if msg.Failed() {
			return written, &Error{Err: ErrFetchFailed, Detail: fmt.Sprintf("terminal %d after %d bytes", msg.Length, written)}
		}
		if msg.Terminal() {
			break
		}

		chunk := dst.Bytes(msg)
		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("writing chunk: %w", err)
		}
		if opts.hash != nil {
			opts.hash.Write(chunk)
		}

		if err := ch.Ready(ctx); err != nil {
			return written, fmt.Errorf("releasing destination: %w", err)
		}
	}

	if opts.hash != nil {
		if got := opts.hash.Sum(nil); !bytes.Equal(got, opts.sum) {
			return written, &Error{Err: ErrChecksumMismatch, Detail: fmt.Sprintf("expected %x, got %x", opts.sum, got)}
		}
	}

	return written, nil
}

// ToFile drains ch to a temp file in the same directory as destPath, which
// is renamed on success. On any error the temp file is removed.
func ToFile(ctx context.Context, ch *handoff.Channel, dst *handoff.Destination, destPath string, optFns ...Option) error {
	opts, err := buildOptions(optFns)
	if err != nil {
		return fmt.Errorf("applying option: %w", err)
	}
	logger := opts.logger

	file, err := os.CreateTemp(filepath.Dir(destPath), ".streamfetch-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	var successful bool
	defer func() {
		if err := file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			logger.Error("defer closing temp file", "error", err)
		}
		if !successful {
			if err := os.Remove(file.Name()); err != nil {
				logger.Error("failed to remove temp file", "error", err)
			}
		}
	}()

	n, err := drain(ctx, ch, dst, file, opts)
	if err != nil {
		return err
	}

	if err := file.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(file.Name(), destPath); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	successful = true
	logger.Info("file written", "path", destPath, "bytes", n)

	return nil
}

// ToBucket drains ch into the object key of bucket. The object is only
// committed when the fetch and the optional checksum succeed.
func ToBucket(ctx context.Context, ch *handoff.Channel, dst *handoff.Destination, bucket *blob.Bucket, key string, optFns ...Option) error {
	opts, err := buildOptions(optFns)
	if err != nil {
		return fmt.Errorf("applying option: %w", err)
	}

	// Cancelling the writer context aborts the upload on Close.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := bucket.NewWriter(wctx, key, nil)
	if err != nil {
		return fmt.Errorf("opening blob writer: %w", err)
	}

	n, err := drain(ctx, ch, dst, w, opts)
	if err != nil {
		cancel()
		if cerr := w.Close(); cerr != nil {
			opts.logger.Debug("aborted blob write", "key", key, "error", cerr)
		}
		return err
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("committing blob %s: %w", key, err)
	}

	opts.logger.Info("object written", "key", key, "bytes", n)

	return nil
}
