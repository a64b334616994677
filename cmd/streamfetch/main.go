package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/pflag"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"

	"github.com/adamwoolhether/streamfetch/fetch"
	"github.com/adamwoolhether/streamfetch/fetch/handoff"
	"github.com/adamwoolhether/streamfetch/fetch/sink"
	"github.com/adamwoolhether/streamfetch/internal/config"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(args []string) int {
	flags, err := parseFlags(args)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	level := slog.LevelInfo
	if flags.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := run(ctx, flags.cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if flags.cfg.Method == "HEAD" {
		fmt.Printf("status=%d content_length=%d\n", report.StatusCode, report.DeclaredLength)
	}

	return 0
}

// run performs one fetch described by cfg, with the sink consuming on the
// calling goroutine.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger) (fetch.Report, error) {
	req, err := cfg.Request()
	if err != nil {
		return fetch.Report{}, err
	}

	f, err := fetch.Build(cfg.FetchOptions(logger)...)
	if err != nil {
		return fetch.Report{}, err
	}

	var bucket *blob.Bucket
	if cfg.Bucket != "" && cfg.Method != "HEAD" {
		if bucket, err = blob.OpenBucket(ctx, cfg.Bucket); err != nil {
			return fetch.Report{}, fmt.Errorf("opening bucket: %w", err)
		}
		defer func() {
			if err := bucket.Close(); err != nil {
				logger.Error("closing bucket", "error", err)
			}
		}()
	}

	dst := &handoff.Destination{Buf: make([]byte, cfg.DestinationSize)}
	stream, err := f.Start(ctx, req, dst)
	if err != nil {
		return fetch.Report{}, err
	}

	sinkOpts := cfg.SinkOptions(logger, -1)

	var sinkErr error
	switch {
	case cfg.Method == "HEAD":
		_, sinkErr = sink.Drain(ctx, stream.Channel(), dst, io.Discard)
	case bucket != nil:
		sinkErr = sink.ToBucket(ctx, stream.Channel(), dst, bucket, cfg.Key, sinkOpts...)
	default:
		sinkErr = sink.ToFile(ctx, stream.Channel(), dst, cfg.Output, sinkOpts...)
	}
	if sinkErr != nil {
		stream.Cancel()
	}

	// The fetch error explains a failed terminal better than the sink does.
	if err := stream.Err(); err != nil {
		return stream.Report(), err
	}

	return stream.Report(), sinkErr
}
