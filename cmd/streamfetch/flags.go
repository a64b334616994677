package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/adamwoolhether/streamfetch/internal/config"
)

type cliFlags struct {
	cfg     config.Config
	verbose bool
}

func printUsage(fs *pflag.FlagSet) {
	_, _ = fmt.Fprint(os.Stderr, `Usage: streamfetch [options] [URL]

Streams one file over HTTP or HTTPS into a local file or a blob bucket
without holding the whole body in memory.

The source is taken from URL when given, otherwise from the server, path
and file_name settings of --config.

Examples:
  streamfetch -o fw.bin https://ota.example/images/fw.bin
  streamfetch --ca-file ca.pem --sha256 <hex> -o fw.bin https://10.0.0.7/fw.bin
  streamfetch -c device.yaml --bucket file:///var/lib/ota --key fw.bin
  streamfetch --head https://ota.example/images/fw.bin

Options:
`)
	fs.PrintDefaults()
}

func parseFlags(args []string) (cliFlags, error) {
	fs := pflag.NewFlagSet("streamfetch", pflag.ContinueOnError)
	fs.SetInterspersed(true)

	var (
		configPath, output, bucket, key, caFile, sha, userAgent string
		timeout, handoffTimeout, ioTimeout                     time.Duration
		dstSize, rps, burst                                    int
		head, progress, verbose                                bool
	)

	fs.StringVarP(&configPath, "config", "c", "", "YAML settings file")
	fs.StringVarP(&output, "output", "o", "", "write the body to `path`")
	fs.StringVar(&bucket, "bucket", "", "write the body to a blob bucket `url` (file://, mem://)")
	fs.StringVar(&key, "key", "", "object key within --bucket")
	fs.StringVar(&caFile, "ca-file", "", "PEM trust anchors instead of the system pool")
	fs.StringVar(&sha, "sha256", "", "expected hex SHA-256 of the body")
	fs.StringVar(&userAgent, "user-agent", "", "User-Agent header")
	fs.DurationVar(&timeout, "timeout", 0, "bound on the whole fetch (0 for none)")
	fs.DurationVar(&handoffTimeout, "handoff-timeout", 0, "bound on each producer/consumer wait")
	fs.DurationVar(&ioTimeout, "io-timeout", 0, "bound on each dial, write and read")
	fs.IntVar(&dstSize, "destination-size", 0, "destination buffer size in bytes")
	fs.IntVar(&rps, "throttle-rps", 0, "connection attempts per second (0 disables)")
	fs.IntVar(&burst, "throttle-burst", 1, "connection attempt burst")
	fs.BoolVar(&head, "head", false, "send HEAD and print the declared length")
	fs.BoolVar(&progress, "progress", false, "log progress once per second")
	fs.BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	fs.Usage = func() { printUsage(fs) }

	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(configPath); err != nil {
			return cliFlags{}, err
		}
	}

	switch rest := fs.Args(); len(rest) {
	case 0:
	case 1:
		if err := cfg.SetURL(rest[0]); err != nil {
			return cliFlags{}, err
		}
	default:
		return cliFlags{}, errors.New("at most one URL may be given")
	}

	if fs.Changed("output") {
		cfg.Output = output
	}
	if fs.Changed("bucket") {
		cfg.Bucket = bucket
	}
	if fs.Changed("key") {
		cfg.Key = key
	}
	if fs.Changed("ca-file") {
		cfg.CAFile = caFile
	}
	if fs.Changed("sha256") {
		cfg.SHA256 = sha
	}
	if fs.Changed("user-agent") {
		cfg.UserAgent = userAgent
	}
	if fs.Changed("timeout") {
		cfg.Timeout = timeout
	}
	if fs.Changed("handoff-timeout") {
		cfg.HandoffTimeout = handoffTimeout
	}
	if fs.Changed("io-timeout") {
		cfg.IOTimeout = ioTimeout
	}
	if fs.Changed("destination-size") {
		cfg.DestinationSize = dstSize
	}
	if fs.Changed("throttle-rps") {
		cfg.Throttle = &config.Throttle{RPS: rps, Burst: burst}
	}
	if progress {
		cfg.Progress = true
	}
	if head {
		cfg.Method = "HEAD"
		// Nothing is written for HEAD; satisfy the destination rule.
		if cfg.Output == "" && cfg.Bucket == "" {
			cfg.Output = os.DevNull
		}
	}

	if err := cfg.Validate(); err != nil {
		return cliFlags{}, fmt.Errorf("invalid settings: %w", err)
	}

	return cliFlags{cfg: cfg, verbose: verbose}, nil
}
