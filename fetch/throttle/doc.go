// Package throttle provides a [transport.Dialer] that rate-limits connection
// attempts using a token-bucket algorithm from [golang.org/x/time/rate].
//
// # Usage
//
// Wrap an existing dialer with [NewDialer]:
//
//	d, err := throttle.NewDialer(
//		1, // connection attempts per second
//		3, // burst capacity
//		func() *slog.Logger { return slog.Default() },
//		&net.Dialer{},
//	)
//	f, err := fetch.Build(fetch.WithDialer(d))
//
// When the limit is exceeded, the dial blocks until a token becomes
// available or the fetch context is cancelled. This keeps a device that
// polls an update server from hammering it after repeated failures.
//
// [transport.Dialer]: github.com/adamwoolhether/streamfetch/fetch/transport.Dialer
package throttle
