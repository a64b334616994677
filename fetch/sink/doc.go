// Package sink implements the consumer side of a fetch: it drains a
// [handoff.Channel] into an io.Writer, a file or a blob bucket, with optional
// checksum validation and progress reporting.
//
// Each chunk is written out of the destination before the channel is told
// the destination is free again. When a write fails the sink stops
// acknowledging, so the producer gives up after its handoff timeout.
package sink
