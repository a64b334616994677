// Package handoff pairs one producer goroutine with one consumer goroutine
// around a single caller-owned [Destination] buffer.
//
// Two capacity-1 mailboxes drive a strict rendezvous. The producer copies a
// chunk into the destination and publishes a [ChunkMessage] on the data
// mailbox. The consumer receives it, drains the destination and answers with
// a token on the ready mailbox. The producer may not touch the destination
// again until that token arrives, so at most one chunk is ever in flight:
//
//	ch := handoff.New(5 * time.Second)
//	dst := &handoff.Destination{Buf: make([]byte, 4096)}
//
//	// producer
//	_ = ch.Acquire(ctx)
//	n := dst.Fill(data)
//	_ = ch.Publish(ctx, handoff.ChunkMessage{Length: n})
//	...
//	ch.Finish(ctx, handoff.EndOfStream)
//
//	// consumer
//	for {
//		msg, err := ch.Receive(ctx)
//		if err != nil || msg.Terminal() {
//			break
//		}
//		consume(dst.Bytes(msg))
//		_ = ch.Ready(ctx)
//	}
//
// Every wait on either side is bounded by the channel timeout. Exactly one
// terminal message (length zero or negative) is sent per fetch by
// [Channel.Finish].
package handoff
