// Package fetch streams the body of a single HTTP/1.1 GET or HEAD over TCP or
// TLS into a caller-owned destination buffer.
//
// A [Fetcher] is the producer. It connects, sends the request, frames the
// first block of the response and then hands the body to a consumer one
// chunk at a time through a [handoff.Channel]. The consumer owns the
// destination between receiving a chunk and calling [handoff.Channel.Ready];
// the fetcher never writes it in that window.
//
// Every fetch ends with exactly one terminal message on the channel: length 0
// for success, negative for failure. The session is closed before that
// message is sent.
//
//	f, _ := fetch.Build(fetch.WithLogger(logger))
//	req, _ := fetch.NewRequest(http.MethodGet, "https://example.com/file.bin")
//	dst := &handoff.Destination{Buf: make([]byte, 4<<10)}
//
//	stream, _ := f.Start(ctx, req, dst)
//	ch := stream.Channel()
//	for {
//		msg, err := ch.Receive(ctx)
//		if err != nil || msg.Terminal() {
//			break
//		}
//		out.Write(dst.Bytes(msg))
//		ch.Ready(ctx)
//	}
//	err := stream.Err()
package fetch
