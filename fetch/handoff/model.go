package handoff

// ChunkMessage announces the state of the shared destination slot.
//
// Length > 0 means that many bytes of body data are waiting in the
// destination. Length == 0 ends the stream successfully and Length < 0 ends
// it with an error.
type ChunkMessage struct {
	Length int
}

var (
	// EndOfStream is the terminal message of a successful fetch.
	EndOfStream = ChunkMessage{Length: 0}
	// EndWithError is the terminal message of a failed fetch.
	EndWithError = ChunkMessage{Length: -1}
)

// Terminal reports whether m ends the stream.
func (m ChunkMessage) Terminal() bool { return m.Length <= 0 }

// Failed reports whether m ends the stream with an error.
func (m ChunkMessage) Failed() bool { return m.Length < 0 }

// Destination is the consumer-owned buffer the producer copies chunks into.
// Bound caps how much of Buf may be used; zero or a value beyond len(Buf)
// means the whole of Buf. The producer never resizes Buf.
type Destination struct {
	Buf   []byte
	Bound int
}

// Cap returns the number of bytes a single chunk may occupy.
func (d *Destination) Cap() int {
	if d == nil {
		return 0
	}
	if d.Bound <= 0 || d.Bound > len(d.Buf) {
		return len(d.Buf)
	}
	return d.Bound
}

// Fill copies p into the destination and returns the number of bytes copied,
// which is never more than Cap.
func (d *Destination) Fill(p []byte) int {
	return copy(d.Buf[:d.Cap()], p)
}

// Bytes returns the slice of the destination described by a data message.
// It returns nil for terminal messages.
func (d *Destination) Bytes(m ChunkMessage) []byte {
	if m.Terminal() {
		return nil
	}
	return d.Buf[:min(m.Length, d.Cap())]
}
