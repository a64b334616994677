package framer

// State tracks a response across blocks. It is set once from the first
// block's Frame; afterwards only TotalDelivered changes.
type State struct {
	BodyStarted    bool
	DeclaredLength int64
	TotalDelivered int64
}

// NewState returns a State for a response whose first block has not been
// framed yet.
func NewState() State {
	return State{DeclaredLength: Unknown}
}

// Start records the first block's frame.
func (s *State) Start(f Frame) {
	s.BodyStarted = true
	s.DeclaredLength = f.DeclaredLength
}

// Add accounts for n delivered body bytes.
func (s *State) Add(n int) {
	s.TotalDelivered += int64(n)
}

// Complete reports whether the declared length has been delivered. Without a
// declared length the response only ends when the peer closes.
func (s *State) Complete() bool {
	return s.BodyStarted && s.DeclaredLength >= 0 && s.TotalDelivered >= s.DeclaredLength
}

// Clip trims block so that delivery never passes the declared length.
func (s *State) Clip(block []byte) []byte {
	if s.DeclaredLength < 0 {
		return block
	}

	remaining := s.DeclaredLength - s.TotalDelivered
	if remaining <= 0 {
		return block[:0]
	}
	if int64(len(block)) > remaining {
		return block[:remaining]
	}

	return block
}
