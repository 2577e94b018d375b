package bridge

import "sync/atomic"

// Sequence issues correlation ids for outgoing requests. It is owned by the
// Manager it is handed to rather than being process-global, so independent
// managers (and tests) never share counter state. Wrap-around is not handled;
// a process will not issue 2^64 requests in one lifetime.
type Sequence struct {
	n atomic.Uint64
}

// NewSequence returns a counter whose first Next call yields start+1.
func NewSequence(start uint64) *Sequence {
	s := &Sequence{}
	s.n.Store(start)
	return s
}

// Next returns the next sequence number.
func (s *Sequence) Next() uint64 {
	return s.n.Add(1)
}
