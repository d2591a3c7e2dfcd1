package health

import "sync"

// State is the shared health record consulted by the webhook before it
// accepts traffic. It replaces ambient globals with a synchronized value
// that has an explicit read/write contract: the bootstrap writes it once
// per condition change, request handlers only read it.
type State struct {
	mu          sync.RWMutex
	streamReady bool
	reason      string
}

// NewState starts in the not-ready condition.
func NewState() *State {
	return &State{reason: "stream not initialized"}
}

// SetStreamReady marks the durable stream as usable.
func (s *State) SetStreamReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamReady = true
	s.reason = ""
}

// SetStreamFailed records why the durable stream is unusable.
func (s *State) SetStreamFailed(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamReady = false
	s.reason = reason
}

// StreamReady reports whether the stream is usable and, when it is not,
// the recorded reason.
func (s *State) StreamReady() (bool, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streamReady, s.reason
}
