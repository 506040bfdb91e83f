package testutil

import (
	"sync"

	"github.com/roach88/versync/internal/ir"
)

// RecordingSession captures every outbound message for assertions.
//
// Failures can be injected per op with FailOn; a failed send is not
// recorded.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type RecordingSession struct {
	mu       sync.Mutex
	messages []ir.Message
	failures map[ir.Op]error
}

// NewRecordingSession creates an empty recording session.
func NewRecordingSession() *RecordingSession {
	return &RecordingSession{failures: make(map[ir.Op]error)}
}

// Send records msg, or returns the error injected for its op.
func (s *RecordingSession) Send(msg ir.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failures[msg.Op]; ok {
		return err
	}
	s.messages = append(s.messages, msg)
	return nil
}

// FailOn makes every later send of op return err. A nil err clears it.
func (s *RecordingSession) FailOn(op ir.Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Messages returns a copy of all recorded messages in send order.
func (s *RecordingSession) Messages() []ir.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ir.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Ops returns the op of each recorded message in send order.
func (s *RecordingSession) Ops() []ir.Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ir.Op, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Op
	}
	return out
}

// Count returns how many recorded messages have the given op.
func (s *RecordingSession) Count(op ir.Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.Op == op {
			n++
		}
	}
	return n
}

// Last returns the most recent message, if any.
func (s *RecordingSession) Last() (ir.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return ir.Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// Reset drops all recorded messages. Injected failures are kept.
func (s *RecordingSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}
