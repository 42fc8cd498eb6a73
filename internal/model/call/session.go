package call

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a caller session. Transitions are
// monotonic: Waiting -> Connected, and either state -> Disconnected.
// Disconnected is terminal.
type Status string

const (
	StatusWaiting      Status = "waiting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// Metadata carries optional caller-supplied identity fields, immutable
// after creation.
type Metadata struct {
	PhoneNumber string
	Name        string
}

// Transport is the exclusively owned duplex channel to the caller.
type Transport interface {
	SendJSON(v any) error
	SendText(payload []byte) error
	Close() error
}

// AISession is the session's view of an open AI backend bridge.
type AISession interface {
	SendAudio(data []byte, mimeType string) error
	SendText(text string) error
	Close() error
}

// ForwardDecision is the per-frame outcome of the audio forwarding policy.
type ForwardDecision int

const (
	// ForwardNotConnected means the session is not connected to the AI
	// backend; the frame must be rejected with a notification.
	ForwardNotConnected ForwardDecision = iota
	// ForwardDrop means the frame arrived inside the minimum spacing
	// window and is silently discarded.
	ForwardDrop
	// ForwardSend means the frame should be relayed to the AI session.
	ForwardSend
)

// Session is one live caller connection. All state behind mu is guarded
// so that racing operator commands, bridge callbacks and the transport
// read loop observe consistent transitions.
type Session struct {
	ID          string
	Transport   Transport
	Metadata    Metadata
	ConnectedAt time.Time

	mu              sync.Mutex
	status          Status
	connecting      bool
	ai              AISession
	acceptedAt      time.Time
	operator        bool
	turns           int
	lastForwardedAt time.Time
	framesForwarded int
}

// NewSession creates a session in the Waiting state.
func NewSession(id string, transport Transport, meta Metadata) *Session {
	return &Session{
		ID:          id,
		Transport:   transport,
		Metadata:    meta,
		ConnectedAt: time.Now().UTC(),
		status:      StatusWaiting,
	}
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// AcceptedAt returns the time of the Waiting -> Connected transition,
// zero if it never happened.
func (s *Session) AcceptedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acceptedAt
}

// MarkOperator flags this session as an operator. One-way for the
// remainder of the connection.
func (s *Session) MarkOperator() {
	s.mu.Lock()
	s.operator = true
	s.mu.Unlock()
}

// IsOperator reports whether the session ever issued an operator command.
func (s *Session) IsOperator() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.operator
}

// BeginAccept reserves the session for bridge setup. It fails when the
// session is not Waiting or another accept is already in flight, which
// makes racing accept/reject resolve to a single winner.
func (s *Session) BeginAccept() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusWaiting || s.connecting {
		return false
	}
	s.connecting = true
	return true
}

// FinishAccept completes the Waiting -> Connected transition with an
// opened AI session. It fails when the session was disconnected while
// the bridge was being opened; the caller then owns closing ai.
func (s *Session) FinishAccept(ai AISession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connecting = false
	if s.status != StatusWaiting {
		return false
	}
	s.status = StatusConnected
	s.ai = ai
	s.acceptedAt = time.Now().UTC()
	return true
}

// AbortAccept rolls the session back to plain Waiting after a failed
// bridge open, so the operator can retry.
func (s *Session) AbortAccept() {
	s.mu.Lock()
	s.connecting = false
	s.mu.Unlock()
}

// MarkRejected performs the Waiting -> Disconnected transition for an
// operator rejection. Fails on any other state, including an accept in
// flight.
func (s *Session) MarkRejected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusWaiting || s.connecting {
		return false
	}
	s.status = StatusDisconnected
	return true
}

// MarkDisconnected moves the session to the terminal state and hands
// back the owned AI session exactly once. Subsequent calls are no-ops.
func (s *Session) MarkDisconnected() (AISession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusDisconnected {
		return nil, false
	}
	s.status = StatusDisconnected
	ai := s.ai
	s.ai = nil
	return ai, true
}

// ConnectedAI returns the owned AI session while the session is still
// Connected. Used by delayed triggers to no-op after teardown.
func (s *Session) ConnectedAI() (AISession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusConnected || s.ai == nil {
		return nil, false
	}
	return s.ai, true
}

// ClaimAudioForward applies the forwarding policy for one audio frame
// received at now. The first frame after connecting always passes;
// afterwards frames inside minInterval of the previous forward are
// dropped. A ForwardSend claim updates the forwarding metadata.
func (s *Session) ClaimAudioForward(now time.Time, minInterval time.Duration) (AISession, ForwardDecision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusConnected || s.ai == nil {
		return nil, ForwardNotConnected
	}
	if !s.lastForwardedAt.IsZero() && now.Sub(s.lastForwardedAt) < minInterval {
		return nil, ForwardDrop
	}
	s.lastForwardedAt = now
	s.framesForwarded++
	return s.ai, ForwardSend
}

// FramesForwarded returns the diagnostic count of frames actually
// relayed to the AI backend.
func (s *Session) FramesForwarded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.framesForwarded
}

// IncrementTurns counts one delivered AI response.
func (s *Session) IncrementTurns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns++
	return s.turns
}

// WaitingSnapshot returns the listing entry for a waiting caller, or
// false when the session should not appear (wrong state or operator).
func (s *Session) WaitingSnapshot() (WaitingCaller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusWaiting || s.operator {
		return WaitingCaller{}, false
	}
	return WaitingCaller{
		ID:          s.ID,
		PhoneNumber: s.Metadata.PhoneNumber,
		Name:        s.Metadata.Name,
		ConnectedAt: s.ConnectedAt,
	}, true
}

// ActiveSnapshot returns the listing entry for a connected caller, or
// false when the session should not appear.
func (s *Session) ActiveSnapshot() (ActiveCaller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusConnected || s.operator {
		return ActiveCaller{}, false
	}
	return ActiveCaller{
		ID:                s.ID,
		PhoneNumber:       s.Metadata.PhoneNumber,
		Name:              s.Metadata.Name,
		ConnectedAt:       s.ConnectedAt,
		AcceptedAt:        s.acceptedAt,
		ConversationTurns: s.turns,
	}, true
}
