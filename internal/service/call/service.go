package call

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/helpline/backend/internal/model/call"
	"github.com/zhouzirui/helpline/backend/internal/service/ai"
)

var (
	ErrCallerNotFound = errors.New("caller not found")
	ErrInvalidState   = errors.New("caller is not in a waiting state")
)

// Options tune the call lifecycle timings.
type Options struct {
	// MinForwardInterval is the floor between two audio frames forwarded
	// to the AI backend for the same caller.
	MinForwardInterval time.Duration
	// IntroDelay is how long after acceptance the introduction prompt
	// fires, letting the audio pipelines on both ends stabilize.
	IntroDelay time.Duration
	// RejectCloseDelay keeps the transport open briefly after a
	// rejection so the notification is flushed before teardown.
	RejectCloseDelay time.Duration
	// AudioMIME is the declared encoding of caller audio frames.
	AudioMIME string
}

// DefaultOptions returns the production timings.
func DefaultOptions() Options {
	return Options{
		MinForwardInterval: 300 * time.Millisecond,
		IntroDelay:         800 * time.Millisecond,
		RejectCloseDelay:   250 * time.Millisecond,
		AudioMIME:          "audio/pcm;rate=16000",
	}
}

// Service owns the caller lifecycle: registration, operator gating,
// audio forwarding and AI bridge ownership.
type Service struct {
	registry *Registry
	dialer   ai.Dialer
	opts     Options
}

// NewService wires the lifecycle service. dialer may be nil when the AI
// backend is not configured; accepts then fail with ErrBridgeUnavailable
// and callers keep waiting.
func NewService(registry *Registry, dialer ai.Dialer, opts Options) *Service {
	if opts.MinForwardInterval <= 0 {
		opts.MinForwardInterval = DefaultOptions().MinForwardInterval
	}
	if opts.IntroDelay <= 0 {
		opts.IntroDelay = DefaultOptions().IntroDelay
	}
	if opts.RejectCloseDelay <= 0 {
		opts.RejectCloseDelay = DefaultOptions().RejectCloseDelay
	}
	if opts.AudioMIME == "" {
		opts.AudioMIME = DefaultOptions().AudioMIME
	}
	return &Service{registry: registry, dialer: dialer, opts: opts}
}

// Connect registers a new caller session for an opened transport and
// sends the initial waiting notification.
func (s *Service) Connect(transport call.Transport, meta call.Metadata) *call.Session {
	sess := call.NewSession(uuid.NewString(), transport, meta)
	s.registry.Register(sess)

	log.Printf("[call] caller connected id=%s phone=%q name=%q", sess.ID, meta.PhoneNumber, meta.Name)

	if err := transport.SendJSON(call.Notice{
		Type:     call.TypeWaiting,
		CallerID: sess.ID,
		Message:  "You are in the queue. An operator will connect you shortly.",
	}); err != nil {
		log.Printf("[call] send waiting notice failed id=%s: %v", sess.ID, err)
	}
	return sess
}

// Accept transitions a waiting caller to Connected by opening an AI
// session for it. A bridge failure rolls the caller back to Waiting so
// the operator can retry.
func (s *Service) Accept(ctx context.Context, id string) error {
	sess, ok := s.registry.Get(id)
	if !ok {
		return ErrCallerNotFound
	}
	if !sess.BeginAccept() {
		return ErrInvalidState
	}

	if s.dialer == nil {
		sess.AbortAccept()
		s.notifyError(sess, "The assistant is not available right now. Please stay on the line.")
		return fmt.Errorf("accept caller %s: %w", id, ai.ErrBridgeUnavailable)
	}

	aiSess, err := s.dialer.Dial(ctx, s.bridgeCallbacks(sess))
	if err != nil {
		sess.AbortAccept()
		s.notifyError(sess, "Could not reach the assistant. Please stay on the line while we retry.")
		return fmt.Errorf("accept caller %s: %w", id, err)
	}

	if !sess.FinishAccept(aiSess) {
		// The caller hung up while the bridge was opening.
		aiSess.Close()
		return ErrInvalidState
	}

	log.Printf("[call] caller accepted id=%s", sess.ID)

	if err := sess.Transport.SendJSON(call.Notice{
		Type:    call.TypeAccepted,
		Message: "An operator accepted your call. Connecting you to the assistant.",
	}); err != nil {
		log.Printf("[call] send accepted notice failed id=%s: %v", sess.ID, err)
	}

	s.scheduleIntroduction(sess)
	return nil
}

// Reject turns a waiting caller away. The registry entry is removed
// immediately; the transport closes after a short flush delay.
func (s *Service) Reject(id string) error {
	sess, ok := s.registry.Get(id)
	if !ok {
		return ErrCallerNotFound
	}
	if !sess.MarkRejected() {
		return ErrInvalidState
	}

	log.Printf("[call] caller rejected id=%s", sess.ID)

	if err := sess.Transport.SendJSON(call.Notice{
		Type:    call.TypeRejected,
		Message: "We are unable to take your call right now. Please try again later.",
	}); err != nil {
		log.Printf("[call] send rejected notice failed id=%s: %v", sess.ID, err)
	}

	s.registry.Remove(id)
	time.AfterFunc(s.opts.RejectCloseDelay, func() {
		sess.Transport.Close()
	})
	return nil
}

// EndCall terminates a caller in any state: the AI session is closed
// first, the caller notified, then transport and registry entry go.
func (s *Service) EndCall(id string) error {
	sess, ok := s.registry.Get(id)
	if !ok {
		return ErrCallerNotFound
	}

	if aiSess, changed := sess.MarkDisconnected(); changed && aiSess != nil {
		aiSess.Close()
	}

	log.Printf("[call] call ended by operator id=%s", sess.ID)

	if err := sess.Transport.SendJSON(call.Notice{
		Type:    call.TypeCallEnded,
		Message: "The call has been ended by the operator.",
	}); err != nil {
		log.Printf("[call] send call_ended notice failed id=%s: %v", sess.ID, err)
	}

	s.registry.Remove(id)
	sess.Transport.Close()
	return nil
}

// HandleDisconnect tears a session down after its transport closed or
// errored. Idempotent: a second call is a no-op.
func (s *Service) HandleDisconnect(sess *call.Session) {
	aiSess, changed := sess.MarkDisconnected()
	if !changed {
		return
	}
	if aiSess != nil {
		aiSess.Close()
	}
	s.registry.Remove(sess.ID)
	log.Printf("[call] caller disconnected id=%s", sess.ID)
}

// HandleAudio applies the forwarding policy to one received audio frame.
// Frames before acceptance are rejected with a notification; frames
// under the spacing floor are dropped without a notification.
func (s *Service) HandleAudio(sess *call.Session, frame []byte) {
	aiSess, decision := sess.ClaimAudioForward(time.Now(), s.opts.MinForwardInterval)
	switch decision {
	case call.ForwardNotConnected:
		s.notifyError(sess, "Not yet connected. Please wait for an operator to accept your call.")
	case call.ForwardDrop:
		// Deliberate sampling, not a failure.
	case call.ForwardSend:
		if err := aiSess.SendAudio(frame, s.opts.AudioMIME); err != nil {
			log.Printf("[call] audio forward failed id=%s: %v", sess.ID, err)
			s.notifyError(sess, "Temporary problem forwarding your audio. Please keep talking.")
		}
	}
}

// Waiting lists callers waiting for an operator.
func (s *Service) Waiting() []call.WaitingCaller {
	return s.registry.Waiting()
}

// Active lists callers currently bridged to the AI backend.
func (s *Service) Active() []call.ActiveCaller {
	return s.registry.Active()
}

// scheduleIntroduction arms the delayed prompt that makes the AI speak
// first. The timer re-checks the session state when it fires, so a
// caller that disconnected in the meantime is left alone.
func (s *Service) scheduleIntroduction(sess *call.Session) {
	waited := sess.AcceptedAt().Sub(sess.ConnectedAt)
	time.AfterFunc(s.opts.IntroDelay, func() {
		aiSess, ok := sess.ConnectedAI()
		if !ok {
			return
		}
		intro := ai.BuildIntroduction(sess.Metadata.Name, sess.Metadata.PhoneNumber, waited)
		if err := aiSess.SendText(intro); err != nil {
			log.Printf("[call] introduction prompt failed id=%s: %v", sess.ID, err)
		}
	})
}

// bridgeCallbacks relays backend events for one caller back through its
// transport, mirroring the backend's own serialization for responses.
func (s *Service) bridgeCallbacks(sess *call.Session) ai.Callbacks {
	return ai.Callbacks{
		OnOpen: func() {
			sess.Transport.SendJSON(call.Notice{Type: call.TypeStatus, Message: "Connected to AI"})
		},
		OnMessage: func(payload []byte) {
			sess.IncrementTurns()
			if err := sess.Transport.SendText(payload); err != nil {
				log.Printf("[call] relay ai response failed id=%s: %v", sess.ID, err)
			}
		},
		OnError: func(err error) {
			log.Printf("[call] ai session error id=%s: %v", sess.ID, err)
			s.notifyError(sess, err.Error())
		},
		OnClose: func(reason string) {
			log.Printf("[call] ai session closed id=%s reason=%q", sess.ID, reason)
			sess.Transport.SendJSON(call.Notice{Type: call.TypeStatus, Message: "AI session closed"})
		},
	}
}

func (s *Service) notifyError(sess *call.Session, message string) {
	if err := sess.Transport.SendJSON(call.Notice{Type: call.TypeError, Message: message}); err != nil {
		log.Printf("[call] send error notice failed id=%s: %v", sess.ID, err)
	}
}
