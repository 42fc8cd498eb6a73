package ai

import (
	"context"
	"errors"
)

// ErrBridgeUnavailable indicates the AI backend connection could not be
// established. Accept operations roll back to Waiting on this error.
var ErrBridgeUnavailable = errors.New("ai backend unavailable")

// Session is one open bidirectional stream to the AI backend. Sends are
// fire-and-forget: an error reports a transient failure and does not
// invalidate the session.
type Session interface {
	// SendAudio relays one audio chunk with its declared encoding.
	SendAudio(data []byte, mimeType string) error
	// SendText injects a text turn, used for the synthetic introduction
	// prompt and operator-supplied context.
	SendText(text string) error
	// Close tears down the stream. Idempotent, safe even if the backend
	// never finished opening.
	Close() error
}

// Callbacks receive asynchronous backend events. Any field may be nil.
// OnMessage payloads are the backend's serialized responses, relayed to
// the caller verbatim.
type Callbacks struct {
	OnOpen    func()
	OnMessage func(payload []byte)
	OnError   func(err error)
	OnClose   func(reason string)
}

// Dialer opens AI sessions. The production implementation speaks the
// Gemini Live protocol; tests substitute fakes.
type Dialer interface {
	Dial(ctx context.Context, cb Callbacks) (Session, error)
}
