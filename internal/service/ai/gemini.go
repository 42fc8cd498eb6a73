package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultLiveURL is the Gemini Live (BidiGenerateContent) websocket
// endpoint.
const DefaultLiveURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// LiveConfig configures the Gemini Live dialer.
type LiveConfig struct {
	APIKey            string
	Model             string
	BaseURL           string
	SystemInstruction string
	HandshakeTimeout  time.Duration
}

// GeminiLive dials Gemini Live sessions over websocket.
type GeminiLive struct {
	cfg    LiveConfig
	dialer *websocket.Dialer
}

// NewGeminiLive creates a dialer for the configured model.
func NewGeminiLive(cfg LiveConfig) *GeminiLive {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultLiveURL
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 15 * time.Second
	}
	return &GeminiLive{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

// Client -> server frames. One JSON object per websocket message.
type setupFrame struct {
	Setup *sessionSetup `json:"setup"`
}

type sessionSetup struct {
	Model             string            `json:"model"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text,omitempty"`
}

type realtimeInputFrame struct {
	RealtimeInput *realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"mediaChunks"`
}

type mediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type clientContentFrame struct {
	ClientContent *clientContent `json:"clientContent"`
}

type clientContent struct {
	Turns        []content `json:"turns"`
	TurnComplete bool      `json:"turnComplete"`
}

// serverFrame is only peeked at to detect setup completion; everything
// else is relayed opaquely.
type serverFrame struct {
	SetupComplete json.RawMessage `json:"setupComplete,omitempty"`
}

// Dial opens a live session and starts relaying backend events through
// cb. A connect or setup failure maps to ErrBridgeUnavailable.
func (g *GeminiLive) Dial(ctx context.Context, cb Callbacks) (Session, error) {
	endpoint, err := g.endpoint()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBridgeUnavailable, err)
	}

	conn, _, err := g.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial live endpoint: %v", ErrBridgeUnavailable, err)
	}

	model := g.cfg.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	setup := setupFrame{Setup: &sessionSetup{
		Model:            model,
		GenerationConfig: &generationConfig{ResponseModalities: []string{"AUDIO"}},
	}}
	if g.cfg.SystemInstruction != "" {
		setup.Setup.SystemInstruction = &content{Parts: []part{{Text: g.cfg.SystemInstruction}}}
	}
	if err := conn.WriteJSON(setup); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: send setup: %v", ErrBridgeUnavailable, err)
	}

	s := &liveSession{
		conn:   conn,
		cb:     cb,
		closed: make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

func (g *GeminiLive) endpoint() (string, error) {
	u, err := url.Parse(g.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid live URL %q: %v", g.cfg.BaseURL, err)
	}
	q := u.Query()
	q.Set("key", g.cfg.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// liveSession is one open Gemini Live stream. Writes are serialized;
// the read loop owns the receive side until the connection dies.
type liveSession struct {
	conn      *websocket.Conn
	cb        Callbacks
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

func (s *liveSession) SendAudio(data []byte, mimeType string) error {
	frame := realtimeInputFrame{RealtimeInput: &realtimeInput{
		MediaChunks: []mediaChunk{{
			MIMEType: mimeType,
			Data:     base64.StdEncoding.EncodeToString(data),
		}},
	}}
	return s.writeJSON(frame)
}

func (s *liveSession) SendText(text string) error {
	frame := clientContentFrame{ClientContent: &clientContent{
		Turns: []content{{
			Role:  "user",
			Parts: []part{{Text: text}},
		}},
		TurnComplete: true,
	}}
	return s.writeJSON(frame)
}

func (s *liveSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
	return nil
}

func (s *liveSession) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *liveSession) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *liveSession) readLoop() {
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.handleReadError(err)
			return
		}

		var frame serverFrame
		if unmarshalErr := json.Unmarshal(payload, &frame); unmarshalErr == nil && frame.SetupComplete != nil {
			log.Printf("[ai] live session opened")
			if s.cb.OnOpen != nil {
				s.cb.OnOpen()
			}
			continue
		}

		if s.cb.OnMessage != nil {
			s.cb.OnMessage(payload)
		}
	}
}

func (s *liveSession) handleReadError(err error) {
	if s.isClosed() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		if s.cb.OnClose != nil {
			s.cb.OnClose("session closed")
		}
		return
	}
	log.Printf("[ai] live session read error: %v", err)
	if s.cb.OnError != nil {
		s.cb.OnError(err)
	}
	if s.cb.OnClose != nil {
		s.cb.OnClose(err.Error())
	}
}
