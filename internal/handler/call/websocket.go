package call

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	callmodel "github.com/zhouzirui/helpline/backend/internal/model/call"
	"github.com/zhouzirui/helpline/backend/internal/service/ai"
	callservice "github.com/zhouzirui/helpline/backend/internal/service/call"
)

// WebSocketHandler accepts caller and operator connections on one
// endpoint and multiplexes control commands and audio frames per
// connection.
type WebSocketHandler struct {
	svc          *callservice.Service
	upgrader     websocket.Upgrader
	pingInterval time.Duration
}

// NewWebSocketHandler creates the relay handler.
func NewWebSocketHandler(svc *callservice.Service) *WebSocketHandler {
	return &WebSocketHandler{
		svc:          svc,
		pingInterval: 54 * time.Second,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterWebSocketRoutes mounts the relay endpoint.
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

// handleWebSocket runs the per-connection read loop. Callers may wait
// indefinitely, so no read deadline is set; a ping loop keeps
// intermediaries from dropping idle connections.
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	meta := callmodel.Metadata{
		PhoneNumber: r.Header.Get("x-phone-number"),
		Name:        r.Header.Get("x-caller-name"),
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}

	transport := newWSTransport(conn)
	sess := h.svc.Connect(transport, meta)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.pingLoop(ctx, conn)

	for {
		msgType, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[websocket] read error id=%s: %v", sess.ID, err)
			}
			h.svc.HandleDisconnect(sess)
			transport.Close()
			return
		}

		// Binary frames are always audio; text frames are tried as
		// control commands first.
		if msgType == websocket.TextMessage {
			if cmd, ok := callmodel.ParseControl(frame); ok {
				h.dispatchControl(r.Context(), sess, cmd)
				continue
			}
		}
		h.svc.HandleAudio(sess, frame)
	}
}

// dispatchControl executes one control command on behalf of the sending
// session. Every recognized command is operator-only, so the first one
// permanently marks the sender as an operator.
func (h *WebSocketHandler) dispatchControl(ctx context.Context, sess *callmodel.Session, cmd callmodel.ControlMessage) {
	sess.MarkOperator()

	switch cmd.Type {
	case callmodel.TypeOperatorAccept:
		if err := h.svc.Accept(ctx, cmd.Target()); err != nil {
			h.replyError(sess, err)
			return
		}
		sess.Transport.SendJSON(callmodel.Notice{
			Type:     callmodel.TypeStatus,
			CallerID: cmd.Target(),
			Message:  "caller accepted",
		})

	case callmodel.TypeOperatorReject:
		if err := h.svc.Reject(cmd.Target()); err != nil {
			h.replyError(sess, err)
			return
		}
		sess.Transport.SendJSON(callmodel.Notice{
			Type:     callmodel.TypeStatus,
			CallerID: cmd.Target(),
			Message:  "caller rejected",
		})

	case callmodel.TypeEndCall:
		if err := h.svc.EndCall(cmd.Target()); err != nil {
			h.replyError(sess, err)
			return
		}
		sess.Transport.SendJSON(callmodel.Confirmation{
			Type:     callmodel.TypeCallEndedConfirmation,
			CallerID: cmd.Target(),
		})

	case callmodel.TypeGetWaitingCallers:
		sess.Transport.SendJSON(callmodel.WaitingList{
			Type:    callmodel.TypeWaitingCallers,
			Callers: h.svc.Waiting(),
		})

	case callmodel.TypeGetActiveCallers:
		sess.Transport.SendJSON(callmodel.ActiveList{
			Type:    callmodel.TypeActiveCallers,
			Callers: h.svc.Active(),
		})
	}
}

func (h *WebSocketHandler) replyError(sess *callmodel.Session, err error) {
	sess.Transport.SendJSON(callmodel.Notice{
		Type:    callmodel.TypeError,
		Message: describeError(err),
	})
}

func describeError(err error) string {
	switch {
	case errors.Is(err, callservice.ErrCallerNotFound):
		return "caller not found"
	case errors.Is(err, callservice.ErrInvalidState):
		return "caller is not in a waiting state"
	case errors.Is(err, ai.ErrBridgeUnavailable):
		return "could not reach the AI backend"
	default:
		return err.Error()
	}
}

// pingLoop keeps the connection alive while a caller waits. Pings go
// through WriteControl, which gorilla allows concurrently with the
// transport's data writers (AI relay, timers, command replies).
func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// wsTransport adapts a gorilla connection to the session transport.
// gorilla allows one concurrent writer, so all sends share a mutex.
type wsTransport struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) SendJSON(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteJSON(v)
}

func (t *wsTransport) SendText(payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
