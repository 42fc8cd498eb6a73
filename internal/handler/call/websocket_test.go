package call

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	callmodel "github.com/zhouzirui/helpline/backend/internal/model/call"
	"github.com/zhouzirui/helpline/backend/internal/service/ai"
	callservice "github.com/zhouzirui/helpline/backend/internal/service/call"
)

type envelope struct {
	Type     string                   `json:"type"`
	CallerID string                   `json:"callerId"`
	Message  string                   `json:"message"`
	Callers  []map[string]interface{} `json:"callers"`
}

func startRelay(t *testing.T) *httptest.Server {
	t.Helper()

	svc := callservice.NewService(callservice.NewRegistry(), stubDialer{}, callservice.Options{
		MinForwardInterval: 50 * time.Millisecond,
		IntroDelay:         10 * time.Millisecond,
		RejectCloseDelay:   10 * time.Millisecond,
		AudioMIME:          "audio/pcm;rate=16000",
	})
	handler := NewWebSocketHandler(svc)

	r := chi.NewRouter()
	handler.RegisterWebSocketRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dialRelay(t *testing.T, srv *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial relay failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg envelope
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read message failed: %v", err)
	}
	return msg
}

func TestCallerReceivesWaitingNotice(t *testing.T) {
	srv := startRelay(t)
	caller := dialRelay(t, srv, nil)

	msg := readEnvelope(t, caller)
	if msg.Type != callmodel.TypeWaiting {
		t.Fatalf("expected waiting notice, got %+v", msg)
	}
	if msg.CallerID == "" {
		t.Fatal("waiting notice must carry the caller id")
	}
}

func TestOperatorAcceptFlow(t *testing.T) {
	srv := startRelay(t)

	caller := dialRelay(t, srv, http.Header{
		"X-Phone-Number": []string{"+15550100"},
		"X-Caller-Name":  []string{"Ada"},
	})
	waiting := readEnvelope(t, caller)

	operator := dialRelay(t, srv, nil)
	readEnvelope(t, operator) // operator's own waiting notice

	if err := operator.WriteJSON(map[string]string{
		"type": callmodel.TypeGetWaitingCallers,
	}); err != nil {
		t.Fatalf("send list command failed: %v", err)
	}
	list := readEnvelope(t, operator)
	if list.Type != callmodel.TypeWaitingCallers || len(list.Callers) != 1 {
		t.Fatalf("expected one waiting caller, got %+v", list)
	}
	if list.Callers[0]["phoneNumber"] != "+15550100" || list.Callers[0]["name"] != "Ada" {
		t.Fatalf("caller metadata missing from listing: %+v", list.Callers[0])
	}

	if err := operator.WriteJSON(map[string]string{
		"type":           callmodel.TypeOperatorAccept,
		"targetCallerId": waiting.CallerID,
	}); err != nil {
		t.Fatalf("send accept command failed: %v", err)
	}

	accepted := readEnvelope(t, caller)
	if accepted.Type != callmodel.TypeAccepted {
		t.Fatalf("expected accepted notice on caller socket, got %+v", accepted)
	}
	status := readEnvelope(t, operator)
	if status.Type != callmodel.TypeStatus {
		t.Fatalf("expected status reply on operator socket, got %+v", status)
	}

	// The operator session must not show up as a caller.
	if err := operator.WriteJSON(map[string]string{
		"type": callmodel.TypeGetActiveCallers,
	}); err != nil {
		t.Fatalf("send list command failed: %v", err)
	}
	active := readEnvelope(t, operator)
	if active.Type != callmodel.TypeActiveCallers || len(active.Callers) != 1 {
		t.Fatalf("expected exactly the accepted caller, got %+v", active)
	}
	if active.Callers[0]["id"] != waiting.CallerID {
		t.Fatalf("unexpected active caller: %+v", active.Callers[0])
	}
}

func TestOperatorRejectFlow(t *testing.T) {
	srv := startRelay(t)

	caller := dialRelay(t, srv, nil)
	waiting := readEnvelope(t, caller)

	operator := dialRelay(t, srv, nil)
	readEnvelope(t, operator)

	if err := operator.WriteJSON(map[string]string{
		"type":           callmodel.TypeOperatorReject,
		"targetCallerId": waiting.CallerID,
	}); err != nil {
		t.Fatalf("send reject command failed: %v", err)
	}

	rejected := readEnvelope(t, caller)
	if rejected.Type != callmodel.TypeRejected {
		t.Fatalf("expected rejected notice, got %+v", rejected)
	}

	if err := operator.WriteJSON(map[string]string{
		"type": callmodel.TypeGetWaitingCallers,
	}); err != nil {
		t.Fatalf("send list command failed: %v", err)
	}
	// Skip the status reply for the reject command, then read the list.
	var list envelope
	for i := 0; i < 2; i++ {
		list = readEnvelope(t, operator)
		if list.Type == callmodel.TypeWaitingCallers {
			break
		}
	}
	if list.Type != callmodel.TypeWaitingCallers || len(list.Callers) != 0 {
		t.Fatalf("rejected caller must leave the waiting list, got %+v", list)
	}
}

func TestOperatorEndCallFlow(t *testing.T) {
	srv := startRelay(t)

	caller := dialRelay(t, srv, nil)
	waiting := readEnvelope(t, caller)

	operator := dialRelay(t, srv, nil)
	readEnvelope(t, operator)

	if err := operator.WriteJSON(map[string]string{
		"type":           callmodel.TypeOperatorAccept,
		"targetCallerId": waiting.CallerID,
	}); err != nil {
		t.Fatalf("send accept command failed: %v", err)
	}
	readEnvelope(t, caller)   // accepted
	readEnvelope(t, operator) // status

	if err := operator.WriteJSON(map[string]string{
		"type":     callmodel.TypeEndCall,
		"callerId": waiting.CallerID,
	}); err != nil {
		t.Fatalf("send end_call command failed: %v", err)
	}

	ended := readEnvelope(t, caller)
	if ended.Type != callmodel.TypeCallEnded {
		t.Fatalf("expected call_ended notice on caller socket, got %+v", ended)
	}
	confirmation := readEnvelope(t, operator)
	if confirmation.Type != callmodel.TypeCallEndedConfirmation || confirmation.CallerID != waiting.CallerID {
		t.Fatalf("expected end confirmation, got %+v", confirmation)
	}

	if err := operator.WriteJSON(map[string]string{
		"type": callmodel.TypeGetActiveCallers,
	}); err != nil {
		t.Fatalf("send list command failed: %v", err)
	}
	active := readEnvelope(t, operator)
	if active.Type != callmodel.TypeActiveCallers || len(active.Callers) != 0 {
		t.Fatalf("ended caller must leave the active list, got %+v", active)
	}
}

// capturingDialer hands the service's bridge callbacks to the test so
// backend events can be driven directly.
type capturingDialer struct {
	mu sync.Mutex
	cb ai.Callbacks
}

func (d *capturingDialer) Dial(_ context.Context, cb ai.Callbacks) (ai.Session, error) {
	d.mu.Lock()
	d.cb = cb
	d.mu.Unlock()
	return stubAISession{}, nil
}

func (d *capturingDialer) callbacks() ai.Callbacks {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cb
}

func TestPingsCoexistWithRelayWrites(t *testing.T) {
	dialer := &capturingDialer{}
	svc := callservice.NewService(callservice.NewRegistry(), dialer, callservice.Options{
		MinForwardInterval: 50 * time.Millisecond,
		IntroDelay:         10 * time.Millisecond,
		RejectCloseDelay:   10 * time.Millisecond,
		AudioMIME:          "audio/pcm;rate=16000",
	})
	handler := NewWebSocketHandler(svc)
	handler.pingInterval = 2 * time.Millisecond

	r := chi.NewRouter()
	handler.RegisterWebSocketRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	caller := dialRelay(t, srv, nil)
	waiting := readEnvelope(t, caller)

	if err := svc.Accept(context.Background(), waiting.CallerID); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	readEnvelope(t, caller) // accepted

	// Flood AI responses through the transport while pings fire every
	// couple of milliseconds; a writer collision would kill the
	// connection and fail the reads below.
	cb := dialer.callbacks()
	payload := []byte(`{"serverContent":{"modelTurn":{"parts":[{"text":"hi"}]}}}`)
	const frames = 200
	go func() {
		for i := 0; i < frames; i++ {
			cb.OnMessage(payload)
			time.Sleep(time.Millisecond)
		}
	}()

	caller.SetReadDeadline(time.Now().Add(5 * time.Second))
	for i := 0; i < frames; i++ {
		_, got, err := caller.ReadMessage()
		if err != nil {
			t.Fatalf("read failed after %d relayed frames: %v", i, err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("frame %d not relayed verbatim: %s", i, got)
		}
	}
}

func TestAudioBeforeAcceptGetsErrorNotice(t *testing.T) {
	srv := startRelay(t)

	caller := dialRelay(t, srv, nil)
	readEnvelope(t, caller)

	if err := caller.WriteMessage(websocket.BinaryMessage, []byte{0x00, 0x01}); err != nil {
		t.Fatalf("send audio failed: %v", err)
	}

	msg := readEnvelope(t, caller)
	if msg.Type != callmodel.TypeError {
		t.Fatalf("expected error notice for premature audio, got %+v", msg)
	}
}

func TestUnknownJSONFrameTreatedAsAudio(t *testing.T) {
	srv := startRelay(t)

	caller := dialRelay(t, srv, nil)
	readEnvelope(t, caller)

	// Parseable JSON without a known command type is an opaque audio
	// payload, so the waiting caller gets the not-yet-connected notice.
	if err := caller.WriteMessage(websocket.TextMessage, []byte(`{"type":"mystery"}`)); err != nil {
		t.Fatalf("send frame failed: %v", err)
	}

	msg := readEnvelope(t, caller)
	if msg.Type != callmodel.TypeError {
		t.Fatalf("expected unknown frame to be handled as audio, got %+v", msg)
	}
}
